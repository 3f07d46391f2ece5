package capmon

// eventType describes an event type.
type eventType = string

const (
	eventWarning            eventType = "warning"
	eventSupervisorStarted  eventType = "supervisor started"
	eventSupervisorStopped  eventType = "supervisor stopped"
	eventSignalReceived     eventType = "signal received"
	eventCaptureSpawned     eventType = "capture spawned"
	eventCaptureSpawnError  eventType = "capture spawn error"
	eventCaptureStopped     eventType = "capture stopped"
	eventCaptureExited      eventType = "capture exited"
	eventCaptureFileRemoved eventType = "capture file removed"
	eventOrphansReaped      eventType = "orphans reaped"
	eventCapturesPruned     eventType = "captures pruned"
	eventPruneError         eventType = "prune error"
	eventLogTruncated       eventType = "log truncated"
	eventLogTruncateError   eventType = "log truncate error"
)

// Event is an interface describing known events.
type Event interface {
	Type() string
	event()
}

// NewEvent creates a new event from the given event type. It is used primarily
// for decoding events from its type. Nil is returned if the event type is
// unknown.
func NewEvent(eventType string) Event {
	switch eventType {
	case eventWarning:
		return &EventWarning{}
	case eventSupervisorStarted:
		return &EventSupervisorStarted{}
	case eventSupervisorStopped:
		return &EventSupervisorStopped{}
	case eventSignalReceived:
		return &EventSignalReceived{}
	case eventCaptureSpawned:
		return &EventCaptureSpawned{}
	case eventCaptureSpawnError:
		return &EventCaptureSpawnError{}
	case eventCaptureStopped:
		return &EventCaptureStopped{}
	case eventCaptureExited:
		return &EventCaptureExited{}
	case eventCaptureFileRemoved:
		return &EventCaptureFileRemoved{}
	case eventOrphansReaped:
		return &EventOrphansReaped{}
	case eventCapturesPruned:
		return &EventCapturesPruned{}
	case eventPruneError:
		return &EventPruneError{}
	case eventLogTruncated:
		return &EventLogTruncated{}
	case eventLogTruncateError:
		return &EventLogTruncateError{}
	default:
		return nil
	}
}

// EventWarning is emitted when a non-fatal error occurs.
type EventWarning struct {
	Component string `json:"component"`
	Error     string `json:"error"`
}

func (ev *EventWarning) Type() string { return eventWarning }
func (ev *EventWarning) event()       {}

// EventSupervisorStarted is the banner written when the supervisor starts.
type EventSupervisorStarted struct {
	PID int    `json:"pid"`
	Dir string `json:"dir"`
}

func (ev *EventSupervisorStarted) Type() string { return eventSupervisorStarted }
func (ev *EventSupervisorStarted) event()       {}

// EventSupervisorStopped is the final banner written before the supervisor
// exits.
type EventSupervisorStopped struct {
	PID int `json:"pid"`
}

func (ev *EventSupervisorStopped) Type() string { return eventSupervisorStopped }
func (ev *EventSupervisorStopped) event()       {}

// EventSignalReceived is emitted when a termination signal is delivered.
type EventSignalReceived struct {
	Signal string `json:"signal"`
}

func (ev *EventSignalReceived) Type() string { return eventSignalReceived }
func (ev *EventSignalReceived) event()       {}

// EventCaptureSpawned is emitted when a capture session has been started.
type EventCaptureSpawned struct {
	PID      int    `json:"pid"`
	Date     string `json:"date"`
	Sequence int    `json:"sequence"`
	File     string `json:"file"`
}

func (ev *EventCaptureSpawned) Type() string { return eventCaptureSpawned }
func (ev *EventCaptureSpawned) event()       {}

// EventCaptureSpawnError is emitted when the capture tool fails to start, or
// when it exits before the start grace period is over.
type EventCaptureSpawnError struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

func (ev *EventCaptureSpawnError) Type() string { return eventCaptureSpawnError }
func (ev *EventCaptureSpawnError) event()       {}

// EventCaptureStopped is emitted when the supervisor stopped the capture
// process itself.
type EventCaptureStopped struct {
	PID    int  `json:"pid"`
	Killed bool `json:"killed"` // true if SIGKILL was needed
}

func (ev *EventCaptureStopped) Type() string { return eventCaptureStopped }
func (ev *EventCaptureStopped) event()       {}

// EventCaptureExited is emitted when the capture process is found dead
// without the supervisor having stopped it.
type EventCaptureExited struct {
	PID      int    `json:"pid"`
	File     string `json:"file"`
	Error    string `json:"error,omitempty"`
	ExitCode int    `json:"exit_code"` // -1 if killed by a signal
}

func (ev *EventCaptureExited) Type() string { return eventCaptureExited }
func (ev *EventCaptureExited) event()       {}

// EventCaptureFileRemoved is emitted when the active capture file disappears
// from the capture directory underneath the running capture process.
type EventCaptureFileRemoved struct {
	File string `json:"file"`
}

func (ev *EventCaptureFileRemoved) Type() string { return eventCaptureFileRemoved }
func (ev *EventCaptureFileRemoved) event()       {}

// EventOrphansReaped is emitted when processes left behind by the capture tool
// have been waited for.
type EventOrphansReaped struct {
	PIDs []int `json:"pids"`
}

func (ev *EventOrphansReaped) Type() string { return eventOrphansReaped }
func (ev *EventOrphansReaped) event()       {}

// EventCapturesPruned is emitted after a retention sweep.
type EventCapturesPruned struct {
	Files []string `json:"files"`
	Days  int      `json:"days"`
}

func (ev *EventCapturesPruned) Type() string { return eventCapturesPruned }
func (ev *EventCapturesPruned) event()       {}

// EventPruneError is emitted for every capture file that could not be
// inspected or deleted.
type EventPruneError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

func (ev *EventPruneError) Type() string { return eventPruneError }
func (ev *EventPruneError) event()       {}

// EventLogTruncated is emitted when the log file has been truncated.
type EventLogTruncated struct {
	OldSize  int64 `json:"old_size"`
	Skipped  int64 `json:"skipped"`
	Retained int64 `json:"retained"`
}

func (ev *EventLogTruncated) Type() string { return eventLogTruncated }
func (ev *EventLogTruncated) event()       {}

// EventLogTruncateError is emitted when any step of truncating the log file
// fails. The log file is left as it was.
type EventLogTruncateError struct {
	Error string `json:"error"`
}

func (ev *EventLogTruncateError) Type() string { return eventLogTruncateError }
func (ev *EventLogTruncateError) event()       {}
