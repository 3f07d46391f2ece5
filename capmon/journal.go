package capmon

// Journaler describes an event logger.
type Journaler interface {
	Write(Event) error
}

// LogFile describes the log file that the supervisor journals into and keeps
// trimmed.
type LogFile interface {
	// WithLock calls fn with the log file's path. No journal write may happen
	// while fn runs.
	WithLock(fn func(path string) error) error
}

// PlainLogFile is a LogFile for a path that nothing else writes to
// concurrently.
type PlainLogFile string

// WithLock implements LogFile.
func (p PlainLogFile) WithLock(fn func(path string) error) error {
	return fn(string(p))
}
