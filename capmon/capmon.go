// Package capmon is the core of the capmon application. It keeps a single
// packet capture process alive and tidies up after it.
//
// # Mechanism of Operation
//
// The Supervisor runs one loop that ticks at a fixed short interval. Every
// few ticks it checks whether the calendar day has changed since the current
// capture session was started. If it has, capture files older than the
// retention age are deleted and the capture tool is restarted so that it
// writes into a file named after the new day. A capture process that died on
// its own is restarted on the same check.
//
// Less often, the loop checks the size of its own log file. Once the file is
// over the maximum size, whole blocks are cut off its front so that the most
// recent entries stay.
//
// # Capture Files
//
// Capture files are named after the day they were started on and a sequence
// number:
//
//	<prefix><date><suffix>.<sequence>.log
//
// The sequence number of a new session is one past the highest one found on
// disk for the same day, so a restarted supervisor never overwrites an earlier
// capture.
//
// # Signals
//
// Signals are delivered to the loop over a channel and only set a quit flag.
// The flag is looked at on every tick and during every retry backoff, after
// which the capture process is stopped and a final banner is journaled.
package capmon
