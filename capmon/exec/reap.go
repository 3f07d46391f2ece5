package exec

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ReapOrphans waits for every zombie child of the current process whose PID is
// not in keep and returns the reaped PIDs. Once SetSubreaper is in effect,
// these are processes the capture tool forked and left behind; nothing else
// waits for them.
//
// Processes started by StartProcess are reaped on their own and should be
// passed in keep, or their exit status is lost.
func ReapOrphans(keep ...int) ([]int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list processes")
	}

	self := os.Getpid()

	var reaped []int

	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || containsPID(keep, pid) {
			continue
		}

		state, ppid, ok := procStat(pid)
		if !ok || ppid != self || state != 'Z' {
			continue
		}

		var ws unix.WaitStatus
		if wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil); err == nil && wpid == pid {
			reaped = append(reaped, pid)
		}
	}

	return reaped, nil
}

// procStat reads the state and parent PID of pid from /proc/<pid>/stat.
func procStat(pid int) (state byte, ppid int, ok bool) {
	b, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0, 0, false
	}

	// pid (comm) state ppid ...; comm may contain anything, including ")".
	end := bytes.LastIndexByte(b, ')')
	if end < 0 {
		return 0, 0, false
	}

	fields := bytes.Fields(b[end+1:])
	if len(fields) < 2 || len(fields[0]) != 1 {
		return 0, 0, false
	}

	ppid, err = strconv.Atoi(string(fields[1]))
	if err != nil {
		return 0, 0, false
	}

	return fields[0][0], ppid, true
}

func containsPID(pids []int, pid int) bool {
	for _, p := range pids {
		if p == pid {
			return true
		}
	}
	return false
}
