package exec

import (
	"os"
	"syscall"
	"testing"
	"time"
)

func TestStartProcess(t *testing.T) {
	sleep := "/bin/sleep"
	if _, err := os.Stat(sleep); err != nil {
		t.Skip("no sleep binary:", err)
	}

	p, err := StartProcess([]string{sleep, "60"})
	if err != nil {
		t.Fatal("failed to start:", err)
	}

	if !p.Alive() {
		t.Fatal("process not alive after start")
	}

	if err := p.Signal(syscall.SIGTERM); err != nil {
		t.Fatal("failed to signal:", err)
	}

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		p.Kill()
		t.Fatal("timed out waiting for process to exit")
	}

	if p.Alive() {
		t.Error("process alive after exit")
	}

	if status := p.Status(); status.PID != p.PID() {
		t.Errorf("status PID %d, expected %d", status.PID, p.PID())
	}
}

func TestStartProcessMissing(t *testing.T) {
	if _, err := StartProcess([]string{"/nonexistent/capture-tool"}); err == nil {
		t.Fatal("expected error starting missing binary")
	}

	if _, err := StartProcess(nil); err == nil {
		t.Fatal("expected error on empty argv")
	}
}

func TestPIDAlive(t *testing.T) {
	if !PIDAlive(os.Getpid()) {
		t.Error("own PID reported dead")
	}

	if PIDAlive(0) || PIDAlive(-1) {
		t.Error("non-positive PID reported alive")
	}
}

func TestSleepProcess(t *testing.T) {
	t.Run("exits on its own", func(t *testing.T) {
		p := NewSleepProcess(0, 0, 1)
		<-p.Done()

		if code := p.Status().Code; code != 0 {
			t.Errorf("exit code %d, expected 0", code)
		}
	})

	t.Run("kill overrides delay", func(t *testing.T) {
		p := NewSleepProcess(time.Hour, time.Hour, 2)

		p.Signal(syscall.SIGTERM)
		if !p.Alive() {
			t.Fatal("delayed process died on SIGTERM")
		}

		p.Kill()
		<-p.Done()

		if code := p.Status().Code; code != -1 {
			t.Errorf("exit code %d, expected -1", code)
		}

		if n := SignalCount(p); n != 2 {
			t.Errorf("signal count %d, expected 2", n)
		}
	})
}

func TestReapOrphans(t *testing.T) {
	const sh = "/bin/sh"
	if _, err := os.Stat(sh); err != nil {
		t.Skip("no shell:", err)
	}

	t.Run("grandchild", func(t *testing.T) {
		// The shell exits right away and leaves sleep to us.
		p, err := StartProcess([]string{sh, "-c", "sleep 1 & exit 0"})
		if err != nil {
			t.Fatal("failed to start:", err)
		}
		<-p.Done()

		deadline := time.Now().Add(10 * time.Second)

		var reaped []int
		for len(reaped) == 0 && time.Now().Before(deadline) {
			reaped, err = ReapOrphans(p.PID())
			if err != nil {
				t.Fatal("failed to reap:", err)
			}
			time.Sleep(50 * time.Millisecond)
		}

		if len(reaped) != 1 || reaped[0] == p.PID() {
			t.Fatalf("reaped %v, expected the orphaned sleep", reaped)
		}
	})

	t.Run("keeps tracked child", func(t *testing.T) {
		p, err := os.StartProcess(sh, []string{sh, "-c", "exit 3"}, &os.ProcAttr{})
		if err != nil {
			t.Fatal("failed to start:", err)
		}

		deadline := time.Now().Add(10 * time.Second)
		for {
			if state, _, ok := procStat(p.Pid); ok && state == 'Z' {
				break
			}
			if time.Now().After(deadline) {
				p.Kill()
				t.Fatal("child never exited")
			}
			time.Sleep(10 * time.Millisecond)
		}

		reaped, err := ReapOrphans(p.Pid)
		if err != nil {
			t.Fatal("failed to reap:", err)
		}
		if containsPID(reaped, p.Pid) {
			t.Fatalf("reaped kept PID %d", p.Pid)
		}

		s, err := p.Wait()
		if err != nil {
			t.Fatal("kept child not waitable:", err)
		}
		if s.ExitCode() != 3 {
			t.Errorf("exit code %d, expected 3", s.ExitCode())
		}
	})
}

func TestProcStat(t *testing.T) {
	state, ppid, ok := procStat(os.Getpid())
	if !ok {
		t.Fatal("failed to read own stat")
	}
	if ppid != os.Getppid() {
		t.Errorf("ppid %d, expected %d", ppid, os.Getppid())
	}
	if state == 'Z' {
		t.Error("own state is zombie")
	}
}
