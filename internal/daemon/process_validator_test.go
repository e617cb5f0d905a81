package daemon

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"
)

func TestValidateServiceProcessSelf(t *testing.T) {
	if err := ValidateServiceProcess(os.Getpid()); err != nil {
		t.Errorf("own process reported unusable: %v", err)
	}
}

func TestValidateServiceProcessInvalidPID(t *testing.T) {
	for _, pid := range []int{0, -1} {
		if err := ValidateServiceProcess(pid); !errors.Is(err, ErrServiceGone) {
			t.Errorf("pid %d: err = %v, want ErrServiceGone", pid, err)
		}
	}
}

func TestValidateServiceProcessExited(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	if err := cmd.Run(); err != nil {
		t.Fatal(err)
	}

	if err := ValidateServiceProcess(cmd.Process.Pid); !errors.Is(err, ErrServiceGone) {
		t.Errorf("exited process: err = %v, want ErrServiceGone", err)
	}
}

func TestValidateServiceProcessStopped(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		cmd.Process.Kill()
		cmd.Wait()
	})

	if err := ValidateServiceProcess(cmd.Process.Pid); err != nil {
		t.Fatalf("running process reported unusable: %v", err)
	}

	if err := cmd.Process.Signal(syscall.SIGSTOP); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		err := ValidateServiceProcess(cmd.Process.Pid)
		if errors.Is(err, ErrServiceStopped) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("stopped process: err = %v, want ErrServiceStopped", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
