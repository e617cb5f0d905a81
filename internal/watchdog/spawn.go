package watchdog

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Spawner runs the daemon bootstrapper and waits for it to exit.
type Spawner interface {
	Spawn(ctx context.Context, path string, args []string) error
}

// ExecSpawner runs the bootstrapper as a child process. Env is appended to
// the service environment.
type ExecSpawner struct {
	Env []string
}

// Spawn blocks until the bootstrapper exits. ctx is not wired to the child:
// an in-flight spawn always runs to completion.
func (es ExecSpawner) Spawn(_ context.Context, path string, args []string) error {
	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), es.Env...)
	// The bootstrapper's detached child must not keep us waiting on its pipes
	cmd.WaitDelay = 2 * time.Second

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("daemon bootstrap failed: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}
	return nil
}
