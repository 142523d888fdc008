package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
)

// newCommand builds a subprocess in its own process group. Cancelling ctx
// kills the whole group so grandchildren holding the output pipes cannot keep
// executeCommand waiting.
func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	return cmd
}

// executeCommand runs cmd and collects both output streams. When pm is
// non-nil the process is tracked while it runs.
func executeCommand(ctx context.Context, cmd *exec.Cmd, pm *ProcessManager) (stdout []byte, stderr []byte, err error) {
	var outBuf, errBuf bytes.Buffer
	drain, err := captureOutput(cmd, &outBuf, &errBuf)
	if err != nil {
		return nil, nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("failed to start %s: %w", cmd.Path, err)
	}
	if pm != nil {
		pm.Track(cmd)
		defer pm.Untrack(cmd)
	}

	// Pipes must be empty before Wait closes them.
	drain()
	waitErr := cmd.Wait()

	stdout, stderr = outBuf.Bytes(), errBuf.Bytes()
	switch {
	case waitErr == nil:
		return stdout, stderr, nil
	case ctx.Err() != nil:
		return stdout, stderr, fmt.Errorf("command interrupted: %w", ctx.Err())
	case len(stderr) > 0:
		return stdout, stderr, fmt.Errorf("command failed: %w (stderr: %s)", waitErr, bytes.TrimSpace(stderr))
	default:
		return stdout, stderr, fmt.Errorf("command failed: %w", waitErr)
	}
}

// captureOutput connects cmd's stdout and stderr to the buffers. The returned
// func copies both streams concurrently until the child closes them.
func captureOutput(cmd *exec.Cmd, stdout, stderr io.Writer) (func(), error) {
	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	return func() {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			io.Copy(stdout, outPipe)
		}()
		go func() {
			defer wg.Done()
			io.Copy(stderr, errPipe)
		}()
		wg.Wait()
	}, nil
}

// killProcessGroup sends SIGKILL to cmd's process group. A group that is
// already gone is not an error.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return errors.New("process not started")
	}
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("failed to kill process group %d: %w", cmd.Process.Pid, err)
	}
	return nil
}

// ProcessManager tracks the CLI agents currently running so that a shutdown
// can kill every one of them, children included.
type ProcessManager struct {
	mu    sync.Mutex
	procs map[*exec.Cmd]struct{}
}

// NewProcessManager creates an empty ProcessManager.
func NewProcessManager() *ProcessManager {
	return &ProcessManager{procs: make(map[*exec.Cmd]struct{})}
}

// Track registers a started subprocess.
func (pm *ProcessManager) Track(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	pm.mu.Lock()
	pm.procs[cmd] = struct{}{}
	pm.mu.Unlock()
}

// Untrack forgets a subprocess once it has been waited for.
func (pm *ProcessManager) Untrack(cmd *exec.Cmd) {
	pm.mu.Lock()
	delete(pm.procs, cmd)
	pm.mu.Unlock()
}

// KillAll kills the process group of every tracked subprocess. Tracking is
// left to the callers' Untrack.
func (pm *ProcessManager) KillAll() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var errs []error
	for cmd := range pm.procs {
		if err := killProcessGroup(cmd); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Count returns the number of tracked subprocesses.
func (pm *ProcessManager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.procs)
}
