package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
)

// PIDFile manages the daemon's PID file so a second instance, or the
// stop command, can find the running one.
type PIDFile struct {
	path string
}

// NewPIDFile creates a PID file manager rooted in the app's data
// directory.
func NewPIDFile(dir string) (*PIDFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create PID directory: %w", err)
	}
	return &PIDFile{path: filepath.Join(dir, "transclip.pid")}, nil
}

// Write writes the current process PID to the PID file.
func (p *PIDFile) Write() error {
	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// Read reads the PID from the PID file, zero when absent.
func (p *PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	return pid, nil
}

// Remove removes the PID file.
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// IsRunning checks whether a process with the given PID exists.
func IsRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On Unix FindProcess always succeeds, so probe with signal 0.
	return process.Signal(syscall.Signal(0)) == nil
}

// Terminate asks a process to shut down, escalating to SIGKILL when
// SIGTERM cannot be delivered.
func Terminate(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		if err := process.Kill(); err != nil {
			return fmt.Errorf("failed to kill process: %w", err)
		}
	}
	return nil
}
