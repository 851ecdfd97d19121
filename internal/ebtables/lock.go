//go:build linux
// +build linux

package ebtables

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	ps "github.com/mitchellh/go-ps"
)

// DefaultLockFile is where ebtables keeps its advisory lock.
const DefaultLockFile = "/var/lib/ebtables/lock"

// ProcessChecker reports whether a process running any of the named
// executables is alive.
type ProcessChecker interface {
	Running(names ...string) (bool, error)
}

// commLen is the kernel's TASK_COMM_LEN minus the terminator. Executable
// names read from /proc/<pid>/stat are cut at this length.
const commLen = 15

// ProcessTable checks the live process table.
type ProcessTable struct{}

func (ProcessTable) Running(names ...string) (bool, error) {
	procs, err := ps.Processes()
	if err != nil {
		return false, fmt.Errorf("list processes: %w", err)
	}
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[comm(filepath.Base(n))] = struct{}{}
	}
	for _, p := range procs {
		if _, ok := want[comm(p.Executable())]; ok {
			return true, nil
		}
	}
	return false, nil
}

func comm(name string) string {
	if len(name) > commLen {
		return name[:commLen]
	}
	return name
}

// removeDanglingLock deletes the lock file when neither the tool nor its
// restore counterpart is running. A live owner leaves the lock in place.
func (e *Engine) removeDanglingLock() error {
	if e.cfg.LockFile == "" {
		return nil
	}
	if _, err := os.Lstat(e.cfg.LockFile); err != nil {
		return nil
	}

	alive, err := e.cfg.Processes.Running(e.cfg.Command, e.cfg.RestoreCommand)
	if err != nil {
		slog.Warn("lock owner check failed, keeping lock", "path", e.cfg.LockFile, "error", err)
		return nil
	}
	if alive {
		slog.Debug("lock held by live process", "path", e.cfg.LockFile)
		return nil
	}

	slog.Warn("removing dangling lock file", "path", e.cfg.LockFile)
	if err := os.Remove(e.cfg.LockFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove dangling lock %s: %w", e.cfg.LockFile, err)
	}
	e.cfg.Metrics.StaleLock()
	return nil
}
