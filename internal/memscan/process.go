// Package memscan reads loaded modules out of running processes.
package memscan

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// ErrNotReady is returned by WaitUntilReady when the process did not settle
// before the context expired.
var ErrNotReady = errors.New("process not ready")

// Module is an image mapped into a process.
type Module struct {
	Name string
	Path string
	Base uint64
	Size uint64
}

// Process is the capability needed to pull a module image out of another
// process. Modules lists the primary module first.
type Process interface {
	Pid() int
	WaitUntilReady(ctx context.Context) error
	Modules() ([]Module, error)
	ReadMemory(addr uint64, count int) ([]byte, error)
	Close() error
}

// Open attaches to pid for reading.
func Open(pid int) (Process, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid pid %d", pid)
	}
	return open(pid)
}

// FindModule returns the module whose base name matches name, ignoring case.
// An empty name selects the primary module.
func FindModule(mods []Module, name string) (Module, bool) {
	if len(mods) == 0 {
		return Module{}, false
	}
	if name == "" {
		return mods[0], true
	}

	for _, m := range mods {
		if strings.EqualFold(m.Name, name) || strings.EqualFold(filepath.Base(m.Path), name) {
			return m, true
		}
	}

	return Module{}, false
}

// FindPidByName returns the first process whose name contains substr,
// ignoring case.
func FindPidByName(ctx context.Context, substr string) (int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("list processes: %w", err)
	}

	want := strings.ToLower(substr)
	for _, proc := range procs {
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}

		if strings.Contains(strings.ToLower(name), want) {
			return int(proc.Pid), nil
		}
	}

	return 0, fmt.Errorf("process containing %s not found", substr)
}
