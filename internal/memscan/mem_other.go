//go:build !linux && !windows

package memscan

import (
	"fmt"
	"runtime"
)

func open(pid int) (Process, error) {
	return nil, fmt.Errorf("reading process %d: not supported on %s", pid, runtime.GOOS)
}
