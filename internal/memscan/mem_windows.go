package memscan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	waitTimeout = 0x102
	waitFailed  = 0xFFFFFFFF
	maxModules  = 1024
)

var procWaitForInputIdle = windows.NewLazySystemDLL("user32.dll").NewProc("WaitForInputIdle")

// ProcessMemory reads another process through ReadProcessMemory.
type ProcessMemory struct {
	pid    uint32
	handle windows.Handle
}

func open(pid int) (Process, error) {
	access := uint32(windows.PROCESS_QUERY_INFORMATION | windows.PROCESS_VM_READ | windows.SYNCHRONIZE)
	h, err := windows.OpenProcess(access, false, uint32(pid))
	if err != nil {
		return nil, fmt.Errorf("OpenProcess(%d): %w", pid, err)
	}

	return &ProcessMemory{pid: uint32(pid), handle: h}, nil
}

func (pm *ProcessMemory) Close() error {
	if pm.handle == 0 {
		return errors.New("trying to close nil handle")
	}
	err := windows.CloseHandle(pm.handle)
	pm.handle = 0
	return err
}

func (pm *ProcessMemory) Pid() int {
	return int(pm.pid)
}

// WaitUntilReady blocks in WaitForInputIdle until the context deadline.
// Console processes have no input queue and return immediately.
func (pm *ProcessMemory) WaitUntilReady(ctx context.Context) error {
	ms := uint32(windows.INFINITE)
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline).Milliseconds()
		ms = uint32(min(max(left, 0), math.MaxUint32-1))
	}

	r, _, callErr := procWaitForInputIdle.Call(uintptr(pm.handle), uintptr(ms))
	switch uint32(r) {
	case 0:
		return nil
	case waitTimeout:
		return fmt.Errorf("%w: WaitForInputIdle timed out", ErrNotReady)
	case waitFailed:
		// No message queue; nothing to wait for.
		return nil
	default:
		return fmt.Errorf("WaitForInputIdle: %v", callErr)
	}
}

// Modules lists the process modules; EnumProcessModules reports the
// executable first.
func (pm *ProcessMemory) Modules() ([]Module, error) {
	var (
		handles [maxModules]windows.Handle
		needed  uint32
	)
	size := uint32(unsafe.Sizeof(handles[0])) * maxModules
	if err := windows.EnumProcessModules(pm.handle, &handles[0], size, &needed); err != nil {
		return nil, fmt.Errorf("EnumProcessModules: %w", err)
	}

	count := min(needed/uint32(unsafe.Sizeof(handles[0])), maxModules)
	mods := make([]Module, 0, count)
	for i := range count {
		var mi windows.ModuleInfo
		if err := windows.GetModuleInformation(pm.handle, handles[i], &mi, uint32(unsafe.Sizeof(mi))); err != nil {
			return nil, fmt.Errorf("GetModuleInformation: %w", err)
		}

		var name [windows.MAX_PATH]uint16
		if err := windows.GetModuleFileNameEx(pm.handle, handles[i], &name[0], windows.MAX_PATH); err != nil {
			return nil, fmt.Errorf("GetModuleFileNameEx: %w", err)
		}

		path := windows.UTF16ToString(name[:])
		mods = append(mods, Module{
			Name: filepath.Base(path),
			Path: path,
			Base: uint64(mi.BaseOfDll),
			Size: uint64(mi.SizeOfImage),
		})
	}

	return mods, nil
}

func (pm *ProcessMemory) ReadMemory(addr uint64, count int) ([]byte, error) {
	if pm.handle == 0 {
		return nil, errors.New("memory not open")
	}
	if count < 0 {
		return nil, fmt.Errorf("read 0x%x (%d): negative count", addr, count)
	}

	buf := make([]byte, count)
	if count == 0 {
		return buf, nil
	}

	var read uintptr
	if err := windows.ReadProcessMemory(pm.handle, uintptr(addr), &buf[0], uintptr(count), &read); err != nil {
		return nil, fmt.Errorf("read 0x%x (%d): %v", addr, count, err)
	}
	if int(read) != count {
		return nil, fmt.Errorf("read 0x%x (%d): short read of %d bytes", addr, count, read)
	}

	return buf, nil
}
