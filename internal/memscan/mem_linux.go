package memscan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/s-hammon/p"
)

const settlePoll = 50 * time.Millisecond

// Memory Map Region
type Region struct {
	Start, End uint64
	Perms      string
	Offset     uint64
	Path       string
}

// ProcessMemory reads another process through /proc/<pid>/mem. This also
// covers PE images mapped by Wine or Proton.
type ProcessMemory struct {
	pid int
	mem *os.File
}

func open(pid int) (Process, error) {
	pm := NewProcessMemory(pid)
	if err := pm.Open(); err != nil {
		return nil, err
	}
	return pm, nil
}

func NewProcessMemory(pid int) *ProcessMemory {
	return &ProcessMemory{pid: pid}
}

func (pm *ProcessMemory) Open() error {
	mem, err := OpenMem(pm.pid)
	if err != nil {
		return err
	}

	pm.mem = mem
	return nil
}

func (pm *ProcessMemory) Close() error {
	if pm.mem == nil {
		return errors.New("trying to close nil file")
	}
	err := pm.mem.Close()
	pm.mem = nil
	return err
}

func (pm *ProcessMemory) Pid() int {
	return pm.pid
}

// WaitUntilReady polls the memory map until two consecutive snapshots agree.
func (pm *ProcessMemory) WaitUntilReady(ctx context.Context) error {
	tick := time.NewTicker(settlePoll)
	defer tick.Stop()

	prev, err := ReadMaps(pm.pid)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrNotReady, ctx.Err())
		case <-tick.C:
			cur, err := ReadMaps(pm.pid)
			if err != nil {
				return err
			}
			if slices.Equal(prev, cur) {
				return nil
			}
			prev = cur
		}
	}
}

// Modules groups file-backed mappings by path. The mapping of
// /proc/<pid>/exe comes first when present.
func (pm *ProcessMemory) Modules() ([]Module, error) {
	regions, err := ReadMaps(pm.pid)
	if err != nil {
		return nil, err
	}

	mods := ModulesFromRegions(regions)
	exe, err := os.Readlink(p.Format("/proc/%d/exe", pm.pid))
	if err != nil {
		return mods, nil
	}

	if i := slices.IndexFunc(mods, func(m Module) bool { return m.Path == exe }); i > 0 {
		primary := mods[i]
		mods = append(mods[:i], mods[i+1:]...)
		mods = append([]Module{primary}, mods...)
	}

	return mods, nil
}

func (pm *ProcessMemory) ReadMemory(addr uint64, count int) ([]byte, error) {
	if pm.mem == nil {
		return nil, errors.New("memory not open")
	}
	if count < 0 {
		return nil, fmt.Errorf("read 0x%x (%d): negative count", addr, count)
	}

	buf := make([]byte, count)
	if _, err := pm.mem.ReadAt(buf, int64(addr)); err != nil {
		return nil, fmt.Errorf("read 0x%x (%d): %v", addr, count, err)
	}

	return buf, nil
}

// ModulesFromRegions collapses the mappings of each file into one module
// spanning its lowest start to its highest end, ordered by base address.
func ModulesFromRegions(regions []Region) []Module {
	var (
		mods  []Module
		index = map[string]int{}
	)

	for _, r := range regions {
		if !strings.HasPrefix(r.Path, "/") {
			continue
		}

		i, ok := index[r.Path]
		if !ok {
			index[r.Path] = len(mods)
			mods = append(mods, Module{
				Name: filepath.Base(r.Path),
				Path: r.Path,
				Base: r.Start,
				Size: r.End - r.Start,
			})
			continue
		}

		m := &mods[i]
		end := max(m.Base+m.Size, r.End)
		m.Base = min(m.Base, r.Start)
		m.Size = end - m.Base
	}

	slices.SortStableFunc(mods, func(a, b Module) int {
		switch {
		case a.Base < b.Base:
			return -1
		case a.Base > b.Base:
			return 1
		}
		return 0
	})

	return mods
}

func ReadMaps(pid int) ([]Region, error) {
	f, err := os.Open(p.Format("/proc/%d/maps", pid))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseMaps(f)
}

// ParseMaps parses the /proc/<pid>/maps format. Malformed lines are skipped.
func ParseMaps(r io.Reader) ([]Region, error) {
	var regs []Region
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		addr := strings.Split(fields[0], "-")
		if len(addr) != 2 {
			continue
		}

		start, err1 := strconv.ParseUint(addr[0], 16, 64)
		end, err2 := strconv.ParseUint(addr[1], 16, 64)
		if err1 != nil || err2 != nil || end < start {
			continue
		}

		reg := Region{Start: start, End: end, Perms: fields[1]}
		if len(fields) > 2 {
			reg.Offset, _ = strconv.ParseUint(fields[2], 16, 64)
		}
		if len(fields) > 5 {
			reg.Path = strings.Join(fields[5:], " ")
		}

		regs = append(regs, reg)
	}

	return regs, scanner.Err()
}

func OpenMem(pid int) (*os.File, error) {
	return os.OpenFile(p.Format("/proc/%d/mem", pid), os.O_RDONLY, 0)
}
