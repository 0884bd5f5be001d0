package memscan

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleMaps = `00400000-00401000 r--p 00000000 08:01 1234       /opt/game/Game.exe
00401000-00480000 r-xp 00001000 08:01 1234       /opt/game/Game.exe
00480000-00490000 rw-p 00000000 00:00 0
00490000-004a0000 r--p 00080000 08:01 1234       /opt/game/Game.exe
7f0000000000-7f0000001000 r--p 00000000 08:01 99 /usr/lib/libc.so.6
7ffd0000-7ffd1000 rw-p 00000000 00:00 0          [stack]
garbage line
zz-yy r--p 0 0 0
`

func TestParseMaps(t *testing.T) {
	regions, err := ParseMaps(strings.NewReader(sampleMaps))
	require.NoError(t, err)
	require.Len(t, regions, 6)

	require.Equal(t, Region{Start: 0x400000, End: 0x401000, Perms: "r--p", Path: "/opt/game/Game.exe"}, regions[0])
	require.Equal(t, uint64(0x1000), regions[1].Offset)
	require.Empty(t, regions[2].Path)
	require.Equal(t, "[stack]", regions[5].Path)
}

func TestModulesFromRegions(t *testing.T) {
	regions, err := ParseMaps(strings.NewReader(sampleMaps))
	require.NoError(t, err)

	mods := ModulesFromRegions(regions)
	require.Len(t, mods, 2)
	require.Equal(t, Module{Name: "Game.exe", Path: "/opt/game/Game.exe", Base: 0x400000, Size: 0xa0000}, mods[0])
	require.Equal(t, "libc.so.6", mods[1].Name)
}

func TestReadMaps(t *testing.T) {
	regions, err := ReadMaps(os.Getpid())
	require.NoError(t, err)
	require.Greater(t, len(regions), 0)

	hasReadable := false
	for _, region := range regions {
		if strings.Contains(region.Perms, "r") {
			hasReadable = true
			break
		}
	}

	require.True(t, hasReadable)
}

func TestModulesPrimaryFirst(t *testing.T) {
	proc, err := Open(os.Getpid())
	require.NoError(t, err)
	defer proc.Close()

	mods, err := proc.Modules()
	require.NoError(t, err)
	require.NotEmpty(t, mods)

	exe, err := os.Readlink("/proc/self/exe")
	require.NoError(t, err)
	require.Equal(t, exe, mods[0].Path)
}

func TestReadMemorySelf(t *testing.T) {
	proc, err := Open(os.Getpid())
	require.NoError(t, err)
	defer proc.Close()

	mods, err := proc.Modules()
	require.NoError(t, err)

	// Test binaries are ELF.
	head, err := proc.ReadMemory(mods[0].Base, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0x7F, 'E', 'L', 'F'}, head)

	_, err = proc.ReadMemory(0, 16)
	require.Error(t, err)
}

func TestWaitUntilReadySelf(t *testing.T) {
	proc, err := Open(os.Getpid())
	require.NoError(t, err)
	defer proc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, proc.WaitUntilReady(ctx))
}

func TestWaitUntilReadyExpired(t *testing.T) {
	proc, err := Open(os.Getpid())
	require.NoError(t, err)
	defer proc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = proc.WaitUntilReady(ctx)
	require.ErrorIs(t, err, ErrNotReady)
}

func TestCloseTwice(t *testing.T) {
	pm := NewProcessMemory(os.Getpid())
	require.NoError(t, pm.Open())
	require.NoError(t, pm.Close())
	require.Error(t, pm.Close())

	_, err := pm.ReadMemory(0, 1)
	require.Error(t, err)
}
