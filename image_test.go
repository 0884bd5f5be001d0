package pescan

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/s-hammon/pescan/internal/memscan"
	"github.com/stretchr/testify/require"
)

const lfanew = 0x80

// fakePE builds a minimal image of size bytes with a DOS header, NT
// signature and an optional header declaring base.
func fakePE(size int, base uint64, plus bool) []byte {
	data := make([]byte, size)
	copy(data, "MZ")
	binary.LittleEndian.PutUint32(data[lfanewOffset:], lfanew)
	copy(data[lfanew:], "PE\x00\x00")

	opt := lfanew + optHeaderOffset
	if plus {
		binary.LittleEndian.PutUint16(data[opt:], magicPE32Plus)
		binary.LittleEndian.PutUint64(data[opt+24:], base)
	} else {
		binary.LittleEndian.PutUint16(data[opt:], magicPE32)
		binary.LittleEndian.PutUint32(data[opt+28:], uint32(base))
	}
	return data
}

func TestParseHeader(t *testing.T) {
	base, err := parseHeader(fakePE(0x200, 0x400000, false))
	require.NoError(t, err)
	require.Equal(t, uint64(0x400000), base)

	base, err = parseHeader(fakePE(0x200, 0x140000000, true))
	require.NoError(t, err)
	require.Equal(t, uint64(0x140000000), base)
}

func TestParseHeaderErrors(t *testing.T) {
	good := fakePE(0x200, 0x400000, false)

	badNT := append([]byte(nil), good...)
	copy(badNT[lfanew:], "NE")

	badMagic := append([]byte(nil), good...)
	binary.LittleEndian.PutUint16(badMagic[lfanew+optHeaderOffset:], 0x107)

	farNT := append([]byte(nil), good...)
	binary.LittleEndian.PutUint32(farNT[lfanewOffset:], 0xFFFFFFFF)

	tests := []struct {
		name       string
		data       []byte
		validation bool
	}{
		{"empty", nil, false},
		{"one byte", []byte{'M'}, false},
		{"bad signature", []byte{'Z', 'M', 0, 0}, true},
		{"truncated dos header", []byte("MZ\x90\x00"), false},
		{"nt past end", farNT, false},
		{"truncated optional header", good[:lfanew+optHeaderOffset+8], false},
		{"missing PE signature", badNT, false},
		{"unknown magic", badMagic, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseHeader(tt.data)
			require.ErrorIs(t, err, ErrFormat)
			require.Equal(t, tt.validation, errors.Is(err, ErrValidation))
		})
	}
}

func TestFromBytesCopies(t *testing.T) {
	data := fakePE(0x200, 0x10000000, false)
	img, err := FromBytes(data)
	require.NoError(t, err)

	data[0x100] = 0xCC
	require.Zero(t, img.Bytes()[0x100])
	require.Equal(t, 0x200, img.Size())
	require.Equal(t, uint64(0x10000000), img.Base())
	require.Zero(t, img.LoadAddress())
}

func TestNewRawImage(t *testing.T) {
	img := NewRawImage([]byte{0x90, 0x90}, 0x1000)
	require.Equal(t, 2, img.Size())
	require.Equal(t, uint64(0x1000), img.Base())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.exe")
	require.NoError(t, os.WriteFile(path, fakePE(0x400, 0x400000, false), 0o644))

	img, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 0x400, img.Size())
	require.Equal(t, uint64(0x400000), img.Base())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.exe"))
	require.ErrorIs(t, err, ErrIO)

	notPE := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(notPE, []byte("hello"), 0o644))
	_, err = LoadFile(notPE)
	require.ErrorIs(t, err, ErrValidation)
}

type fakeProcess struct {
	pid     int
	base    uint64
	mem     []byte
	mods    []memscan.Module
	waitErr error
	modErr  error
	failAt  int // fail the nth ReadMemory call, 1-based
	reads   int
	waited  bool
}

func (fp *fakeProcess) Pid() int { return fp.pid }

func (fp *fakeProcess) WaitUntilReady(ctx context.Context) error {
	fp.waited = true
	return fp.waitErr
}

func (fp *fakeProcess) Modules() ([]memscan.Module, error) {
	return fp.mods, fp.modErr
}

func (fp *fakeProcess) ReadMemory(addr uint64, count int) ([]byte, error) {
	fp.reads++
	if fp.reads == fp.failAt {
		return nil, errors.New("partial copy")
	}
	off := int(addr - fp.base)
	if off < 0 || off+count > len(fp.mem) {
		return nil, errors.New("unmapped")
	}
	return append([]byte(nil), fp.mem[off:off+count]...), nil
}

func (fp *fakeProcess) Close() error { return nil }

func newFakeProcess() *fakeProcess {
	mem := fakePE(0x1000, 0x400000, false)
	return &fakeProcess{
		pid:  42,
		base: 0x7ff600000000,
		mem:  mem,
		mods: []memscan.Module{
			{Name: "Game.exe", Base: 0x7ff600000000, Size: uint64(len(mem))},
			{Name: "helper.dll", Base: 0x7ff600000800, Size: 0x800},
		},
	}
}

func TestLoadProcess(t *testing.T) {
	fp := newFakeProcess()
	img, err := LoadProcess(context.Background(), fp, "", time.Second)
	require.NoError(t, err)
	require.True(t, fp.waited)
	require.Equal(t, 2, fp.reads, "signature probe then full read")
	require.Equal(t, 0x1000, img.Size())
	require.Equal(t, uint64(0x400000), img.Base())
	require.Equal(t, uint64(0x7ff600000000), img.LoadAddress())
}

func TestLoadProcessNoWait(t *testing.T) {
	fp := newFakeProcess()
	_, err := LoadProcess(context.Background(), fp, "game.EXE", 0)
	require.NoError(t, err)
	require.False(t, fp.waited)
}

func TestLoadProcessWaitTimeoutIsBestEffort(t *testing.T) {
	fp := newFakeProcess()
	fp.waitErr = memscan.ErrNotReady
	_, err := LoadProcess(context.Background(), fp, "", time.Millisecond)
	require.NoError(t, err)
}

func TestLoadProcessErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*fakeProcess)
		module string
		want   error
	}{
		{"wait fails", func(fp *fakeProcess) { fp.waitErr = errors.New("handle closed") }, "", ErrAccess},
		{"modules fail", func(fp *fakeProcess) { fp.modErr = errors.New("denied") }, "", ErrAccess},
		{"no modules", func(fp *fakeProcess) { fp.mods = nil }, "", ErrNotFound},
		{"unknown module", func(fp *fakeProcess) {}, "other.dll", ErrNotFound},
		{"signature probe fails", func(fp *fakeProcess) { fp.failAt = 1 }, "", ErrAccess},
		{"full read fails", func(fp *fakeProcess) { fp.failAt = 2 }, "", ErrAccess},
		{"bad signature", func(fp *fakeProcess) {}, "helper.dll", ErrValidation},
		{"bogus size", func(fp *fakeProcess) { fp.mods[0].Size = 1 }, "", ErrFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := newFakeProcess()
			tt.mutate(fp)
			_, err := LoadProcess(context.Background(), fp, tt.module, time.Second)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadProcessSignatureCheckedBeforeFullRead(t *testing.T) {
	fp := newFakeProcess()
	_, err := LoadProcess(context.Background(), fp, "helper.dll", 0)
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, 1, fp.reads)
}
