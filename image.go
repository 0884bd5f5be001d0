package pescan

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/s-hammon/p"
	"github.com/s-hammon/pescan/internal/memscan"
)

const (
	dosSignature = "MZ"
	ntSignature  = "PE\x00\x00"

	lfanewOffset    = 0x3C
	optHeaderOffset = 4 + 20 // PE signature + IMAGE_FILE_HEADER

	magicPE32     = 0x10B
	magicPE32Plus = 0x20B

	// Upper bound for a module read out of another process.
	maxImageSize = 1 << 31
)

// Image is an immutable copy of an executable module plus the load address
// declared in its optional header.
type Image struct {
	data   []byte
	base   uint64
	loaded uint64
}

// FromBytes copies data and parses its headers.
func FromBytes(data []byte) (*Image, error) {
	return newImage(bytes.Clone(data), 0)
}

// NewRawImage wraps data without header parsing, for memory dumps and
// synthetic buffers. The caller supplies the base address.
func NewRawImage(data []byte, base uint64) *Image {
	return &Image{data: bytes.Clone(data), base: base}
}

// LoadFile reads a whole image file.
func LoadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	log.Debug("read image file", "path", path, "size", len(data))
	return newImage(data, 0)
}

// LoadProcess copies a module out of proc. An empty module name selects the
// primary module. When wait is positive the process is first given up to wait
// to settle; that wait is best-effort and a timeout only logs a warning.
func LoadProcess(ctx context.Context, proc memscan.Process, module string, wait time.Duration) (*Image, error) {
	if wait > 0 {
		wctx, cancel := context.WithTimeout(ctx, wait)
		err := proc.WaitUntilReady(wctx)
		cancel()

		switch {
		case errors.Is(err, memscan.ErrNotReady):
			log.Warn("process did not settle, reading anyway", "pid", proc.Pid(), "wait", wait)
		case err != nil:
			return nil, fmt.Errorf("%w: wait for pid %d: %v", ErrAccess, proc.Pid(), err)
		}
	}

	mods, err := proc.Modules()
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate modules of pid %d: %v", ErrAccess, proc.Pid(), err)
	}

	mod, ok := memscan.FindModule(mods, module)
	if !ok {
		return nil, fmt.Errorf("%w: module %q in pid %d", ErrNotFound, module, proc.Pid())
	}
	if mod.Size < uint64(len(dosSignature)) || mod.Size > maxImageSize {
		return nil, fmt.Errorf("%w: module %s declares size %d", ErrFormat, mod.Name, mod.Size)
	}

	head, err := proc.ReadMemory(mod.Base, len(dosSignature))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccess, err)
	}
	if string(head) != dosSignature {
		return nil, fmt.Errorf("%w: module %s starts with % X", ErrValidation, mod.Name, head)
	}

	data, err := proc.ReadMemory(mod.Base, int(mod.Size))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccess, err)
	}

	log.Debug("read process module", "pid", proc.Pid(), "module", mod.Name,
		"at", p.Format("%#x", mod.Base), "size", mod.Size)
	return newImage(data, mod.Base)
}

// LoadSelf copies the primary module of the running process.
func LoadSelf(ctx context.Context) (*Image, error) {
	proc, err := memscan.Open(os.Getpid())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccess, err)
	}
	defer proc.Close()

	return LoadProcess(ctx, proc, "", 0)
}

func newImage(data []byte, loaded uint64) (*Image, error) {
	base, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	log.Debug("parsed image header", "base", p.Format("%#x", base), "size", len(data))
	return &Image{data: data, base: base, loaded: loaded}, nil
}

// parseHeader checks the DOS signature, follows e_lfanew to the NT headers
// and returns the optional header's ImageBase.
func parseHeader(data []byte) (uint64, error) {
	if len(data) < len(dosSignature) {
		return 0, fmt.Errorf("%w: image is %d bytes", ErrFormat, len(data))
	}
	if string(data[:2]) != dosSignature {
		return 0, fmt.Errorf("%w: %w: got % X", ErrFormat, ErrValidation, data[:2])
	}
	if len(data) < lfanewOffset+4 {
		return 0, fmt.Errorf("%w: truncated DOS header", ErrFormat)
	}

	size := uint64(len(data))
	nt := uint64(binary.LittleEndian.Uint32(data[lfanewOffset:]))
	opt := nt + optHeaderOffset
	if opt+2 > size {
		return 0, fmt.Errorf("%w: NT headers at %#x past end of image", ErrFormat, nt)
	}
	if string(data[nt:nt+4]) != ntSignature {
		return 0, fmt.Errorf("%w: no PE signature at %#x", ErrFormat, nt)
	}

	switch magic := binary.LittleEndian.Uint16(data[opt:]); magic {
	case magicPE32:
		if opt+28+4 > size {
			return 0, fmt.Errorf("%w: truncated optional header", ErrFormat)
		}
		return uint64(binary.LittleEndian.Uint32(data[opt+28:])), nil
	case magicPE32Plus:
		if opt+24+8 > size {
			return 0, fmt.Errorf("%w: truncated optional header", ErrFormat)
		}
		return binary.LittleEndian.Uint64(data[opt+24:]), nil
	default:
		return 0, fmt.Errorf("%w: unknown optional header magic %#x", ErrFormat, magic)
	}
}

// Bytes returns the image contents. The slice must not be modified.
func (img *Image) Bytes() []byte {
	return img.data
}

func (img *Image) Size() int {
	return len(img.data)
}

// Base is the load address declared by the image header.
func (img *Image) Base() uint64 {
	return img.base
}

// LoadAddress is where the module was mapped when it was read out of a
// process, or 0 for files and raw buffers.
func (img *Image) LoadAddress() uint64 {
	return img.loaded
}
