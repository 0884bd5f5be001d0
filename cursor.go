package pescan

import (
	"encoding/binary"
	"fmt"

	"github.com/s-hammon/pescan/internal/scan"
	"github.com/s-hammon/pescan/internal/sig"
)

const callInsnLen = 5 // E8 rel32

// prologue is push ebp; mov ebp, esp.
var prologue = sig.Pattern{Bytes: []byte{0x55, 0x8B, 0xEC}}

// Cursor is a window [Start, Start+Len) into an Image. Refinements mutate the
// cursor and return it so they can be chained. The first failing refinement
// is sticky: later refinements do nothing and Err, Offset, CallTarget and
// ReadAs report it.
//
//	target, err := c.NarrowTo("E8").CallTarget()
type Cursor struct {
	img    *Image
	start  int
	length int
	err    error
}

func newCursor(img *Image, start, length int) *Cursor {
	c := &Cursor{img: img, start: start, length: length}
	c.check()
	return c
}

func (c *Cursor) check() {
	if c.start < 0 || c.length < 0 || c.start+c.length > c.img.Size() {
		c.err = fmt.Errorf("%w: window [%#x, %#x) outside image of %#x bytes",
			ErrRange, c.start, c.start+c.length, c.img.Size())
	}
}

// Err returns the first refinement failure, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Start is the window's offset into the image buffer.
func (c *Cursor) Start() int {
	return c.start
}

func (c *Cursor) Len() int {
	return c.length
}

func (c *Cursor) end() int {
	return c.start + c.length
}

// Bytes returns the window contents. The slice must not be modified.
func (c *Cursor) Bytes() []byte {
	if c.err != nil {
		return nil
	}
	return c.img.data[c.start:c.end()]
}

// NarrowTo moves the window head to the first match of pattern inside the
// window, keeping its end fixed.
func (c *Cursor) NarrowTo(pattern string) *Cursor {
	if c.err != nil {
		return c
	}

	pat, err := sig.ParseSignature(pattern)
	if err != nil {
		c.err = err
		return c
	}

	pos, ok := scan.Find(c.img.data[:c.end()], pat, c.start, 0, scan.Forward)
	if !ok {
		c.err = fmt.Errorf("%w: %s within [%#x, %#x)", ErrNotFound, pat, c.start, c.end())
		return c
	}
	if pos < c.start {
		c.err = fmt.Errorf("%w: match at %#x precedes window start %#x", ErrRange, pos, c.start)
		return c
	}

	c.length -= pos - c.start
	c.start = pos
	return c
}

// EnclosingPrologue moves the window head back to the nearest function
// prologue at or before Start, keeping its end fixed.
func (c *Cursor) EnclosingPrologue() *Cursor {
	if c.err != nil {
		return c
	}

	from := min(c.start+1, c.img.Size())
	pos, ok := scan.Find(c.img.data, prologue, from, 0, scan.Backward)
	if !ok {
		c.err = fmt.Errorf("%w: no prologue at or before %#x", ErrNotFound, c.start)
		return c
	}

	c.length += c.start - pos
	c.start = pos
	return c
}

// Reposition shifts Start by offset and sets the window length.
func (c *Cursor) Reposition(length, offset int) *Cursor {
	if c.err != nil {
		return c
	}

	c.start += offset
	c.length = length
	c.check()
	return c
}

// RepositionFromEnd selects the trailing length bytes of the window, then
// shifts them by offset. It addresses a trailing operand of a match.
func (c *Cursor) RepositionFromEnd(length, offset int) *Cursor {
	if c.err != nil {
		return c
	}

	c.start = c.end() - length + offset
	c.length = length
	c.check()
	return c
}

// Offset translates Start into the image's declared address space.
func (c *Cursor) Offset() (uint64, error) {
	if c.err != nil {
		return 0, c.err
	}
	return c.img.base + uint64(c.start), nil
}

// CallTarget resolves the rel32 call starting the window to its absolute
// target in the declared address space. The opcode byte is not checked.
func (c *Cursor) CallTarget() (uint64, error) {
	if c.err != nil {
		return 0, c.err
	}
	if c.length < callInsnLen {
		return 0, fmt.Errorf("%w: call needs %d bytes, window has %d", ErrRange, callInsnLen, c.length)
	}

	disp := int32(binary.LittleEndian.Uint32(c.img.data[c.start+1:]))
	at := c.img.base + uint64(c.start)
	return at + callInsnLen + uint64(int64(disp)), nil
}

// ReadAs decodes the leading bytes of the window as a little-endian
// fixed-size value.
func ReadAs[T any](c *Cursor) (T, error) {
	var v T
	if c.err != nil {
		return v, c.err
	}

	n := binary.Size(v)
	if n < 0 {
		return v, fmt.Errorf("%w: %T has no fixed size", ErrFormat, v)
	}
	if n > c.length {
		return v, fmt.Errorf("%w: %T needs %d bytes, window has %d", ErrRange, v, n, c.length)
	}

	if _, err := binary.Decode(c.img.data[c.start:c.start+n], binary.LittleEndian, &v); err != nil {
		return v, fmt.Errorf("%w: decode %T: %v", ErrFormat, v, err)
	}
	return v, nil
}
