package pescan

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/s-hammon/pescan/internal/scan"
	"github.com/s-hammon/pescan/internal/sig"
)

// Span is one match: Len bytes at buffer offset Offset.
type Span struct {
	Offset int
	Len    int
}

// Window bounds a scan. Forward scans cover [Offset, Offset+Limit), backward
// scans cover [Offset-Limit, Offset) from the top down. A zero Limit runs to
// the end of the image, or to its start when scanning backward; a zero Offset
// on a backward scan starts at the end of the image.
type Window struct {
	Offset   int
	Limit    int
	Backward bool
}

// Finder runs signature scans against one Image and hands out Cursors for
// the matches of the latest scan.
type Finder struct {
	img     *Image
	matches []Span
}

func NewFinder(img *Image) *Finder {
	return &Finder{img: img}
}

// Find keeps only the first match of pattern.
func (f *Finder) Find(pattern string) error {
	return f.FindIn(pattern, Window{})
}

// FindAll keeps every match of pattern.
func (f *Finder) FindAll(pattern string) error {
	return f.FindAllIn(pattern, Window{})
}

func (f *Finder) FindIn(pattern string, w Window) error {
	return f.run(pattern, w, false)
}

func (f *Finder) FindAllIn(pattern string, w Window) error {
	return f.run(pattern, w, true)
}

func (f *Finder) run(pattern string, w Window, all bool) error {
	f.matches = nil

	pat, err := sig.ParseSignature(pattern)
	if err != nil {
		return err
	}

	dir, offset := scan.Forward, w.Offset
	if w.Backward {
		dir = scan.Backward
		if offset == 0 {
			offset = f.img.Size()
		}
	}

	var found []int
	if all {
		found = scan.FindAll(f.img.data, pat, offset, w.Limit, dir)
	} else if pos, ok := scan.Find(f.img.data, pat, offset, w.Limit, dir); ok {
		found = []int{pos}
	}

	for _, pos := range found {
		f.matches = append(f.matches, Span{Offset: pos, Len: pat.Len()})
	}

	log.Debug("scanned image", "pattern", pat.String(), "dir", dir, "matches", len(f.matches))
	return nil
}

// Count is the number of matches from the latest scan.
func (f *Finder) Count() int {
	return len(f.matches)
}

// Matches returns a copy of the latest scan's matches in scan order.
func (f *Finder) Matches() []Span {
	out := make([]Span, len(f.matches))
	copy(out, f.matches)
	return out
}

func (f *Finder) cursor(n int) *Cursor {
	m := f.matches[n]
	return newCursor(f.img, m.Offset, m.Len)
}

func (f *Finder) At(n int) (*Cursor, error) {
	if n < 0 || n >= len(f.matches) {
		return nil, fmt.Errorf("%w: match %d of %d", ErrRange, n, len(f.matches))
	}
	return f.cursor(n), nil
}

// Single requires the latest scan to have exactly one match.
func (f *Finder) Single() (*Cursor, error) {
	if len(f.matches) != 1 {
		return nil, fmt.Errorf("%w: want exactly 1 match, have %d", ErrRange, len(f.matches))
	}
	return f.cursor(0), nil
}

func (f *Finder) First() (*Cursor, error) {
	if len(f.matches) == 0 {
		return nil, fmt.Errorf("%w: no matches", ErrRange)
	}
	return f.cursor(0), nil
}

func (f *Finder) Last() (*Cursor, error) {
	if len(f.matches) == 0 {
		return nil, fmt.Errorf("%w: no matches", ErrRange)
	}
	return f.cursor(len(f.matches) - 1), nil
}
