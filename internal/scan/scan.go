// Package scan implements masked linear signature scans over a byte buffer.
package scan

import "github.com/s-hammon/pescan/internal/sig"

type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// window returns the candidate positions [lo, hi) for a scan. A forward scan
// covers [offset, offset+limit) and a backward scan covers
// [offset-limit, offset); limit 0 runs to the end or to position 0. Positions
// whose match would extend past the buffer are excluded.
func window(size, patLen, offset, limit int, dir Direction) (lo, hi int, ok bool) {
	if offset < 0 || offset > size || limit < 0 || patLen == 0 {
		return 0, 0, false
	}

	switch dir {
	case Backward:
		lo, hi = 0, offset
		if limit > 0 && offset-limit > 0 {
			lo = offset - limit
		}
	default:
		lo, hi = offset, size
		if limit > 0 && offset+limit < size {
			hi = offset + limit
		}
	}

	hi = min(hi, size-patLen+1)
	return lo, hi, lo < hi
}

// Find returns the first position in scan order at which pat matches data.
func Find(data []byte, pat sig.Pattern, offset, limit int, dir Direction) (int, bool) {
	lo, hi, ok := window(len(data), pat.Len(), offset, limit, dir)
	if !ok {
		return 0, false
	}

	return find(data, pat, lo, hi, dir)
}

func find(data []byte, pat sig.Pattern, lo, hi int, dir Direction) (int, bool) {
	if dir == Backward {
		for i := hi - 1; i >= lo; i-- {
			if pat.MatchAt(data, i) {
				return i, true
			}
		}
		return 0, false
	}

	for i := lo; i < hi; i++ {
		if pat.MatchAt(data, i) {
			return i, true
		}
	}
	return 0, false
}

// FindAll returns every match inside the scan window in scan order: ascending
// for forward scans, descending for backward scans. Matches may overlap.
func FindAll(data []byte, pat sig.Pattern, offset, limit int, dir Direction) []int {
	lo, hi, ok := window(len(data), pat.Len(), offset, limit, dir)
	if !ok {
		return nil
	}

	var out []int
	for lo < hi {
		pos, found := find(data, pat, lo, hi, dir)
		if !found {
			break
		}

		out = append(out, pos)
		if dir == Backward {
			hi = pos
		} else {
			lo = pos + 1
		}
	}

	return out
}
