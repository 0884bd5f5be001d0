package sig

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/s-hammon/p"
)

const WildcardByte = 0x00

// ErrSyntax reports a malformed signature string.
var ErrSyntax = errors.New("signature syntax error")

// Pattern is a decoded signature. Mask[i] marks Bytes[i] as a wildcard; a
// Mask shorter than Bytes leaves the remaining positions significant.
type Pattern struct {
	Bytes []byte
	Mask  []bool
}

// ParseSignature decodes a hex signature such as "55 8B EC ?? 90". Spaces and
// tabs are ignored, so "558BEC??90" is equivalent. Every byte is exactly two
// characters; "??" is a wildcard.
func ParseSignature(s string) (Pattern, error) {
	clean := strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)

	if clean == "" {
		return Pattern{}, fmt.Errorf("%w: empty signature", ErrSyntax)
	}
	if len(clean)%2 != 0 {
		return Pattern{}, fmt.Errorf("%w: dangling half byte %q", ErrSyntax, clean[len(clean)-1:])
	}

	n := len(clean) / 2
	b := make([]byte, n)
	m := make([]bool, n)
	for i := range n {
		tok := clean[i*2 : i*2+2]
		switch {
		case tok == "??":
			b[i] = WildcardByte
			m[i] = true
		case strings.Contains(tok, "?"):
			return Pattern{}, fmt.Errorf("%w: partial wildcard %q at byte %d", ErrSyntax, tok, i)
		default:
			v, err := strconv.ParseUint(tok, 16, 8)
			if err != nil {
				return Pattern{}, fmt.Errorf("%w: bad hex %q at byte %d", ErrSyntax, tok, i)
			}
			b[i] = byte(v)
		}
	}

	return Pattern{b, m}, nil
}

// MustParse is ParseSignature for package-level signature constants.
func MustParse(s string) Pattern {
	pat, err := ParseSignature(s)
	if err != nil {
		panic(err)
	}
	return pat
}

func (p *Pattern) Len() int {
	return len(p.Bytes)
}

func (p *Pattern) wildcard(i int) bool {
	return i < len(p.Mask) && p.Mask[i]
}

// MatchAt reports whether the pattern matches buf at off. It never reads
// outside buf.
func (p *Pattern) MatchAt(buf []byte, off int) bool {
	if off < 0 || off+len(p.Bytes) > len(buf) {
		return false
	}

	for i := range p.Bytes {
		if p.wildcard(i) {
			continue
		}
		if buf[off+i] != p.Bytes[i] {
			return false
		}
	}

	return true
}

func (pa Pattern) String() string {
	var parts []string
	for i, b := range pa.Bytes {
		if pa.wildcard(i) {
			parts = append(parts, "??")
		} else {
			parts = append(parts, p.Format("%02X", b))
		}
	}

	return strings.Join(parts, " ")
}
