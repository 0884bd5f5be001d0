package scan

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/s-hammon/pescan/internal/sig"
	"github.com/stretchr/testify/require"
)

var buf = []byte{0x4D, 0x5A, 0x00, 0x55, 0x8B, 0xEC, 0x90, 0x55, 0x8B, 0xEC}

func TestFindForward(t *testing.T) {
	pat := sig.MustParse("55 8B EC")

	pos, ok := Find(buf, pat, 0, 0, Forward)
	require.True(t, ok)
	require.Equal(t, 3, pos)

	pos, ok = Find(buf, pat, 4, 0, Forward)
	require.True(t, ok)
	require.Equal(t, 7, pos)

	_, ok = Find(buf, pat, 0, 3, Forward)
	require.False(t, ok, "window [0,3) holds no candidate")

	pos, ok = Find(buf, pat, 0, 4, Forward)
	require.True(t, ok)
	require.Equal(t, 3, pos)
}

func TestFindBackward(t *testing.T) {
	pat := sig.MustParse("55 8B EC")

	pos, ok := Find(buf, pat, len(buf), 0, Backward)
	require.True(t, ok)
	require.Equal(t, 7, pos)

	pos, ok = Find(buf, pat, 7, 0, Backward)
	require.True(t, ok)
	require.Equal(t, 3, pos)

	_, ok = Find(buf, pat, 3, 0, Backward)
	require.False(t, ok, "offset itself is excluded")

	_, ok = Find(buf, pat, 7, 3, Backward)
	require.False(t, ok, "window [4,7) holds no match")

	pos, ok = Find(buf, pat, 7, 4, Backward)
	require.True(t, ok)
	require.Equal(t, 3, pos)
}

func TestFindBounds(t *testing.T) {
	pat := sig.MustParse("8B EC ??")

	// The last candidate would need a byte past the end.
	_, ok := Find(buf, pat, 8, 0, Forward)
	require.False(t, ok)
	_, ok = Find(buf, pat, len(buf), 0, Backward)
	require.True(t, ok)

	_, ok = Find(buf, pat, -1, 0, Forward)
	require.False(t, ok)
	_, ok = Find(buf, pat, len(buf)+1, 0, Forward)
	require.False(t, ok)
	_, ok = Find(buf, pat, 0, -1, Forward)
	require.False(t, ok)
	_, ok = Find(nil, pat, 0, 0, Forward)
	require.False(t, ok)
	_, ok = Find(buf, sig.Pattern{}, 0, 0, Forward)
	require.False(t, ok)

	long := sig.Pattern{Bytes: make([]byte, len(buf)+1)}
	_, ok = Find(buf, long, 0, 0, Forward)
	require.False(t, ok)
}

func TestFindAll(t *testing.T) {
	pat := sig.MustParse("55 8B EC")
	require.Equal(t, []int{3, 7}, FindAll(buf, pat, 0, 0, Forward))
	require.Equal(t, []int{7, 3}, FindAll(buf, pat, len(buf), 0, Backward))
	require.Equal(t, []int{3}, FindAll(buf, pat, 0, 6, Forward))
	require.Empty(t, FindAll(buf, sig.MustParse("CC"), 0, 0, Forward))
}

func TestFindAllOverlapping(t *testing.T) {
	data := []byte{0xAA, 0xAA, 0xAA, 0xAA}
	pat := sig.MustParse("AA AA")
	require.Equal(t, []int{0, 1, 2}, FindAll(data, pat, 0, 0, Forward))
	require.Equal(t, []int{2, 1, 0}, FindAll(data, pat, len(data), 0, Backward))
}

func TestDirectionString(t *testing.T) {
	require.Equal(t, "forward", Forward.String())
	require.Equal(t, "backward", Backward.String())
}

func naiveFirst(data, pat []byte) (int, bool) {
	i := bytes.Index(data, pat)
	return i, i >= 0
}

func TestFindMatchesNaive(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for range 500 {
		data := make([]byte, r.IntN(64))
		for i := range data {
			data[i] = byte(r.IntN(3))
		}
		patLen := 1 + r.IntN(4)
		raw := make([]byte, patLen)
		for i := range raw {
			raw[i] = byte(r.IntN(3))
		}

		got, gotOK := Find(data, sig.Pattern{Bytes: raw}, 0, 0, Forward)
		want, wantOK := naiveFirst(data, raw)
		require.Equal(t, wantOK, gotOK)
		if wantOK {
			require.Equal(t, want, got)
		}
	}
}

func TestWildcardIgnoresMaskedBytes(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	pat := sig.MustParse("12 ?? 34 ??")
	for range 200 {
		// Filler never contains 0x12 or 0x34, so the planted match is the only one.
		a := make([]byte, 32)
		for i := range a {
			a[i] = byte(0x40 + r.IntN(64))
		}
		at := r.IntN(len(a) - pat.Len())
		copy(a[at:], []byte{0x12, 0x00, 0x34, 0x00})

		b := bytes.Clone(a)
		b[at+1] = byte(0x40 + r.IntN(64))
		b[at+3] = byte(0x40 + r.IntN(64))

		pa, okA := Find(a, pat, 0, 0, Forward)
		pb, okB := Find(b, pat, 0, 0, Forward)
		require.True(t, okA)
		require.True(t, okB)
		require.Equal(t, pa, pb)
	}
}

func TestFindAllOrdering(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	pat := sig.MustParse("01 ??")
	for range 200 {
		data := make([]byte, 48)
		for i := range data {
			data[i] = byte(r.IntN(2))
		}

		fwd := FindAll(data, pat, 0, 0, Forward)
		for i, pos := range fwd {
			require.True(t, pat.MatchAt(data, pos))
			if i > 0 {
				require.Greater(t, pos, fwd[i-1])
			}
		}

		bwd := FindAll(data, pat, len(data), 0, Backward)
		for i, pos := range bwd {
			require.True(t, pat.MatchAt(data, pos))
			if i > 0 {
				require.Less(t, pos, bwd[i-1])
			}
		}
		require.Len(t, bwd, len(fwd))
	}
}
