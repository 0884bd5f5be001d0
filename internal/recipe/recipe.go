// Package recipe loads named signatures from YAML and resolves them against
// an image. A recipe pairs a pattern with the cursor refinements that turn
// its match into the address of interest.
package recipe

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/s-hammon/pescan"
	"github.com/s-hammon/pescan/internal/sig"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid recipe")

const (
	SelectSingle = "single"
	SelectFirst  = "first"
	SelectLast   = "last"
	SelectAt     = "at"
)

const (
	ResolveOffset = "offset"
	ResolveCall   = "call"
	ResolveU8     = "u8"
	ResolveU16    = "u16"
	ResolveU32    = "u32"
	ResolveU64    = "u64"
	ResolveI32    = "i32"
	ResolveI64    = "i64"
)

type Set struct {
	Signatures []Signature `yaml:"signatures"`
}

type Signature struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
	Select  string `yaml:"select"`
	Index   int    `yaml:"index"`
	Steps   []Step `yaml:"steps"`
	Resolve string `yaml:"resolve"`
}

// Move is the argument of a reposition step.
type Move struct {
	Length int `yaml:"length"`
	Offset int `yaml:"offset"`
}

// Step is one cursor refinement; exactly one field is set.
type Step struct {
	Narrow     string `yaml:"narrow,omitempty"`
	Prologue   bool   `yaml:"prologue,omitempty"`
	Reposition *Move  `yaml:"reposition,omitempty"`
	FromEnd    *Move  `yaml:"from_end,omitempty"`
}

func LoadFile(path string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return Set{}, err
	}
	defer f.Close()

	return Load(f)
}

// Load decodes and validates a recipe set, applying defaults.
func Load(r io.Reader) (Set, error) {
	var set Set
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&set); err != nil && !errors.Is(err, io.EOF) {
		return Set{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	seen := map[string]bool{}
	for i := range set.Signatures {
		s := &set.Signatures[i]
		if err := s.normalize(); err != nil {
			return Set{}, fmt.Errorf("%w: signature %d (%s): %v", ErrInvalid, i, s.Name, err)
		}
		if seen[s.Name] {
			return Set{}, fmt.Errorf("%w: duplicate signature name %q", ErrInvalid, s.Name)
		}
		seen[s.Name] = true
	}

	return set, nil
}

func (s *Signature) normalize() error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return errors.New("missing name")
	}
	if _, err := sig.ParseSignature(s.Pattern); err != nil {
		return err
	}

	s.Select = strings.ToLower(strings.TrimSpace(s.Select))
	switch s.Select {
	case "":
		s.Select = SelectSingle
	case SelectSingle, SelectFirst, SelectLast:
	case SelectAt:
		if s.Index < 0 {
			return fmt.Errorf("negative index %d", s.Index)
		}
	default:
		return fmt.Errorf("unknown select %q", s.Select)
	}

	s.Resolve = strings.ToLower(strings.TrimSpace(s.Resolve))
	switch s.Resolve {
	case "":
		s.Resolve = ResolveOffset
	case ResolveOffset, ResolveCall, ResolveU8, ResolveU16, ResolveU32, ResolveU64, ResolveI32, ResolveI64:
	default:
		return fmt.Errorf("unknown resolve %q", s.Resolve)
	}

	for j, st := range s.Steps {
		if n := st.actions(); n != 1 {
			return fmt.Errorf("step %d sets %d actions, want 1", j, n)
		}
		if st.Narrow != "" {
			if _, err := sig.ParseSignature(st.Narrow); err != nil {
				return fmt.Errorf("step %d: %w", j, err)
			}
		}
	}

	return nil
}

func (st Step) actions() int {
	n := 0
	if st.Narrow != "" {
		n++
	}
	if st.Prologue {
		n++
	}
	if st.Reposition != nil {
		n++
	}
	if st.FromEnd != nil {
		n++
	}
	return n
}

// Result is the outcome of one signature. Value is only meaningful when Err
// is nil.
type Result struct {
	Name  string
	Kind  string
	Value uint64
	Err   error
}

// Signed reports whether Value holds a sign-extended integer.
func (r Result) Signed() bool {
	return r.Kind == ResolveI32 || r.Kind == ResolveI64
}

// Resolve evaluates every signature of set against img, in order. A failing
// signature does not stop the others.
func Resolve(img *pescan.Image, set Set) []Result {
	out := make([]Result, 0, len(set.Signatures))
	for _, s := range set.Signatures {
		v, err := s.Eval(img)
		out = append(out, Result{Name: s.Name, Kind: s.Resolve, Value: v, Err: err})
	}
	return out
}

// Eval resolves one signature.
func (s Signature) Eval(img *pescan.Image) (uint64, error) {
	f := pescan.NewFinder(img)

	var err error
	if s.Select == SelectFirst {
		err = f.Find(s.Pattern)
	} else {
		err = f.FindAll(s.Pattern)
	}
	if err != nil {
		return 0, err
	}

	c, err := s.pick(f)
	if err != nil {
		return 0, err
	}

	for _, st := range s.Steps {
		switch {
		case st.Narrow != "":
			c.NarrowTo(st.Narrow)
		case st.Prologue:
			c.EnclosingPrologue()
		case st.Reposition != nil:
			c.Reposition(st.Reposition.Length, st.Reposition.Offset)
		case st.FromEnd != nil:
			c.RepositionFromEnd(st.FromEnd.Length, st.FromEnd.Offset)
		}
	}

	return value(c, s.Resolve)
}

func (s Signature) pick(f *pescan.Finder) (*pescan.Cursor, error) {
	switch s.Select {
	case SelectFirst:
		return f.First()
	case SelectLast:
		return f.Last()
	case SelectAt:
		return f.At(s.Index)
	default:
		return f.Single()
	}
}

func value(c *pescan.Cursor, kind string) (uint64, error) {
	switch kind {
	case ResolveCall:
		return c.CallTarget()
	case ResolveU8:
		return widen[uint8](pescan.ReadAs[uint8](c))
	case ResolveU16:
		return widen[uint16](pescan.ReadAs[uint16](c))
	case ResolveU32:
		return widen[uint32](pescan.ReadAs[uint32](c))
	case ResolveU64:
		return pescan.ReadAs[uint64](c)
	case ResolveI32:
		v, err := pescan.ReadAs[int32](c)
		return uint64(int64(v)), err
	case ResolveI64:
		v, err := pescan.ReadAs[int64](c)
		return uint64(v), err
	default:
		return c.Offset()
	}
}

func widen[T uint8 | uint16 | uint32](v T, err error) (uint64, error) {
	return uint64(v), err
}
