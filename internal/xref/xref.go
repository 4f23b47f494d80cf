// Package xref indexes direct call/jump instructions of a code section by
// their resolved target, answering "who calls address X".
package xref

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"opfinder/internal/pex"
	"opfinder/internal/sigscan"
)

var ErrNoReference = errors.New("xref: no reference")

// DefaultFunctionWindow bounds the backward scan for a function start.
const DefaultFunctionWindow = 0x50

// rel32 instruction length: opcode + signed 32-bit displacement.
const relInsnLen = 5

var (
	callRel32 = sigscan.MustParse("E8 ?? ?? ?? ??")
	jmpRel32  = sigscan.MustParse("E9 ?? ?? ?? ??")
)

// Kind distinguishes call from jump edges.
type Kind string

const (
	KindCall Kind = "call"
	KindJump Kind = "jmp"
)

// Edge is a call or jump instruction considered as an edge from its own
// address to its resolved target.
type Edge struct {
	Source      uint64 `json:"source"`
	Destination uint64 `json:"destination"`
	Kind        Kind   `json:"kind"`
}

// Index is built once, on first query, and is read-only afterwards. It is
// safe for concurrent use.
type Index struct {
	img            *pex.Image
	functionWindow int

	once   sync.Once
	err    error
	edges  []Edge
	byDest map[uint64][]uint64
}

// Option configures an Index.
type Option func(*Index)

// WithFunctionWindow sets the backward scan bound used by Walk.
func WithFunctionWindow(n int) Option {
	return func(x *Index) { x.functionWindow = n }
}

// New returns an unbuilt index over img.
func New(img *pex.Image, opts ...Option) *Index {
	x := &Index{img: img, functionWindow: DefaultFunctionWindow}
	for _, o := range opts {
		o(x)
	}
	return x
}

func (x *Index) build() {
	text, err := x.img.Text()
	if err != nil {
		x.err = fmt.Errorf("xref: %w", err)
		return
	}
	data := x.img.Bytes()
	start := int(text.Offset)
	end := start + int(text.Size)

	x.byDest = make(map[uint64][]uint64)
	// All calls first, then all jumps; "first caller" below depends on it.
	for _, k := range []struct {
		p    sigscan.Pattern
		kind Kind
	}{{callRel32, KindCall}, {jmpRel32, KindJump}} {
		for _, src := range sigscan.FindIn(data, start, end, k.p) {
			disp := int32(binary.LittleEndian.Uint32(data[src+1:]))
			dst := int64(src) + relInsnLen + int64(disp)
			if dst < 0 {
				continue
			}
			x.edges = append(x.edges, Edge{Source: src, Destination: uint64(dst), Kind: k.kind})
			x.byDest[uint64(dst)] = append(x.byDest[uint64(dst)], src)
		}
	}
	log.Debugf("xref: indexed %d edges over %s [0x%x, 0x%x)", len(x.edges), text.Name, start, end)
}

func (x *Index) ensure() error {
	x.once.Do(x.build)
	return x.err
}

// To returns the sources of every call/jump targeting addr.
func (x *Index) To(addr uint64) ([]uint64, error) {
	if err := x.ensure(); err != nil {
		return nil, err
	}
	return x.byDest[addr], nil
}

// Edges returns every indexed edge. The slice must not be modified.
func (x *Index) Edges() ([]Edge, error) {
	if err := x.ensure(); err != nil {
		return nil, err
	}
	return x.edges, nil
}

// Walk follows first callers upward hops times starting at addr. Each hop
// takes the first source targeting the current address; every hop except
// the last then moves to the start of the enclosing function. The final hop
// yields the raw caller address. The returned slice holds one address per hop.
func (x *Index) Walk(addr uint64, hops int) ([]uint64, error) {
	if hops < 1 {
		hops = 1
	}
	trail := make([]uint64, 0, hops)
	cur := addr
	for i := 0; i < hops; i++ {
		srcs, err := x.To(cur)
		if err != nil {
			return trail, err
		}
		if len(srcs) == 0 {
			return trail, fmt.Errorf("%w: hop %d to 0x%x", ErrNoReference, i, cur)
		}
		cur = srcs[0]
		if i != hops-1 {
			cur = x.img.FunctionStart(cur, x.functionWindow)
		}
		trail = append(trail, cur)
	}
	return trail, nil
}

// WalkUp returns the last address of Walk.
func (x *Index) WalkUp(addr uint64, hops int) (uint64, error) {
	trail, err := x.Walk(addr, hops)
	if err != nil {
		return 0, err
	}
	return trail[len(trail)-1], nil
}
