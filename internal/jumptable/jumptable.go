// Package jumptable recovers compiler-emitted switch dispatch tables from a
// function's instruction stream and the image's raw table bytes.
package jumptable

import (
	"encoding/binary"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"opfinder/internal/disasm"
	"opfinder/internal/pex"
)

var (
	ErrNoJumpTable  = errors.New("jumptable: no jump table found")
	ErrSizeMismatch = errors.New("jumptable: indirect table count does not match jump table count")
	ErrMissingCase  = errors.New("jumptable: no minimum case value for table")
	ErrUnknownKind  = errors.New("jumptable: unknown table kind")
)

// Kind selects how table slots are indexed.
type Kind int

const (
	None Kind = iota
	Direct
	Indirect
)

func (k Kind) String() string {
	switch k {
	case None:
		return "None"
	case Direct:
		return "Direct"
	case Indirect:
		return "Indirect"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Safety caps for runaway tables.
const (
	maxEntries = 1 << 16
	maxExtent  = 1 << 16
)

// Entry is one recovered jump table slot.
type Entry struct {
	Case     int64 `json:"case"`
	Location int64 `json:"location"`
}

// Pair is one (case base, table base) dispatch recovered from the stream.
// IndirectBase and Extent are set for indirect tables only.
type Pair struct {
	MinCase      int32
	TableBase    int64
	IndirectBase int64
	Extent       int64
}

// Table is the ordered set of entries recovered from one function. Case
// values are unique.
type Table struct {
	Addr    uint64
	Kind    Kind
	Pairs   []Pair
	Entries []Entry
	Insts   []disasm.Inst

	byLoc  map[int64][]int
	byCase map[int64]struct{}
}

func newTable(addr uint64, kind Kind) *Table {
	return &Table{
		Addr:   addr,
		Kind:   kind,
		byLoc:  make(map[int64][]int),
		byCase: make(map[int64]struct{}),
	}
}

func (t *Table) add(e Entry) {
	if _, dup := t.byCase[e.Case]; dup {
		return
	}
	t.byCase[e.Case] = struct{}{}
	t.byLoc[e.Location] = append(t.byLoc[e.Location], len(t.Entries))
	t.Entries = append(t.Entries, e)
}

// Lookup returns the first entry whose location equals loc.
func (t *Table) Lookup(loc int64) (Entry, bool) {
	idx := t.byLoc[loc]
	if len(idx) == 0 {
		return Entry{}, false
	}
	return t.Entries[idx[0]], true
}

// At returns every entry whose location equals loc, in table order.
func (t *Table) At(loc int64) []Entry {
	idx := t.byLoc[loc]
	out := make([]Entry, 0, len(idx))
	for _, i := range idx {
		out = append(out, t.Entries[i])
	}
	return out
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.Entries) }

// Pairs matches recovered case bases with table bases. Direct tables pair
// position i with i. Indirect tables pair position i-1 with the indirection
// table i-1, whose extent runs up to the next jump table's base.
func Pairs(id Idioms, kind Kind) ([]Pair, error) {
	if len(id.TableBases) == 0 {
		return nil, ErrNoJumpTable
	}
	var pairs []Pair
	switch kind {
	case Direct:
		for i, base := range id.TableBases {
			if i >= len(id.MinCases) {
				return pairs, fmt.Errorf("%w: table %d at 0x%x", ErrMissingCase, i, base)
			}
			pairs = append(pairs, Pair{MinCase: id.MinCases[i], TableBase: base})
		}
	case Indirect:
		if len(id.IndirectBases) != len(id.TableBases) {
			return nil, fmt.Errorf("%w: %d indirect, %d jump", ErrSizeMismatch,
				len(id.IndirectBases), len(id.TableBases))
		}
		for i := 1; i < len(id.TableBases); i++ {
			idx := i - 1
			if idx >= len(id.MinCases) {
				return pairs, fmt.Errorf("%w: table %d at 0x%x", ErrMissingCase, idx, id.TableBases[idx])
			}
			pairs = append(pairs, Pair{
				MinCase:      id.MinCases[idx],
				TableBase:    id.TableBases[idx],
				IndirectBase: id.IndirectBases[idx],
				Extent:       id.TableBases[i] - id.IndirectBases[idx],
			})
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
	}
	return pairs, nil
}

// DirectEntries reads 4-byte signed slots from base, starting at minCase,
// until a slot begins with two trap bytes or the image ends. Each location
// is slot - delta.
func DirectEntries(data []byte, minCase int32, base, delta int64, trap byte) []Entry {
	var out []Entry
	if base < 0 {
		return nil
	}
	for j := int64(0); j < maxEntries; j++ {
		slot := base + j*4
		if slot+4 > int64(len(data)) {
			break
		}
		if data[slot] == trap && data[slot+1] == trap {
			break
		}
		v := int32(binary.LittleEndian.Uint32(data[slot:]))
		out = append(out, Entry{Case: int64(minCase) + j, Location: int64(v) - delta})
	}
	return out
}

// IndirectEntries walks extent indirection bytes at indirBase. Byte k maps
// case minCase+k onto slot b of the jump table at base.
func IndirectEntries(data []byte, minCase int32, indirBase, extent, base, delta int64) []Entry {
	if indirBase < 0 || base < 0 || extent <= 0 {
		return nil
	}
	if extent > maxExtent {
		extent = maxExtent
	}
	var out []Entry
	for k := int64(0); k < extent; k++ {
		if indirBase+k >= int64(len(data)) {
			break
		}
		b := int64(data[indirBase+k])
		slot := base + b*4
		if slot+4 > int64(len(data)) {
			continue
		}
		v := int32(binary.LittleEndian.Uint32(data[slot:]))
		out = append(out, Entry{Case: int64(minCase) + k, Location: int64(v) - delta})
	}
	return out
}

// Reconstructor recovers tables from one image.
type Reconstructor struct {
	img   *pex.Image
	delta int64
}

// NewReconstructor returns a reconstructor converting table RVAs to file
// offsets with delta.
func NewReconstructor(img *pex.Image, delta int64) *Reconstructor {
	return &Reconstructor{img: img, delta: delta}
}

// Reconstruct decodes at most size bytes from addr, stopping at the first
// trap byte, and materializes every recovered table.
func (r *Reconstructor) Reconstruct(addr uint64, size int, kind Kind) (*Table, error) {
	if kind != Direct && kind != Indirect {
		return nil, fmt.Errorf("%w: %v", ErrUnknownKind, kind)
	}
	code := r.img.Window(addr, size)
	insts := disasm.Disassemble(code, disasm.Options{
		BaseAddr:   addr,
		StopAtTrap: true,
		Trap:       r.img.Trap(),
	})

	id := Scan(insts, r.delta)
	log.Debugf("jumptable: 0x%x: %d insts, cases=%v indirect=%d tables=%d",
		addr, len(insts), id.MinCases, len(id.IndirectBases), len(id.TableBases))

	pairs, err := Pairs(id, kind)
	if err != nil && len(pairs) == 0 {
		return nil, fmt.Errorf("0x%x: %w", addr, err)
	}
	if err != nil {
		log.Debugf("jumptable: 0x%x: %v", addr, err)
	}

	t := newTable(addr, kind)
	t.Pairs = pairs
	t.Insts = insts
	data := r.img.Bytes()
	for _, p := range pairs {
		var entries []Entry
		if kind == Indirect {
			entries = IndirectEntries(data, p.MinCase, p.IndirectBase, p.Extent, p.TableBase, r.delta)
		} else {
			entries = DirectEntries(data, p.MinCase, p.TableBase, r.delta, r.img.Trap())
		}
		for _, e := range entries {
			t.add(e)
		}
	}
	return t, nil
}
