// Package diag provides the soft-failure diagnostics recorded while probing.
package diag

import "fmt"

// Kind classifies a diagnostic message.
type Kind string

const (
	NotFound     Kind = "not_found"
	NotUnique    Kind = "not_unique"
	NoTable      Kind = "no_table"
	SizeMismatch Kind = "size_mismatch"
	NoReference  Kind = "no_reference"
	BadRead      Kind = "bad_read"
	Ambiguous    Kind = "ambiguous"
	Config       Kind = "config"
)

// Diag records a non-fatal issue for one probe.
type Diag struct {
	Name   string `json:"name"`
	Offset uint64 `json:"offset"`
	Kind   Kind   `json:"kind"`
	Msg    string `json:"msg"`
}

func (d Diag) String() string {
	if d.Name == "" {
		return fmt.Sprintf("[%s] 0x%x: %s", d.Kind, d.Offset, d.Msg)
	}
	return fmt.Sprintf("[%s] %s 0x%x: %s", d.Kind, d.Name, d.Offset, d.Msg)
}

// Diags accumulates diagnostics.
type Diags struct {
	items []Diag
}

func (d *Diags) Add(name string, offset uint64, kind Kind, msg string) {
	d.items = append(d.items, Diag{Name: name, Offset: offset, Kind: kind, Msg: msg})
}

func (d *Diags) Addf(name string, offset uint64, kind Kind, format string, args ...any) {
	d.Add(name, offset, kind, fmt.Sprintf(format, args...))
}

func (d *Diags) Items() []Diag { return d.items }
func (d *Diags) Len() int      { return len(d.items) }

// Count returns the number of diagnostics of the given kind.
func (d *Diags) Count(kind Kind) int {
	n := 0
	for _, it := range d.items {
		if it.Kind == kind {
			n++
		}
	}
	return n
}

// Merge appends other's items.
func (d *Diags) Merge(other *Diags) {
	d.items = append(d.items, other.items...)
}
