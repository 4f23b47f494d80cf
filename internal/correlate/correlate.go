// Package correlate runs configured probes against an image and maps each
// probe name to a value: a plain read at a signature match, or the switch
// case of a reconstructed jump table whose entry leads to the match.
package correlate

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"opfinder/internal/config"
	"opfinder/internal/diag"
	"opfinder/internal/jumptable"
	"opfinder/internal/pex"
	"opfinder/internal/result"
	"opfinder/internal/sigscan"
	"opfinder/internal/xref"
)

var (
	ErrUnknownAction = errors.New("correlate: unknown action type")
	ErrUnknownRead   = errors.New("correlate: unknown read type")
)

// Finding is one name/value pair produced by a probe.
type Finding struct {
	Name      string
	Value     string
	Found     bool
	Ambiguous bool
	// Reason explains a NotFound value.
	Reason string
}

// Report collects the findings of one top-level signature, children
// included, in configuration order.
type Report struct {
	Index    int
	Name     string
	Table    bool
	Matches  int
	Findings []Finding
	Diags    diag.Diags
	// Halted is set when a configuration error skipped the remaining
	// children of a table signature.
	Halted bool
}

func (r *Report) found(name, value string, ambiguous bool) {
	r.Findings = append(r.Findings, Finding{Name: name, Value: value, Found: true, Ambiguous: ambiguous})
}

func (r *Report) missing(name string, off uint64, kind diag.Kind, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Diags.Add(name, off, kind, msg)
	r.skip(name, msg)
}

// skip records NotFound without a diagnostic of its own.
func (r *Report) skip(name, reason string) {
	r.Findings = append(r.Findings, Finding{Name: name, Value: result.NotFound, Reason: reason})
}

// Finder resolves probes against one image.
type Finder struct {
	img    *pex.Image
	idx    *xref.Index
	rec    *jumptable.Reconstructor
	layout Layout
}

// NewFinder returns a finder over img. idx must index the same image.
func NewFinder(img *pex.Image, idx *xref.Index, layout Layout) *Finder {
	return &Finder{
		img:    img,
		idx:    idx,
		rec:    jumptable.NewReconstructor(img, layout.BlockSize),
		layout: layout,
	}
}

// Layout returns the layout the finder was built with.
func (f *Finder) Layout() Layout { return f.layout }

// Probe runs one top-level signature.
func (f *Finder) Probe(sig *config.Signature) Report {
	var rep Report
	if sig.IsTable() {
		rep = f.probeTable(sig)
	} else {
		rep = f.probePlain(sig)
	}
	for _, d := range rep.Diags.Items() {
		log.WithFields(log.Fields{"probe": sig.Name, "kind": d.Kind}).Debugf("0x%x: %s", d.Offset, d.Msg)
	}
	return rep
}

func (f *Finder) find(sig string) ([]uint64, error) {
	p, err := sigscan.Parse(sig)
	if err != nil {
		return nil, err
	}
	return sigscan.Find(f.img.Bytes(), p), nil
}

// Read returns the value of type rt at addr. ReadNone yields 0.
func (f *Finder) Read(addr int64, rt config.ReadType) (uint64, error) {
	if rt == config.ReadNone {
		return 0, nil
	}
	if addr < 0 {
		return 0, fmt.Errorf("%w: negative address %d", pex.ErrOutOfRange, addr)
	}
	off := uint64(addr)
	switch rt.Width() {
	case 1:
		v, err := f.img.ReadU8(off)
		return uint64(v), err
	case 2:
		v, err := f.img.ReadU16(off)
		return uint64(v), err
	case 4:
		v, err := f.img.ReadU32(off)
		return uint64(v), err
	case 8:
		return f.img.ReadU64(off)
	}
	return 0, fmt.Errorf("%w: %v", ErrUnknownRead, rt)
}

func readKind(err error) diag.Kind {
	if errors.Is(err, ErrUnknownRead) {
		return diag.Config
	}
	return diag.BadRead
}

func (f *Finder) probePlain(sig *config.Signature) Report {
	rep := Report{Name: sig.Name}
	matches, err := f.find(sig.Signature)
	if err != nil {
		rep.missing(sig.Name, 0, diag.Config, "%v", err)
		return rep
	}
	rep.Matches = len(matches)
	if len(matches) == 0 {
		rep.missing(sig.Name, 0, diag.NotFound, "signature has no match")
		return rep
	}
	if sig.ReadType == config.ReadNone {
		return rep
	}
	for _, m := range matches {
		v, err := f.Read(int64(m)+int64(sig.Offset), sig.ReadType)
		if err != nil {
			rep.Diags.Addf(sig.Name, m, readKind(err), "read %v at %+d: %v", sig.ReadType, sig.Offset, err)
			continue
		}
		rep.found(sig.Name+sig.Suffix(v), result.Hex(v), false)
	}
	if len(rep.Findings) == 0 {
		rep.skip(sig.Name, "no readable value at any match")
	}
	return rep
}
