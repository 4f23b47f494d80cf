package correlate

import (
	"errors"
	"fmt"

	"opfinder/internal/config"
	"opfinder/internal/diag"
	"opfinder/internal/jumptable"
	"opfinder/internal/result"
)

// Table reconstructs the jump table rooted at sig. The root signature must
// match exactly once.
func (f *Finder) Table(sig *config.Signature) (*jumptable.Table, diag.Diag, error) {
	d := diag.Diag{Name: sig.Name}
	fail := func(kind diag.Kind, err error) (*jumptable.Table, diag.Diag, error) {
		d.Kind, d.Msg = kind, err.Error()
		return nil, d, err
	}

	matches, err := f.find(sig.Signature)
	if err != nil {
		return fail(diag.Config, err)
	}
	switch {
	case len(matches) == 0:
		return fail(diag.NotFound, errors.New("table signature has no match"))
	case len(matches) > 1:
		d.Offset = matches[0]
		return fail(diag.NotUnique, fmt.Errorf("table signature matched %d times", len(matches)))
	}
	d.Offset = matches[0]

	kind := sig.JumpTableType.Kind()
	if kind == jumptable.None {
		return fail(diag.Config, fmt.Errorf("%w: JumpTableType %v", jumptable.ErrUnknownKind, sig.JumpTableType))
	}
	if sig.FunctionSize <= 0 {
		return fail(diag.Config, fmt.Errorf("FunctionSize must be positive, got %d", sig.FunctionSize))
	}
	tbl, err := f.rec.Reconstruct(matches[0], sig.FunctionSize, kind)
	if err != nil {
		if errors.Is(err, jumptable.ErrSizeMismatch) {
			return fail(diag.SizeMismatch, err)
		}
		return fail(diag.NoTable, err)
	}
	if tbl.Len() == 0 {
		return fail(diag.NoTable, fmt.Errorf("%w: table at 0x%x has no entries", jumptable.ErrNoJumpTable, matches[0]))
	}
	return tbl, d, nil
}

func (f *Finder) probeTable(sig *config.Signature) Report {
	rep := Report{Name: sig.Name, Table: true}
	tbl, d, err := f.Table(sig)
	if err != nil {
		rep.Diags.Add(d.Name, d.Offset, d.Kind, d.Msg)
		for _, sub := range sig.SubInfo {
			rep.skip(sub.Name, d.Msg)
		}
		return rep
	}
	rep.Matches = 1

	for i := range sig.SubInfo {
		sub := &sig.SubInfo[i]
		before := len(rep.Findings)
		if err := f.child(&rep, tbl, sub); err != nil {
			rep.Diags.Addf(sub.Name, 0, diag.Config, "%v; skipping %d later probes", err, len(sig.SubInfo)-i-1)
			for _, rest := range sig.SubInfo[i:] {
				rep.skip(rest.Name, err.Error())
			}
			rep.Halted = true
			break
		}
		if len(rep.Findings) == before {
			rep.skip(sub.Name, "no value produced")
		}
	}
	return rep
}

// child resolves one probe against tbl. A non-nil error is a configuration
// error that halts the remaining children.
func (f *Finder) child(rep *Report, tbl *jumptable.Table, sub *config.Signature) error {
	switch sub.ActionType {
	case config.ActionNone, config.ActionReadThenCrossReference, config.ActionCrossReference:
	default:
		return fmt.Errorf("%w: %v", ErrUnknownAction, sub.ActionType)
	}

	matches, err := f.find(sub.Signature)
	if err != nil {
		rep.missing(sub.Name, 0, diag.Config, "%v", err)
		return nil
	}
	if len(matches) == 0 {
		rep.missing(sub.Name, 0, diag.NotFound, "signature has no match")
		return nil
	}

	switch sub.ActionType {
	case config.ActionNone:
		f.direct(rep, tbl, sub, matches)
	case config.ActionReadThenCrossReference:
		f.readThenFollow(rep, tbl, sub, matches)
	case config.ActionCrossReference:
		if sub.ReferenceCount != nil {
			f.walkUp(rep, tbl, sub, matches)
		} else {
			f.callers(rep, tbl, sub, matches)
		}
	}
	return nil
}

// search looks for an entry at addr, then at each lower address down to
// addr-SearchWindow.
func (f *Finder) search(tbl *jumptable.Table, addr int64) (jumptable.Entry, bool) {
	for off := 0; off <= f.layout.SearchWindow; off++ {
		if e, ok := tbl.Lookup(addr - int64(off)); ok {
			return e, true
		}
	}
	return jumptable.Entry{}, false
}

// collect searches the table near every source, under each delta in turn.
// It stops at the first entry unless multiple is set, and never moves on
// to the next delta once something was found.
func (f *Finder) collect(tbl *jumptable.Table, sources []uint64, multiple bool) []int64 {
	var cases []int64
	seen := make(map[int64]bool)
	for _, delta := range f.layout.Deltas {
		for _, src := range sources {
			e, ok := f.search(tbl, int64(src)+delta)
			if !ok {
				continue
			}
			if !seen[e.Case] {
				seen[e.Case] = true
				cases = append(cases, e.Case)
			}
			if !multiple {
				return cases
			}
		}
		if len(cases) > 0 {
			break
		}
	}
	return cases
}

// direct reports the cases whose location sits at the smallest distance
// below any match. More than one case at that distance is ambiguous.
func (f *Finder) direct(rep *Report, tbl *jumptable.Table, sub *config.Signature, matches []uint64) {
	for off := 0; off <= f.layout.SearchWindow; off++ {
		var cases []int64
		seen := make(map[int64]bool)
		for _, m := range matches {
			for _, e := range tbl.At(int64(m) - int64(off)) {
				if !seen[e.Case] {
					seen[e.Case] = true
					cases = append(cases, e.Case)
				}
			}
		}
		if len(cases) == 0 {
			continue
		}
		ambiguous := len(cases) > 1
		if ambiguous {
			rep.Diags.Addf(sub.Name, matches[0], diag.Ambiguous, "%d candidate cases %d bytes below %d matches", len(cases), off, len(matches))
		}
		rep.found(sub.Name, result.Cases(cases), ambiguous)
		return
	}
	rep.missing(sub.Name, matches[0], diag.NotFound, "no table entry within 0x%x bytes of %d matches", f.layout.SearchWindow, len(matches))
}

// readThenFollow reads a value at each match, then finds the enclosing
// function's callers in the table.
func (f *Finder) readThenFollow(rep *Report, tbl *jumptable.Table, sub *config.Signature, matches []uint64) {
	for _, m := range matches {
		v, err := f.Read(int64(m)+int64(sub.Offset), sub.ReadType)
		if err != nil {
			rep.Diags.Addf(sub.Name, m, readKind(err), "read %v at %+d: %v", sub.ReadType, sub.Offset, err)
			continue
		}
		name := sub.Name + sub.Suffix(v)
		start := f.img.FunctionStart(m, f.layout.FunctionWindow)
		callers, err := f.idx.To(start)
		if err != nil {
			rep.missing(name, start, diag.NoReference, "%v", err)
			continue
		}
		if len(callers) == 0 {
			rep.missing(name, start, diag.NoReference, "function 0x%x has no callers", start)
			continue
		}
		cases := f.collect(tbl, callers, sub.HasMultipleResult)
		if len(cases) == 0 {
			rep.missing(name, start, diag.NotFound, "no table entry near %d callers of 0x%x", len(callers), start)
			continue
		}
		rep.found(name, result.Cases(cases), false)
	}
}

// walkUp follows ReferenceCount first-caller hops from a unique match.
func (f *Finder) walkUp(rep *Report, tbl *jumptable.Table, sub *config.Signature, matches []uint64) {
	if len(matches) > 1 {
		rep.missing(sub.Name, matches[0], diag.Config, "signature matched %d times; ReferenceCount needs a unique match", len(matches))
		return
	}
	addr, err := f.idx.WalkUp(matches[0], *sub.ReferenceCount)
	if err != nil {
		rep.missing(sub.Name, matches[0], diag.NoReference, "%v", err)
		return
	}
	cases := f.collect(tbl, []uint64{addr}, false)
	if len(cases) == 0 {
		rep.missing(sub.Name, addr, diag.NotFound, "no table entry near 0x%x after %d hops", addr, *sub.ReferenceCount)
		return
	}
	rep.found(sub.Name, result.Cases(cases), false)
}

// callers searches the table near every direct caller of every match.
func (f *Finder) callers(rep *Report, tbl *jumptable.Table, sub *config.Signature, matches []uint64) {
	var sources []uint64
	for _, m := range matches {
		srcs, err := f.idx.To(m)
		if err != nil {
			rep.missing(sub.Name, m, diag.NoReference, "%v", err)
			return
		}
		sources = append(sources, srcs...)
	}
	if len(sources) == 0 {
		rep.missing(sub.Name, matches[0], diag.NoReference, "no callers of %d matches", len(matches))
		return
	}
	cases := f.collect(tbl, sources, sub.HasMultipleResult)
	if len(cases) == 0 {
		rep.missing(sub.Name, matches[0], diag.NotFound, "no table entry near %d callers", len(sources))
		return
	}
	rep.found(sub.Name, result.Cases(cases), false)
}
