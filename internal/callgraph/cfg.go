package callgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zboralski/lattice"

	"opfinder/internal/jumptable"
	"opfinder/internal/result"
)

// SwitchCFG maps a recovered jump table to a lattice.FuncCFG: one dispatch
// block holding the decoded instructions, and one terminal block per
// distinct target, reached through an edge labeled with its cases.
// Target blocks are ordered by location.
func SwitchCFG(name string, tbl *jumptable.Table) *lattice.FuncCFG {
	cases := make(map[int64][]int64)
	var locs []int64
	for _, e := range tbl.Entries {
		if _, ok := cases[e.Location]; !ok {
			locs = append(locs, e.Location)
		}
		cases[e.Location] = append(cases[e.Location], e.Case)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i] < locs[j] })

	n := len(tbl.Insts)
	dispatch := &lattice.BasicBlock{ID: 0, Start: 0, End: n}
	for i, p := range tbl.Pairs {
		dispatch.Calls = append(dispatch.Calls, lattice.CallSite{
			Offset: i,
			Callee: fmt.Sprintf("table_%x", p.TableBase),
		})
	}

	lcfg := &lattice.FuncCFG{Name: name, Blocks: []*lattice.BasicBlock{dispatch}}
	for i, loc := range locs {
		id := i + 1
		dispatch.Succs = append(dispatch.Succs, lattice.Successor{
			BlockID: id,
			Cond:    caseLabel(cases[loc]),
		})
		lcfg.Blocks = append(lcfg.Blocks, &lattice.BasicBlock{
			ID:    id,
			Start: n,
			End:   n,
			Term:  true,
			Calls: []lattice.CallSite{{Offset: 0, Callee: locName(loc)}},
		})
	}
	if len(locs) == 0 {
		dispatch.Term = true
	}
	return lcfg
}

func locName(loc int64) string {
	if loc < 0 {
		return "loc_" + result.Case(loc)
	}
	return fmt.Sprintf("loc_%x", loc)
}

func caseLabel(cs []int64) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = result.Case(c)
	}
	return "case " + strings.Join(parts, ",")
}
