package callgraph

import (
	"strings"
	"testing"

	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"opfinder/internal/jumptable"
	"opfinder/internal/pex"
	"opfinder/internal/pex/pextest"
	"opfinder/internal/xref"
)

func TestSwitchCFG_DOTOutput(t *testing.T) {
	tbl := &jumptable.Table{
		Addr:  0x1000,
		Kind:  jumptable.Direct,
		Pairs: []jumptable.Pair{{MinCase: 5, TableBase: 0x3000}},
		Entries: []jumptable.Entry{
			{Case: 5, Location: 0x1300},
			{Case: 6, Location: 0x1100},
			{Case: 7, Location: 0x1300},
		},
	}

	f := SwitchCFG("sub_1000", tbl)

	// Dispatch block plus one block per distinct target.
	if len(f.Blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(f.Blocks))
	}
	b0 := f.Blocks[0]
	if len(b0.Succs) != 2 {
		t.Fatalf("B0 succs = %+v", b0.Succs)
	}
	if b0.Succs[0].Cond != "case 0x6" || b0.Succs[1].Cond != "case 0x5,0x7" {
		t.Errorf("B0 conds = %q, %q", b0.Succs[0].Cond, b0.Succs[1].Cond)
	}
	if len(b0.Calls) != 1 || b0.Calls[0].Callee != "table_3000" {
		t.Errorf("B0 calls = %+v", b0.Calls)
	}
	if f.Blocks[1].Calls[0].Callee != "loc_1100" || !f.Blocks[1].Term {
		t.Errorf("B1 = %+v", f.Blocks[1])
	}

	dot := render.DOTCFG(&lattice.CFGGraph{Funcs: []*lattice.FuncCFG{f}}, "switch")
	if dot == "" {
		t.Error("expected non-empty DOT output")
	}
}

func TestSwitchCFG_Empty(t *testing.T) {
	f := SwitchCFG("sub_0", &jumptable.Table{})
	if len(f.Blocks) != 1 || !f.Blocks[0].Term {
		t.Errorf("blocks = %+v", f.Blocks)
	}
}

func TestCallers_DOTOutput(t *testing.T) {
	// target at 0x900, F1 at 0xA00 calls it, F2 at 0xB00 calls F1 twice.
	b := pextest.New(0x2000)
	b.Fill(0x400, 0x1C00, pex.TrapByte)
	b.Fill(0x900, 0x10, 0x90)
	b.Fill(0xA00, 0x20, 0x90)
	b.Call(0xA10, 0x900)
	b.Fill(0xB00, 0x40, 0x90)
	b.Call(0xB20, 0xA00)
	b.Call(0xB30, 0xA00)
	img, err := pex.Load(b.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	idx := xref.New(img)

	g, err := Callers(img, idx, 0x908, 3, xref.DefaultFunctionWindow)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"sub_900", "sub_a00", "sub_b00"}
	if strings.Join(g.Nodes, ",") != strings.Join(want, ",") {
		t.Errorf("nodes = %v, want %v", g.Nodes, want)
	}
	if len(g.Edges) != 2 {
		t.Errorf("edges = %+v", g.Edges)
	}

	g, err = Callers(img, idx, 0x900, 1, xref.DefaultFunctionWindow)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Nodes) != 2 {
		t.Errorf("depth 1 nodes = %v", g.Nodes)
	}

	dot := render.DOT(g, "callers")
	if !strings.Contains(dot, "sub_a00") {
		t.Errorf("DOT output missing caller node:\n%s", dot)
	}
}
