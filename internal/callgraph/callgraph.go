// Package callgraph turns cross-references and recovered jump tables into
// lattice graphs for DOT rendering.
package callgraph

import (
	"fmt"

	"github.com/zboralski/lattice"

	"opfinder/internal/pex"
	"opfinder/internal/xref"
)

// FuncName is the placeholder name of the function starting at addr.
func FuncName(addr uint64) string { return fmt.Sprintf("sub_%x", addr) }

// Callers builds the graph of functions calling into addr, up to depth
// levels. Each call/jump source is attributed to the function containing
// it, found by scanning back at most window bytes for trap filler.
func Callers(img *pex.Image, idx *xref.Index, addr uint64, depth, window int) (*lattice.Graph, error) {
	g := &lattice.Graph{}
	root := img.FunctionStart(addr, window)
	seen := map[uint64]bool{root: true}
	g.Nodes = append(g.Nodes, FuncName(root))

	frontier := []uint64{root}
	for level := 0; level < depth && len(frontier) > 0; level++ {
		var next []uint64
		for _, callee := range frontier {
			srcs, err := idx.To(callee)
			if err != nil {
				return nil, fmt.Errorf("callgraph: %w", err)
			}
			for _, src := range srcs {
				caller := img.FunctionStart(src, window)
				g.Edges = append(g.Edges, lattice.Edge{
					Caller: FuncName(caller),
					Callee: FuncName(callee),
				})
				if !seen[caller] {
					seen[caller] = true
					g.Nodes = append(g.Nodes, FuncName(caller))
					next = append(next, caller)
				}
			}
		}
		frontier = next
	}
	g.Dedup()
	return g, nil
}
