package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"opfinder/internal/callgraph"
	"opfinder/internal/config"
	"opfinder/internal/disasm"
	"opfinder/internal/jumptable"
	"opfinder/internal/result"
)

type tableCmd struct {
	imageFlags
	name string
	addr string
	size int
	kind string
	asm  bool
	dot  string
}

func newTableCmd() *ffcli.Command {
	cmd := tableCmd{}
	set := flag.NewFlagSet("table", flag.ExitOnError)
	cmd.register(set)
	set.StringVar(&cmd.name, "name", "", "reconstruct the table of this configured signature")
	set.StringVar(&cmd.addr, "addr", "", "function file offset (instead of -name)")
	set.IntVar(&cmd.size, "size", 0x400, "bytes to decode with -addr")
	set.StringVar(&cmd.kind, "kind", "Direct", "table kind with -addr: Direct or Indirect")
	set.BoolVar(&cmd.asm, "asm", false, "print the decoded instructions")
	set.StringVar(&cmd.dot, "dot", "", "write the dispatch graph as DOT to this file")
	return &ffcli.Command{
		Name:       "table",
		ShortUsage: "table -name <signature> | -addr <offset> [flags]",
		ShortHelp:  "Reconstruct and print a jump table",
		FlagSet:    set,
		Options:    []ff.Option{ff.WithEnvVarPrefix(envPrefix)},
		Exec:       cmd.exec,
	}
}

func (cmd *tableCmd) exec(_ context.Context, _ []string) error {
	s, err := cmd.open(cmd.name != "")
	if err != nil {
		return err
	}

	var tbl *jumptable.Table
	switch {
	case cmd.name != "":
		sig, ok := s.cfg.Find(cmd.name)
		if !ok {
			return fmt.Errorf("no signature named %q in %s", cmd.name, cmd.config)
		}
		if tbl, _, err = s.finder().Table(sig); err != nil {
			return err
		}
	case cmd.addr != "":
		addr, err := parseAddr(cmd.addr)
		if err != nil {
			return err
		}
		var tt config.TableType
		if err := tt.UnmarshalJSON([]byte(fmt.Sprintf("%q", cmd.kind))); err != nil {
			return err
		}
		rec := jumptable.NewReconstructor(s.img, s.layout.BlockSize)
		if tbl, err = rec.Reconstruct(addr, cmd.size, tt.Kind()); err != nil {
			return err
		}
	default:
		return errors.New("-name or -addr is required")
	}

	name := callgraph.FuncName(tbl.Addr)
	fmt.Printf("%s %s %v table, %d entries\n", color.CyanString("[-]"), name, tbl.Kind, tbl.Len())
	for _, p := range tbl.Pairs {
		line := fmt.Sprintf("    table 0x%X min case %s", p.TableBase, result.Case(int64(p.MinCase)))
		if tbl.Kind == jumptable.Indirect {
			line += fmt.Sprintf(" indirect 0x%X extent %d", p.IndirectBase, p.Extent)
		}
		fmt.Println(line)
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Case", "Location"})
	for _, e := range tbl.Entries {
		table.Append([]string{result.Case(e.Case), fmt.Sprintf("0x%08X", e.Location)})
	}
	table.Render()

	if cmd.asm {
		fmt.Println()
		fmt.Print(disasm.Format(tbl.Insts, disasm.PlaceholderLookup(map[uint64]string{tbl.Addr: name})))
	}
	if cmd.dot != "" {
		g := &lattice.CFGGraph{Funcs: []*lattice.FuncCFG{callgraph.SwitchCFG(name, tbl)}}
		text := render.DOTCFG(g, name)
		if err := os.WriteFile(cmd.dot, []byte(text), 0644); err != nil {
			return fmt.Errorf("write %s: %w", cmd.dot, err)
		}
		fmt.Printf("%s wrote %s\n", color.GreenString("[+]"), cmd.dot)
	}
	return nil
}
