package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"github.com/zboralski/lattice/render"

	"opfinder/internal/callgraph"
)

type graphCmd struct {
	imageFlags
	addr  string
	depth int
	out   string
}

func newGraphCmd() *ffcli.Command {
	cmd := graphCmd{}
	set := flag.NewFlagSet("graph", flag.ExitOnError)
	cmd.register(set)
	set.StringVar(&cmd.addr, "addr", "", "file offset inside the function to graph")
	set.IntVar(&cmd.depth, "depth", 3, "caller levels to follow")
	set.StringVar(&cmd.out, "out", "callers.dot", "output DOT file")
	return &ffcli.Command{
		Name:       "graph",
		ShortUsage: "graph -addr <offset> [-depth n] [-out file.dot] [flags]",
		ShortHelp:  "Write the caller graph of a function as DOT",
		FlagSet:    set,
		Options:    []ff.Option{ff.WithEnvVarPrefix(envPrefix)},
		Exec:       cmd.exec,
	}
}

func (cmd *graphCmd) exec(_ context.Context, _ []string) error {
	s, err := cmd.open(false)
	if err != nil {
		return err
	}
	addr, err := parseAddr(cmd.addr)
	if err != nil {
		return err
	}

	g, err := callgraph.Callers(s.img, s.idx, addr, cmd.depth, s.layout.FunctionWindow)
	if err != nil {
		return err
	}
	title := fmt.Sprintf("callers of %s", callgraph.FuncName(s.img.FunctionStart(addr, s.layout.FunctionWindow)))
	if err := os.WriteFile(cmd.out, []byte(render.DOT(g, title)), 0644); err != nil {
		return fmt.Errorf("write %s: %w", cmd.out, err)
	}
	fmt.Printf("%s %d functions, %d edges written to %s\n",
		color.GreenString("[+]"), len(g.Nodes), len(g.Edges), cmd.out)
	return nil
}
