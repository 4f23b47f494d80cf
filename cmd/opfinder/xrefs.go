package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"opfinder/internal/callgraph"
)

type xrefsCmd struct {
	imageFlags
	addr    string
	jsonOut bool
}

func newXrefsCmd() *ffcli.Command {
	cmd := xrefsCmd{}
	set := flag.NewFlagSet("xrefs", flag.ExitOnError)
	cmd.register(set)
	set.StringVar(&cmd.addr, "addr", "", "file offset to list references to (omit to dump every edge)")
	set.BoolVar(&cmd.jsonOut, "json", false, "output as JSON")
	return &ffcli.Command{
		Name:       "xrefs",
		ShortUsage: "xrefs [-addr <offset>] [flags]",
		ShortHelp:  "List rel32 call/jmp references to an address, or all of them",
		FlagSet:    set,
		Options:    []ff.Option{ff.WithEnvVarPrefix(envPrefix)},
		Exec:       cmd.exec,
	}
}

func (cmd *xrefsCmd) exec(_ context.Context, _ []string) error {
	s, err := cmd.open(false)
	if err != nil {
		return err
	}

	if cmd.addr == "" {
		edges, err := s.idx.Edges()
		if err != nil {
			return err
		}
		if cmd.jsonOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(edges)
		}
		for _, e := range edges {
			fmt.Printf("0x%08X -> 0x%08X  %s\n", e.Source, e.Destination, e.Kind)
		}
		return nil
	}

	addr, err := parseAddr(cmd.addr)
	if err != nil {
		return err
	}
	srcs, err := s.idx.To(addr)
	if err != nil {
		return err
	}
	if cmd.jsonOut {
		return json.NewEncoder(os.Stdout).Encode(srcs)
	}
	fmt.Printf("%s %d references to 0x%X\n", color.CyanString("[-]"), len(srcs), addr)
	for _, src := range srcs {
		start := s.img.FunctionStart(src, s.layout.FunctionWindow)
		fmt.Printf("    0x%08X  in %s\n", src, callgraph.FuncName(start))
	}
	return nil
}
