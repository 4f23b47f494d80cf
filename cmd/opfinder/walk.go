package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/fatih/color"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
)

type walkCmd struct {
	imageFlags
	addr string
	hops int
}

func newWalkCmd() *ffcli.Command {
	cmd := walkCmd{}
	set := flag.NewFlagSet("walk", flag.ExitOnError)
	cmd.register(set)
	set.StringVar(&cmd.addr, "addr", "", "file offset to start from")
	set.IntVar(&cmd.hops, "hops", 1, "number of first-caller hops")
	return &ffcli.Command{
		Name:       "walk",
		ShortUsage: "walk -addr <offset> [-hops n] [flags]",
		ShortHelp:  "Follow first callers upward, printing each hop",
		LongHelp: `Each hop is printed as "i: 0x<address+BlockSize> / 0x<address>", the
first form matching the addresses a disassembler shows for the loaded image.`,
		FlagSet: set,
		Options: []ff.Option{ff.WithEnvVarPrefix(envPrefix)},
		Exec:    cmd.exec,
	}
}

func (cmd *walkCmd) exec(_ context.Context, _ []string) error {
	s, err := cmd.open(false)
	if err != nil {
		return err
	}
	addr, err := parseAddr(cmd.addr)
	if err != nil {
		return err
	}

	trail, err := s.idx.Walk(addr, cmd.hops)
	for i, a := range trail {
		fmt.Printf("%d: 0x%X / 0x%X\n", i, int64(a)+s.layout.BlockSize, a)
	}
	if err != nil {
		fmt.Printf("%s %v\n", color.RedString("[x]"), err)
	}
	return nil
}
