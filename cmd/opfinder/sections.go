package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
)

type sectionsCmd struct {
	imageFlags
}

func newSectionsCmd() *ffcli.Command {
	cmd := sectionsCmd{}
	set := flag.NewFlagSet("sections", flag.ExitOnError)
	cmd.register(set)
	return &ffcli.Command{
		Name:       "sections",
		ShortUsage: "sections [flags]",
		ShortHelp:  "Print the located sections and the derived layout",
		FlagSet:    set,
		Options:    []ff.Option{ff.WithEnvVarPrefix(envPrefix)},
		Exec:       cmd.exec,
	}
}

func (cmd *sectionsCmd) exec(_ context.Context, _ []string) error {
	s, err := cmd.open(false)
	if err != nil {
		return err
	}

	fmt.Printf("image: %s, trap byte 0x%02X\n", humanize.IBytes(uint64(s.img.Len())), s.img.Trap())
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Section", "Offset", "Size", "VA", "VA - Offset"})
	for _, sec := range s.img.Sections() {
		table.Append([]string{
			sec.Name,
			fmt.Sprintf("0x%X", sec.Offset),
			humanize.IBytes(uint64(sec.Size)),
			fmt.Sprintf("0x%X", sec.VirtualAddress),
			fmt.Sprintf("0x%X", sec.Delta()),
		})
	}
	table.Render()

	fmt.Printf("block size 0x%X, deltas %v, search window 0x%X, function window 0x%X\n",
		s.layout.BlockSize, s.layout.Deltas, s.layout.SearchWindow, s.layout.FunctionWindow)
	return nil
}
