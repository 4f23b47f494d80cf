package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/fatih/color"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"opfinder/internal/config"
	"opfinder/internal/correlate"
	"opfinder/internal/result"
	"opfinder/internal/sigscan"
)

type scanCmd struct {
	imageFlags
	sig    string
	name   string
	offset int
	read   string
	limit  int
}

func newScanCmd() *ffcli.Command {
	cmd := scanCmd{}
	set := flag.NewFlagSet("scan", flag.ExitOnError)
	cmd.register(set)
	set.StringVar(&cmd.sig, "sig", "", "signature, e.g. \"48 8B ?? ?? 05\"")
	set.StringVar(&cmd.name, "name", "", "take the signature from this configured probe")
	set.IntVar(&cmd.offset, "offset", 0, "read offset from each match")
	set.StringVar(&cmd.read, "read", "None", "read type: None, Uint8, Uint16, Uint32, Uint64")
	set.IntVar(&cmd.limit, "limit", 32, "maximum matches to print (0 = all)")
	return &ffcli.Command{
		Name:       "scan",
		ShortUsage: "scan -sig <pattern> | -name <probe> [flags]",
		ShortHelp:  "Print the matches of a signature, optionally reading a value at each",
		FlagSet:    set,
		Options:    []ff.Option{ff.WithEnvVarPrefix(envPrefix)},
		Exec:       cmd.exec,
	}
}

func (cmd *scanCmd) exec(_ context.Context, _ []string) error {
	s, err := cmd.open(cmd.name != "")
	if err != nil {
		return err
	}

	probe := config.Signature{Signature: cmd.sig, Offset: cmd.offset}
	if err := probe.ReadType.UnmarshalJSON([]byte(fmt.Sprintf("%q", cmd.read))); err != nil {
		return err
	}
	if cmd.name != "" {
		sig, ok := s.cfg.Find(cmd.name)
		if !ok {
			return fmt.Errorf("no probe named %q in %s", cmd.name, cmd.config)
		}
		probe = *sig
	}
	if probe.Signature == "" {
		return errors.New("-sig or -name is required")
	}

	p, err := sigscan.Parse(probe.Signature)
	if err != nil {
		return err
	}
	matches := sigscan.Find(s.img.Bytes(), p)
	f := s.finder()
	fmt.Printf("%s %s: %d matches\n", color.CyanString("[-]"), p, len(matches))

	for i, m := range matches {
		if cmd.limit > 0 && i >= cmd.limit {
			fmt.Printf("    ... %d more\n", len(matches)-i)
			break
		}
		line := fmt.Sprintf("    0x%08X", m)
		if sec, ok := s.img.SectionAt(m); ok {
			line += fmt.Sprintf("  %-6s", sec.Name)
		}
		if probe.ReadType != config.ReadNone {
			line += "  " + readAt(f, int64(m)+int64(probe.Offset), &probe)
		}
		fmt.Println(line)
	}
	return nil
}

func readAt(f *correlate.Finder, addr int64, sig *config.Signature) string {
	v, err := f.Read(addr, sig.ReadType)
	if err != nil {
		return color.RedString(err.Error())
	}
	out := fmt.Sprintf("[%+d] %s", sig.Offset, result.Hex(v))
	if suffix := sig.Suffix(v); suffix != "" {
		out += fmt.Sprintf(" (%s%s)", sig.Name, suffix)
	}
	return out
}
