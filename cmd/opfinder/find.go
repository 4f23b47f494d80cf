package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"opfinder/internal/correlate"
	"opfinder/internal/diag"
	"opfinder/internal/result"
)

type findCmd struct {
	imageFlags
	out     string
	workers int
}

func newFindCmd(name string) *ffcli.Command {
	cmd := findCmd{}
	set := flag.NewFlagSet(name, flag.ExitOnError)
	cmd.register(set)
	set.StringVar(&cmd.out, "out", result.DefaultPath, "output JSON file")
	set.IntVar(&cmd.workers, "workers", runtime.NumCPU(), "signatures probed in parallel")
	return &ffcli.Command{
		Name:       name,
		ShortUsage: name + " [flags]",
		ShortHelp:  "Run every configured signature and write the opcode mapping",
		FlagSet:    set,
		Options:    []ff.Option{ff.WithEnvVarPrefix(envPrefix)},
		Exec:       cmd.exec,
	}
}

func (cmd *findCmd) exec(ctx context.Context, _ []string) error {
	s, err := cmd.open(true)
	if err != nil {
		return err
	}

	start := time.Now()
	res, reports, err := correlate.Analyze(ctx, s.finder(), s.cfg, cmd.workers)
	if err != nil {
		return err
	}

	rp := reporter{w: os.Stdout}
	var diags diag.Diags
	for _, rep := range reports {
		rp.report(rep)
		diags.Merge(&rep.Diags)
	}
	if err := result.Write(cmd.out, res); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"signatures": len(s.cfg.Signatures),
		"names":      res.Len(),
		"diags":      diags.Len(),
		"not_found":  diags.Count(diag.NotFound),
		"ambiguous":  diags.Count(diag.Ambiguous),
		"bad_read":   diags.Count(diag.BadRead),
	}).Debug("run complete")
	rp.summary(res, cmd.out, time.Since(start))
	return nil
}
