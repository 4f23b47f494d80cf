package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"opfinder/internal/correlate"
	"opfinder/internal/result"
)

// reporter prints human-readable progress lines.
type reporter struct {
	w io.Writer
}

func (r reporter) report(rep correlate.Report) {
	if rep.Table {
		fmt.Fprintf(r.w, "\n%s Finding opcodes from %s\n", color.CyanString("[-]"), rep.Name)
	}
	if !rep.Table && len(rep.Findings) == 0 && rep.Matches > 0 {
		fmt.Fprintf(r.w, "%s %s: %d matches\n", color.GreenString("[+]"), rep.Name, rep.Matches)
	}
	for _, fd := range rep.Findings {
		r.finding(fd)
	}
	if rep.Halted {
		fmt.Fprintf(r.w, "%s stopped processing %s\n", color.RedString("[x]"), rep.Name)
	}
}

func (r reporter) finding(fd correlate.Finding) {
	switch {
	case !fd.Found:
		fmt.Fprintf(r.w, "%s Failed to find %s: %s\n", color.RedString("[x]"), fd.Name, fd.Reason)
	case fd.Ambiguous:
		fmt.Fprintf(r.w, "%s Possible opcodes for %s: %s\n", color.GreenString("[+]"), fd.Name, fd.Value)
	default:
		fmt.Fprintf(r.w, "%s %s: %s\n", color.GreenString("[+]"), fd.Name, fd.Value)
	}
}

func (r reporter) summary(res *result.Map, out string, elapsed time.Duration) {
	fmt.Fprintf(r.w, "\n%s %d/%d found, written to %s in %s\n",
		color.CyanString("[-]"), res.Found(), res.Len(), out, elapsed.Round(time.Millisecond))
}
