package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"
)

// envPrefix lets every flag be set from the environment, e.g.
// OPFINDER_CONFIG=/path/config.json.
const envPrefix = "OPFINDER"

func main() {
	log.SetReportCaller(false)
	log.SetFormatter(&log.TextFormatter{})
	log.SetOutput(os.Stderr)

	if err := run(context.Background(), os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("error:"), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	return newRootCmd().ParseAndRun(ctx, args)
}

// newRootCmd builds the command tree. Without a subcommand the root behaves
// like find.
func newRootCmd() *ffcli.Command {
	root := newFindCmd("opfinder")
	root.ShortUsage = "opfinder [flags] | opfinder <subcommand> [flags]"
	root.ShortHelp = "Recover network opcodes from a stripped PE executable"
	root.LongHelp = `Without a subcommand, opfinder runs every signature in the configuration
against the executable and writes the name to opcode mapping as JSON.`
	root.Subcommands = []*ffcli.Command{
		newFindCmd("find"),
		newSectionsCmd(),
		newScanCmd(),
		newXrefsCmd(),
		newWalkCmd(),
		newTableCmd(),
		newGraphCmd(),
	}
	return root
}

func setVerbose(v bool) {
	if v {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}
