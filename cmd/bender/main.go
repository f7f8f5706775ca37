// Command bender drives dependency resolution, checkout and source
// listing for hardware description projects. Subcommand dispatch uses
// a small command interface registered in a fixed table, with flags
// parsed per-subcommand.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	bender "github.com/pulp-platform/bender-sub000"
	blog "github.com/pulp-platform/bender-sub000/log"
)

type command interface {
	Name() string
	Args() string
	ShortHelp() string
	LongHelp() string
	Register(*flag.FlagSet)
	Run(ctx *runCtx, args []string) error
}

// runCtx is passed to every subcommand: the working directory and
// output streams, plus the verbosity flag parsed from the -v flag every
// subcommand accepts.
type runCtx struct {
	WorkingDir string
	Out, Err   *log.Logger
	Verbose    bool
	LocalOnly  bool
}

func main() {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to get working directory:", err)
		os.Exit(1)
	}
	os.Exit(run(os.Args, wd, os.Stdout, os.Stderr))
}

func run(args []string, wd string, stdout, stderr io.Writer) int {
	commands := []command{
		&updateCommand{},
		&checkoutCommand{},
		&pathCommand{},
		&configCommand{},
		&sourcesCommand{},
	}

	outLogger := log.New(stdout, "", 0)
	errLogger := log.New(stderr, "", 0)

	usage := func() {
		errLogger.Println("bender manages dependencies and build scripts for hardware projects")
		errLogger.Println()
		errLogger.Println("Usage: bender <command>")
		errLogger.Println()
		errLogger.Println("Commands:")
		w := tabwriter.NewWriter(stderr, 0, 4, 2, ' ', 0)
		for _, cmd := range commands {
			fmt.Fprintf(w, "\t%s\t%s\n", cmd.Name(), cmd.ShortHelp())
		}
		w.Flush()
		errLogger.Println()
		errLogger.Println(`Use "bender help <command>" for more information about a command.`)
	}

	cmdName, printHelp, exit := parseArgs(args)
	if exit {
		usage()
		return 1
	}

	for _, cmd := range commands {
		if cmd.Name() != cmdName {
			continue
		}
		fs := flag.NewFlagSet(cmdName, flag.ContinueOnError)
		fs.SetOutput(stderr)
		verbose := fs.Bool("v", false, "enable verbose logging")
		localOnly := fs.Bool("local", false, "refuse any network operation")
		cmd.Register(fs)
		resetUsage(errLogger, fs, cmdName, cmd.Args(), cmd.LongHelp())

		if printHelp {
			fs.Usage()
			return 1
		}
		if err := fs.Parse(args[2:]); err != nil {
			return 1
		}
		blog.SetDebug(*verbose)

		rc := &runCtx{WorkingDir: wd, Out: outLogger, Err: errLogger, Verbose: *verbose, LocalOnly: *localOnly}
		if err := cmd.Run(rc, fs.Args()); err != nil {
			errLogger.Printf("error: %v\n", err)
			return 1
		}
		return 0
	}

	errLogger.Printf("bender: %s: no such command\n", cmdName)
	usage()
	return 1
}

func resetUsage(logger *log.Logger, fs *flag.FlagSet, name, args, longHelp string) {
	var hasFlags bool
	var flagBlock bytes.Buffer
	flagWriter := tabwriter.NewWriter(&flagBlock, 0, 4, 2, ' ', 0)
	fs.VisitAll(func(f *flag.Flag) {
		hasFlags = true
		def := f.DefValue
		if def == "" {
			def = "<none>"
		}
		fmt.Fprintf(flagWriter, "\t-%s\t%s (default: %s)\n", f.Name, f.Usage, def)
	})
	flagWriter.Flush()
	fs.Usage = func() {
		logger.Printf("Usage: bender %s %s\n", name, args)
		logger.Println()
		logger.Println(strings.TrimSpace(longHelp))
		logger.Println()
		if hasFlags {
			logger.Println("Flags:")
			logger.Println()
			logger.Println(flagBlock.String())
		}
	}
}

func parseArgs(args []string) (cmdName string, printCmdUsage bool, exit bool) {
	isHelp := func() bool {
		return strings.Contains(strings.ToLower(args[1]), "help") || strings.ToLower(args[1]) == "-h"
	}
	switch len(args) {
	case 0, 1:
		exit = true
	case 2:
		if isHelp() {
			exit = true
		}
		cmdName = args[1]
	default:
		if isHelp() {
			cmdName = args[2]
			printCmdUsage = true
		} else {
			cmdName = args[1]
		}
	}
	return cmdName, printCmdUsage, exit
}

// openSession opens the bender session at ctx's working directory with
// the flags common to every subcommand applied.
func openSession(ctx *runCtx) (*bender.Session, error) {
	return bender.Open(ctx.WorkingDir, bender.Options{LocalOnly: ctx.LocalOnly})
}
