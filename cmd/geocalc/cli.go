package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
)

// ExitError carries the process exit code for a failed invocation.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// options are the parsed command-line arguments.
type options struct {
	PlanPath    string
	UpdatePath  string
	ConfigPath  string
	JournalPath string
	TUI         bool
	InitConfig  bool
}

// parseArgs processes command-line arguments. It reports whether the program
// should exit cleanly (help, no plan given) or an *ExitError.
func parseArgs(args []string, output io.Writer) (*options, bool, error) {
	fs := flag.NewFlagSet("geocalc", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprint(output, `
geocalc - schedules the calculation tasks of a geometry problem across agents.

Usage:
  geocalc [options] PLAN
  geocalc -init-config [-config FILE]

Arguments:
  PLAN
    Planner output as .json or .yaml: problem, requires_calculation and suggested_tasks.

Options:
`)
		fs.PrintDefaults()
	}

	opts := &options{}
	fs.StringVar(&opts.ConfigPath, "config", "", "Project config file (default .geocalc/config.json).")
	fs.StringVar(&opts.JournalPath, "journal", "", "Record the run in this SQLite file (overrides journal.path).")
	fs.StringVar(&opts.UpdatePath, "update", "", "Task update (.json or .yaml) applied after the plan, before running.")
	fs.BoolVar(&opts.TUI, "tui", false, "Show progress in a terminal UI.")
	fs.BoolVar(&opts.InitConfig, "init-config", false, "Write the default config to -config (or .geocalc/config.json) and exit.")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	if opts.InitConfig {
		if fs.NArg() > 0 {
			return nil, false, &ExitError{Code: 2, Message: "-init-config takes no plan file"}
		}
		return opts, false, nil
	}

	switch fs.NArg() {
	case 0:
		fs.Usage()
		return nil, true, nil
	case 1:
		opts.PlanPath = fs.Arg(0)
	default:
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("expected one plan file, got %d arguments", fs.NArg())}
	}
	return opts, false, nil
}
