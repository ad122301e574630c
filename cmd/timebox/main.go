package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ldi/timebox/internal/config"
	"github.com/ldi/timebox/internal/logging"
	"github.com/ldi/timebox/internal/worker"
)

const usageText = `Usage: timebox [flags] <command> [arguments]

Running ` + "`timebox`" + ` with no command opens the interactive menu.

Commands:
  init                        Create the data directory, config and database
  add                         Add a task (-desc, -priority, -duration, -force)
  list                        List tasks (-status pending|completed)
  show <id>                   Show one task
  search                      Search tasks (-keyword or -priority)
  delete <id>                 Delete a task (-yes skips the confirmation)
  edit <id>                   Edit a task (-desc, -priority, -duration, -toggle)
  sort                        Sort tasks in place (-by priority|duration|created)
  run                         Run selected tasks concurrently (-select, -workers, -no-tui, -yes)
  run-all                     Run every pending task in order (-no-tui, -yes)
  run-one <id>                Run a single task (-no-tui, -yes)
  runs                        Show run history (-limit)
  status                      Show a summary
  snapshot export|import [p]  Write or read the JSONL snapshot
  mcp                         Serve MCP tools over stdio

Flags:
`

// exitInterrupted is the conventional status for a run aborted with ctrl+c.
const exitInterrupted = 130

func main() {
	err := execute(os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
	case errors.Is(err, worker.ErrInterrupted):
		fmt.Fprintln(os.Stderr, "Interrupted. Nothing was saved for the current run.")
		os.Exit(exitInterrupted)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	dataDir      string
	dbPath       string
	snapshotPath string
	configPath   string
	verbose      bool
}

func execute(args []string, stdout, stderr io.Writer) error {
	var g globalFlags
	fs := flag.NewFlagSet("timebox", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.dataDir, "data-dir", "", "Directory holding the database, snapshot and logs (default .timebox)")
	fs.StringVar(&g.dbPath, "db-path", "", "Path to database file (default <data-dir>/timebox.db)")
	fs.StringVar(&g.snapshotPath, "snapshot-path", "", "Path to snapshot file (default <data-dir>/tasks.jsonl)")
	fs.StringVar(&g.configPath, "config", "", "Path to config file (default <data-dir>/config.yaml)")
	fs.BoolVar(&g.verbose, "verbose", false, "Enable debug logging")
	fs.Usage = func() {
		fmt.Fprint(stderr, usageText)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadFrom(g.dataDir, g.configPath)
	if err != nil {
		return err
	}
	if g.dbPath != "" {
		cfg.DBPath = g.dbPath
	}
	if g.snapshotPath != "" {
		cfg.SnapshotPath = g.snapshotPath
	}
	if g.verbose {
		cfg.LogLevel = "debug"
	}

	logFile, err := logging.OpenFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := logging.Setup(cfg.LogLevel, logFile)

	command := "menu"
	var rest []string
	if fs.NArg() > 0 {
		command = strings.ToLower(fs.Arg(0))
		rest = fs.Args()[1:]
	}
	logger.Debug("command started", "command", command, "data_dir", cfg.DataDir)

	if command == "init" {
		return runInit(cfg, stdout)
	}

	ctx := context.Background()
	a, err := openApp(ctx, cfg, stdout, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	a.verbose = g.verbose

	if command == "menu" {
		return a.interactive(ctx)
	}
	return a.dispatch(ctx, command, rest)
}
