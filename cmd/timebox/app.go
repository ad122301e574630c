package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ldi/timebox/internal/config"
	"github.com/ldi/timebox/internal/countdown"
	"github.com/ldi/timebox/internal/db"
	"github.com/ldi/timebox/internal/store"
	"github.com/ldi/timebox/internal/ui"
	"github.com/ldi/timebox/pkg/models"
)

// Replaced in tests.
var (
	workload     func(ctx context.Context, task models.Task, onTick countdown.TickFunc) error
	runMenu      = func() (string, error) { return ui.RunMenu() }
	prompt       = func(label, initial string, validate func(string) error) (string, error) { return ui.Prompt(label, initial, validate) }
	confirm      = func(question string) (bool, error) { return ui.Confirm(question) }
	waitForEnter = func(summary string) error { return ui.WaitForEnter(summary) }
)

// app is the state shared by every command: the loaded collection and the
// database it is mirrored to.
type app struct {
	cfg     *config.Config
	db      *db.DB
	store   *store.Store
	logger  *slog.Logger
	out     io.Writer
	verbose bool
}

func openApp(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) (*app, error) {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := database.Init(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if cfg.AutoSnapshot {
		database.EnableAutoSnapshot(cfg.SnapshotPath)
	}

	a := &app{
		cfg:    cfg,
		db:     database,
		store:  store.New(cfg.Capacity),
		logger: logger,
		out:    out,
	}
	if err := a.reload(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return a, nil
}

// reload replaces the in-memory collection with what the database holds.
func (a *app) reload(ctx context.Context) error {
	tasks, nextID, found, err := a.db.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}
	if !found {
		a.store.Restore(nil, 1)
		return nil
	}
	if dropped := a.store.Restore(tasks, nextID); dropped > 0 {
		fmt.Fprintf(a.out, "Warning: %d task(s) exceed the capacity of %d and were not loaded.\n", dropped, a.store.Capacity())
		a.logger.Warn("tasks truncated on load", "dropped", dropped, "capacity", a.store.Capacity())
	}
	a.logger.Debug("tasks loaded", "count", a.store.Len(), "next_id", a.store.NextID())
	return nil
}

func (a *app) save(ctx context.Context) error {
	tasks, nextID := a.store.Snapshot()
	if err := a.db.Save(ctx, tasks, nextID); err != nil {
		return fmt.Errorf("failed to save tasks: %w", err)
	}
	return nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "add":
		return a.runAdd(ctx, args)
	case "list":
		return a.runList(args)
	case "show":
		return a.runShow(args)
	case "search":
		return a.runSearch(args)
	case "delete":
		return a.runDelete(ctx, args)
	case "edit":
		return a.runEdit(ctx, args)
	case "sort":
		return a.runSort(ctx, args)
	case "run":
		return a.runRun(ctx, args)
	case "run-all":
		return a.runRunAll(ctx, args)
	case "run-one":
		return a.runRunOne(ctx, args)
	case "runs":
		return a.runRuns(ctx, args)
	case "status":
		return a.runStatus(args)
	case "snapshot":
		return a.runSnapshot(ctx, args)
	case "mcp":
		return a.runMCP(ctx, args)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// splitID takes a leading task id off args so flags may follow it.
func splitID(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid task id %q", store.ErrInvalidInput, raw)
	}
	return id, nil
}

func validateID(s string) error {
	_, err := parseID(s)
	return err
}

func validateDescription(s string) error {
	if s == "" {
		return fmt.Errorf("description cannot be empty")
	}
	if len([]rune(s)) > models.MaxDescriptionLength {
		return fmt.Errorf("description is longer than %d characters", models.MaxDescriptionLength)
	}
	return nil
}

func validatePriority(s string) error {
	_, err := models.ParsePriority(s)
	return err
}

func validateDuration(s string) error {
	d, err := strconv.Atoi(s)
	if err != nil || d < models.MinDuration || d > models.MaxDuration {
		return fmt.Errorf("duration must be between %d and %d seconds", models.MinDuration, models.MaxDuration)
	}
	return nil
}
