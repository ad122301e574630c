package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ldi/timebox/internal/orchestrator"
	"github.com/ldi/timebox/internal/selection"
	"github.com/ldi/timebox/internal/store"
	"github.com/ldi/timebox/internal/ui"
	"github.com/ldi/timebox/internal/worker"
	"github.com/ldi/timebox/pkg/models"
)

type runOptions struct {
	noTUI bool
	yes   bool
}

// gate waits for Enter unless the run was pre-confirmed. It reports false
// when the user backed out.
func (a *app) gate(summary string, opts runOptions) (bool, error) {
	fmt.Fprintln(a.out, summary)
	if opts.yes || !a.cfg.ConfirmStart {
		return true, nil
	}
	if err := waitForEnter(summary); err != nil {
		if errors.Is(err, ui.ErrCancelled) {
			fmt.Fprintln(a.out, "Run cancelled.")
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (a *app) runRun(ctx context.Context, args []string) error {
	fs := a.newFlagSet("run")
	sel := fs.String("select", "", `Tasks to run: "all" or ids separated by commas or spaces`)
	workers := fs.Int("workers", a.cfg.MaxConcurrency, "Tasks per wave (1-10)")
	var opts runOptions
	fs.BoolVar(&opts.noTUI, "no-tui", false, "Print progress lines instead of the terminal UI")
	fs.BoolVar(&opts.yes, "yes", false, "Start without waiting for Enter")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sel == "" && fs.NArg() > 0 {
		*sel = fs.Arg(0)
	}
	if *workers < 1 || *workers > orchestrator.MaxConcurrency {
		return fmt.Errorf("%w: -workers must be between 1 and %d, got %d",
			store.ErrInvalidInput, orchestrator.MaxConcurrency, *workers)
	}
	return a.runConcurrent(ctx, *sel, *workers, opts)
}

func (a *app) runConcurrent(ctx context.Context, raw string, workers int, opts runOptions) error {
	sel, err := selection.Resolve(a.store.All(), raw)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.NewOrchestrator(a.store, a.db, workers, a.logger)
	if workload != nil {
		orch.SetWorkFunc(workload)
	}

	k := min(sel.Count(), orch.MaxConcurrency())
	waves := (sel.Count() + k - 1) / k
	summary := fmt.Sprintf("Selected %d task(s), %d second(s) of work, up to %d at a time in %d wave(s).",
		sel.Count(), sel.TotalDuration(), k, waves)
	ok, err := a.gate(summary, opts)
	if err != nil || !ok {
		return err
	}

	var run *models.Run
	if opts.noTUI {
		run, err = orchestrator.RunPlain(ctx, orch, sel, a.out, a.verbose)
	} else {
		run, err = orchestrator.Run(ctx, orch, sel)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, orchestrator.Summary(run))
	return nil
}

func (a *app) newWorker(opts runOptions) *worker.Worker {
	w := worker.NewWorker(a.store, a.db, a.logger)
	w.NoTUI = opts.noTUI
	w.Out = a.out
	if workload != nil {
		w.SetWorkFunc(workload)
	}
	return w
}

func (a *app) runRunAll(ctx context.Context, args []string) error {
	fs := a.newFlagSet("run-all")
	var opts runOptions
	fs.BoolVar(&opts.noTUI, "no-tui", false, "Print progress lines instead of the terminal UI")
	fs.BoolVar(&opts.yes, "yes", false, "Start without waiting for Enter")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.runSequential(ctx, opts)
}

func (a *app) runSequential(ctx context.Context, opts runOptions) error {
	pending := a.store.Pending()
	if len(pending) == 0 {
		fmt.Fprintln(a.out, "No pending tasks.")
		return nil
	}
	total := 0
	for _, t := range pending {
		total += t.Duration
	}
	summary := fmt.Sprintf("Running %d pending task(s) by priority, then duration. Total estimated time: %d seconds.", len(pending), total)
	ok, err := a.gate(summary, opts)
	if err != nil || !ok {
		return err
	}

	run, err := a.newWorker(opts).RunAll(ctx)
	if errors.Is(err, worker.ErrNoPendingTasks) {
		fmt.Fprintln(a.out, "No pending tasks.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, orchestrator.Summary(run))
	return nil
}

func (a *app) runRunOne(ctx context.Context, args []string) error {
	raw, rest := splitID(args)
	fs := a.newFlagSet("run-one")
	var opts runOptions
	fs.BoolVar(&opts.noTUI, "no-tui", false, "Print progress lines instead of the terminal UI")
	fs.BoolVar(&opts.yes, "yes", false, "Start without waiting for Enter")
	if err := fs.Parse(rest); err != nil {
		return err
	}
	if raw == "" {
		raw = fs.Arg(0)
	}
	id, err := parseID(raw)
	if err != nil {
		return err
	}
	return a.runSingle(ctx, id, opts)
}

func (a *app) runSingle(ctx context.Context, id int, opts runOptions) error {
	t, ok := a.store.Find(id)
	if !ok {
		return fmt.Errorf("task %d: %w", id, store.ErrNotFound)
	}
	if t.Completed {
		return fmt.Errorf("task %d: %w", id, store.ErrAlreadyCompleted)
	}

	summary := fmt.Sprintf("Running task %d: %s (%d seconds).", t.ID, t.Description, t.Duration)
	ok, err := a.gate(summary, opts)
	if err != nil || !ok {
		return err
	}

	run, err := a.newWorker(opts).RunOne(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, orchestrator.Summary(run))
	return nil
}
