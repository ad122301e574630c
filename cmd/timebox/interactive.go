package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ldi/timebox/internal/orchestrator"
	"github.com/ldi/timebox/internal/selection"
	"github.com/ldi/timebox/internal/store"
	"github.com/ldi/timebox/internal/ui"
	"github.com/ldi/timebox/internal/worker"
	"github.com/ldi/timebox/pkg/models"
)

// menuRunOptions are the run options used from the menu. Tests switch the
// terminal UI off.
var menuRunOptions = runOptions{}

// interactive loops the menu until the user quits. Errors from a single
// action are reported and the loop continues; an aborted run ends it.
func (a *app) interactive(ctx context.Context) error {
	for {
		choice, err := runMenu()
		if err != nil {
			return fmt.Errorf("menu failed: %w", err)
		}
		if choice == ui.QuitChoice {
			fmt.Fprintln(a.out, "Goodbye.")
			return nil
		}

		err = a.menuAction(ctx, choice)
		switch {
		case err == nil:
		case errors.Is(err, worker.ErrInterrupted):
			return err
		case errors.Is(err, ui.ErrCancelled):
			fmt.Fprintln(a.out, "Cancelled.")
		default:
			a.logger.Warn("menu action failed", "action", choice, "error", err)
			fmt.Fprintf(a.out, "Error: %s\n", describe(err))
		}
	}
}

// describe turns the sentinel errors into the messages shown in the menu.
func describe(err error) string {
	switch {
	case errors.Is(err, store.ErrCapacityExceeded):
		return "Task limit reached. Delete a task before adding another."
	case errors.Is(err, store.ErrNotFound):
		return "Task not found."
	case errors.Is(err, store.ErrAlreadyCompleted):
		return "Task is already marked as completed."
	case errors.Is(err, selection.ErrEmptySelection):
		return "No valid pending tasks selected."
	}
	return err.Error()
}

func (a *app) promptID(label string) (int, error) {
	raw, err := prompt(label, "", validateID)
	if err != nil {
		return 0, err
	}
	return parseID(raw)
}

func (a *app) menuAction(ctx context.Context, choice string) error {
	switch choice {
	case "add":
		return a.promptAdd(ctx)
	case "list":
		return a.runList(nil)
	case "show":
		id, err := a.promptID("Task id")
		if err != nil {
			return err
		}
		return a.showTask(id)
	case "search":
		return a.promptSearch()
	case "delete":
		id, err := a.promptID("Task id to delete")
		if err != nil {
			return err
		}
		return a.deleteTask(ctx, id, false)
	case "edit":
		return a.promptEdit(ctx)
	case "sort":
		raw, err := prompt("Sort by: 1) priority 2) duration 3) created", "1", func(s string) error {
			_, err := store.ParseSortKey(s)
			return err
		})
		if err != nil {
			return err
		}
		key, _ := store.ParseSortKey(raw)
		return a.sortTasks(ctx, key)
	case "run":
		return a.promptRun(ctx)
	case "run-all":
		return a.runSequential(ctx, menuRunOptions)
	case "run-one":
		id, err := a.promptID("Task id to run")
		if err != nil {
			return err
		}
		return a.runSingle(ctx, id, menuRunOptions)
	case "runs":
		return a.runRuns(ctx, nil)
	case "status":
		return a.runStatus(nil)
	case "snapshot":
		return a.runSnapshot(ctx, []string{"export"})
	default:
		return fmt.Errorf("unknown command: %s", choice)
	}
}

func (a *app) promptAdd(ctx context.Context) error {
	if a.store.Len() >= a.store.Capacity() {
		return store.ErrCapacityExceeded
	}

	desc, err := prompt("Description", "", validateDescription)
	if err != nil {
		return err
	}
	if existing, ok := a.store.FindByDescription(desc); ok {
		add, err := confirm(fmt.Sprintf("Task %d already has this description. Add anyway?", existing.ID))
		if err != nil {
			return err
		}
		if !add {
			return ui.ErrCancelled
		}
	}

	rawPriority, err := prompt("Priority: 1) high 2) medium 3) low", "2", validatePriority)
	if err != nil {
		return err
	}
	rawDuration, err := prompt("Duration in seconds", "", validateDuration)
	if err != nil {
		return err
	}

	p, _ := models.ParsePriority(rawPriority)
	d, _ := strconv.Atoi(rawDuration)
	return a.addTask(ctx, models.Task{Description: desc, Priority: p, Duration: d})
}

func (a *app) promptSearch() error {
	mode, err := prompt("Search by: 1) keyword 2) priority", "1", func(s string) error {
		if s != "1" && s != "2" {
			return fmt.Errorf("choose 1 or 2")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if mode == "2" {
		p, err := prompt("Priority: 1) high 2) medium 3) low", "", validatePriority)
		if err != nil {
			return err
		}
		return a.search("", p)
	}
	keyword, err := prompt("Keyword", "", func(s string) error {
		if s == "" {
			return fmt.Errorf("keyword cannot be empty")
		}
		return nil
	})
	if err != nil {
		return err
	}
	return a.search(keyword, "")
}

func (a *app) promptEdit(ctx context.Context) error {
	id, err := a.promptID("Task id to edit")
	if err != nil {
		return err
	}
	t, ok := a.store.Find(id)
	if !ok {
		return fmt.Errorf("task %d: %w", id, store.ErrNotFound)
	}

	desc, err := prompt("Description", t.Description, validateDescription)
	if err != nil {
		return err
	}
	rawPriority, err := prompt("Priority: 1) high 2) medium 3) low", strings.ToLower(t.Priority.String()), validatePriority)
	if err != nil {
		return err
	}
	rawDuration, err := prompt("Duration in seconds", strconv.Itoa(t.Duration), validateDuration)
	if err != nil {
		return err
	}
	toggle, err := confirm(fmt.Sprintf("Task is %s. Toggle status?", strings.ToLower(t.StatusString())))
	if err != nil {
		return err
	}

	t.Description = desc
	t.Priority, _ = models.ParsePriority(rawPriority)
	t.Duration, _ = strconv.Atoi(rawDuration)
	if toggle {
		t.Completed = !t.Completed
	}
	return a.updateTask(ctx, t)
}

func (a *app) promptRun(ctx context.Context) error {
	if err := a.runList([]string{"-status", "pending"}); err != nil {
		return err
	}
	raw, err := prompt(`Tasks to run ("all" or ids separated by commas)`, selection.AllToken, nil)
	if err != nil {
		return err
	}
	rawWorkers, err := prompt(fmt.Sprintf("Tasks per wave (1-%d)", orchestrator.MaxConcurrency), strconv.Itoa(a.cfg.MaxConcurrency), func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > orchestrator.MaxConcurrency {
			return fmt.Errorf("enter a number between 1 and %d", orchestrator.MaxConcurrency)
		}
		return nil
	})
	if err != nil {
		return err
	}
	workers, _ := strconv.Atoi(rawWorkers)
	return a.runConcurrent(ctx, raw, workers, menuRunOptions)
}
