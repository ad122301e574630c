package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ldi/timebox/internal/selection"
	"github.com/ldi/timebox/pkg/models"
)

// Print writes run progress as plain lines to w until the message stream
// closes. Countdown ticks are printed when verbose is set.
func Print(w io.Writer, msgs <-chan tea.Msg, verbose bool) {
	for msg := range msgs {
		switch msg := msg.(type) {
		case WaveStartedMsg:
			fmt.Fprintf(w, "--- Wave %d/%d: %d task(s) ---\n", msg.Wave, msg.TotalWaves, len(msg.TaskIDs))
		case TaskStartedMsg:
			fmt.Fprintf(w, "[Slot %d] Executing: %s | Priority: %s | Duration: %d seconds\n",
				msg.Slot, msg.Task.Description, msg.Task.Priority, msg.Task.Duration)
		case TickMsg:
			if verbose {
				fmt.Fprintf(w, "[Slot %d] Time remaining: %d seconds\n", msg.Slot, msg.Remaining)
			}
		case TaskCompletedMsg:
			if msg.Success {
				fmt.Fprintf(w, "[Slot %d] Task %d completed: %s\n", msg.Slot, msg.Task.ID, msg.Task.Description)
			} else {
				fmt.Fprintf(w, "[Slot %d] Task %d stopped: %s\n", msg.Slot, msg.Task.ID, msg.Task.Description)
			}
		case WaveFinishedMsg:
			fmt.Fprintf(w, "--- Wave %d/%d finished: %d completed ---\n", msg.Wave, msg.TotalWaves, msg.Completed)
		}
	}
}

// RunPlain executes the selection printing progress lines to w instead of
// drawing a full-screen view.
func RunPlain(ctx context.Context, orchestrator *Orchestrator, sel selection.Selection, w io.Writer, verbose bool) (*models.Run, error) {
	msgs := orchestrator.Messages()
	printed := make(chan struct{})

	go func() {
		defer close(printed)
		Print(w, msgs, verbose)
	}()

	run, err := orchestrator.RunConcurrent(ctx, sel)
	if errors.Is(err, ErrAlreadyStarted) {
		return nil, err
	}
	<-printed
	return run, err
}

// Summary formats the end-of-run report.
func Summary(run *models.Run) string {
	if run == nil {
		return ""
	}
	s := fmt.Sprintf("%d of %d task(s) completed in %d wave(s), %.1f seconds.",
		run.Completed, run.Selected, run.Waves, run.Elapsed.Seconds())
	if run.Interrupted {
		s += fmt.Sprintf(" Run stopped early: %d interrupted, %d not started.", run.Cancelled, run.Skipped)
	}
	if run.Failed > 0 {
		s += fmt.Sprintf(" %d task(s) could not be marked completed.", run.Failed)
	}
	return s
}
