package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/ldi/timebox/internal/countdown"
	"github.com/ldi/timebox/internal/logging"
	"github.com/ldi/timebox/internal/store"
	"github.com/ldi/timebox/internal/ui/components"
	"github.com/ldi/timebox/pkg/models"
)

var (
	// ErrNoPendingTasks is returned by RunAll when every task is completed.
	ErrNoPendingTasks = errors.New("no pending tasks")
	// ErrInterrupted is returned when the user aborts a run from the
	// terminal. Nothing is saved.
	ErrInterrupted = errors.New("run interrupted")
)

const saveTimeout = 5 * time.Second

// TaskStore defines the task collection operations required by the worker.
type TaskStore interface {
	SortForExecution()
	Pending() []models.Task
	Find(id int) (models.Task, bool)
	MarkCompleted(id int) error
	Snapshot() ([]models.Task, int)
}

// Gateway persists the collection after a run.
type Gateway interface {
	Save(ctx context.Context, tasks []models.Task, nextID int) error
	RecordRun(ctx context.Context, run *models.Run) error
}

// WorkFunc performs the timed work for one task.
type WorkFunc func(ctx context.Context, task models.Task, onTick countdown.TickFunc) error

// Worker executes tasks one at a time.
type Worker struct {
	store   TaskStore
	gateway Gateway
	logger  *slog.Logger
	work    WorkFunc
	now     func() time.Time
	program *tea.Program
	// abandoned is set when the user aborts the terminal UI. The loop still
	// running in the background then stops before its next task and never
	// saves.
	abandoned atomic.Bool

	// NoTUI prints progress lines to Out instead of drawing a terminal UI.
	NoTUI bool
	Out   io.Writer
}

// NewWorker creates a new Worker instance.
func NewWorker(store TaskStore, gateway Gateway, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = logging.Discard()
	}
	clock := countdown.RealClock{}
	return &Worker{
		store:   store,
		gateway: gateway,
		logger:  logger,
		work: func(ctx context.Context, task models.Task, onTick countdown.TickFunc) error {
			return countdown.Run(ctx, clock, task.Duration, onTick)
		},
		now: time.Now,
		Out: os.Stdout,
	}
}

// SetWorkFunc replaces the per-task workload.
func (w *Worker) SetWorkFunc(fn WorkFunc) {
	if fn != nil {
		w.work = fn
	}
}

// RunAll sorts the whole collection by priority then duration and runs
// every pending task to completion in that order. The run has no
// cooperative cancellation: ctx is only used for its values.
func (w *Worker) RunAll(ctx context.Context) (*models.Run, error) {
	if len(w.store.Pending()) == 0 {
		return nil, ErrNoPendingTasks
	}

	w.store.SortForExecution()
	pending := w.store.Pending()

	run := w.newRun(models.RunModeSequential, pending)
	return w.execute(context.WithoutCancel(ctx), run, pending)
}

// RunOne runs a single pending task by id.
func (w *Worker) RunOne(ctx context.Context, id int) (*models.Run, error) {
	task, ok := w.store.Find(id)
	if !ok {
		return nil, fmt.Errorf("task %d: %w", id, store.ErrNotFound)
	}
	if task.Completed {
		return nil, fmt.Errorf("task %d: %w", id, store.ErrAlreadyCompleted)
	}

	run := w.newRun(models.RunModeSingle, []models.Task{task})
	return w.execute(context.WithoutCancel(ctx), run, []models.Task{task})
}

func (w *Worker) newRun(mode models.RunMode, tasks []models.Task) *models.Run {
	ids := make([]int, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return &models.Run{
		ID:             uuid.New().String(),
		Mode:           mode,
		Selected:       len(tasks),
		MaxConcurrency: 1,
		TaskIDs:        ids,
	}
}

// execute runs the tasks either under the terminal UI or with plain output.
func (w *Worker) execute(ctx context.Context, run *models.Run, tasks []models.Task) (*models.Run, error) {
	if w.NoTUI {
		w.program = nil
		err := w.loop(ctx, run, tasks)
		return run, err
	}

	m := NewTUIModel(run.Mode, tasks)
	w.program = tea.NewProgram(m)

	done := make(chan struct{})
	var loopErr error

	go func() {
		defer close(done)
		loopErr = w.loop(ctx, run, tasks)
		if loopErr != nil {
			w.program.Send(loopErr)
		}
		w.program.Send(DoneMsg{Run: run})
	}()

	_, err := w.program.Run()
	if m.Interrupted() {
		w.abandoned.Store(true)
		w.logger.Warn("run interrupted", "run_id", run.ID)
		return nil, ErrInterrupted
	}
	<-done

	if loopErr != nil {
		return run, loopErr
	}
	return run, err
}

func (w *Worker) loop(ctx context.Context, run *models.Run, tasks []models.Task) error {
	logger := w.logger.With("run_id", run.ID, "mode", run.Mode)
	run.StartedAt = w.now()
	run.Waves = 1

	total := 0
	for _, t := range tasks {
		total += t.Duration
	}
	w.sendStatus(fmt.Sprintf("Running %d task(s), estimated total time: %d seconds", len(tasks), total))
	logger.Info("run started", "selected", len(tasks), "estimated_seconds", total)

	for i, task := range tasks {
		if w.abandoned.Load() {
			return ErrInterrupted
		}
		w.sendTask(i+1, len(tasks), task)
		logger.Debug("task started", "task_id", task.ID, "duration", task.Duration)

		err := w.work(ctx, task, func(remaining int) {
			w.sendTick(task, remaining)
		})
		if err != nil {
			logger.Error("task stopped", "task_id", task.ID, "error", err)
			w.sendResult(task, false)
			run.Cancelled++
			continue
		}

		if err := w.store.MarkCompleted(task.ID); err != nil {
			logger.Error("failed to mark task completed", "task_id", task.ID, "error", err)
			w.sendResult(task, false)
			w.sendOutput(fmt.Sprintf("Task %d could not be marked completed: %v", task.ID, err))
			run.Failed++
			continue
		}
		run.Completed++
		w.sendResult(task, true)
	}

	run.FinishedAt = w.now()
	run.Elapsed = run.FinishedAt.Sub(run.StartedAt)
	run.Interrupted = run.Cancelled > 0

	w.sendStatus(fmt.Sprintf("%d of %d task(s) completed in %.1f seconds", run.Completed, run.Selected, run.Elapsed.Seconds()))
	logger.Info("run finished", "completed", run.Completed, "failed", run.Failed, "elapsed", run.Elapsed)

	if w.abandoned.Load() {
		return ErrInterrupted
	}
	return w.persist(run)
}

func (w *Worker) persist(run *models.Run) error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	tasks, nextID := w.store.Snapshot()
	if err := w.gateway.Save(ctx, tasks, nextID); err != nil {
		return fmt.Errorf("failed to save tasks: %w", err)
	}
	if err := w.gateway.RecordRun(ctx, run); err != nil {
		w.logger.Warn("failed to record run", "run_id", run.ID, "error", err)
	}
	return nil
}

func (w *Worker) sendStatus(msg string) {
	if w.program != nil {
		w.program.Send(StatusMsg(msg))
	} else {
		fmt.Fprintf(w.Out, "--- %s ---\n", msg)
	}
}

func (w *Worker) sendOutput(line string) {
	if w.program != nil {
		w.program.Send(OutputMsg(line))
	} else {
		fmt.Fprintln(w.Out, line)
	}
}

func (w *Worker) sendTask(index, total int, task models.Task) {
	if w.program != nil {
		w.program.Send(TaskMsg{Index: index, Total: total, Task: task})
	} else {
		fmt.Fprintf(w.Out, "Executing task %d/%d: %s | Priority: %s | Duration: %d seconds\n",
			index, total, task.Description, task.Priority, task.Duration)
	}
}

func (w *Worker) sendTick(task models.Task, remaining int) {
	if w.program != nil {
		w.program.Send(TickMsg{TaskID: task.ID, Remaining: remaining})
	} else {
		fmt.Fprintf(w.Out, "\rTime remaining: %d seconds ", remaining)
	}
}

func (w *Worker) sendResult(task models.Task, success bool) {
	if w.program != nil {
		w.program.Send(TaskResultMsg(components.TaskResult{ID: task.ID, Description: task.Description, Completed: success}))
		return
	}
	if success {
		fmt.Fprintf(w.Out, "\rTask %d completed: %s\n", task.ID, task.Description)
	} else {
		fmt.Fprintf(w.Out, "\rTask %d stopped: %s\n", task.ID, task.Description)
	}
}
