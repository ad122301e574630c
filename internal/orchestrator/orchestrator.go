package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/ldi/timebox/internal/countdown"
	"github.com/ldi/timebox/internal/logging"
	"github.com/ldi/timebox/internal/selection"
	"github.com/ldi/timebox/pkg/models"
)

// MaxConcurrency is the upper bound on tasks running in one wave.
const MaxConcurrency = 10

const saveTimeout = 5 * time.Second

// ErrAlreadyStarted is returned when RunConcurrent is called twice on the
// same Orchestrator.
var ErrAlreadyStarted = errors.New("orchestrator already started")

// TaskStore is the in-memory task collection the orchestrator executes
// against. MarkCompleted must be safe for concurrent use on distinct ids.
type TaskStore interface {
	All() []models.Task
	MarkCompleted(id int) error
	Snapshot() ([]models.Task, int)
}

// Gateway persists the task collection once the run is over.
type Gateway interface {
	Save(ctx context.Context, tasks []models.Task, nextID int) error
	RecordRun(ctx context.Context, run *models.Run) error
}

// WorkFunc performs the timed work for one task. It must return early with
// the context error when ctx is cancelled.
type WorkFunc func(ctx context.Context, task models.Task, onTick countdown.TickFunc) error

// CountdownWork is the default WorkFunc: a one-second-step countdown over
// the task duration.
func CountdownWork(clock countdown.Clock) WorkFunc {
	return func(ctx context.Context, task models.Task, onTick countdown.TickFunc) error {
		return countdown.Run(ctx, clock, task.Duration, onTick)
	}
}

type unitOutcome int

const (
	unitCompleted unitOutcome = iota
	unitStopped
	unitFailed
)

// Orchestrator runs a selection of tasks in waves of at most K concurrent
// units, joining each wave before the next one starts. An Orchestrator
// executes a single run; its message channel is closed when the run ends.
type Orchestrator struct {
	store          TaskStore
	gateway        Gateway
	maxConcurrency int
	logger         *slog.Logger
	work           WorkFunc
	now            func() time.Time

	msgChan   chan tea.Msg
	listening atomic.Bool
	started   atomic.Bool

	cancelMu sync.Mutex
	cancel   context.CancelFunc
	stopped  bool

	statsMu        sync.RWMutex
	totalTasks     int
	completedTasks int
	slots          map[int]models.Task
}

func NewOrchestrator(store TaskStore, gateway Gateway, maxConcurrency int, logger *slog.Logger) *Orchestrator {
	if maxConcurrency <= 0 || maxConcurrency > MaxConcurrency {
		maxConcurrency = MaxConcurrency
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Orchestrator{
		store:          store,
		gateway:        gateway,
		maxConcurrency: maxConcurrency,
		logger:         logger,
		work:           CountdownWork(countdown.RealClock{}),
		now:            time.Now,
		msgChan:        make(chan tea.Msg, 100),
		slots:          make(map[int]models.Task),
	}
}

// SetWorkFunc replaces the per-task workload. It must be called before
// RunConcurrent.
func (o *Orchestrator) SetWorkFunc(fn WorkFunc) {
	if fn != nil {
		o.work = fn
	}
}

func (o *Orchestrator) MaxConcurrency() int {
	return o.maxConcurrency
}

// Messages returns the progress stream for a UI. Messages are only
// delivered once a caller has asked for the channel.
func (o *Orchestrator) Messages() <-chan tea.Msg {
	o.listening.Store(true)
	return o.msgChan
}

// Stop cancels the running (or next) run. Units in flight stop at their
// next one-second step and no further waves are launched.
func (o *Orchestrator) Stop() {
	o.cancelMu.Lock()
	defer o.cancelMu.Unlock()
	o.stopped = true
	if o.cancel != nil {
		o.cancel()
	}
}

// RunConcurrent executes the selected pending tasks in store order. The
// task collection is saved exactly once after the last wave, including
// after a cancellation. An empty work set returns ErrEmptySelection without
// saving.
func (o *Orchestrator) RunConcurrent(ctx context.Context, sel selection.Selection) (*models.Run, error) {
	if !o.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	defer close(o.msgChan)

	work := o.workSet(sel)
	if len(work) == 0 {
		return nil, selection.ErrEmptySelection
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.cancelMu.Lock()
	o.cancel = cancel
	if o.stopped {
		cancel()
	}
	o.cancelMu.Unlock()

	k := min(len(work), o.maxConcurrency)
	totalWaves := (len(work) + k - 1) / k

	run := &models.Run{
		ID:             uuid.New().String(),
		Mode:           models.RunModeConcurrent,
		Selected:       len(work),
		MaxConcurrency: k,
		TaskIDs:        taskIDs(work),
		StartedAt:      o.now(),
	}
	logger := o.logger.With("run_id", run.ID)
	logger.Info("run started", "selected", run.Selected, "concurrency", k, "waves", totalWaves)

	o.statsMu.Lock()
	o.totalTasks = len(work)
	o.statsMu.Unlock()

	launched := 0
	for wave := 1; launched < len(work); wave++ {
		if runCtx.Err() != nil {
			break
		}

		batch := work[launched:min(launched+k, len(work))]
		launched += len(batch)
		run.Waves++

		o.sendMsg(WaveStartedMsg{Wave: wave, TotalWaves: totalWaves, TaskIDs: taskIDs(batch)})
		logger.Debug("wave started", "wave", wave, "size", len(batch))

		outcomes := make([]unitOutcome, len(batch))
		var wg sync.WaitGroup
		for i, task := range batch {
			wg.Add(1)
			go func(slot int, task models.Task) {
				defer wg.Done()
				outcomes[slot-1] = o.runUnit(runCtx, logger, wave, slot, task)
			}(i+1, task)
		}
		wg.Wait()

		waveCompleted := 0
		for _, out := range outcomes {
			switch out {
			case unitCompleted:
				waveCompleted++
			case unitStopped:
				run.Cancelled++
			case unitFailed:
				run.Failed++
			}
		}
		run.Completed += waveCompleted

		o.sendMsg(WaveFinishedMsg{Wave: wave, TotalWaves: totalWaves, Completed: waveCompleted})
		logger.Debug("wave finished", "wave", wave, "completed", waveCompleted)
	}

	run.Skipped = len(work) - launched
	run.FinishedAt = o.now()
	run.Elapsed = run.FinishedAt.Sub(run.StartedAt)
	run.Interrupted = run.Cancelled > 0 || run.Skipped > 0

	err := o.persist(run)
	if err != nil {
		logger.Error("failed to save tasks", "error", err)
	}
	logger.Info("run finished",
		"completed", run.Completed,
		"cancelled", run.Cancelled,
		"skipped", run.Skipped,
		"failed", run.Failed,
		"elapsed", run.Elapsed)

	o.sendMsg(RunFinishedMsg{Run: run, Err: err})
	return run, err
}

// workSet restricts the store order to the selected ids that are still
// pending.
func (o *Orchestrator) workSet(sel selection.Selection) []models.Task {
	wanted := make(map[int]struct{}, sel.Count())
	for _, id := range sel.IDs() {
		wanted[id] = struct{}{}
	}

	var work []models.Task
	for _, t := range o.store.All() {
		if _, ok := wanted[t.ID]; ok && !t.Completed {
			work = append(work, t)
		}
	}
	return work
}

func (o *Orchestrator) runUnit(ctx context.Context, logger *slog.Logger, wave, slot int, task models.Task) unitOutcome {
	o.setSlot(slot, task)
	defer o.clearSlot(slot)

	logger = logger.With("wave", wave, "slot", slot, "task_id", task.ID)
	logger.Debug("unit started", "duration", task.Duration)
	o.sendMsg(TaskStartedMsg{Slot: slot, Wave: wave, Task: task})

	started := o.now()
	err := o.work(ctx, task, func(remaining int) {
		o.sendMsg(TickMsg{Slot: slot, TaskID: task.ID, Remaining: remaining})
	})
	if err != nil {
		logger.Info("unit stopped", "error", err)
		o.sendMsg(TaskCompletedMsg{Slot: slot, Task: task, Success: false, Elapsed: o.now().Sub(started)})
		return unitStopped
	}

	if err := o.store.MarkCompleted(task.ID); err != nil {
		logger.Error("failed to mark task completed", "error", err)
		o.sendMsg(TaskCompletedMsg{Slot: slot, Task: task, Success: false, Elapsed: o.now().Sub(started)})
		return unitFailed
	}

	o.statsMu.Lock()
	o.completedTasks++
	o.statsMu.Unlock()

	task.Completed = true
	logger.Debug("unit completed")
	o.sendMsg(TaskCompletedMsg{Slot: slot, Task: task, Success: true, Elapsed: o.now().Sub(started)})
	return unitCompleted
}

// persist saves the collection and records the run. Saving uses its own
// deadline so a cancelled run is still written.
func (o *Orchestrator) persist(run *models.Run) error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	tasks, nextID := o.store.Snapshot()
	if err := o.gateway.Save(ctx, tasks, nextID); err != nil {
		return fmt.Errorf("failed to save tasks: %w", err)
	}
	if err := o.gateway.RecordRun(ctx, run); err != nil {
		o.logger.Warn("failed to record run", "run_id", run.ID, "error", err)
	}
	return nil
}

func (o *Orchestrator) setSlot(slot int, task models.Task) {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	o.slots[slot] = task
}

func (o *Orchestrator) clearSlot(slot int) {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	delete(o.slots, slot)
}

// GetActiveSlots returns the tasks currently running, keyed by slot.
func (o *Orchestrator) GetActiveSlots() map[int]models.Task {
	o.statsMu.RLock()
	defer o.statsMu.RUnlock()

	result := make(map[int]models.Task, len(o.slots))
	for k, v := range o.slots {
		result[k] = v
	}
	return result
}

func (o *Orchestrator) GetStats() (total, completed int) {
	o.statsMu.RLock()
	defer o.statsMu.RUnlock()
	return o.totalTasks, o.completedTasks
}

func (o *Orchestrator) sendMsg(msg tea.Msg) {
	if !o.listening.Load() {
		return
	}
	select {
	case o.msgChan <- msg:
	case <-time.After(100 * time.Millisecond):
	}
}

func taskIDs(tasks []models.Task) []int {
	ids := make([]int, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	return ids
}

type WaveStartedMsg struct {
	Wave       int
	TotalWaves int
	TaskIDs    []int
}

type WaveFinishedMsg struct {
	Wave       int
	TotalWaves int
	Completed  int
}

type TaskStartedMsg struct {
	Slot int
	Wave int
	Task models.Task
}

type TickMsg struct {
	Slot      int
	TaskID    int
	Remaining int
}

type TaskCompletedMsg struct {
	Slot    int
	Task    models.Task
	Success bool
	Elapsed time.Duration
}

type RunFinishedMsg struct {
	Run *models.Run
	Err error
}
