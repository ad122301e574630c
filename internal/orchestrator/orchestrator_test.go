package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ldi/timebox/internal/countdown"
	"github.com/ldi/timebox/internal/selection"
	"github.com/ldi/timebox/internal/store"
	"github.com/ldi/timebox/pkg/models"
)

// mockTaskStore is a mock implementation of TaskStore for testing.
type mockTaskStore struct {
	mu        sync.Mutex
	tasks     []models.Task
	nextID    int
	markCalls map[int]int
	markErr   map[int]error
}

func newMockTaskStore() *mockTaskStore {
	return &mockTaskStore{
		nextID:    1,
		markCalls: make(map[int]int),
		markErr:   make(map[int]error),
	}
}

func (m *mockTaskStore) addTask(desc string, priority models.Priority, duration int) models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := models.Task{ID: m.nextID, Description: desc, Priority: priority, Duration: duration}
	m.nextID++
	m.tasks = append(m.tasks, t)
	return t
}

func (m *mockTaskStore) All() []models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Task, len(m.tasks))
	copy(out, m.tasks)
	return out
}

func (m *mockTaskStore) MarkCompleted(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markCalls[id]++
	if err, ok := m.markErr[id]; ok {
		return err
	}
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			if m.tasks[i].Completed {
				return store.ErrAlreadyCompleted
			}
			m.tasks[i].Completed = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockTaskStore) Snapshot() ([]models.Task, int) {
	return m.All(), m.nextID
}

func (m *mockTaskStore) completed(id int) bool {
	for _, t := range m.All() {
		if t.ID == id {
			return t.Completed
		}
	}
	return false
}

type mockGateway struct {
	mu      sync.Mutex
	saves   [][]models.Task
	nextIDs []int
	runs    []*models.Run
	saveErr error
}

func (g *mockGateway) Save(ctx context.Context, tasks []models.Task, nextID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.saveErr != nil {
		return g.saveErr
	}
	g.saves = append(g.saves, tasks)
	g.nextIDs = append(g.nextIDs, nextID)
	return nil
}

func (g *mockGateway) RecordRun(ctx context.Context, run *models.Run) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.runs = append(g.runs, run)
	return nil
}

func (g *mockGateway) saveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.saves)
}

func instantWork(ctx context.Context, task models.Task, onTick countdown.TickFunc) error {
	return ctx.Err()
}

func selectAll(t *testing.T, s TaskStore) selection.Selection {
	t.Helper()
	sel, err := selection.Resolve(s.All(), selection.AllToken)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	return sel
}

func TestNewOrchestrator(t *testing.T) {
	s := newMockTaskStore()
	g := &mockGateway{}

	tests := []struct {
		in   int
		want int
	}{
		{3, 3},
		{10, 10},
		{0, MaxConcurrency},
		{-1, MaxConcurrency},
		{25, MaxConcurrency},
	}
	for _, tt := range tests {
		o := NewOrchestrator(s, g, tt.in, nil)
		if o.MaxConcurrency() != tt.want {
			t.Errorf("NewOrchestrator(%d).MaxConcurrency()=%d, want %d", tt.in, o.MaxConcurrency(), tt.want)
		}
	}
}

func TestRunConcurrent_CompletesAll(t *testing.T) {
	s := newMockTaskStore()
	s.addTask("A", models.PriorityHigh, 1)
	s.addTask("B", models.PriorityLow, 2)
	s.addTask("C", models.PriorityMedium, 3)
	g := &mockGateway{}

	o := NewOrchestrator(s, g, 3, nil)
	o.SetWorkFunc(instantWork)

	run, err := o.RunConcurrent(context.Background(), selectAll(t, s))
	if err != nil {
		t.Fatalf("RunConcurrent failed: %v", err)
	}

	if run.Selected != 3 || run.Completed != 3 || run.Waves != 1 || run.MaxConcurrency != 3 {
		t.Errorf("unexpected run %+v", run)
	}
	if run.Interrupted || run.Skipped != 0 || run.Cancelled != 0 {
		t.Errorf("run should not be interrupted: %+v", run)
	}
	if run.Mode != models.RunModeConcurrent {
		t.Errorf("Mode=%s, want concurrent", run.Mode)
	}
	for _, id := range []int{1, 2, 3} {
		if !s.completed(id) {
			t.Errorf("task %d not completed", id)
		}
	}

	if g.saveCount() != 1 {
		t.Fatalf("expected exactly 1 save, got %d", g.saveCount())
	}
	for _, saved := range g.saves[0] {
		if !saved.Completed {
			t.Errorf("saved task %d not completed", saved.ID)
		}
	}
	if g.nextIDs[0] != 4 {
		t.Errorf("saved nextID=%d, want 4", g.nextIDs[0])
	}
	if len(g.runs) != 1 || g.runs[0] != run {
		t.Errorf("expected run to be recorded once")
	}

	total, completed := o.GetStats()
	if total != 3 || completed != 3 {
		t.Errorf("GetStats()=(%d,%d), want (3,3)", total, completed)
	}
}

func TestRunConcurrent_WaveBarrier(t *testing.T) {
	s := newMockTaskStore()
	for i := 0; i < 5; i++ {
		s.addTask("task", models.PriorityMedium, 1)
	}
	g := &mockGateway{}

	var (
		mu        sync.Mutex
		seq       int
		started   = make(map[int]int)
		ended     = make(map[int]int)
		active    int
		maxActive int
	)

	o := NewOrchestrator(s, g, 2, nil)
	o.SetWorkFunc(func(ctx context.Context, task models.Task, onTick countdown.TickFunc) error {
		mu.Lock()
		seq++
		started[task.ID] = seq
		active++
		maxActive = max(maxActive, active)
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		seq++
		ended[task.ID] = seq
		active--
		mu.Unlock()
		return nil
	})

	run, err := o.RunConcurrent(context.Background(), selectAll(t, s))
	if err != nil {
		t.Fatalf("RunConcurrent failed: %v", err)
	}

	if run.Waves != 3 {
		t.Errorf("Waves=%d, want 3", run.Waves)
	}
	if maxActive > 2 {
		t.Errorf("max concurrent units=%d, want <= 2", maxActive)
	}

	// Waves are [1,2], [3,4], [5] in store order.
	waves := [][]int{{1, 2}, {3, 4}, {5}}
	for w := 1; w < len(waves); w++ {
		for _, prev := range waves[w-1] {
			for _, next := range waves[w] {
				if started[next] < ended[prev] {
					t.Errorf("task %d (wave %d) started before task %d (wave %d) ended", next, w+1, prev, w)
				}
			}
		}
	}
	if g.saveCount() != 1 {
		t.Errorf("expected exactly 1 save, got %d", g.saveCount())
	}
}

func TestRunConcurrent_NoDuplicateTargets(t *testing.T) {
	s := newMockTaskStore()
	for i := 0; i < 7; i++ {
		s.addTask("task", models.PriorityLow, 1)
	}
	g := &mockGateway{}

	var mu sync.Mutex
	calls := make(map[int]int)

	o := NewOrchestrator(s, g, 3, nil)
	o.SetWorkFunc(func(ctx context.Context, task models.Task, onTick countdown.TickFunc) error {
		mu.Lock()
		calls[task.ID]++
		mu.Unlock()
		return nil
	})

	sel := selection.Selection{Tasks: append(s.All(), s.All()[0])}
	if _, err := o.RunConcurrent(context.Background(), sel); err != nil {
		t.Fatalf("RunConcurrent failed: %v", err)
	}

	if len(calls) != 7 {
		t.Errorf("expected 7 distinct tasks executed, got %d", len(calls))
	}
	for id, n := range calls {
		if n != 1 {
			t.Errorf("task %d executed %d times", id, n)
		}
		if s.markCalls[id] != 1 {
			t.Errorf("task %d marked %d times", id, s.markCalls[id])
		}
	}
}

func TestRunConcurrent_RunsOnlySelectedPendingInStoreOrder(t *testing.T) {
	s := newMockTaskStore()
	s.addTask("one", models.PriorityLow, 1)
	s.addTask("two", models.PriorityLow, 1)
	s.addTask("three", models.PriorityLow, 1)
	s.addTask("four", models.PriorityLow, 1)
	if err := s.MarkCompleted(2); err != nil {
		t.Fatal(err)
	}
	g := &mockGateway{}

	var mu sync.Mutex
	var order []int

	// One slot so the execution order is observable.
	o := NewOrchestrator(s, g, 1, nil)
	o.SetWorkFunc(func(ctx context.Context, task models.Task, onTick countdown.TickFunc) error {
		mu.Lock()
		order = append(order, task.ID)
		mu.Unlock()
		return nil
	})

	all := s.All()
	sel := selection.Selection{Tasks: []models.Task{all[3], all[1], all[0]}}
	run, err := o.RunConcurrent(context.Background(), sel)
	if err != nil {
		t.Fatalf("RunConcurrent failed: %v", err)
	}

	if len(order) != 2 || order[0] != 1 || order[1] != 4 {
		t.Errorf("execution order=%v, want [1 4]", order)
	}
	if run.Selected != 2 || run.Waves != 2 {
		t.Errorf("unexpected run %+v", run)
	}
	if s.completed(3) {
		t.Errorf("unselected task 3 was completed")
	}
}

func TestRunConcurrent_EmptySelection(t *testing.T) {
	s := newMockTaskStore()
	s.addTask("done", models.PriorityHigh, 1)
	if err := s.MarkCompleted(1); err != nil {
		t.Fatal(err)
	}
	g := &mockGateway{}

	called := false
	for _, sel := range []selection.Selection{{}, {Tasks: s.All()}} {
		o := NewOrchestrator(s, g, 3, nil)
		o.SetWorkFunc(func(ctx context.Context, task models.Task, onTick countdown.TickFunc) error {
			called = true
			return nil
		})
		run, err := o.RunConcurrent(context.Background(), sel)
		if !errors.Is(err, selection.ErrEmptySelection) {
			t.Errorf("err=%v, want ErrEmptySelection", err)
		}
		if run != nil {
			t.Errorf("expected nil run, got %+v", run)
		}
	}

	if called {
		t.Errorf("work function should not run for an empty selection")
	}
	if g.saveCount() != 0 {
		t.Errorf("expected no save, got %d", g.saveCount())
	}
}

func TestRunConcurrent_StopPreservesPartialCompletion(t *testing.T) {
	s := newMockTaskStore()
	for i := 0; i < 4; i++ {
		s.addTask("task", models.PriorityMedium, 5)
	}
	g := &mockGateway{}

	o := NewOrchestrator(s, g, 2, nil)
	firstDone := make(chan struct{})
	o.SetWorkFunc(func(ctx context.Context, task models.Task, onTick countdown.TickFunc) error {
		if task.ID == 1 {
			close(firstDone)
			return nil
		}
		<-firstDone
		for !s.completed(1) {
			time.Sleep(time.Millisecond)
		}
		o.Stop()
		<-ctx.Done()
		return ctx.Err()
	})

	run, err := o.RunConcurrent(context.Background(), selectAll(t, s))
	if err != nil {
		t.Fatalf("RunConcurrent failed: %v", err)
	}

	if run.Completed != 1 || run.Cancelled != 1 || run.Skipped != 2 || run.Waves != 1 {
		t.Errorf("unexpected run %+v", run)
	}
	if !run.Interrupted {
		t.Errorf("run should be marked interrupted")
	}
	if !s.completed(1) {
		t.Errorf("task 1 should stay completed")
	}
	for _, id := range []int{2, 3, 4} {
		if s.completed(id) {
			t.Errorf("task %d should not be completed", id)
		}
	}
	if g.saveCount() != 1 {
		t.Fatalf("expected exactly 1 save after cancellation, got %d", g.saveCount())
	}
	if !g.saves[0][0].Completed || g.saves[0][1].Completed {
		t.Errorf("saved snapshot does not reflect partial completion: %+v", g.saves[0])
	}
}

func TestRunConcurrent_CancelledContext(t *testing.T) {
	s := newMockTaskStore()
	s.addTask("a", models.PriorityMedium, 1)
	s.addTask("b", models.PriorityMedium, 1)
	g := &mockGateway{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := NewOrchestrator(s, g, 2, nil)
	o.SetWorkFunc(instantWork)

	run, err := o.RunConcurrent(ctx, selectAll(t, s))
	if err != nil {
		t.Fatalf("RunConcurrent failed: %v", err)
	}
	if run.Waves != 0 || run.Skipped != 2 || run.Completed != 0 {
		t.Errorf("unexpected run %+v", run)
	}
	if g.saveCount() != 1 {
		t.Errorf("expected the snapshot to be saved, got %d saves", g.saveCount())
	}
}

func TestRunConcurrent_StopBeforeStart(t *testing.T) {
	s := newMockTaskStore()
	s.addTask("a", models.PriorityMedium, 1)
	g := &mockGateway{}

	o := NewOrchestrator(s, g, 2, nil)
	o.SetWorkFunc(instantWork)
	o.Stop()

	run, err := o.RunConcurrent(context.Background(), selectAll(t, s))
	if err != nil {
		t.Fatalf("RunConcurrent failed: %v", err)
	}
	if run.Waves != 0 || run.Skipped != 1 {
		t.Errorf("unexpected run %+v", run)
	}
}

func TestRunConcurrent_SaveError(t *testing.T) {
	s := newMockTaskStore()
	s.addTask("a", models.PriorityMedium, 1)
	saveErr := errors.New("disk full")
	g := &mockGateway{saveErr: saveErr}

	o := NewOrchestrator(s, g, 2, nil)
	o.SetWorkFunc(instantWork)

	run, err := o.RunConcurrent(context.Background(), selectAll(t, s))
	if !errors.Is(err, saveErr) {
		t.Fatalf("err=%v, want wrapped save error", err)
	}
	if run == nil || run.Completed != 1 {
		t.Errorf("expected run summary despite save error, got %+v", run)
	}
	if len(g.runs) != 0 {
		t.Errorf("run should not be recorded when the save fails")
	}
}

func TestRunConcurrent_MarkFailure(t *testing.T) {
	s := newMockTaskStore()
	s.addTask("a", models.PriorityMedium, 1)
	s.addTask("b", models.PriorityMedium, 1)
	s.markErr[2] = store.ErrNotFound
	g := &mockGateway{}

	o := NewOrchestrator(s, g, 2, nil)
	o.SetWorkFunc(instantWork)

	run, err := o.RunConcurrent(context.Background(), selectAll(t, s))
	if err != nil {
		t.Fatalf("RunConcurrent failed: %v", err)
	}
	if run.Completed != 1 || run.Cancelled != 0 || run.Failed != 1 {
		t.Errorf("unexpected run %+v", run)
	}
	if len(g.runs) != 1 || g.runs[0].Failed != 1 {
		t.Errorf("recorded run should carry the failed unit, got %+v", g.runs)
	}
	if summary := Summary(run); !strings.Contains(summary, "1 task(s) could not be marked completed") {
		t.Errorf("summary does not report the failure: %q", summary)
	}
}

func TestRunConcurrent_Twice(t *testing.T) {
	s := newMockTaskStore()
	s.addTask("a", models.PriorityMedium, 1)
	g := &mockGateway{}

	o := NewOrchestrator(s, g, 2, nil)
	o.SetWorkFunc(instantWork)

	if _, err := o.RunConcurrent(context.Background(), selectAll(t, s)); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if _, err := o.RunConcurrent(context.Background(), selectAll(t, s)); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("err=%v, want ErrAlreadyStarted", err)
	}
}

func TestRunConcurrent_Messages(t *testing.T) {
	s := newMockTaskStore()
	s.addTask("a", models.PriorityMedium, 2)
	s.addTask("b", models.PriorityMedium, 2)
	s.addTask("c", models.PriorityMedium, 2)
	g := &mockGateway{}

	o := NewOrchestrator(s, g, 2, nil)
	o.SetWorkFunc(func(ctx context.Context, task models.Task, onTick countdown.TickFunc) error {
		onTick(2)
		onTick(1)
		return nil
	})

	msgs := o.Messages()
	var got []tea.Msg
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range msgs {
			got = append(got, msg)
		}
	}()

	if _, err := o.RunConcurrent(context.Background(), selectAll(t, s)); err != nil {
		t.Fatalf("RunConcurrent failed: %v", err)
	}
	<-done

	counts := make(map[string]int)
	for _, msg := range got {
		switch msg.(type) {
		case WaveStartedMsg:
			counts["wave_started"]++
		case WaveFinishedMsg:
			counts["wave_finished"]++
		case TaskStartedMsg:
			counts["task_started"]++
		case TickMsg:
			counts["tick"]++
		case TaskCompletedMsg:
			counts["task_completed"]++
		case RunFinishedMsg:
			counts["run_finished"]++
		}
	}

	want := map[string]int{
		"wave_started":   2,
		"wave_finished":  2,
		"task_started":   3,
		"tick":           6,
		"task_completed": 3,
		"run_finished":   1,
	}
	for k, v := range want {
		if counts[k] != v {
			t.Errorf("%s messages=%d, want %d", k, counts[k], v)
		}
	}

	if _, ok := got[0].(WaveStartedMsg); !ok {
		t.Errorf("first message=%T, want WaveStartedMsg", got[0])
	}
	if _, ok := got[len(got)-1].(RunFinishedMsg); !ok {
		t.Errorf("last message=%T, want RunFinishedMsg", got[len(got)-1])
	}
}

func TestCountdownWorkUsesClock(t *testing.T) {
	clock := &stepClock{}
	work := CountdownWork(clock)

	var ticks []int
	err := work(context.Background(), models.Task{ID: 1, Duration: 3}, func(r int) { ticks = append(ticks, r) })
	if err != nil {
		t.Fatalf("work failed: %v", err)
	}
	if clock.sleeps != 3 || len(ticks) != 3 || ticks[0] != 3 {
		t.Errorf("sleeps=%d ticks=%v", clock.sleeps, ticks)
	}
}

type stepClock struct {
	sleeps int
}

func (c *stepClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps++
	return ctx.Err()
}

func TestSummary(t *testing.T) {
	run := &models.Run{Selected: 4, Completed: 1, Waves: 1, Cancelled: 1, Skipped: 2, Interrupted: true, Elapsed: 1500 * time.Millisecond}
	got := Summary(run)
	want := "1 of 4 task(s) completed in 1 wave(s), 1.5 seconds. Run stopped early: 1 interrupted, 2 not started."
	if got != want {
		t.Errorf("Summary()=%q, want %q", got, want)
	}
	if Summary(nil) != "" {
		t.Errorf("Summary(nil) should be empty")
	}
}
