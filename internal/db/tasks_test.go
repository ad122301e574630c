package db

import (
	"context"
	"testing"
	"time"

	"github.com/ldi/timebox/pkg/models"
)

func sampleTasks() []models.Task {
	created := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	return []models.Task{
		{ID: 1, Description: "A", Priority: models.PriorityMedium, Duration: 10, CreatedAt: created},
		{ID: 4, Description: "B", Priority: models.PriorityHigh, Duration: 20, CreatedAt: created.Add(time.Minute), Completed: true},
		{ID: 2, Description: "C", Priority: models.PriorityLow, Duration: 5, CreatedAt: created.Add(2 * time.Minute)},
	}
}

func TestLoadEmpty(t *testing.T) {
	db := newTestDB(t)

	tasks, nextID, found, err := db.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if found {
		t.Fatalf("found=true on a fresh database")
	}
	if len(tasks) != 0 {
		t.Errorf("Expected no tasks, got %d", len(tasks))
	}
	if nextID != 1 {
		t.Errorf("Expected nextID 1, got %d", nextID)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	want := sampleTasks()
	if err := db.Save(ctx, want, 5); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, nextID, found, err := db.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !found {
		t.Fatalf("found=false after Save")
	}
	if nextID != 5 {
		t.Errorf("Expected nextID 5, got %d", nextID)
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d tasks, got %d", len(want), len(got))
	}

	for i := range want {
		g, w := got[i], want[i]
		if g.ID != w.ID || g.Description != w.Description || g.Priority != w.Priority ||
			g.Duration != w.Duration || g.Completed != w.Completed {
			t.Errorf("task %d: got %+v, want %+v", i, g, w)
		}
		if !g.CreatedAt.Equal(w.CreatedAt) {
			t.Errorf("task %d: CreatedAt=%v, want %v", i, g.CreatedAt, w.CreatedAt)
		}
	}
}

func TestSaveOverwrites(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Save(ctx, sampleTasks(), 5); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	replacement := sampleTasks()[:1]
	if err := db.Save(ctx, replacement, 9); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, nextID, _, err := db.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("Expected only task 1, got %+v", got)
	}
	if nextID != 9 {
		t.Errorf("Expected nextID 9, got %d", nextID)
	}
}

func TestSaveEmptyCollection(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Save(ctx, sampleTasks(), 5); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := db.Save(ctx, nil, 5); err != nil {
		t.Fatalf("Save(nil) failed: %v", err)
	}

	got, nextID, found, err := db.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !found || len(got) != 0 || nextID != 5 {
		t.Fatalf("got found=%v tasks=%d nextID=%d", found, len(got), nextID)
	}
}

func TestSaveIsAllOrNothing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Save(ctx, sampleTasks(), 5); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Duration 0 violates the CHECK constraint halfway through the write.
	bad := sampleTasks()
	bad[1].Duration = 0
	if err := db.Save(ctx, bad, 7); err == nil {
		t.Fatalf("Expected Save to fail on an invalid task")
	}

	got, nextID, _, err := db.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(got) != 3 || nextID != 5 {
		t.Fatalf("previous snapshot was not preserved: tasks=%d nextID=%d", len(got), nextID)
	}
	if got[1].Duration != 20 {
		t.Errorf("task 4 duration=%d, want 20", got[1].Duration)
	}
}

func TestSaveCancelledContext(t *testing.T) {
	db := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := db.Save(ctx, sampleTasks(), 5); err == nil {
		t.Fatalf("Expected Save with a cancelled context to fail")
	}
}
