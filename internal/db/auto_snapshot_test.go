package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAutoSnapshot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	snapshotPath := filepath.Join(t.TempDir(), "auto-snapshot.jsonl")
	db.EnableAutoSnapshot(snapshotPath)

	if err := db.Save(ctx, sampleTasks(), 5); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(snapshotPath); os.IsNotExist(err) {
		t.Fatalf("Snapshot file was not created after Save")
	}

	getModTime := func(path string) time.Time {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Failed to stat snapshot: %v", err)
		}
		return info.ModTime()
	}

	modTime1 := getModTime(snapshotPath)

	// Ensure some time passes so mod time definitely changes if it's updated
	time.Sleep(10 * time.Millisecond)

	if err := db.Save(ctx, sampleTasks()[:1], 5); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	modTime2 := getModTime(snapshotPath)
	if !modTime2.After(modTime1) {
		t.Errorf("Snapshot file was not updated after second Save")
	}

	tasks, _, err := ReadSnapshot(snapshotPath)
	if err != nil {
		t.Fatalf("ReadSnapshot failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("Expected snapshot to hold 1 task, got %d", len(tasks))
	}
}

func TestAutoSnapshotNotTriggeredByFailedSave(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	snapshotPath := filepath.Join(t.TempDir(), "auto-snapshot.jsonl")
	db.EnableAutoSnapshot(snapshotPath)

	bad := sampleTasks()
	bad[0].Priority = 2
	if err := db.Save(ctx, bad, 5); err == nil {
		t.Fatalf("Expected Save to fail")
	}

	if _, err := os.Stat(snapshotPath); !os.IsNotExist(err) {
		t.Errorf("Snapshot written after a failed Save")
	}
}

func TestImportAutoSnapshotDoesNotRewriteIt(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	snapshotPath := filepath.Join(t.TempDir(), "auto-snapshot.jsonl")
	db.EnableAutoSnapshot(snapshotPath)
	if err := db.Save(ctx, sampleTasks(), 5); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := db.Save(ctx, nil, 5); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Put the full collection back on disk behind the hook's back.
	other := newTestDB(t)
	if err := other.Save(ctx, sampleTasks(), 5); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := other.ExportSnapshot(ctx, snapshotPath); err != nil {
		t.Fatalf("ExportSnapshot failed: %v", err)
	}
	before, err := os.ReadFile(snapshotPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	db.SetOnChange(func(context.Context) {
		t.Errorf("on-change hook ran while importing the auto-snapshot")
	})
	if err := db.ImportSnapshot(ctx, snapshotPath); err != nil {
		t.Fatalf("ImportSnapshot failed: %v", err)
	}
	tasks, _, _, err := db.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(tasks) != len(sampleTasks()) {
		t.Errorf("imported %d tasks, want %d", len(tasks), len(sampleTasks()))
	}
	after, err := os.ReadFile(snapshotPath)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(before) != string(after) {
		t.Errorf("auto-snapshot was rewritten by its own import")
	}

	// The hook is active again afterwards.
	calls := 0
	db.SetOnChange(func(context.Context) { calls++ })
	if err := db.Save(ctx, nil, 5); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls=%d after import, want 1", calls)
	}
}

func TestImportOtherFileRefreshesAutoSnapshot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	dir := t.TempDir()
	snapshotPath := filepath.Join(dir, "auto-snapshot.jsonl")
	db.EnableAutoSnapshot(snapshotPath)

	other := newTestDB(t)
	if err := other.Save(ctx, sampleTasks(), 5); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	exported := filepath.Join(dir, "export.jsonl")
	if err := other.ExportSnapshot(ctx, exported); err != nil {
		t.Fatalf("ExportSnapshot failed: %v", err)
	}

	if err := db.ImportSnapshot(ctx, exported); err != nil {
		t.Fatalf("ImportSnapshot failed: %v", err)
	}
	tasks, _, err := ReadSnapshot(snapshotPath)
	if err != nil {
		t.Fatalf("ReadSnapshot failed: %v", err)
	}
	if len(tasks) != len(sampleTasks()) {
		t.Errorf("auto-snapshot holds %d tasks, want %d", len(tasks), len(sampleTasks()))
	}
}
