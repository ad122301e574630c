package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ldi/timebox/internal/db"
	"github.com/ldi/timebox/pkg/models"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestInit(t *testing.T) {
	dataDir := setupCLI(t)

	out := mustRunCLI(t, dataDir, "init")
	if !strings.Contains(out, "timebox initialized successfully") {
		t.Errorf("unexpected output: %s", out)
	}

	if got := readFile(t, filepath.Join(dataDir, ".gitignore")); got != gitignoreContent {
		t.Errorf(".gitignore content mismatch: got %q", got)
	}
	if cfg := readFile(t, filepath.Join(dataDir, "config.yaml")); !strings.Contains(cfg, "max_concurrency: 10") {
		t.Errorf("unexpected default config: %s", cfg)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "timebox.db")); os.IsNotExist(err) {
		t.Errorf("database file was not created")
	}

	// A second init keeps the existing config.
	out = mustRunCLI(t, dataDir, "init")
	if !strings.Contains(out, "Kept existing config") {
		t.Errorf("expected config to be kept, got: %s", out)
	}
}

func TestInitWithExistingSnapshot(t *testing.T) {
	dataDir := setupCLI(t)

	source, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer source.Close()
	ctx := context.Background()
	if err := source.Init(ctx); err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	tasks := []models.Task{
		{ID: 1, Description: "Imported one", Priority: models.PriorityHigh, Duration: 5},
		{ID: 2, Description: "Imported two", Priority: models.PriorityLow, Duration: 7, Completed: true},
	}
	if err := source.Save(ctx, tasks, 3); err != nil {
		t.Fatalf("failed to save: %v", err)
	}
	if err := source.ExportSnapshot(ctx, filepath.Join(dataDir, "tasks.jsonl")); err != nil {
		t.Fatalf("failed to export snapshot: %v", err)
	}

	out := mustRunCLI(t, dataDir, "init")
	if !strings.Contains(out, "Imported snapshot") {
		t.Errorf("expected snapshot import, got: %s", out)
	}

	out = mustRunCLI(t, dataDir, "list")
	if !strings.Contains(out, "Imported one") || !strings.Contains(out, "Imported two") {
		t.Errorf("expected imported tasks in list, got: %s", out)
	}
}
