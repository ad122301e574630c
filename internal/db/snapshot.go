package db

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ldi/timebox/pkg/models"
)

const snapshotVersion = 1

type snapshotMeta struct {
	RecordType string    `json:"record_type"`
	Version    int       `json:"version"`
	NextID     int       `json:"next_id"`
	ExportedAt time.Time `json:"exported_at"`
}

type snapshotTask struct {
	RecordType string `json:"record_type"`
	models.Task
}

// EnableAutoSnapshot sets up a hook that automatically exports a snapshot
// to the given path after every successful save.
func (db *DB) EnableAutoSnapshot(path string) {
	db.onChangeMu.Lock()
	db.autoSnapshotPath = filepath.Clean(path)
	db.onChangeMu.Unlock()

	db.SetOnChange(func(ctx context.Context) {
		// Best effort: a failed export must not fail the save that triggered it.
		_ = db.ExportSnapshot(ctx, path)
	})
}

// ExportSnapshot writes the stored tasks as JSONL (one meta line followed by
// one line per task) to path atomically using a temporary file.
func (db *DB) ExportSnapshot(ctx context.Context, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	value, _, err := getMeta(ctx, db.DB, metaNextID)
	if err != nil {
		return err
	}
	nextID := 1
	if value != "" {
		if nextID, err = strconv.Atoi(value); err != nil {
			return fmt.Errorf("corrupt %s value %q: %w", metaNextID, value, err)
		}
	}

	tasks, err := db.ListTasks(ctx)
	if err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, "snapshot-*.jsonl")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempFile.Name())
		}
	}()

	enc := json.NewEncoder(tempFile)
	meta := snapshotMeta{RecordType: "meta", Version: snapshotVersion, NextID: nextID, ExportedAt: time.Now().UTC()}
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("failed to write snapshot meta: %w", err)
	}
	for _, t := range tasks {
		if err := enc.Encode(snapshotTask{RecordType: "task", Task: t}); err != nil {
			return fmt.Errorf("failed to write snapshot line: %w", err)
		}
	}

	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	filename := tempFile.Name()
	tempFile = nil // Prevent defer from removing it

	if err := os.Rename(filename, path); err != nil {
		os.Remove(filename)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// ReadSnapshot parses a JSONL snapshot without touching the database.
func ReadSnapshot(path string) ([]models.Task, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	var tasks []models.Task
	nextID := 0

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var base struct {
			RecordType string `json:"record_type"`
		}
		if err := json.Unmarshal(line, &base); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal base record: %w", err)
		}

		switch base.RecordType {
		case "meta":
			var m snapshotMeta
			if err := json.Unmarshal(line, &m); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal meta: %w", err)
			}
			if m.Version > snapshotVersion {
				return nil, 0, fmt.Errorf("unsupported snapshot version %d", m.Version)
			}
			nextID = m.NextID
		case "task":
			var rec snapshotTask
			if err := json.Unmarshal(line, &rec); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal task: %w", err)
			}
			if err := rec.Task.Validate(); err != nil {
				return nil, 0, fmt.Errorf("invalid task %d in snapshot: %w", rec.ID, err)
			}
			tasks = append(tasks, rec.Task)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("scanner error: %w", err)
	}

	for _, t := range tasks {
		if t.ID >= nextID {
			nextID = t.ID + 1
		}
	}
	if nextID < 1 {
		nextID = 1
	}
	return tasks, nextID, nil
}

// ImportSnapshot replaces the stored tasks with the contents of a JSONL
// snapshot. Importing the auto-snapshot file itself does not rewrite it.
func (db *DB) ImportSnapshot(ctx context.Context, path string) error {
	tasks, nextID, err := ReadSnapshot(path)
	if err != nil {
		return err
	}

	db.onChangeMu.RLock()
	self := db.autoSnapshotPath != "" && db.autoSnapshotPath == filepath.Clean(path)
	db.onChangeMu.RUnlock()
	if self {
		db.DisableOnChange()
		defer db.EnableOnChange()
	}
	return db.Save(ctx, tasks, nextID)
}
