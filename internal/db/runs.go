package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ldi/timebox/pkg/models"
)

// RecordRun stores the summary of an execution run. A missing ID is filled
// in with a new UUID.
func (db *DB) RecordRun(ctx context.Context, run *models.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	taskIDs, err := json.Marshal(run.TaskIDs)
	if err != nil {
		return fmt.Errorf("failed to encode run task ids: %w", err)
	}
	interrupted := 0
	if run.Interrupted {
		interrupted = 1
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO runs (
			id, mode, selected, completed, cancelled, skipped, failed, waves,
			max_concurrency, task_ids, interrupted, started_at, finished_at, elapsed_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Mode), run.Selected, run.Completed, run.Cancelled, run.Skipped, run.Failed, run.Waves,
		run.MaxConcurrency, string(taskIDs), interrupted, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Elapsed.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all runs.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]*models.Run, error) {
	query := `
		SELECT id, mode, selected, completed, cancelled, skipped, failed, waves,
		       max_concurrency, task_ids, interrupted, started_at, finished_at, elapsed_ms
		FROM runs
		ORDER BY started_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		r := &models.Run{}
		var mode, taskIDs string
		var interrupted int
		var elapsedMS int64
		err := rows.Scan(
			&r.ID, &mode, &r.Selected, &r.Completed, &r.Cancelled, &r.Skipped, &r.Failed, &r.Waves,
			&r.MaxConcurrency, &taskIDs, &interrupted, &r.StartedAt, &r.FinishedAt, &elapsedMS,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Mode = models.RunMode(mode)
		r.Interrupted = interrupted == 1
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		if err := json.Unmarshal([]byte(taskIDs), &r.TaskIDs); err != nil {
			return nil, fmt.Errorf("failed to decode run task ids: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return runs, nil
}
