package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/ldi/timebox/pkg/models"
)

const metaNextID = "next_id"

// Save overwrites the stored task list and id counter in one transaction.
// Either the whole snapshot is written or nothing changes.
func (db *DB) Save(ctx context.Context, tasks []models.Task, nextID int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return fmt.Errorf("failed to clear tasks: %w", err)
	}

	for pos, t := range tasks {
		if err := insertTask(ctx, tx, pos, t); err != nil {
			return err
		}
	}

	if err := setMeta(ctx, tx, metaNextID, strconv.Itoa(nextID)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	db.triggerChange(ctx)
	return nil
}

// Load returns the stored tasks in collection order and the next id to
// assign. found is false when nothing has been saved yet.
func (db *DB) Load(ctx context.Context) (tasks []models.Task, nextID int, found bool, err error) {
	value, ok, err := getMeta(ctx, db.DB, metaNextID)
	if err != nil {
		return nil, 0, false, err
	}
	if !ok {
		return nil, 1, false, nil
	}

	nextID, err = strconv.Atoi(value)
	if err != nil {
		return nil, 0, false, fmt.Errorf("corrupt %s value %q: %w", metaNextID, value, err)
	}

	tasks, err = db.ListTasks(ctx)
	if err != nil {
		return nil, 0, false, err
	}
	return tasks, nextID, true, nil
}

// ListTasks returns the stored tasks in collection order.
func (db *DB) ListTasks(ctx context.Context) ([]models.Task, error) {
	query := `
		SELECT id, description, priority, duration, created_at, completed
		FROM tasks
		ORDER BY position ASC
	`
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		var completed int
		if err := rows.Scan(&t.ID, &t.Description, &t.Priority, &t.Duration, &t.CreatedAt, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.Completed = completed == 1
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return tasks, nil
}

func insertTask(ctx context.Context, exec executor, pos int, t models.Task) error {
	completed := 0
	if t.Completed {
		completed = 1
	}
	_, err := exec.ExecContext(ctx, `
		INSERT INTO tasks (id, position, description, priority, duration, created_at, completed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, pos, t.Description, int(t.Priority), t.Duration, t.CreatedAt.UTC(), completed)
	if err != nil {
		return fmt.Errorf("failed to insert task %d: %w", t.ID, err)
	}
	return nil
}

func setMeta(ctx context.Context, exec executor, key, value string) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func getMeta(ctx context.Context, exec executor, key string) (string, bool, error) {
	var value string
	err := exec.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}
