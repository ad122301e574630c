// Package store holds the in-memory, ordered task collection.
package store

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ldi/timebox/pkg/models"
)

const DefaultCapacity = 100

type SortKey string

const (
	SortByPriority SortKey = "priority"
	SortByDuration SortKey = "duration"
	SortByCreated  SortKey = "created"
)

func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case SortByPriority, "1":
		return SortByPriority, nil
	case SortByDuration, "2":
		return SortByDuration, nil
	case SortByCreated, "3":
		return SortByCreated, nil
	}
	return "", fmt.Errorf("%w: unknown sort key %q", ErrInvalidInput, s)
}

// Store is an ordered task collection with O(1) lookup by id.
//
// Reads and writes are guarded by a RWMutex, so the units of one execution
// wave can mark their own tasks completed concurrently.
type Store struct {
	mu       sync.RWMutex
	tasks    []models.Task
	index    map[int]int
	nextID   int
	capacity int
	now      func() time.Time
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		index:    make(map[int]int),
		nextID:   1,
		capacity: capacity,
		now:      time.Now,
	}
}

func (s *Store) Capacity() int {
	return s.capacity
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

func (s *Store) NextID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID
}

// Add validates t, assigns its id and creation time and appends it.
// The id counter only advances on success.
func (s *Store) Add(t models.Task) (models.Task, error) {
	if err := t.Validate(); err != nil {
		return models.Task{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tasks) >= s.capacity {
		return models.Task{}, ErrCapacityExceeded
	}

	t.ID = s.nextID
	t.CreatedAt = s.now()
	t.Completed = false
	s.nextID++

	s.index[t.ID] = len(s.tasks)
	s.tasks = append(s.tasks, t)
	return t, nil
}

func (s *Store) Find(id int) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return models.Task{}, false
	}
	return s.tasks[i], true
}

// FindByDescription returns the first task whose description matches exactly.
func (s *Store) FindByDescription(desc string) (models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tasks {
		if t.Description == desc {
			return t, true
		}
	}
	return models.Task{}, false
}

// Remove deletes the task and compacts the collection, keeping the relative
// order of the survivors.
func (s *Store) Remove(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.tasks = slices.Delete(s.tasks, i, i+1)
	s.reindexLocked()
	return true
}

func (s *Store) All() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tasks)
}

func (s *Store) Pending() []models.Task {
	return s.filter(func(t models.Task) bool { return !t.Completed })
}

func (s *Store) Search(keyword string) []models.Task {
	return s.filter(func(t models.Task) bool { return strings.Contains(t.Description, keyword) })
}

func (s *Store) ByPriority(p models.Priority) []models.Task {
	return s.filter(func(t models.Task) bool { return t.Priority == p })
}

func (s *Store) filter(keep func(models.Task) bool) []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Task
	for _, t := range s.tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// MarkCompleted flags a pending task as completed.
func (s *Store) MarkCompleted(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if s.tasks[i].Completed {
		return fmt.Errorf("%w: %d", ErrAlreadyCompleted, id)
	}
	s.tasks[i].Completed = true
	return nil
}

// ToggleCompleted flips the completion flag and returns the new value.
func (s *Store) ToggleCompleted(id int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	s.tasks[i].Completed = !s.tasks[i].Completed
	return s.tasks[i].Completed, nil
}

// Update replaces the editable fields of an existing task. ID and CreatedAt
// are never changed.
func (s *Store) Update(t models.Task) (models.Task, error) {
	if err := t.Validate(); err != nil {
		return models.Task{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[t.ID]
	if !ok {
		return models.Task{}, fmt.Errorf("%w: %d", ErrNotFound, t.ID)
	}
	cur := &s.tasks[i]
	cur.Description = t.Description
	cur.Priority = t.Priority
	cur.Duration = t.Duration
	cur.Completed = t.Completed
	return *cur, nil
}

// Sort reorders the collection in place. Ties keep their current order.
func (s *Store) Sort(key SortKey) error {
	var cmp func(a, b models.Task) int
	switch key {
	case SortByPriority:
		cmp = byPriorityThenDuration
	case SortByDuration:
		cmp = func(a, b models.Task) int {
			if c := a.Duration - b.Duration; c != 0 {
				return c
			}
			return int(a.Priority - b.Priority)
		}
	case SortByCreated:
		cmp = func(a, b models.Task) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		}
	default:
		return fmt.Errorf("%w: unknown sort key %q", ErrInvalidInput, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	slices.SortStableFunc(s.tasks, cmp)
	s.reindexLocked()
	return nil
}

// SortForExecution applies the sequential executor's ordering: most urgent
// priority first, shorter durations first within a priority.
func (s *Store) SortForExecution() {
	_ = s.Sort(SortByPriority)
}

func byPriorityThenDuration(a, b models.Task) int {
	if c := int(a.Priority - b.Priority); c != 0 {
		return c
	}
	return a.Duration - b.Duration
}

// Snapshot returns a copy of the collection and the next id to assign.
func (s *Store) Snapshot() ([]models.Task, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.tasks), s.nextID
}

// Restore replaces the collection with a loaded snapshot. Tasks beyond the
// capacity are dropped; the number dropped is returned.
func (s *Store) Restore(tasks []models.Task, nextID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	if len(tasks) > s.capacity {
		dropped = len(tasks) - s.capacity
		tasks = tasks[:s.capacity]
	}
	s.tasks = slices.Clone(tasks)
	s.reindexLocked()

	s.nextID = nextID
	for _, t := range s.tasks {
		if t.ID >= s.nextID {
			s.nextID = t.ID + 1
		}
	}
	if s.nextID < 1 {
		s.nextID = 1
	}
	return dropped
}

func (s *Store) reindexLocked() {
	clear(s.index)
	for i, t := range s.tasks {
		s.index[t.ID] = i
	}
}
