package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	MaxDescriptionLength = 255
	MinDuration          = 1
	MaxDuration          = 3600
)

// Priority orders tasks by urgency. Lower values are more urgent so that a
// plain ascending sort puts High first.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityMedium Priority = 3
	PriorityLow    Priority = 5
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PriorityMedium:
		return "Medium"
	case PriorityLow:
		return "Low"
	default:
		return "Unknown"
	}
}

func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

// ParsePriority accepts a priority name ("high", "Medium", ...) or the menu
// choice used by the interactive prompts ("1" high, "2" medium, "3" low).
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "high", "h":
		return PriorityHigh, nil
	case "2", "medium", "med", "m":
		return PriorityMedium, nil
	case "3", "low", "l":
		return PriorityLow, nil
	}
	return 0, fmt.Errorf("invalid priority %q (want high, medium or low)", s)
}

type Task struct {
	ID          int       `json:"id"`
	Description string    `json:"description" validate:"required,max=255"`
	Priority    Priority  `json:"priority" validate:"oneof=1 3 5"`
	Duration    int       `json:"duration" validate:"min=1,max=3600"`
	CreatedAt   time.Time `json:"created_at"`
	Completed   bool      `json:"completed"`
}

var validate = validator.New()

// Validate checks the user-editable fields of the task.
func (t *Task) Validate() error {
	return validate.Struct(t)
}

func (t Task) DurationTime() time.Duration {
	return time.Duration(t.Duration) * time.Second
}

func (t Task) StatusString() string {
	if t.Completed {
		return "Completed"
	}
	return "Pending"
}
