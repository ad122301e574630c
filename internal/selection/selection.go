// Package selection turns user selection text into the set of tasks a run
// will execute.
package selection

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/ldi/timebox/pkg/models"
)

// AllToken selects every pending task. The match is exact and case-sensitive.
const AllToken = "all"

var ErrEmptySelection = errors.New("no valid tasks selected")

// Selection is an ordered set of distinct pending tasks.
type Selection struct {
	Tasks []models.Task
}

func (s Selection) Count() int {
	return len(s.Tasks)
}

func (s Selection) IDs() []int {
	ids := make([]int, len(s.Tasks))
	for i, t := range s.Tasks {
		ids[i] = t.ID
	}
	return ids
}

// TotalDuration is the sum of the selected tasks' durations in seconds.
func (s Selection) TotalDuration() int {
	total := 0
	for _, t := range s.Tasks {
		total += t.Duration
	}
	return total
}

// Resolve picks the pending tasks named by raw, in the order they appear in
// tasks. Tokens that are not positive integers are skipped, as are ids that
// are unknown or already completed. An empty result is ErrEmptySelection.
func Resolve(tasks []models.Task, raw string) (Selection, error) {
	var sel Selection

	if raw == AllToken {
		for _, t := range tasks {
			if !t.Completed {
				sel.Tasks = append(sel.Tasks, t)
			}
		}
	} else {
		wanted := ParseIDs(raw)
		for _, t := range tasks {
			if _, ok := wanted[t.ID]; ok && !t.Completed {
				sel.Tasks = append(sel.Tasks, t)
			}
		}
	}

	if sel.Count() == 0 {
		return Selection{}, ErrEmptySelection
	}
	return sel, nil
}

// ParseIDs splits raw on commas and whitespace and returns the set of
// positive integer ids it names.
func ParseIDs(raw string) map[int]struct{} {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})

	ids := make(map[int]struct{}, len(fields))
	for _, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil || id <= 0 {
			continue
		}
		ids[id] = struct{}{}
	}
	return ids
}
