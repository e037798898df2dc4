package dependency

import (
	"fmt"

	"github.com/t77yq/goal-planner/internal/model"
)

// Validate checks every task record and fails on the first malformed one.
// Dangling and cyclic references are not validation failures.
func Validate(tasks []model.Task) error {
	seen := make(map[string]struct{}, len(tasks))
	for i := range tasks {
		t := &tasks[i]
		if t.ID == "" {
			return malformed(i, "", "missing id")
		}
		if _, dup := seen[t.ID]; dup {
			return &TaskError{TaskID: t.ID, Index: i, Field: "id already used", Kind: ErrDuplicateTask}
		}
		seen[t.ID] = struct{}{}

		if t.Title == "" {
			return malformed(i, t.ID, "missing title")
		}
		if !t.Status.Valid() {
			return malformed(i, t.ID, fmt.Sprintf("invalid status %q", t.Status))
		}
		if !t.Priority.Valid() {
			return malformed(i, t.ID, fmt.Sprintf("invalid priority %q", t.Priority))
		}
		if t.EstimatedHours != nil && *t.EstimatedHours < 0 {
			return malformed(i, t.ID, "negative estimated_hours")
		}
		if t.StartDate != nil && t.EndDate != nil && t.EndDate.Before(*t.StartDate) {
			return malformed(i, t.ID, "end_date before start_date")
		}
		for j, ref := range t.Dependencies {
			if ref.TaskID == "" {
				return malformed(i, t.ID, fmt.Sprintf("dependency #%d missing task_id", j))
			}
		}
	}
	return nil
}
