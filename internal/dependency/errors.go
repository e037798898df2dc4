package dependency

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedTask is returned when a task record is missing a required
	// field or carries an out-of-range value
	ErrMalformedTask = errors.New("malformed task")

	// ErrDuplicateTask is returned when two tasks share an id
	ErrDuplicateTask = errors.New("duplicate task")

	// ErrTaskNotFound is returned when a task is not found
	ErrTaskNotFound = errors.New("task not found")
)

// TaskError identifies the task record that failed validation
type TaskError struct {
	TaskID string
	Index  int
	Field  string
	Kind   error
}

func (e *TaskError) Error() string {
	id := e.TaskID
	if id == "" {
		id = fmt.Sprintf("#%d", e.Index)
	}
	return fmt.Sprintf("%s: task %s: %s", e.Kind, id, e.Field)
}

func (e *TaskError) Unwrap() error { return e.Kind }

func malformed(index int, id, field string) error {
	return &TaskError{TaskID: id, Index: index, Field: field, Kind: ErrMalformedTask}
}
