package model

import (
	"strings"
	"time"
)

// TaskStatus represents the current status of a task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusBlocked    TaskStatus = "blocked"
)

// Valid reports whether s is one of the known statuses
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusBlocked:
		return true
	}
	return false
}

// TaskStatuses lists every valid status in display order
var TaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusInProgress,
	TaskStatusCompleted,
	TaskStatusBlocked,
}

// Next returns the status that follows s in the click-through cycle
// pending -> in_progress -> completed -> blocked -> pending. Unknown
// statuses restart the cycle.
func (s TaskStatus) Next() TaskStatus {
	for i, st := range TaskStatuses {
		if st == s {
			return TaskStatuses[(i+1)%len(TaskStatuses)]
		}
	}
	return TaskStatuses[0]
}

// TaskPriority represents the priority level of a task
type TaskPriority string

const (
	TaskPriorityLow      TaskPriority = "low"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityCritical TaskPriority = "critical"
)

// Valid reports whether p is one of the known priorities
func (p TaskPriority) Valid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityCritical:
		return true
	}
	return false
}

// ParsePriority maps a free-form priority string to a TaskPriority.
// Unknown values fall back to medium.
func ParsePriority(s string) TaskPriority {
	p := TaskPriority(strings.ToLower(strings.TrimSpace(s)))
	if p.Valid() {
		return p
	}
	return TaskPriorityMedium
}

// DependencyReference points at a prerequisite task. TaskTitle is a
// denormalized copy kept for display only.
type DependencyReference struct {
	TaskID    string `json:"task_id"`
	TaskTitle string `json:"task_title"`
}

// Task represents a unit of work within a goal
type Task struct {
	ID             string                `json:"id"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Status         TaskStatus            `json:"status"`
	Priority       TaskPriority          `json:"priority"`
	EstimatedHours *float64              `json:"estimated_hours,omitempty"`
	StartDate      *time.Time            `json:"start_date,omitempty"`
	EndDate        *time.Time            `json:"end_date,omitempty"`
	Dependencies   []DependencyReference `json:"dependencies"`
}

// Clone returns a deep copy of the task
func (t Task) Clone() Task {
	c := t
	if t.EstimatedHours != nil {
		h := *t.EstimatedHours
		c.EstimatedHours = &h
	}
	if t.StartDate != nil {
		d := *t.StartDate
		c.StartDate = &d
	}
	if t.EndDate != nil {
		d := *t.EndDate
		c.EndDate = &d
	}
	if t.Dependencies != nil {
		c.Dependencies = make([]DependencyReference, len(t.Dependencies))
		copy(c.Dependencies, t.Dependencies)
	}
	return c
}

// Goal is the planning target a task collection belongs to
type Goal struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	Deadline            *time.Time `json:"deadline,omitempty"`
	TotalEstimatedHours *float64   `json:"total_estimated_hours,omitempty"`
	CreatedAt           *time.Time `json:"created_at,omitempty"`
}

// GoalDetail is a goal together with its full task collection, as delivered
// by the planning service on goal creation or selection.
type GoalDetail struct {
	Goal              Goal   `json:"goal"`
	Tasks             []Task `json:"tasks"`
	SuggestedTimeline string `json:"suggested_timeline,omitempty"`
}

// StatusUpdate is a status change for a single task, either requested by
// the planner or echoed back by the status collaborator.
type StatusUpdate struct {
	GoalID    string     `json:"goal_id,omitempty"`
	TaskID    string     `json:"task_id"`
	Status    TaskStatus `json:"status"`
	UpdatedAt time.Time  `json:"updated_at"`
}
