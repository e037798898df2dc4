package dependency

import (
	"math"

	"github.com/t77yq/goal-planner/internal/model"
)

// Stats are the summary figures shown above the task views
type Stats struct {
	TaskCount           int     `json:"task_count"`
	RootCount           int     `json:"root_count"`
	LevelCount          int     `json:"level_count"`
	LeafCount           int     `json:"leaf_count"`
	CompletedCount      int     `json:"completed_count"`
	InProgressCount     int     `json:"in_progress_count"`
	PendingCount        int     `json:"pending_count"`
	BlockedCount        int     `json:"blocked_count"`
	CompletionPercent   int     `json:"completion_percent"`
	TotalEstimatedHours float64 `json:"total_estimated_hours"`
}

// Layout is everything one rendering pass needs, as plain data
type Layout struct {
	Tasks      []model.Task   `json:"tasks"`
	Dependents *Map           `json:"dependents"`
	Levels     [][]string     `json:"levels"`
	LevelOf    map[string]int `json:"level_of"`
	Anomalies  Anomalies      `json:"anomalies"`
	Stats      Stats          `json:"stats"`
}

// Build validates tasks and computes the dependency map, levels and
// anomalies in one pass. The input slice is copied and never modified.
func Build(tasks []model.Task) (*Layout, error) {
	if err := Validate(tasks); err != nil {
		return nil, err
	}

	owned := make([]model.Task, len(tasks))
	for i := range tasks {
		owned[i] = tasks[i].Clone()
	}

	m := BuildMap(owned)
	l := Layer(owned)
	a := Detect(owned, m, l)

	return &Layout{
		Tasks:      owned,
		Dependents: m,
		Levels:     l.IDs(),
		LevelOf:    l.LevelOf,
		Anomalies:  a,
		Stats:      computeStats(owned, l, a),
	}, nil
}

// Select builds the drill-down view of taskID within the layout
func (lo *Layout) Select(taskID string) (*Selection, error) {
	return Select(taskID, lo.Dependents, lo.Tasks)
}

func computeStats(tasks []model.Task, l *Layering, a Anomalies) Stats {
	s := Stats{
		TaskCount:  len(tasks),
		RootCount:  a.RootCount,
		LevelCount: len(l.Levels),
		LeafCount:  a.LeafCount,
	}
	for i := range tasks {
		switch tasks[i].Status {
		case model.TaskStatusCompleted:
			s.CompletedCount++
		case model.TaskStatusInProgress:
			s.InProgressCount++
		case model.TaskStatusPending:
			s.PendingCount++
		case model.TaskStatusBlocked:
			s.BlockedCount++
		}
		if h := tasks[i].EstimatedHours; h != nil {
			s.TotalEstimatedHours += *h
		}
	}
	if s.TaskCount > 0 {
		s.CompletionPercent = int(math.Round(float64(s.CompletedCount) / float64(s.TaskCount) * 100))
	}
	return s
}
