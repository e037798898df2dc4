package planner

import (
	"time"

	"github.com/t77yq/goal-planner/internal/dependency"
	"github.com/t77yq/goal-planner/internal/model"
)

// ViewContext is the state every view of one goal renders from. A context is
// never modified after it is committed; changes produce a new context with a
// higher Version.
type ViewContext struct {
	GoalID     string             `json:"goal_id"`
	Goal       model.Goal         `json:"goal"`
	Version    uint64             `json:"version"`
	Layout     *dependency.Layout `json:"layout"`
	Timeline   string             `json:"suggested_timeline,omitempty"`
	RenderedAt time.Time          `json:"rendered_at"`
}

// Tasks returns the collection the view was rendered from
func (v *ViewContext) Tasks() []model.Task {
	return v.Layout.Tasks
}

// Task looks up a task of the view by id
func (v *ViewContext) Task(taskID string) (model.Task, bool) {
	for _, t := range v.Layout.Tasks {
		if t.ID == taskID {
			return t, true
		}
	}
	return model.Task{}, false
}

// withStatus returns a copy of the view's tasks with one status replaced
func (v *ViewContext) withStatus(taskID string, status model.TaskStatus) []model.Task {
	tasks := make([]model.Task, len(v.Layout.Tasks))
	for i, t := range v.Layout.Tasks {
		tasks[i] = t.Clone()
		if t.ID == taskID {
			tasks[i].Status = status
		}
	}
	return tasks
}
