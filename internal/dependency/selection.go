package dependency

import (
	"fmt"

	"github.com/t77yq/goal-planner/internal/model"
)

// ResolvedDependency is a dependency reference looked up against the live
// collection. Title comes from the referenced task when it exists and from
// the reference's cached title when it dangles.
type ResolvedDependency struct {
	TaskID   string      `json:"task_id"`
	Title    string      `json:"title"`
	Dangling bool        `json:"dangling"`
	Task     *model.Task `json:"task,omitempty"`
}

// Selection answers what a task depends on and what depends on it
type Selection struct {
	Task         model.Task           `json:"task"`
	Dependencies []ResolvedDependency `json:"dependencies"`
	Dependents   []model.Task         `json:"dependents"`
}

// Select builds the drill-down view of taskID
func Select(taskID string, m *Map, tasks []model.Task) (*Selection, error) {
	ix := indexTasks(tasks)
	pos, ok := ix[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	sel := &Selection{
		Task:         tasks[pos].Clone(),
		Dependencies: make([]ResolvedDependency, 0, len(tasks[pos].Dependencies)),
		Dependents:   []model.Task{},
	}
	for _, ref := range tasks[pos].Dependencies {
		dep := ResolvedDependency{TaskID: ref.TaskID}
		if i, ok := ix[ref.TaskID]; ok {
			t := tasks[i].Clone()
			dep.Title = t.Title
			dep.Task = &t
		} else {
			dep.Title = ref.TaskTitle
			dep.Dangling = true
		}
		sel.Dependencies = append(sel.Dependencies, dep)
	}
	for _, id := range m.Dependents(taskID) {
		if i, ok := ix[id]; ok {
			sel.Dependents = append(sel.Dependents, tasks[i].Clone())
		}
	}
	return sel, nil
}
