package dependency

import "github.com/t77yq/goal-planner/internal/model"

// DanglingReference is a dependency naming a task absent from the collection
type DanglingReference struct {
	TaskID    string `json:"task_id"`
	MissingID string `json:"missing_id"`
	Title     string `json:"task_title"`
}

// Anomalies summarizes structural problems of a dependency graph. It is a
// diagnostic only; layering always completes regardless of its content.
type Anomalies struct {
	RootCount          int                 `json:"root_count"`
	LeafCount          int                 `json:"leaf_count"`
	HasNoRoots         bool                `json:"has_no_roots"`
	HasCycle           bool                `json:"has_cycle"`
	CycleEdges         []Edge              `json:"cycle_edges"`
	DanglingReferences []DanglingReference `json:"dangling_references"`
}

// Degenerate reports whether the graph lacks a valid starting point or
// needed the cycle guard to be layered
func (a Anomalies) Degenerate() bool {
	return a.HasNoRoots || a.HasCycle
}

// DetectAnomalies builds the dependency map and layering for tasks and
// summarizes their anomalies
func DetectAnomalies(tasks []model.Task) Anomalies {
	return Detect(tasks, BuildMap(tasks), Layer(tasks))
}

// Detect summarizes anomalies from an already built map and layering of the
// same task collection. A repeated task id is counted once, for its first
// record, like the map and the layering do.
func Detect(tasks []model.Task, m *Map, l *Layering) Anomalies {
	ix := indexTasks(tasks)
	a := Anomalies{
		CycleEdges:         []Edge{},
		DanglingReferences: []DanglingReference{},
	}

	for i := range tasks {
		t := &tasks[i]
		if ix[t.ID] != i {
			continue
		}
		if len(ix.targets(t)) == 0 {
			a.RootCount++
		}
		if m.Has(t.ID) && len(m.nodes[t.ID].Dependents) == 0 {
			a.LeafCount++
		}
		for _, ref := range t.Dependencies {
			if _, ok := ix[ref.TaskID]; !ok {
				a.DanglingReferences = append(a.DanglingReferences, DanglingReference{
					TaskID:    t.ID,
					MissingID: ref.TaskID,
					Title:     ref.TaskTitle,
				})
			}
		}
	}

	a.HasNoRoots = len(tasks) > 0 && a.RootCount == 0
	if l != nil && len(l.BrokenEdges) > 0 {
		a.HasCycle = true
		a.CycleEdges = append(a.CycleEdges, l.BrokenEdges...)
	}
	return a
}
