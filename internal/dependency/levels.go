package dependency

import "github.com/t77yq/goal-planner/internal/model"

// Level is the set of tasks sharing one layering depth
type Level []model.Task

// Edge is a dependency edge: From depends on To
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Layering is the result of assigning a level to every task
type Layering struct {
	Levels  []Level
	LevelOf map[string]int
	// BrokenEdges were skipped because following them would re-enter a task
	// whose level was still being computed. Empty for an acyclic collection.
	BrokenEdges []Edge
}

type visitState uint8

const (
	unvisited visitState = iota
	inProgress
	done
)

// AssignLevels orders tasks into execution levels. See Layer.
func AssignLevels(tasks []model.Task) []Level {
	return Layer(tasks).Levels
}

// Layer assigns each task the length of the longest dependency chain below
// it: tasks without non-dangling dependencies sit at level 0, every other
// task one above its deepest dependency. Each task is computed once and
// appended to its level bucket when finalized, so tasks within a level keep
// the order in which they were computed.
//
// A dependency that points back at a task still in progress closes a cycle.
// That edge is recorded in BrokenEdges and ignored, which keeps the
// traversal finite for any input.
func Layer(tasks []model.Task) *Layering {
	ix := indexTasks(tasks)
	l := &Layering{
		Levels:  []Level{},
		LevelOf: make(map[string]int, len(tasks)),
	}
	state := make(map[string]visitState, len(tasks))

	var visit func(i int)
	visit = func(i int) {
		t := &tasks[i]
		state[t.ID] = inProgress

		level := 0
		for _, dep := range ix.targets(t) {
			switch state[dep] {
			case inProgress:
				l.BrokenEdges = append(l.BrokenEdges, Edge{From: t.ID, To: dep})
				continue
			case unvisited:
				visit(ix[dep])
			}
			if d := l.LevelOf[dep] + 1; d > level {
				level = d
			}
		}

		state[t.ID] = done
		l.LevelOf[t.ID] = level
		for len(l.Levels) <= level {
			l.Levels = append(l.Levels, Level{})
		}
		l.Levels[level] = append(l.Levels[level], *t)
	}

	for i := range tasks {
		if state[tasks[i].ID] == unvisited {
			visit(i)
		}
	}
	return l
}

// IDs returns the task ids of every level
func (l *Layering) IDs() [][]string {
	out := make([][]string, len(l.Levels))
	for i, level := range l.Levels {
		out[i] = make([]string, len(level))
		for j := range level {
			out[i][j] = level[j].ID
		}
	}
	return out
}
