package dependency

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/goal-planner/internal/model"
)

func newTask(id string, deps ...string) model.Task {
	t := model.Task{
		ID:           id,
		Title:        "Task " + id,
		Status:       model.TaskStatusPending,
		Priority:     model.TaskPriorityMedium,
		Dependencies: []model.DependencyReference{},
	}
	for _, d := range deps {
		t.Dependencies = append(t.Dependencies, model.DependencyReference{TaskID: d, TaskTitle: "Task " + d})
	}
	return t
}

func levelIDs(levels []Level) [][]string {
	out := make([][]string, len(levels))
	for i, level := range levels {
		out[i] = []string{}
		for _, t := range level {
			out[i] = append(out[i], t.ID)
		}
	}
	return out
}

func TestAssignLevels_Scenarios(t *testing.T) {
	tests := []struct {
		name  string
		tasks []model.Task
		want  [][]string
	}{
		{
			name:  "chain with shortcut",
			tasks: []model.Task{newTask("1"), newTask("2", "1"), newTask("3", "1", "2")},
			want:  [][]string{{"1"}, {"2"}, {"3"}},
		},
		{
			name:  "diamond",
			tasks: []model.Task{newTask("1"), newTask("2", "1"), newTask("3", "1"), newTask("4", "2", "3")},
			want:  [][]string{{"1"}, {"2", "3"}, {"4"}},
		},
		{
			name:  "dangling dependency ignored",
			tasks: []model.Task{newTask("1", "99")},
			want:  [][]string{{"1"}},
		},
		{
			name:  "dependents listed before their dependencies",
			tasks: []model.Task{newTask("c", "b"), newTask("b", "a"), newTask("a")},
			want:  [][]string{{"a"}, {"b"}, {"c"}},
		},
		{
			name:  "independent tasks keep input order",
			tasks: []model.Task{newTask("x"), newTask("y"), newTask("z")},
			want:  [][]string{{"x", "y", "z"}},
		},
		{
			name:  "empty collection",
			tasks: []model.Task{},
			want:  [][]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, levelIDs(AssignLevels(tt.tasks)))
		})
	}
}

func TestLayer_TwoCycleTerminates(t *testing.T) {
	tasks := []model.Task{newTask("1", "2"), newTask("2", "1")}

	l := Layer(tasks)
	assert.Equal(t, [][]string{{"2"}, {"1"}}, l.IDs())
	assert.Equal(t, []Edge{{From: "2", To: "1"}}, l.BrokenEdges)

	a := Detect(tasks, BuildMap(tasks), l)
	assert.True(t, a.HasNoRoots)
	assert.True(t, a.HasCycle)
	assert.Equal(t, 0, a.RootCount)
	assert.Equal(t, 0, a.LeafCount)
}

func TestLayer_SelfReferenceIsOneCycle(t *testing.T) {
	tasks := []model.Task{newTask("a", "a"), newTask("b", "a")}

	l := Layer(tasks)
	assert.Equal(t, [][]string{{"a"}, {"b"}}, l.IDs())
	assert.Equal(t, []Edge{{From: "a", To: "a"}}, l.BrokenEdges)

	a := DetectAnomalies(tasks)
	assert.True(t, a.HasCycle)
	assert.True(t, a.HasNoRoots, "a self-referencing task is not a root")
}

func TestLayer_CycleBehindRoot(t *testing.T) {
	// a needs r and c, c needs b, b needs a
	tasks := []model.Task{
		newTask("r"),
		newTask("a", "r", "c"),
		newTask("b", "a"),
		newTask("c", "b"),
	}

	l := Layer(tasks)
	assertEveryTaskOnce(t, tasks, l)
	require.Len(t, l.BrokenEdges, 1)
	assert.Equal(t, Edge{From: "b", To: "a"}, l.BrokenEdges[0])
	assert.Equal(t, map[string]int{"r": 0, "b": 0, "c": 1, "a": 2}, l.LevelOf)

	a := Detect(tasks, BuildMap(tasks), l)
	assert.False(t, a.HasNoRoots)
	assert.True(t, a.HasCycle)
	assert.Equal(t, 1, a.RootCount)
}

func TestBuildMap(t *testing.T) {
	tasks := []model.Task{
		newTask("1"),
		newTask("2", "1", "1"),
		newTask("3", "1", "2", "99"),
	}

	m := BuildMap(tasks)
	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []string{"2", "3"}, m.Dependents("1"), "repeated references count once")
	assert.Equal(t, []string{"3"}, m.Dependents("2"))
	assert.Empty(t, m.Dependents("3"))
	assert.False(t, m.Has("99"))
	assert.Nil(t, m.Dependents("99"))

	nodes := m.Nodes()
	require.Len(t, nodes, 3)
	assert.Equal(t, "1", nodes[0].TaskID)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"1":{"dependents":["2","3"]},"2":{"dependents":["3"]},"3":{"dependents":[]}}`, string(data))
}

func TestMap_JSONRoundTrip(t *testing.T) {
	// task order differs from sorted key order
	tasks := []model.Task{newTask("b"), newTask("a", "b"), newTask("c", "b", "a")}
	m := BuildMap(tasks)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"b":{"dependents":["a","c"]},"a":{"dependents":["c"]},"c":{"dependents":[]}}`, string(data))

	var decoded Map
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, m.Len(), decoded.Len())
	assert.Equal(t, m.Nodes(), decoded.Nodes())
	assert.Equal(t, []string{"a", "c"}, decoded.Dependents("b"))
	assert.True(t, decoded.Has("c"))

	assert.Error(t, json.Unmarshal([]byte(`["b"]`), &decoded))
	assert.Error(t, json.Unmarshal([]byte(`{"b":{"dependents":"a"}}`), &decoded))
}

func TestBuildMap_DanglingOnly(t *testing.T) {
	m := BuildMap([]model.Task{newTask("1", "99")})
	assert.Equal(t, []string{}, m.Dependents("1"))
	assert.False(t, m.Has("99"))
}

func TestDetectAnomalies(t *testing.T) {
	t.Run("empty collection", func(t *testing.T) {
		a := DetectAnomalies(nil)
		assert.Equal(t, 0, a.RootCount)
		assert.Equal(t, 0, a.LeafCount)
		assert.False(t, a.HasNoRoots)
		assert.False(t, a.Degenerate())
	})

	t.Run("repeated id counts its first record only", func(t *testing.T) {
		tasks := []model.Task{newTask("a"), newTask("a", "x"), newTask("b", "a")}
		a := DetectAnomalies(tasks)
		assert.Equal(t, 1, a.RootCount)
		assert.Equal(t, 1, a.LeafCount)
		assert.Empty(t, a.DanglingReferences)
		assert.Equal(t, [][]string{{"a"}, {"b"}}, Layer(tasks).IDs())
	})

	t.Run("fully dangling task is a root", func(t *testing.T) {
		a := DetectAnomalies([]model.Task{newTask("1", "99"), newTask("2", "1")})
		assert.Equal(t, 1, a.RootCount)
		assert.Equal(t, 1, a.LeafCount)
		assert.False(t, a.HasNoRoots)
		assert.Equal(t, []DanglingReference{{TaskID: "1", MissingID: "99", Title: "Task 99"}}, a.DanglingReferences)
	})

	t.Run("diamond", func(t *testing.T) {
		a := DetectAnomalies([]model.Task{newTask("1"), newTask("2", "1"), newTask("3", "1"), newTask("4", "2", "3")})
		assert.Equal(t, 1, a.RootCount)
		assert.Equal(t, 1, a.LeafCount)
		assert.False(t, a.HasCycle)
		assert.Empty(t, a.CycleEdges)
	})
}

func TestProperties_RandomGraphs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		tasks := randomTasks(rng, rng.Intn(15))

		l := Layer(tasks)
		m := BuildMap(tasks)
		a := Detect(tasks, m, l)

		// every task in exactly one bucket
		assertEveryTaskOnce(t, tasks, l)

		// no forward violation outside the edges the cycle guard broke
		broken := make(map[Edge]bool)
		for _, e := range l.BrokenEdges {
			broken[e] = true
		}
		for _, task := range tasks {
			for _, ref := range task.Dependencies {
				if !m.Has(ref.TaskID) || broken[Edge{From: task.ID, To: ref.TaskID}] {
					continue
				}
				assert.Less(t, l.LevelOf[ref.TaskID], l.LevelOf[task.ID],
					"round %d: %s depends on %s", round, task.ID, ref.TaskID)
			}
		}

		// symmetry between dependencies and dependents
		for _, task := range tasks {
			for _, ref := range task.Dependencies {
				if m.Has(ref.TaskID) {
					assert.Contains(t, m.Dependents(ref.TaskID), task.ID)
				}
			}
			for _, dependent := range m.Dependents(task.ID) {
				assert.True(t, declares(tasks, dependent, task.ID))
			}
		}

		// root detection
		hasRoot := false
		for _, task := range tasks {
			allDangling := true
			for _, ref := range task.Dependencies {
				if m.Has(ref.TaskID) {
					allDangling = false
				}
			}
			if allDangling {
				hasRoot = true
			}
		}
		assert.Equal(t, len(tasks) > 0 && !hasRoot, a.HasNoRoots)

		// idempotence
		again := Layer(tasks)
		assert.Equal(t, l.IDs(), again.IDs())
		assert.Equal(t, a, Detect(tasks, BuildMap(tasks), again))
	}
}

func TestLayer_LongChain(t *testing.T) {
	const n = 5000
	tasks := make([]model.Task, 0, n)
	tasks = append(tasks, newTask("0"))
	for i := 1; i < n; i++ {
		tasks = append(tasks, newTask(fmt.Sprint(i), fmt.Sprint(i-1)))
	}
	// close the loop so the whole chain is one cycle
	tasks[0] = newTask("0", fmt.Sprint(n-1))

	l := Layer(tasks)
	assert.Len(t, l.Levels, n)
	assert.Len(t, l.BrokenEdges, 1)
}

func TestValidate(t *testing.T) {
	start := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	before := start.Add(-24 * time.Hour)
	negative := -1.0

	tests := []struct {
		name   string
		mutate func(*model.Task)
		kind   error
		field  string
	}{
		{"missing id", func(t *model.Task) { t.ID = "" }, ErrMalformedTask, "missing id"},
		{"missing title", func(t *model.Task) { t.Title = "" }, ErrMalformedTask, "missing title"},
		{"bad status", func(t *model.Task) { t.Status = "done" }, ErrMalformedTask, `invalid status "done"`},
		{"bad priority", func(t *model.Task) { t.Priority = "" }, ErrMalformedTask, `invalid priority ""`},
		{"negative hours", func(t *model.Task) { t.EstimatedHours = &negative }, ErrMalformedTask, "negative estimated_hours"},
		{"end before start", func(t *model.Task) { t.StartDate = &start; t.EndDate = &before }, ErrMalformedTask, "end_date before start_date"},
		{"empty dependency id", func(t *model.Task) {
			t.Dependencies = []model.DependencyReference{{TaskTitle: "ghost"}}
		}, ErrMalformedTask, "dependency #0 missing task_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := newTask("b")
			tt.mutate(&task)

			err := Validate([]model.Task{newTask("a"), task})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)

			var taskErr *TaskError
			require.ErrorAs(t, err, &taskErr)
			assert.Equal(t, tt.field, taskErr.Field)
			assert.Equal(t, 1, taskErr.Index)
		})
	}

	t.Run("duplicate id", func(t *testing.T) {
		err := Validate([]model.Task{newTask("a"), newTask("a")})
		assert.ErrorIs(t, err, ErrDuplicateTask)
		assert.Contains(t, err.Error(), "task a")
	})

	t.Run("dangling and cyclic references are valid", func(t *testing.T) {
		assert.NoError(t, Validate([]model.Task{newTask("a", "b"), newTask("b", "a"), newTask("c", "zzz")}))
	})

	t.Run("missing id names the position", func(t *testing.T) {
		err := Validate([]model.Task{{Title: "nameless"}})
		assert.EqualError(t, err, "malformed task: task #0: missing id")
	})
}

func TestSelect(t *testing.T) {
	tasks := []model.Task{
		newTask("1"),
		newTask("2", "1"),
		newTask("3", "1", "2", "99"),
	}
	tasks[0].Title = "Renamed"
	m := BuildMap(tasks)

	sel, err := Select("3", m, tasks)
	require.NoError(t, err)
	assert.Equal(t, "3", sel.Task.ID)
	require.Len(t, sel.Dependencies, 3)
	assert.Equal(t, "Renamed", sel.Dependencies[0].Title, "live title wins over the cached copy")
	assert.False(t, sel.Dependencies[0].Dangling)
	require.NotNil(t, sel.Dependencies[0].Task)
	assert.True(t, sel.Dependencies[2].Dangling)
	assert.Equal(t, "Task 99", sel.Dependencies[2].Title)
	assert.Nil(t, sel.Dependencies[2].Task)
	assert.Empty(t, sel.Dependents)

	sel, err = Select("1", m, tasks)
	require.NoError(t, err)
	require.Len(t, sel.Dependents, 2)
	assert.Equal(t, "2", sel.Dependents[0].ID)
	assert.Equal(t, "3", sel.Dependents[1].ID)

	_, err = Select("nope", m, tasks)
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestBuild(t *testing.T) {
	hours := 4.0
	tasks := []model.Task{newTask("1"), newTask("2", "1"), newTask("3", "1"), newTask("4", "2", "3")}
	tasks[0].Status = model.TaskStatusCompleted
	tasks[1].Status = model.TaskStatusInProgress
	tasks[2].Status = model.TaskStatusBlocked
	tasks[0].EstimatedHours = &hours
	tasks[3].EstimatedHours = &hours

	layout, err := Build(tasks)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"1"}, {"2", "3"}, {"4"}}, layout.Levels)
	assert.Equal(t, map[string]int{"1": 0, "2": 1, "3": 1, "4": 2}, layout.LevelOf)
	assert.Equal(t, Stats{
		TaskCount:           4,
		RootCount:           1,
		LevelCount:          3,
		LeafCount:           1,
		CompletedCount:      1,
		InProgressCount:     1,
		PendingCount:        1,
		BlockedCount:        1,
		CompletionPercent:   25,
		TotalEstimatedHours: 8,
	}, layout.Stats)

	// the layout owns its copy of the tasks
	tasks[0].Title = "changed"
	assert.Equal(t, "Task 1", layout.Tasks[0].Title)

	sel, err := layout.Select("4")
	require.NoError(t, err)
	assert.Len(t, sel.Dependencies, 2)

	data, err := json.Marshal(layout)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"levels":[["1"],["2","3"],["4"]]`)

	var decoded Layout
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Dependents)
	assert.Equal(t, 4, decoded.Dependents.Len())
	assert.Equal(t, []string{"2", "3"}, decoded.Dependents.Dependents("1"))
	assert.Equal(t, layout.Dependents.Nodes(), decoded.Dependents.Nodes())
	assert.Equal(t, layout.Levels, decoded.Levels)
	assert.Equal(t, layout.Anomalies, decoded.Anomalies)
}

func TestBuild_Empty(t *testing.T) {
	layout, err := Build(nil)
	require.NoError(t, err)
	assert.Equal(t, [][]string{}, layout.Levels)
	assert.Equal(t, 0, layout.Stats.CompletionPercent)
	assert.False(t, layout.Anomalies.HasNoRoots)
}

func TestBuild_RejectsMalformed(t *testing.T) {
	bad := newTask("x")
	bad.Status = "archived"
	_, err := Build([]model.Task{newTask("a"), bad})
	assert.ErrorIs(t, err, ErrMalformedTask)
	assert.Contains(t, err.Error(), "task x")
}

func randomTasks(rng *rand.Rand, n int) []model.Task {
	tasks := make([]model.Task, n)
	for i := range tasks {
		tasks[i] = newTask(fmt.Sprint(i))
		for d := rng.Intn(4); d > 0; d-- {
			// occasionally point outside the collection
			target := rng.Intn(n + 2)
			tasks[i].Dependencies = append(tasks[i].Dependencies, model.DependencyReference{TaskID: fmt.Sprint(target)})
		}
	}
	return tasks
}

func declares(tasks []model.Task, from, to string) bool {
	for _, t := range tasks {
		if t.ID != from {
			continue
		}
		for _, ref := range t.Dependencies {
			if ref.TaskID == to {
				return true
			}
		}
	}
	return false
}

func assertEveryTaskOnce(t *testing.T, tasks []model.Task, l *Layering) {
	t.Helper()
	count := make(map[string]int)
	for i, level := range l.Levels {
		for _, task := range level {
			count[task.ID]++
			assert.Equal(t, i, l.LevelOf[task.ID])
		}
	}
	assert.Len(t, count, len(tasks))
	for id, c := range count {
		assert.Equal(t, 1, c, "task %s placed %d times", id, c)
	}
}
