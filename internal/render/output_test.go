package render

import (
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/goal-planner/internal/dependency"
	"github.com/t77yq/goal-planner/internal/model"
)

func init() {
	color.NoColor = true
}

func sampleLayout(t *testing.T) *dependency.Layout {
	t.Helper()
	hours := 4.0
	layout, err := dependency.Build([]model.Task{
		{ID: "1", Title: "Design", Status: model.TaskStatusCompleted, Priority: model.TaskPriorityHigh, EstimatedHours: &hours},
		{ID: "2", Title: "Build", Status: model.TaskStatusInProgress, Priority: model.TaskPriorityCritical,
			Dependencies: []model.DependencyReference{{TaskID: "1", TaskTitle: "Design"}}},
		{ID: "3", Title: "Release", Status: model.TaskStatusPending, Priority: model.TaskPriorityLow,
			Dependencies: []model.DependencyReference{{TaskID: "2", TaskTitle: "Build"}, {TaskID: "9", TaskTitle: "Legal review"}}},
	})
	require.NoError(t, err)
	return layout
}

func TestRenderer_Levels(t *testing.T) {
	var sb strings.Builder
	r := New(&sb)
	layout := sampleLayout(t)

	r.Header(model.Goal{Title: "Launch"}, layout.Stats)
	r.Levels(layout)

	out := sb.String()
	assert.Contains(t, out, "Launch\n")
	assert.Contains(t, out, "3 tasks, 3 levels, 1 roots, 1 leaves, 33% complete, 4.0h estimated")
	assert.Contains(t, out, "Level 0 (1)\n  ✓ 1 Design [high] → 1\n")
	assert.Contains(t, out, "Level 1 (1)\n  ● 2 Build [critical] → 1\n")
	assert.Contains(t, out, "Level 2 (1)\n  ◌ 3 Release [low]\n")
}

func TestRenderer_LevelsEmpty(t *testing.T) {
	var sb strings.Builder
	layout, err := dependency.Build(nil)
	require.NoError(t, err)

	New(&sb).Levels(layout)
	assert.Equal(t, "No tasks\n", sb.String())
}

func TestRenderer_Anomalies(t *testing.T) {
	t.Run("Healthy", func(t *testing.T) {
		var sb strings.Builder
		New(&sb).Anomalies(dependency.Anomalies{RootCount: 1, LeafCount: 2})
		assert.Equal(t, "roots 1, leaves 2\nno anomalies\n", sb.String())
	})

	t.Run("Degenerate", func(t *testing.T) {
		var sb strings.Builder
		a := dependency.DetectAnomalies([]model.Task{
			{ID: "a", Dependencies: []model.DependencyReference{{TaskID: "b"}, {TaskID: "x"}}},
			{ID: "b", Dependencies: []model.DependencyReference{{TaskID: "a"}}},
		})
		New(&sb).Anomalies(a)

		out := sb.String()
		assert.Contains(t, out, "! no task can start")
		assert.Contains(t, out, "cycle: b depends on a (edge ignored)")
		assert.Contains(t, out, "task a depends on missing task x (unknown)")
	})
}

func TestRenderer_Selection(t *testing.T) {
	var sb strings.Builder
	sel, err := sampleLayout(t).Select("3")
	require.NoError(t, err)

	New(&sb).Selection(sel)

	out := sb.String()
	assert.Contains(t, out, "Release 3\nstatus pending, priority low\n")
	assert.Contains(t, out, "Depends on\n  ● 2 Build\n  ? 9 Legal review\n")
	assert.Contains(t, out, "Required by\n  nothing\n")
}
