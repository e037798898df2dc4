package monitor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/goal-planner/internal/dependency"
	"github.com/t77yq/goal-planner/internal/model"
	"github.com/t77yq/goal-planner/internal/testutil"
)

func TestAnomalyNotifier_Rules(t *testing.T) {
	_, js := testutil.StartJetStream(t)
	notifier := NewAnomalyNotifier(zap.NewNop(), js)

	rule := &model.AlertRule{
		Name:     "Dependency cycle",
		Type:     model.AlertTypeCycle,
		Severity: model.AlertSeverityWarning,
	}
	require.NoError(t, notifier.AddRule(rule))
	require.NotEmpty(t, rule.ID)
	require.False(t, rule.CreatedAt.IsZero())
	require.Equal(t, rule.CreatedAt, rule.UpdatedAt)

	t.Run("Update", func(t *testing.T) {
		time.Sleep(time.Millisecond)
		rule.Severity = model.AlertSeverityCritical
		require.NoError(t, notifier.UpdateRule(rule))

		updated, err := notifier.GetRule(rule.ID)
		require.NoError(t, err)
		assert.Equal(t, model.AlertSeverityCritical, updated.Severity)
		assert.True(t, updated.UpdatedAt.After(updated.CreatedAt))
	})

	t.Run("Unknown type rejected", func(t *testing.T) {
		err := notifier.AddRule(&model.AlertRule{Name: "cpu", Type: "resource_usage"})
		assert.Error(t, err)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, notifier.DeleteRule(rule.ID))
		_, err := notifier.GetRule(rule.ID)
		assert.Error(t, err)
		assert.Error(t, notifier.DeleteRule(rule.ID))
		assert.Error(t, notifier.UpdateRule(rule))
	})
}

func TestAnomalyNotifier_Notify(t *testing.T) {
	_, js := testutil.StartJetStream(t)
	notifier := NewAnomalyNotifier(zaptest.NewLogger(t), js)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, notifier.Setup(ctx))
	require.NoError(t, notifier.Setup(ctx), "setup is idempotent")

	for _, rule := range DefaultRules() {
		require.NoError(t, notifier.AddRule(rule))
	}

	t.Run("Cycle without roots", func(t *testing.T) {
		noRoots := testutil.Subscribe(t, js, "alert.no_roots")
		cycles := testutil.Subscribe(t, js, "alert.cycle")

		tasks := []model.Task{
			{ID: "1", Title: "one", Status: model.TaskStatusPending, Priority: model.TaskPriorityLow,
				Dependencies: []model.DependencyReference{{TaskID: "2"}}},
			{ID: "2", Title: "two", Status: model.TaskStatusPending, Priority: model.TaskPriorityLow,
				Dependencies: []model.DependencyReference{{TaskID: "1"}}},
		}
		alerts, err := notifier.Notify(ctx, "goal-1", dependency.DetectAnomalies(tasks))
		require.NoError(t, err)
		require.Len(t, alerts, 2)

		msg, err := noRoots.NextMsg(5 * time.Second)
		require.NoError(t, err)
		var alert model.Alert
		require.NoError(t, json.Unmarshal(msg.Data, &alert))
		assert.Equal(t, "goal-1", alert.GoalID)
		assert.Equal(t, model.AlertTypeNoRoots, alert.Type)
		assert.Equal(t, model.AlertSeverityError, alert.Severity)

		msg, err = cycles.NextMsg(5 * time.Second)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(msg.Data, &alert))
		assert.Equal(t, model.AlertTypeCycle, alert.Type)
		assert.Equal(t, []interface{}{"2->1"}, alert.Data["cycle_edges"])
	})

	t.Run("Healthy graph raises nothing", func(t *testing.T) {
		alerts, err := notifier.Notify(ctx, "goal-2", dependency.Anomalies{RootCount: 1, LeafCount: 1})
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})

	t.Run("Silenced rules are skipped", func(t *testing.T) {
		for _, rule := range notifier.ListRules() {
			if rule.Type == model.AlertTypeDanglingReference {
				rule.Silenced = true
				require.NoError(t, notifier.UpdateRule(rule))
			}
		}
		alerts, err := notifier.Notify(ctx, "goal-3", dependency.Anomalies{
			RootCount:          1,
			DanglingReferences: []dependency.DanglingReference{{TaskID: "1", MissingID: "99"}},
		})
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})
}
