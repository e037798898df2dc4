package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func newHistory(t *testing.T) *SQLiteLayoutHistory {
	t.Helper()
	history, err := NewSQLiteLayoutHistory(zaptest.NewLogger(t), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })
	return history
}

func record(goalID string, renderedAt time.Time) *LayoutRecord {
	return &LayoutRecord{
		ID:         uuid.New().String(),
		GoalID:     goalID,
		TaskCount:  3,
		LevelCount: 2,
		RootCount:  1,
		LeafCount:  1,
		Layout:     []byte(`{"levels":[["1"],["2","3"]]}`),
		RenderedAt: renderedAt,
	}
}

func TestSQLiteLayoutHistory(t *testing.T) {
	ctx := context.Background()
	history := newHistory(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Store and Get", func(t *testing.T) {
		r := record("goal-a", base)
		require.NoError(t, history.Store(ctx, r))

		got, err := history.Get(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.GoalID, got.GoalID)
		assert.Equal(t, 3, got.TaskCount)
		assert.JSONEq(t, string(r.Layout), string(got.Layout))
		assert.True(t, base.Equal(got.RenderedAt))
	})

	t.Run("Get missing", func(t *testing.T) {
		_, err := history.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})

	t.Run("List and Count with filters", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			r := record("goal-b", base.Add(time.Duration(i)*time.Minute))
			r.HasCycle = i == 2
			require.NoError(t, history.Store(ctx, r))
		}

		records, err := history.List(ctx, HistoryFilter{GoalID: "goal-b"}, 0, 10)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.True(t, records[0].RenderedAt.After(records[1].RenderedAt), "newest first")

		page, err := history.List(ctx, HistoryFilter{GoalID: "goal-b"}, 2, 10)
		require.NoError(t, err)
		assert.Len(t, page, 1)

		degenerate, err := history.List(ctx, HistoryFilter{DegenerateOnly: true}, 0, 10)
		require.NoError(t, err)
		require.Len(t, degenerate, 1)
		assert.True(t, degenerate[0].HasCycle)

		count, err := history.Count(ctx, HistoryFilter{})
		require.NoError(t, err)
		assert.Equal(t, 4, count)

		count, err = history.Count(ctx, HistoryFilter{GoalID: "goal-b", DegenerateOnly: true})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("DeleteBefore", func(t *testing.T) {
		deleted, err := history.DeleteBefore(ctx, base.Add(90*time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(2), deleted)

		count, err := history.Count(ctx, HistoryFilter{})
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestRetentionJob(t *testing.T) {
	ctx := context.Background()
	history := newHistory(t)
	now := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	for i, age := range []time.Duration{time.Hour, 10 * 24 * time.Hour, 40 * 24 * time.Hour} {
		r := record(fmt.Sprintf("goal-%d", i), now.Add(-age))
		require.NoError(t, history.Store(ctx, r))
	}

	job, err := NewRetentionJob(history, "0 0 3 * * *", 30*24*time.Hour, zap.NewNop())
	require.NoError(t, err)
	job.now = func() time.Time { return now }

	deleted, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	job.Start()
	job.Stop()
}

func TestRetentionJob_InvalidConfig(t *testing.T) {
	history := newHistory(t)

	_, err := NewRetentionJob(history, "not a schedule", time.Hour, zap.NewNop())
	assert.Error(t, err)

	_, err = NewRetentionJob(history, "@daily", 0, zap.NewNop())
	assert.Error(t, err)
}
