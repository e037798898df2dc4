package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/goal-planner/internal/dependency"
	"github.com/t77yq/goal-planner/internal/model"
	"github.com/t77yq/goal-planner/internal/storage"
)

// HistoryRecorder persists rendered layouts
type HistoryRecorder interface {
	Store(ctx context.Context, record *storage.LayoutRecord) error
}

// AnomalyNotifier raises alerts for degenerate layouts
type AnomalyNotifier interface {
	Notify(ctx context.Context, goalID string, anomalies dependency.Anomalies) ([]*model.Alert, error)
}

// LayoutObserver counts rendering passes
type LayoutObserver interface {
	ObserveLayout(goalID string, layout *dependency.Layout)
}

const maxApplyAttempts = 3

// Option configures a Controller
type Option func(*Controller)

// WithHistory records every committed layout
func WithHistory(h HistoryRecorder) Option {
	return func(c *Controller) { c.history = h }
}

// WithNotifier forwards anomalies of every committed layout
func WithNotifier(n AnomalyNotifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithObserver reports every committed layout
func WithObserver(o LayoutObserver) Option {
	return func(c *Controller) { c.observer = o }
}

// Controller owns the current ViewContext of every goal and is the only
// place new contexts are created
type Controller struct {
	logger   *zap.Logger
	history  HistoryRecorder
	notifier AnomalyNotifier
	observer LayoutObserver
	now      func() time.Time

	mu      sync.RWMutex
	views   map[string]*ViewContext
	version uint64
}

// NewController creates a controller with no loaded goals
func NewController(logger *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		logger: logger.Named("planner"),
		now:    time.Now,
		views:  make(map[string]*ViewContext),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load renders a goal's task collection and makes it the goal's current view
func (c *Controller) Load(ctx context.Context, detail *model.GoalDetail) (*ViewContext, error) {
	if detail == nil || detail.Goal.ID == "" {
		return nil, fmt.Errorf("%w: goal id is empty", ErrInvalidGoal)
	}
	return c.render(ctx, detail.Goal, detail.Tasks, detail.SuggestedTimeline, 0)
}

// ApplyStatus applies a status echo from the status collaborator. When the
// update carries no goal id, the goal holding the task is used. The change is
// rebased onto the goal's current view if that view was replaced while the
// echo was being rendered.
func (c *Controller) ApplyStatus(ctx context.Context, update model.StatusUpdate) (*ViewContext, error) {
	if !update.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, update.Status)
	}

	goalID := update.GoalID
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		view, err := c.viewFor(goalID, update.TaskID)
		if err != nil {
			return nil, err
		}
		goalID = view.GoalID

		task, ok := view.Task(update.TaskID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", dependency.ErrTaskNotFound, update.TaskID)
		}
		if task.Status == update.Status {
			return view, nil
		}

		c.logger.Info("Applying status update",
			zap.String("goal_id", view.GoalID),
			zap.String("task_id", update.TaskID),
			zap.String("from", string(task.Status)),
			zap.String("to", string(update.Status)),
			zap.Uint64("base_version", view.Version))

		next, err := c.render(ctx, view.Goal, view.withStatus(update.TaskID, update.Status), view.Timeline, view.Version)
		if errors.Is(err, ErrStaleView) {
			continue
		}
		return next, err
	}
	return nil, fmt.Errorf("%w: goal %s changed during %d status applications", ErrStaleView, goalID, maxApplyAttempts)
}

// Advance returns the status change a click on the task's status badge
// requests. The current view is not touched; the echo of the request is
// what changes it.
func (c *Controller) Advance(goalID, taskID string) (model.StatusUpdate, error) {
	view, ok := c.View(goalID)
	if !ok {
		return model.StatusUpdate{}, fmt.Errorf("%w: %s", ErrGoalNotFound, goalID)
	}
	task, ok := view.Task(taskID)
	if !ok {
		return model.StatusUpdate{}, fmt.Errorf("%w: %s", dependency.ErrTaskNotFound, taskID)
	}
	return model.StatusUpdate{
		GoalID:    goalID,
		TaskID:    taskID,
		Status:    task.Status.Next(),
		UpdatedAt: c.now(),
	}, nil
}

// Select returns the drill-down view of a task in the goal's current view
func (c *Controller) Select(goalID, taskID string) (*dependency.Selection, error) {
	view, ok := c.View(goalID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGoalNotFound, goalID)
	}
	return view.Layout.Select(taskID)
}

// View returns the current view of a goal
func (c *Controller) View(goalID string) (*ViewContext, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.views[goalID]
	return v, ok
}

// Goals lists the ids of all loaded goals
func (c *Controller) Goals() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.views))
	for id := range c.views {
		ids = append(ids, id)
	}
	c.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Forget drops the view of a goal
func (c *Controller) Forget(goalID string) {
	c.mu.Lock()
	delete(c.views, goalID)
	c.mu.Unlock()
}

func (c *Controller) viewFor(goalID, taskID string) (*ViewContext, error) {
	if goalID != "" {
		view, ok := c.View(goalID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrGoalNotFound, goalID)
		}
		return view, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, view := range c.views {
		if _, ok := view.Task(taskID); ok {
			return view, nil
		}
	}
	return nil, fmt.Errorf("%w: no goal holds task %s", ErrGoalNotFound, taskID)
}

func (c *Controller) nextVersion() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
	return c.version
}

// render builds and commits a new view. A non-zero base is the version the
// tasks were derived from; the commit is refused once that view is replaced.
func (c *Controller) render(ctx context.Context, goal model.Goal, tasks []model.Task, timeline string, base uint64) (*ViewContext, error) {
	version := c.nextVersion()

	layout, err := dependency.Build(tasks)
	if err != nil {
		c.logger.Error("Failed to render goal",
			zap.String("goal_id", goal.ID),
			zap.Error(err))
		return nil, err
	}

	view := &ViewContext{
		GoalID:     goal.ID,
		Goal:       goal,
		Version:    version,
		Layout:     layout,
		Timeline:   timeline,
		RenderedAt: c.now(),
	}
	if !c.commit(view, base) {
		c.logger.Debug("Discarding stale view",
			zap.String("goal_id", goal.ID),
			zap.Uint64("version", version))
		return nil, fmt.Errorf("%w: goal %s version %d", ErrStaleView, goal.ID, version)
	}

	c.logger.Info("Goal rendered",
		zap.String("goal_id", goal.ID),
		zap.Uint64("version", version),
		zap.Int("tasks", layout.Stats.TaskCount),
		zap.Int("levels", layout.Stats.LevelCount))
	c.sideChannels(ctx, view)
	return view, nil
}

func (c *Controller) commit(view *ViewContext, base uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.views[view.GoalID]
	if base != 0 && (!ok || cur.Version != base) {
		return false
	}
	if ok && cur.Version > view.Version {
		return false
	}
	c.views[view.GoalID] = view
	return true
}

// sideChannels never fails the rendering pass
func (c *Controller) sideChannels(ctx context.Context, view *ViewContext) {
	a := view.Layout.Anomalies
	if a.Degenerate() {
		c.logger.Warn("Dependency graph is degenerate",
			zap.String("goal_id", view.GoalID),
			zap.Bool("has_no_roots", a.HasNoRoots),
			zap.Bool("has_cycle", a.HasCycle),
			zap.Int("cycle_edges", len(a.CycleEdges)),
			zap.Int("dangling_references", len(a.DanglingReferences)))
	}

	if c.observer != nil {
		c.observer.ObserveLayout(view.GoalID, view.Layout)
	}

	if c.history != nil {
		if err := c.record(ctx, view); err != nil {
			c.logger.Error("Failed to record layout", zap.String("goal_id", view.GoalID), zap.Error(err))
		}
	}

	if c.notifier != nil {
		if _, err := c.notifier.Notify(ctx, view.GoalID, a); err != nil {
			c.logger.Error("Failed to notify anomalies", zap.String("goal_id", view.GoalID), zap.Error(err))
		}
	}
}

func (c *Controller) record(ctx context.Context, view *ViewContext) error {
	data, err := json.Marshal(view.Layout)
	if err != nil {
		return fmt.Errorf("failed to marshal layout: %w", err)
	}
	stats := view.Layout.Stats
	return c.history.Store(ctx, &storage.LayoutRecord{
		ID:         uuid.New().String(),
		GoalID:     view.GoalID,
		TaskCount:  stats.TaskCount,
		LevelCount: stats.LevelCount,
		RootCount:  stats.RootCount,
		LeafCount:  stats.LeafCount,
		HasNoRoots: view.Layout.Anomalies.HasNoRoots,
		HasCycle:   view.Layout.Anomalies.HasCycle,
		Layout:     data,
		RenderedAt: view.RenderedAt,
	})
}
