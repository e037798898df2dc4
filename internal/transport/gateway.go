package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/goal-planner/internal/dependency"
	"github.com/t77yq/goal-planner/internal/model"
	"github.com/t77yq/goal-planner/internal/planner"
)

// Renderer is the part of the planner controller the gateway drives
type Renderer interface {
	Load(ctx context.Context, detail *model.GoalDetail) (*planner.ViewContext, error)
	ApplyStatus(ctx context.Context, update model.StatusUpdate) (*planner.ViewContext, error)
}

// LayoutMessage is published on layout.<goal_id> after every committed render
type LayoutMessage struct {
	GoalID     string             `json:"goal_id"`
	Version    uint64             `json:"version"`
	Goal       model.Goal         `json:"goal"`
	Layout     *dependency.Layout `json:"layout"`
	RenderedAt time.Time          `json:"rendered_at"`
}

// Gateway connects the planner to the planning service over JetStream
type Gateway struct {
	js       nats.JetStreamContext
	logger   *zap.Logger
	renderer Renderer
	subs     []*nats.Subscription
	now      func() time.Time
}

// NewGateway creates the planner stream and subscribes to goal details and
// status echoes
func NewGateway(js nats.JetStreamContext, renderer Renderer, logger *zap.Logger) (*Gateway, error) {
	g := &Gateway{
		js:       js,
		logger:   logger.Named("gateway"),
		renderer: renderer,
		now:      time.Now,
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := g.setupStream(ctx); err != nil {
		return nil, fmt.Errorf("failed to setup stream: %w", err)
	}
	if err := g.setupSubscribers(ctx); err != nil {
		g.Close()
		return nil, fmt.Errorf("failed to setup subscribers: %w", err)
	}
	return g, nil
}

func (g *Gateway) setupStream(ctx context.Context) error {
	_, err := g.js.AddStream(&nats.StreamConfig{
		Name:     plannerStreamName,
		Subjects: plannerSubjects,
		Storage:  nats.FileStorage,
		MaxAge:   streamMaxAge,
		MaxMsgs:  streamMaxMsgs,
	}, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			g.logger.Info("Stream already exists", zap.String("stream", plannerStreamName))
			return nil
		}
		return err
	}

	g.logger.Info("Stream created successfully", zap.String("stream", plannerStreamName))
	return nil
}

func (g *Gateway) setupSubscribers(ctx context.Context) error {
	detailSub, err := g.js.Subscribe(goalDetailSubject, g.handleGoalDetail, nats.DeliverNew(), nats.Context(ctx))
	if err != nil {
		return err
	}
	g.subs = append(g.subs, detailSub)

	echoSub, err := g.js.Subscribe(statusEchoSubject, g.handleStatusEcho, nats.DeliverNew(), nats.Context(ctx))
	if err != nil {
		return err
	}
	g.subs = append(g.subs, echoSub)
	return nil
}

func (g *Gateway) handleGoalDetail(msg *nats.Msg) {
	detail, err := model.DecodeGoalDetail(msg.Data)
	if err != nil {
		g.logger.Error("Failed to decode goal detail", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	view, err := g.renderer.Load(ctx, detail)
	if err != nil {
		g.logRenderError("goal detail", detail.Goal.ID, err)
		return
	}
	if err := g.PublishLayout(ctx, view); err != nil {
		g.logger.Error("Failed to publish layout", zap.String("goal_id", view.GoalID), zap.Error(err))
	}
}

func (g *Gateway) handleStatusEcho(msg *nats.Msg) {
	var update model.StatusUpdate
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		g.logger.Error("Failed to unmarshal status update", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	view, err := g.renderer.ApplyStatus(ctx, update)
	if err != nil {
		g.logRenderError("status echo", update.GoalID, err)
		return
	}
	if err := g.PublishLayout(ctx, view); err != nil {
		g.logger.Error("Failed to publish layout", zap.String("goal_id", view.GoalID), zap.Error(err))
	}
}

func (g *Gateway) logRenderError(source, goalID string, err error) {
	if errors.Is(err, planner.ErrStaleView) {
		g.logger.Debug("Dropped stale render", zap.String("source", source), zap.String("goal_id", goalID))
		return
	}
	g.logger.Warn("Failed to render",
		zap.String("source", source),
		zap.String("goal_id", goalID),
		zap.Error(err))
}

// PublishLayout publishes a committed view on layout.<goal_id>
func (g *Gateway) PublishLayout(ctx context.Context, view *planner.ViewContext) error {
	if err := validToken(view.GoalID); err != nil {
		return err
	}

	data, err := json.Marshal(LayoutMessage{
		GoalID:     view.GoalID,
		Version:    view.Version,
		Goal:       view.Goal,
		Layout:     view.Layout,
		RenderedAt: view.RenderedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal layout: %w", err)
	}

	if _, err := g.js.Publish(layoutSubjectPrefix+view.GoalID, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish layout: %w", err)
	}
	return nil
}

// RequestStatus asks the status collaborator to persist a new status. Local
// state only changes once the echo arrives.
func (g *Gateway) RequestStatus(ctx context.Context, goalID, taskID string, status model.TaskStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", planner.ErrInvalidStatus, status)
	}
	if taskID == "" {
		return fmt.Errorf("%w: empty task id", dependency.ErrTaskNotFound)
	}

	data, err := json.Marshal(model.StatusUpdate{
		GoalID:    goalID,
		TaskID:    taskID,
		Status:    status,
		UpdatedAt: g.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal status update: %w", err)
	}

	if _, err := g.js.Publish(statusRequestSubj, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish status request: %w", err)
	}

	g.logger.Info("Status change requested",
		zap.String("goal_id", goalID),
		zap.String("task_id", taskID),
		zap.String("status", string(status)))
	return nil
}

// Close drops the gateway's subscriptions
func (g *Gateway) Close() {
	for _, sub := range g.subs {
		if err := sub.Unsubscribe(); err != nil {
			g.logger.Warn("Failed to unsubscribe", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
	g.subs = nil
}

func validToken(goalID string) error {
	if goalID == "" || strings.ContainsAny(goalID, ".*> \t\r\n") {
		return fmt.Errorf("goal id %q is not a valid subject token", goalID)
	}
	return nil
}
