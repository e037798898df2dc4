package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/t77yq/goal-planner/internal/dependency"
)

const (
	metricsStreamName = "METRICS"
	metricsSubject    = "metrics.planner"
)

// PlannerMetrics is the periodic health report of the planner service
type PlannerMetrics struct {
	Timestamp         time.Time `json:"timestamp"`
	CPUUsage          float64   `json:"cpu_usage"`
	MemoryUsage       float64   `json:"memory_usage"`
	LayoutsRendered   int64     `json:"layouts_rendered"`
	DegenerateLayouts int64     `json:"degenerate_layouts"`
	TasksLayered      int64     `json:"tasks_layered"`
	Goals             int       `json:"goals"`
}

// MetricsCollector counts rendered layouts and publishes them together with
// host resource usage
type MetricsCollector struct {
	logger   *zap.Logger
	js       nats.JetStreamContext
	interval time.Duration

	mu         sync.RWMutex
	rendered   int64
	degenerate int64
	tasks      int64
	goals      map[string]struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(js nats.JetStreamContext, interval time.Duration, logger *zap.Logger) *MetricsCollector {
	return &MetricsCollector{
		logger:   logger.Named("metrics-collector"),
		js:       js,
		interval: interval,
		goals:    make(map[string]struct{}),
		stop:     make(chan struct{}),
	}
}

// ObserveLayout records one rendering pass
func (c *MetricsCollector) ObserveLayout(goalID string, layout *dependency.Layout) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rendered++
	c.tasks += int64(len(layout.Tasks))
	if layout.Anomalies.Degenerate() {
		c.degenerate++
	}
	c.goals[goalID] = struct{}{}
}

// Setup creates the metrics stream if it does not exist yet
func (c *MetricsCollector) Setup(ctx context.Context) error {
	return ensureStream(ctx, c.js, c.logger, metricsStreamName, "metrics.*")
}

// Start starts the metrics collection loop
func (c *MetricsCollector) Start(ctx context.Context) error {
	if c.interval <= 0 {
		return fmt.Errorf("metrics interval must be positive, got %s", c.interval)
	}
	c.logger.Info("Starting metrics collector", zap.Duration("interval", c.interval))
	go c.collectLoop(ctx)
	return nil
}

// Stop stops the metrics collector
func (c *MetricsCollector) Stop() {
	c.stopOnce.Do(func() {
		c.logger.Info("Stopping metrics collector")
		close(c.stop)
	})
}

// collectLoop runs the metrics collection loop
func (c *MetricsCollector) collectLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.Publish(ctx); err != nil {
				c.logger.Error("Failed to publish metrics", zap.Error(err))
			}
		}
	}
}

// Snapshot returns the current counters with host usage filled in
func (c *MetricsCollector) Snapshot() PlannerMetrics {
	c.mu.RLock()
	m := PlannerMetrics{
		Timestamp:         time.Now(),
		LayoutsRendered:   c.rendered,
		DegenerateLayouts: c.degenerate,
		TasksLayered:      c.tasks,
		Goals:             len(c.goals),
	}
	c.mu.RUnlock()

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		m.CPUUsage = cpuPercent[0]
	} else if err != nil {
		c.logger.Debug("Failed to get CPU usage", zap.Error(err))
	}
	if memInfo, err := mem.VirtualMemory(); err == nil {
		m.MemoryUsage = memInfo.UsedPercent
	} else {
		c.logger.Debug("Failed to get memory usage", zap.Error(err))
	}
	return m
}

// Publish sends one metrics snapshot
func (c *MetricsCollector) Publish(ctx context.Context) error {
	metrics := c.Snapshot()

	data, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	if _, err := c.js.Publish(metricsSubject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish metrics: %w", err)
	}

	c.logger.Debug("Metrics collected",
		zap.Float64("cpu_usage", metrics.CPUUsage),
		zap.Float64("memory_usage", metrics.MemoryUsage),
		zap.Int64("layouts_rendered", metrics.LayoutsRendered))
	return nil
}
