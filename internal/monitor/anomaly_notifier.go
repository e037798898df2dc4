package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/goal-planner/internal/dependency"
	"github.com/t77yq/goal-planner/internal/model"
)

const (
	alertStreamName = "ALERTS"
	alertSubjects   = "alert.*"
)

// AnomalyNotifier turns graph anomalies into alert events according to a
// set of rules. Alerts are warnings only; they never block rendering.
type AnomalyNotifier struct {
	logger *zap.Logger
	js     nats.JetStreamContext
	rules  sync.Map
}

// NewAnomalyNotifier creates a notifier with no rules
func NewAnomalyNotifier(logger *zap.Logger, js nats.JetStreamContext) *AnomalyNotifier {
	return &AnomalyNotifier{
		logger: logger.Named("anomaly-notifier"),
		js:     js,
	}
}

// DefaultRules returns one rule per anomaly type
func DefaultRules() []*model.AlertRule {
	return []*model.AlertRule{
		{Name: "No starting task", Type: model.AlertTypeNoRoots, Severity: model.AlertSeverityError},
		{Name: "Dependency cycle", Type: model.AlertTypeCycle, Severity: model.AlertSeverityWarning},
		{Name: "Dangling dependency", Type: model.AlertTypeDanglingReference, Severity: model.AlertSeverityInfo},
	}
}

// Setup creates the alert stream if it does not exist yet
func (m *AnomalyNotifier) Setup(ctx context.Context) error {
	return ensureStream(ctx, m.js, m.logger, alertStreamName, alertSubjects)
}

// GetRule returns a rule by ID
func (m *AnomalyNotifier) GetRule(id string) (*model.AlertRule, error) {
	value, ok := m.rules.Load(id)
	if !ok {
		return nil, fmt.Errorf("rule not found: %s", id)
	}
	return value.(*model.AlertRule), nil
}

// AddRule adds a new alert rule
func (m *AnomalyNotifier) AddRule(rule *model.AlertRule) error {
	switch rule.Type {
	case model.AlertTypeNoRoots, model.AlertTypeCycle, model.AlertTypeDanglingReference:
	default:
		return fmt.Errorf("unknown alert type: %s", rule.Type)
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	m.rules.Store(rule.ID, rule)
	return nil
}

// UpdateRule updates an existing alert rule
func (m *AnomalyNotifier) UpdateRule(rule *model.AlertRule) error {
	if _, ok := m.rules.Load(rule.ID); !ok {
		return fmt.Errorf("rule not found: %s", rule.ID)
	}
	rule.UpdatedAt = time.Now()
	m.rules.Store(rule.ID, rule)
	return nil
}

// DeleteRule deletes an alert rule
func (m *AnomalyNotifier) DeleteRule(id string) error {
	if _, ok := m.rules.Load(id); !ok {
		return fmt.Errorf("rule not found: %s", id)
	}
	m.rules.Delete(id)
	return nil
}

// ListRules returns all rules ordered by creation time
func (m *AnomalyNotifier) ListRules() []*model.AlertRule {
	var rules []*model.AlertRule
	m.rules.Range(func(key, value interface{}) bool {
		rules = append(rules, value.(*model.AlertRule))
		return true
	})
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].ID < rules[j].ID
		}
		return rules[i].CreatedAt.Before(rules[j].CreatedAt)
	})
	return rules
}

// Notify publishes one alert per active rule whose anomaly is present
func (m *AnomalyNotifier) Notify(ctx context.Context, goalID string, anomalies dependency.Anomalies) ([]*model.Alert, error) {
	var alerts []*model.Alert
	for _, rule := range m.ListRules() {
		if rule.Silenced {
			continue
		}
		data, triggered := alertData(rule.Type, anomalies)
		if !triggered {
			continue
		}
		alert, err := m.createAlert(ctx, rule, goalID, data)
		if err != nil {
			return alerts, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

func alertData(t model.AlertType, a dependency.Anomalies) (map[string]interface{}, bool) {
	switch t {
	case model.AlertTypeNoRoots:
		return map[string]interface{}{
			"root_count": a.RootCount,
			"leaf_count": a.LeafCount,
		}, a.HasNoRoots
	case model.AlertTypeCycle:
		edges := make([]string, 0, len(a.CycleEdges))
		for _, e := range a.CycleEdges {
			edges = append(edges, e.From+"->"+e.To)
		}
		return map[string]interface{}{"cycle_edges": edges}, a.HasCycle
	case model.AlertTypeDanglingReference:
		missing := make([]string, 0, len(a.DanglingReferences))
		for _, d := range a.DanglingReferences {
			missing = append(missing, d.TaskID+"->"+d.MissingID)
		}
		return map[string]interface{}{"dangling_references": missing}, len(a.DanglingReferences) > 0
	}
	return nil, false
}

// createAlert creates and publishes a new alert
func (m *AnomalyNotifier) createAlert(ctx context.Context, rule *model.AlertRule, goalID string, data map[string]interface{}) (*model.Alert, error) {
	alert := &model.Alert{
		ID:        uuid.New().String(),
		RuleID:    rule.ID,
		GoalID:    goalID,
		Type:      rule.Type,
		Severity:  rule.Severity,
		Message:   fmt.Sprintf("%s in goal %s", rule.Name, goalID),
		Data:      data,
		CreatedAt: time.Now(),
	}

	alertData, err := json.Marshal(alert)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal alert: %w", err)
	}

	if _, err := m.js.Publish("alert."+string(alert.Type), alertData, nats.Context(ctx)); err != nil {
		return nil, fmt.Errorf("failed to publish alert: %w", err)
	}

	m.logger.Info("Alert created",
		zap.String("id", alert.ID),
		zap.String("rule_id", alert.RuleID),
		zap.String("goal_id", goalID),
		zap.String("type", string(alert.Type)),
		zap.String("severity", string(alert.Severity)))

	return alert, nil
}
