package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrInvalidPayload is returned when a goal payload cannot be decoded
var ErrInvalidPayload = errors.New("invalid goal payload")

// dateLayouts are tried in order when reading dates from the planning service.
// The service emits naive ISO timestamps, so zone-less layouts are accepted.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// DecodeGoalDetail decodes a goal and its tasks from either the "create goal"
// envelope ({success, goal, tasks, ai_insights}) or the "goal detail" shape
// with goal fields inline next to tasks.
func DecodeGoalDetail(data []byte) (*GoalDetail, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: malformed json", ErrInvalidPayload)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected object", ErrInvalidPayload)
	}
	if success := root.Get("success"); success.Exists() && !success.Bool() {
		return nil, fmt.Errorf("%w: upstream failure: %s", ErrInvalidPayload, root.Get("detail").String())
	}

	goalNode := root
	if g := root.Get("goal"); g.IsObject() {
		goalNode = g
	}
	tasksNode := root.Get("tasks")
	if !tasksNode.Exists() {
		tasksNode = goalNode.Get("tasks")
	}
	if !tasksNode.IsArray() {
		return nil, fmt.Errorf("%w: tasks must be an array", ErrInvalidPayload)
	}

	detail := &GoalDetail{
		Goal: Goal{
			ID:                  goalNode.Get("id").String(),
			Title:               goalNode.Get("title").String(),
			Description:         goalNode.Get("description").String(),
			Deadline:            parseDate(goalNode.Get("deadline")),
			TotalEstimatedHours: parseHours(goalNode.Get("total_estimated_hours")),
			CreatedAt:           parseDate(goalNode.Get("created_at")),
		},
		SuggestedTimeline: root.Get("ai_insights.suggested_timeline").String(),
		Tasks:             make([]Task, 0, len(tasksNode.Array())),
	}
	if detail.Goal.TotalEstimatedHours == nil {
		detail.Goal.TotalEstimatedHours = parseHours(root.Get("ai_insights.total_estimated_hours"))
	}

	var err error
	tasksNode.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			err = fmt.Errorf("%w: task #%d is not an object", ErrInvalidPayload, len(detail.Tasks))
			return false
		}
		detail.Tasks = append(detail.Tasks, decodeTask(item))
		return true
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// DecodeTasks decodes a bare JSON array of tasks
func DecodeTasks(data []byte) ([]Task, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: malformed json", ErrInvalidPayload)
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: expected array of tasks", ErrInvalidPayload)
	}
	tasks := make([]Task, 0, len(root.Array()))
	for i, item := range root.Array() {
		if !item.IsObject() {
			return nil, fmt.Errorf("%w: task #%d is not an object", ErrInvalidPayload, i)
		}
		tasks = append(tasks, decodeTask(item))
	}
	return tasks, nil
}

func decodeTask(item gjson.Result) Task {
	task := Task{
		ID:             item.Get("id").String(),
		Title:          item.Get("title").String(),
		Description:    item.Get("description").String(),
		Status:         TaskStatusPending,
		Priority:       TaskPriorityMedium,
		EstimatedHours: parseHours(item.Get("estimated_hours")),
		StartDate:      parseDate(item.Get("start_date")),
		EndDate:        parseDate(item.Get("end_date")),
		Dependencies:   []DependencyReference{},
	}
	if s := item.Get("status").String(); s != "" {
		task.Status = TaskStatus(s)
	}
	if p := item.Get("priority").String(); p != "" {
		task.Priority = ParsePriority(p)
	}

	item.Get("dependencies").ForEach(func(_, dep gjson.Result) bool {
		if dep.IsObject() {
			task.Dependencies = append(task.Dependencies, DependencyReference{
				TaskID:    dep.Get("task_id").String(),
				TaskTitle: dep.Get("task_title").String(),
			})
			return true
		}
		// bare ids are accepted as references without a display title
		task.Dependencies = append(task.Dependencies, DependencyReference{TaskID: dep.String()})
		return true
	})
	return task
}

func parseHours(r gjson.Result) *float64 {
	if r.Type != gjson.Number {
		return nil
	}
	h := r.Float()
	return &h
}

// parseDate returns nil for absent, null or unparseable dates. The planning
// service treats a bad date the same as a missing one.
func parseDate(r gjson.Result) *time.Time {
	if r.Type != gjson.String {
		return nil
	}
	s := strings.TrimSpace(r.String())
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
