package render

import (
	"github.com/fatih/color"

	"github.com/t77yq/goal-planner/internal/model"
)

var (
	Bold   = color.New(color.Bold).SprintFunc()
	Dim    = color.New(color.Faint).SprintFunc()
	Green  = color.New(color.FgGreen).SprintFunc()
	Blue   = color.New(color.FgBlue).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Yellow = color.New(color.FgYellow).SprintFunc()

	BoldCyan = color.New(color.Bold, color.FgCyan).SprintFunc()
)

// StatusIcon returns a colored status icon for one task row
func StatusIcon(status model.TaskStatus) string {
	switch status {
	case model.TaskStatusCompleted:
		return Green("✓")
	case model.TaskStatusInProgress:
		return Blue("●")
	case model.TaskStatusBlocked:
		return Red("✗")
	default:
		return Dim("◌")
	}
}

// StatusLabel returns the status name in the status color
func StatusLabel(status model.TaskStatus) string {
	switch status {
	case model.TaskStatusCompleted:
		return Green(string(status))
	case model.TaskStatusInProgress:
		return Blue(string(status))
	case model.TaskStatusBlocked:
		return Red(string(status))
	default:
		return string(status)
	}
}

// PriorityLabel returns the priority name in the priority color
func PriorityLabel(p model.TaskPriority) string {
	switch p {
	case model.TaskPriorityCritical:
		return Bold(Red(string(p)))
	case model.TaskPriorityHigh:
		return Red(string(p))
	case model.TaskPriorityMedium:
		return Yellow(string(p))
	default:
		return Dim(string(p))
	}
}
