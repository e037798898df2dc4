// Package render formats layouts, anomalies and selections for the terminal.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/t77yq/goal-planner/internal/dependency"
	"github.com/t77yq/goal-planner/internal/model"
)

// Renderer writes human readable output
type Renderer struct {
	w io.Writer
}

// New creates a renderer writing to w
func New(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// Header prints the goal title and the summary cards
func (r *Renderer) Header(goal model.Goal, s dependency.Stats) {
	fmt.Fprintln(r.w, BoldCyan(goal.Title))
	if goal.Description != "" {
		fmt.Fprintln(r.w, Dim(goal.Description))
	}
	if goal.Deadline != nil {
		fmt.Fprintf(r.w, "deadline %s\n", goal.Deadline.Format("2006-01-02"))
	}
	fmt.Fprintf(r.w, "%d tasks, %d levels, %d roots, %d leaves, %d%% complete, %.1fh estimated\n",
		s.TaskCount, s.LevelCount, s.RootCount, s.LeafCount, s.CompletionPercent, s.TotalEstimatedHours)
	fmt.Fprintln(r.w, strings.Repeat("─", 60))
}

// Levels prints the execution levels of a layout, one block per level
func (r *Renderer) Levels(layout *dependency.Layout) {
	if len(layout.Levels) == 0 {
		fmt.Fprintln(r.w, "No tasks")
		return
	}

	byID := make(map[string]model.Task, len(layout.Tasks))
	for _, t := range layout.Tasks {
		byID[t.ID] = t
	}

	for i, ids := range layout.Levels {
		fmt.Fprintf(r.w, "%s %s\n", Bold(fmt.Sprintf("Level %d", i)), Dim(fmt.Sprintf("(%d)", len(ids))))
		for _, id := range ids {
			t := byID[id]
			fmt.Fprintf(r.w, "  %s %s %s [%s]", StatusIcon(t.Status), Dim(t.ID), t.Title, PriorityLabel(t.Priority))
			if n := len(layout.Dependents.Dependents(id)); n > 0 {
				fmt.Fprintf(r.w, " %s", Dim(fmt.Sprintf("→ %d", n)))
			}
			fmt.Fprintln(r.w)
		}
	}
}

// Anomalies prints the anomaly summary; a healthy graph prints a single line
func (r *Renderer) Anomalies(a dependency.Anomalies) {
	fmt.Fprintf(r.w, "roots %d, leaves %d\n", a.RootCount, a.LeafCount)
	if !a.Degenerate() && len(a.DanglingReferences) == 0 {
		fmt.Fprintln(r.w, Green("no anomalies"))
		return
	}
	if a.HasNoRoots {
		fmt.Fprintln(r.w, Red("! no task can start: every task depends on another"))
	}
	for _, e := range a.CycleEdges {
		fmt.Fprintf(r.w, "%s cycle: %s depends on %s (edge ignored)\n", Yellow("!"), e.From, e.To)
	}
	for _, d := range a.DanglingReferences {
		title := d.Title
		if title == "" {
			title = "unknown"
		}
		fmt.Fprintf(r.w, "%s task %s depends on missing task %s (%s)\n", Yellow("?"), d.TaskID, d.MissingID, title)
	}
}

// Selection prints what a task depends on and what depends on it
func (r *Renderer) Selection(sel *dependency.Selection) {
	t := sel.Task
	fmt.Fprintf(r.w, "%s %s\n", Bold(t.Title), Dim(t.ID))
	fmt.Fprintf(r.w, "status %s, priority %s\n", StatusLabel(t.Status), PriorityLabel(t.Priority))
	if t.EstimatedHours != nil {
		fmt.Fprintf(r.w, "estimated %.1fh\n", *t.EstimatedHours)
	}
	if t.Description != "" {
		fmt.Fprintln(r.w, t.Description)
	}

	fmt.Fprintln(r.w, Bold("Depends on"))
	if len(sel.Dependencies) == 0 {
		fmt.Fprintln(r.w, Dim("  nothing"))
	}
	for _, d := range sel.Dependencies {
		if d.Dangling {
			fmt.Fprintf(r.w, "  %s %s %s\n", Yellow("?"), Dim(d.TaskID), d.Title)
			continue
		}
		fmt.Fprintf(r.w, "  %s %s %s\n", StatusIcon(d.Task.Status), Dim(d.TaskID), d.Title)
	}

	fmt.Fprintln(r.w, Bold("Required by"))
	if len(sel.Dependents) == 0 {
		fmt.Fprintln(r.w, Dim("  nothing"))
	}
	for _, dep := range sel.Dependents {
		fmt.Fprintf(r.w, "  %s %s %s\n", StatusIcon(dep.Status), Dim(dep.ID), dep.Title)
	}
}
