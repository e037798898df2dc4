package dependency

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/t77yq/goal-planner/internal/model"
)

// Node holds the reverse edges of a single task
type Node struct {
	TaskID     string   `json:"task_id"`
	Dependents []string `json:"dependents"`
}

// Map is the reverse-edge view of a task collection: for each task, the
// tasks that declare it as a dependency. Dependents keep the order in which
// their edges were first seen.
type Map struct {
	order []string
	nodes map[string]*Node
}

// BuildMap derives the dependents of every task from the declared
// dependencies. Dangling references are skipped.
func BuildMap(tasks []model.Task) *Map {
	m := &Map{
		order: make([]string, 0, len(tasks)),
		nodes: make(map[string]*Node, len(tasks)),
	}
	for i := range tasks {
		id := tasks[i].ID
		if _, ok := m.nodes[id]; ok {
			continue
		}
		m.order = append(m.order, id)
		m.nodes[id] = &Node{TaskID: id, Dependents: []string{}}
	}

	edgeSet := make(map[[2]string]bool)
	for i := range tasks {
		t := &tasks[i]
		for _, ref := range t.Dependencies {
			parent, ok := m.nodes[ref.TaskID]
			if !ok {
				continue
			}
			key := [2]string{ref.TaskID, t.ID}
			if edgeSet[key] {
				continue
			}
			edgeSet[key] = true
			parent.Dependents = append(parent.Dependents, t.ID)
		}
	}
	return m
}

// Has reports whether id names a task in the collection
func (m *Map) Has(id string) bool {
	_, ok := m.nodes[id]
	return ok
}

// Dependents returns the ids of tasks depending on id, or nil for an unknown id
func (m *Map) Dependents(id string) []string {
	n, ok := m.nodes[id]
	if !ok {
		return nil
	}
	out := make([]string, len(n.Dependents))
	copy(out, n.Dependents)
	return out
}

// Len returns the number of tasks in the map
func (m *Map) Len() int {
	return len(m.order)
}

// Nodes returns a copy of every node in task order
func (m *Map) Nodes() []Node {
	out := make([]Node, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, Node{TaskID: id, Dependents: m.Dependents(id)})
	}
	return out
}

type mapEntry struct {
	Dependents []string `json:"dependents"`
}

// MarshalJSON encodes the map as {task_id: {"dependents": [...]}} with keys
// in task order
func (m *Map) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range m.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(mapEntry{Dependents: m.nodes[id].Dependents})
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores a map written by MarshalJSON. Task order follows
// the order of the keys in the document.
func (m *Map) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("dependency map: %w", err)
	}
	m.order = []string{}
	m.nodes = make(map[string]*Node)
	if tok == nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("dependency map: expected object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("dependency map: %w", err)
		}
		id, _ := tok.(string)

		var e mapEntry
		if err := dec.Decode(&e); err != nil {
			return fmt.Errorf("dependency map: task %s: %w", id, err)
		}
		if e.Dependents == nil {
			e.Dependents = []string{}
		}
		if _, ok := m.nodes[id]; !ok {
			m.order = append(m.order, id)
		}
		m.nodes[id] = &Node{TaskID: id, Dependents: e.Dependents}
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("dependency map: %w", err)
	}
	return nil
}

// taskIndex maps a task id to its position in the collection
type taskIndex map[string]int

func indexTasks(tasks []model.Task) taskIndex {
	ix := make(taskIndex, len(tasks))
	for i := range tasks {
		if _, ok := ix[tasks[i].ID]; !ok {
			ix[tasks[i].ID] = i
		}
	}
	return ix
}

// targets returns the non-dangling dependency ids of t in declared order,
// without repeats.
func (ix taskIndex) targets(t *model.Task) []string {
	if len(t.Dependencies) == 0 {
		return nil
	}
	out := make([]string, 0, len(t.Dependencies))
	seen := make(map[string]bool, len(t.Dependencies))
	for _, ref := range t.Dependencies {
		if _, ok := ix[ref.TaskID]; !ok || seen[ref.TaskID] {
			continue
		}
		seen[ref.TaskID] = true
		out = append(out, ref.TaskID)
	}
	return out
}
