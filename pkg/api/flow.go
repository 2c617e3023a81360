package api

import (
	"encoding/json"
	"errors"
	"slices"
)

type (
	// FlowDefinition is the declarative, immutable graph description
	// submitted by a caller
	FlowDefinition struct {
		ID         FlowID                 `json:"id"`
		Name       string                 `json:"name"`
		StartTask  TaskName               `json:"start_task"`
		Tasks      []*TaskDefinition      `json:"tasks"`
		Conditions []*ConditionDefinition `json:"conditions"`
	}

	// TaskDefinition declares that a task takes part in a flow. The
	// executable code lives in the registry, looked up by name
	TaskDefinition struct {
		Name        TaskName `json:"name"`
		Description string   `json:"description"`
	}

	// ConditionDefinition is the routing rule for a single source task
	ConditionDefinition struct {
		Name          string   `json:"name"`
		Description   string   `json:"description"`
		SourceTask    TaskName `json:"source_task"`
		Outcome       string   `json:"outcome"`
		TargetSuccess Targets  `json:"target_task_success"`
		TargetFailure Targets  `json:"target_task_failure"`
	}

	// Targets is either a single task name, a non-empty set of task names,
	// or the "end" sentinel. The JSON form of a single target is a plain
	// string
	Targets []TaskName
)

var (
	ErrEmptyTargets   = errors.New("target set must not be empty")
	ErrInvalidTargets = errors.New("target must be a string or string list")
)

// Target creates a Targets value from the provided task names
func Target(names ...TaskName) Targets {
	return slices.Clone(Targets(names))
}

// End is the Targets value that terminates a branch
func End() Targets {
	return Targets{EndTask}
}

// Next returns the targets with any "end" entries removed
func (t Targets) Next() []TaskName {
	res := make([]TaskName, 0, len(t))
	for _, name := range t {
		if !name.IsEnd() {
			res = append(res, name)
		}
	}
	return res
}

// MarshalJSON encodes a single target as a plain string
func (t Targets) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(string(t[0]))
	}
	return json.Marshal([]TaskName(t))
}

// UnmarshalJSON accepts either a string or a non-empty list of strings
func (t *Targets) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = Targets{TaskName(single)}
		return nil
	}

	var many []TaskName
	if err := json.Unmarshal(data, &many); err != nil {
		return ErrInvalidTargets
	}
	if len(many) == 0 {
		return ErrEmptyTargets
	}
	*t = many
	return nil
}

// TaskNames returns the declared task names in declaration order
func (f *FlowDefinition) TaskNames() []TaskName {
	res := make([]TaskName, 0, len(f.Tasks))
	for _, task := range f.Tasks {
		res = append(res, task.Name)
	}
	return res
}

// HasTask returns whether the named task is declared in the flow
func (f *FlowDefinition) HasTask(name TaskName) bool {
	for _, task := range f.Tasks {
		if task.Name == name {
			return true
		}
	}
	return false
}

// ConditionFor returns the condition keyed by the given source task
func (f *FlowDefinition) ConditionFor(
	source TaskName,
) (*ConditionDefinition, bool) {
	for _, cond := range f.Conditions {
		if cond.SourceTask == source {
			return cond, true
		}
	}
	return nil, false
}

// Select returns the targets chosen by a task outcome
func (c *ConditionDefinition) Select(success bool) Targets {
	if success {
		return c.TargetSuccess
	}
	return c.TargetFailure
}
