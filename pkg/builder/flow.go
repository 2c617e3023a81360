package builder

import (
	"slices"

	"github.com/kode4food/flowrun/pkg/api"
)

// Flow is an immutable builder for flow definitions. Every With method
// returns a modified copy
type Flow struct {
	id         api.FlowID
	name       string
	start      api.TaskName
	tasks      []*api.TaskDefinition
	conditions []*api.ConditionDefinition
}

// NewFlow creates a new flow builder with the specified ID
func NewFlow(id api.FlowID) *Flow {
	return &Flow{id: id}
}

// WithName sets the human-readable flow name
func (f *Flow) WithName(name string) *Flow {
	res := *f
	res.name = name
	return &res
}

// WithStart sets the task that runs first. When unset, the first declared
// task is used
func (f *Flow) WithStart(name api.TaskName) *Flow {
	res := *f
	res.start = name
	return &res
}

// WithTask declares a task. Declaration order decides which source wins
// when several feed the same target
func (f *Flow) WithTask(name api.TaskName) *Flow {
	return f.WithDescribedTask(name, "")
}

// WithDescribedTask declares a task with a description
func (f *Flow) WithDescribedTask(name api.TaskName, desc string) *Flow {
	res := *f
	res.tasks = append(slices.Clone(f.tasks), &api.TaskDefinition{
		Name:        name,
		Description: desc,
	})
	return &res
}

// WithCondition adds the routing rule for source
func (f *Flow) WithCondition(
	name string, source api.TaskName, success, failure api.Targets,
) *Flow {
	res := *f
	res.conditions = append(slices.Clone(f.conditions),
		&api.ConditionDefinition{
			Name:          name,
			SourceTask:    source,
			TargetSuccess: slices.Clone(success),
			TargetFailure: slices.Clone(failure),
		},
	)
	return &res
}

// Then routes source to next on success and ends the flow on failure
func (f *Flow) Then(source api.TaskName, next ...api.TaskName) *Flow {
	return f.WithCondition(
		string(source)+"_then", source, api.Target(next...), api.End(),
	)
}

// Build produces a validated flow definition
func (f *Flow) Build() (*api.FlowDefinition, error) {
	res := &api.FlowDefinition{
		ID:         f.id,
		Name:       f.name,
		StartTask:  f.start,
		Tasks:      make([]*api.TaskDefinition, len(f.tasks)),
		Conditions: make([]*api.ConditionDefinition, len(f.conditions)),
	}
	for i, t := range f.tasks {
		task := *t
		res.Tasks[i] = &task
	}
	for i, c := range f.conditions {
		cond := *c
		res.Conditions[i] = &cond
	}
	if res.StartTask == "" && len(res.Tasks) > 0 {
		res.StartTask = res.Tasks[0].Name
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}
