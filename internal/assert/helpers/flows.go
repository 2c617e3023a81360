package helpers

import "github.com/kode4food/flowrun/pkg/api"

// NewFlow builds a flow definition that declares tasks in the given order
// and starts at the first of them
func NewFlow(
	tasks []api.TaskName, conds ...*api.ConditionDefinition,
) *api.FlowDefinition {
	flow := &api.FlowDefinition{
		ID:         "test-flow",
		Name:       "Test Flow",
		Conditions: conds,
	}
	for _, name := range tasks {
		flow.Tasks = append(flow.Tasks, &api.TaskDefinition{Name: name})
	}
	if len(tasks) > 0 {
		flow.StartTask = tasks[0]
	}
	return flow
}

// Route builds a condition on source with the given success and failure
// targets
func Route(
	source api.TaskName, success, failure api.Targets,
) *api.ConditionDefinition {
	return &api.ConditionDefinition{
		Name:          string(source) + "-route",
		SourceTask:    source,
		TargetSuccess: success,
		TargetFailure: failure,
	}
}

// Tasks is shorthand for a list of task names
func Tasks(names ...api.TaskName) []api.TaskName {
	return names
}
