package api

import "fmt"

// FlowValidationError reports why a flow definition was rejected
type FlowValidationError struct {
	Reason string
}

// Error implements the error interface for FlowValidationError
func (e *FlowValidationError) Error() string {
	return "invalid flow: " + e.Reason
}

// Validate checks the flow definition for referential integrity. Cyclic
// graphs and unreachable tasks are legal
func (f *FlowDefinition) Validate() error {
	if f.ID == "" {
		return invalid("flow id is required")
	}
	if f.Name == "" {
		return invalid("flow name is required")
	}
	if f.StartTask == "" {
		return invalid("start_task is required")
	}

	declared := make(map[TaskName]struct{}, len(f.Tasks))
	for i, task := range f.Tasks {
		if task == nil || task.Name == "" {
			return invalid("task %d has no name", i)
		}
		if task.Name.IsEnd() {
			return invalid("task name %q is reserved", task.Name)
		}
		if _, ok := declared[task.Name]; ok {
			return invalid("task %q declared more than once", task.Name)
		}
		declared[task.Name] = struct{}{}
	}

	if _, ok := declared[f.StartTask]; !ok {
		return invalid("start_task %q is not a declared task", f.StartTask)
	}

	sources := make(map[TaskName]string, len(f.Conditions))
	for i, cond := range f.Conditions {
		if cond == nil {
			return invalid("condition %d is empty", i)
		}
		if _, ok := declared[cond.SourceTask]; !ok {
			return invalid(
				"condition %q: source_task %q is not a declared task",
				cond.Name, cond.SourceTask,
			)
		}
		if prev, ok := sources[cond.SourceTask]; ok {
			return invalid(
				"condition %q: source_task %q already has condition %q",
				cond.Name, cond.SourceTask, prev,
			)
		}
		sources[cond.SourceTask] = cond.Name

		if err := checkTargets(
			declared, cond, "target_task_success", cond.TargetSuccess,
		); err != nil {
			return err
		}
		if err := checkTargets(
			declared, cond, "target_task_failure", cond.TargetFailure,
		); err != nil {
			return err
		}
	}
	return nil
}

func checkTargets(
	declared map[TaskName]struct{}, cond *ConditionDefinition, field string,
	targets Targets,
) error {
	if len(targets) == 0 {
		return invalid("condition %q: %s is required", cond.Name, field)
	}
	for _, name := range targets {
		if name.IsEnd() {
			continue
		}
		if _, ok := declared[name]; !ok {
			return invalid("condition %q: %s %q is not a declared task",
				cond.Name, field, name)
		}
	}
	return nil
}

func invalid(format string, args ...any) *FlowValidationError {
	return &FlowValidationError{Reason: fmt.Sprintf(format, args...)}
}
