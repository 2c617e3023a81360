package api

type (
	// FlowID identifies a submitted flow definition
	FlowID string

	// FlowRunID uniquely identifies a single execution of a flow
	FlowRunID string

	// TaskRunID uniquely identifies a single task dispatch within a flow run
	TaskRunID string

	// TaskName names a task, both in a flow definition and in the registry
	TaskName string
)

// EndTask is the sentinel target that terminates a branch
const EndTask TaskName = "end"

// IsEnd returns whether the name is the branch-terminating sentinel
func (n TaskName) IsEnd() bool {
	return n == EndTask
}
