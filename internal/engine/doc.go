// Package engine implements the flow execution engine
//
// An Engine validates a flow definition, records a flow run, and walks the
// task graph one frontier at a time. Every task in a frontier is dispatched
// concurrently, and the next frontier is computed from the conditions of
// the tasks that just settled. Any invocation failure aborts the whole run
package engine
