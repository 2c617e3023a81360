package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/kode4food/flowrun/pkg/api"
	"github.com/kode4food/flowrun/pkg/log"
)

type (
	// flowExec holds the scheduling state of a single flow run
	flowExec struct {
		engine *Engine
		run    *api.FlowRun
		flow   *api.FlowDefinition
		order  map[api.TaskName]int
		inputs map[api.TaskName]any
		log    []*api.LogEntry
		step   int
	}

	// stepOutcome is the result of settling one frontier: either advance
	// or abort
	stepOutcome interface {
		isStepOutcome()
	}

	advance struct {
		next []api.TaskName
	}

	abort struct {
		cause *FlowExecutionError
	}
)

func newFlowExec(
	e *Engine, run *api.FlowRun, flow *api.FlowDefinition, input any,
) *flowExec {
	order := make(map[api.TaskName]int, len(flow.Tasks))
	for i, task := range flow.Tasks {
		order[task.Name] = i
	}
	inputs := map[api.TaskName]any{}
	if input != nil {
		inputs[flow.StartTask] = input
	}
	return &flowExec{
		engine: e,
		run:    run,
		flow:   flow,
		order:  order,
		inputs: inputs,
	}
}

// drive walks frontiers until none remain or one aborts
func (ex *flowExec) drive(ctx context.Context) *FlowExecutionError {
	frontier := []api.TaskName{ex.flow.StartTask}
	for len(frontier) > 0 {
		switch out := ex.advanceFrontier(ctx, frontier).(type) {
		case advance:
			frontier = out.next
		case abort:
			return out.cause
		}
	}
	return nil
}

// advanceFrontier dispatches every task of the frontier concurrently and
// waits for all of them to settle. Siblings of a failed task are never
// cancelled
func (ex *flowExec) advanceFrontier(
	ctx context.Context, frontier []api.TaskName,
) stepOutcome {
	step := ex.step
	ex.step++

	slog.Debug("Dispatching frontier",
		log.FlowRunID(ex.run.ID),
		slog.Int("step", step),
		slog.Any("tasks", frontier))

	entries := make([]*api.LogEntry, len(frontier))
	var g errgroup.Group
	for i, name := range frontier {
		input := ex.inputs[name]
		g.Go(func() error {
			entry, err := ex.invoke(ctx, step, name, input)
			if err != nil {
				return err
			}
			entries[i] = entry
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		var fail *FlowExecutionError
		if !errors.As(err, &fail) {
			fail = &FlowExecutionError{FlowRunID: ex.run.ID, Cause: err}
		}
		return abort{cause: fail}
	}

	ex.log = append(ex.log, entries...)
	return advance{next: ex.route(frontier, entries)}
}

// route computes the next frontier from settled results, processed in
// frontier order. Converging routes are deduplicated and the target keeps
// the data of the last source processed. The result is sorted by declared
// task order
func (ex *flowExec) route(
	frontier []api.TaskName, entries []*api.LogEntry,
) []api.TaskName {
	var next []api.TaskName
	seen := map[api.TaskName]bool{}
	for i, name := range frontier {
		entry := entries[i]
		cond, ok := ex.flow.ConditionFor(name)
		if !ok {
			slog.Debug("Task has no condition, branch ends",
				log.FlowRunID(ex.run.ID),
				log.TaskName(name))
			continue
		}
		for _, target := range cond.Select(entry.Success).Next() {
			ex.inputs[target] = entry.Data
			if !seen[target] {
				seen[target] = true
				next = append(next, target)
			}
		}
	}
	slices.SortStableFunc(next, func(l, r api.TaskName) int {
		return ex.order[l] - ex.order[r]
	})
	return next
}

func (advance) isStepOutcome() {}

func (abort) isStepOutcome() {}
