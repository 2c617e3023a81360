package events

import "github.com/kode4food/flowrun/pkg/api"

// AllEvents accepts every event
func AllEvents(*api.RunEvent) bool {
	return true
}

// FilterEvents accepts events of the given types
func FilterEvents(eventTypes ...api.EventType) EventFilter {
	lookup := map[api.EventType]bool{}
	for _, et := range eventTypes {
		lookup[et] = true
	}
	return func(ev *api.RunEvent) bool {
		return lookup[ev.Type]
	}
}

// FilterFlowRun accepts events belonging to a single flow run
func FilterFlowRun(id api.FlowRunID) EventFilter {
	return func(ev *api.RunEvent) bool {
		return ev.FlowRunID == id
	}
}

// AndFilters accepts events that every filter accepts
func AndFilters(filters ...EventFilter) EventFilter {
	return func(ev *api.RunEvent) bool {
		for _, filter := range filters {
			if !filter(ev) {
				return false
			}
		}
		return true
	}
}

// OrFilters accepts events that any filter accepts
func OrFilters(filters ...EventFilter) EventFilter {
	return func(ev *api.RunEvent) bool {
		for _, filter := range filters {
			if filter(ev) {
				return true
			}
		}
		return false
	}
}
