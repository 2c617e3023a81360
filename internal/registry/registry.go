package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/kode4food/flowrun/pkg/api"
)

// Registry maps task names to task factories. It is populated once during
// startup and frozen before any flow executes
type Registry struct {
	factories map[api.TaskName]api.TaskFactory
	frozen    bool
	mu        sync.RWMutex
}

var (
	ErrInvalidTaskName       = errors.New("task name is required")
	ErrInvalidFactory        = errors.New("factory does not produce a task")
	ErrTaskAlreadyRegistered = errors.New("task already registered")
	ErrTaskNotRegistered     = errors.New("task not registered")
	ErrRegistryFrozen        = errors.New("registry is frozen")
)

// New creates an empty, unfrozen registry
func New() *Registry {
	return &Registry{
		factories: map[api.TaskName]api.TaskFactory{},
	}
}

// Register associates a factory with a task name. The factory is probed
// once to confirm that it produces a Task
func (r *Registry) Register(name api.TaskName, factory api.TaskFactory) error {
	if name == "" || name.IsEnd() {
		return fmt.Errorf("%w: %q", ErrInvalidTaskName, name)
	}
	if factory == nil || factory() == nil {
		return fmt.Errorf("%w: %s", ErrInvalidFactory, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: %s", ErrRegistryFrozen, name)
	}
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrTaskAlreadyRegistered, name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister registers a factory, panicking on failure. Intended for
// static startup wiring
func (r *Registry) MustRegister(name api.TaskName, factory api.TaskFactory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Freeze ends the registration phase. Later calls to Register fail
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen returns whether the registry has been frozen
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Lookup returns the factory registered under the given name
func (r *Registry) Lookup(name api.TaskName) (api.TaskFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotRegistered, name)
	}
	return factory, nil
}

// Instantiate looks up the named factory and produces a new Task
func (r *Registry) Instantiate(name api.TaskName) (api.Task, error) {
	factory, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	task := factory()
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFactory, name)
	}
	return task, nil
}

// Names returns all registered task names in sorted order
func (r *Registry) Names() []api.TaskName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]api.TaskName, 0, len(r.factories))
	for name := range r.factories {
		res = append(res, name)
	}
	slices.Sort(res)
	return res
}

// Missing returns the names that have no registered factory
func (r *Registry) Missing(names ...api.TaskName) []api.TaskName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []api.TaskName
	for _, name := range names {
		if _, ok := r.factories[name]; !ok {
			res = append(res, name)
		}
	}
	return res
}
