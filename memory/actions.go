package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"impractical.co/dropper/host"
)

var _ host.ActionRunner = &Actions{}

// ErrUnknownAction is returned when running an action nobody registered.
var ErrUnknownAction = errors.New("unknown action")

// ActionFunc implements a microflow or nanoflow.
type ActionFunc func(ctx context.Context, obj *host.Object) (any, error)

// Actions is a host.ActionRunner that runs registered Go functions.
// Microflows and nanoflows share one namespace.
type Actions struct {
	mu    sync.RWMutex
	funcs map[string]ActionFunc
}

// NewActions returns an empty action registry.
func NewActions() *Actions {
	return &Actions{funcs: map[string]ActionFunc{}}
}

// Register makes fn available under name.
func (a *Actions) Register(name string, fn ActionFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.funcs[name] = fn
}

// Run calls the function registered for action with obj.
func (a *Actions) Run(ctx context.Context, action host.Action, obj *host.Object) (any, error) {
	if action.Empty() {
		return nil, host.ErrNoAction
	}
	a.mu.RLock()
	fn, ok := a.funcs[action.String()]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	return fn(ctx, obj)
}
