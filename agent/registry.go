package agent

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"weak"
)

// Store is the minimal surface an Agent needs in order to expose
// convenience methods (Advance, ...) that call back into its owning store.
// Agent itself never embeds a live *Store — doing so would make the
// otherwise-immutable, comparable Agent value carry mutable shared state.
// Instead, the association lives in a package-level registry keyed by a
// weak pointer to the Agent, mirroring the original implementation's use
// of weakref.WeakKeyDictionary in its registry module: once an Agent value
// is no longer reachable from anywhere else, its registry entry is dropped
// automatically.
type Store interface {
	Advance(ctx context.Context, a *Agent, userInput string, opts AdvanceOptions) (*Agent, error)
}

var (
	registryMu sync.Mutex
	registry   = map[weak.Pointer[Agent]]Store{}
)

// Register associates a with the store that produced or loaded it. Stores
// call this after constructing any Agent value they hand back to a caller.
func Register(a *Agent, s Store) {
	if a == nil || s == nil {
		return
	}
	wp := weak.Make(a)
	registryMu.Lock()
	registry[wp] = s
	registryMu.Unlock()
	runtime.AddCleanup(a, func(wp weak.Pointer[Agent]) {
		registryMu.Lock()
		delete(registry, wp)
		registryMu.Unlock()
	}, wp)
}

func storeFor(a *Agent) (Store, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	s, ok := registry[weak.Make(a)]
	if !ok {
		return nil, fmt.Errorf("agent %s not associated with a store", a.ID)
	}
	return s, nil
}

// Advance is a convenience wrapper that looks up a's owning store and
// forwards to its Advance method, so callers can write agent.Advance(...)
// instead of threading the Store value through every call site.
func (a *Agent) Advance(ctx context.Context, userInput string, opts AdvanceOptions) (*Agent, error) {
	s, err := storeFor(a)
	if err != nil {
		return nil, err
	}
	return s.Advance(ctx, a, userInput, opts)
}
