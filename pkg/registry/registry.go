// Package registry is the Supervisor's component address book: a
// small, mutex-guarded map from a component type to the typed sender
// it exposes to the rest of the agent. It maps the "actor with a
// globally discoverable address" idiom (spec.md §9) onto a registry
// built once by the Supervisor and passed by dependency injection,
// not a global variable.
//
// This is new code: the teacher carries a pkg/registry package, but
// its content is NFS/SMB share and identity-mapping logic entirely
// unrelated to this registry's purpose. Only the general shape — a
// mutex-guarded map with typed Register/Lookup — is reused.
package registry

import (
	"fmt"
	"sync"
)

// ComponentType identifies one of the agent's long-lived workers.
type ComponentType int

const (
	ComponentStore ComponentType = iota
	ComponentCacheEngine
	ComponentCollector
	ComponentUploadEngine
	ComponentUploadWatcher
	ComponentHTTPProxy
	ComponentTSProxy
	ComponentStatusHub
	ComponentSupervisor
)

func (c ComponentType) String() string {
	switch c {
	case ComponentStore:
		return "store"
	case ComponentCacheEngine:
		return "cache_engine"
	case ComponentCollector:
		return "collector"
	case ComponentUploadEngine:
		return "upload_engine"
	case ComponentUploadWatcher:
		return "upload_watcher"
	case ComponentHTTPProxy:
		return "http_proxy"
	case ComponentTSProxy:
		return "ts_proxy"
	case ComponentStatusHub:
		return "status_hub"
	case ComponentSupervisor:
		return "supervisor"
	default:
		return "unknown"
	}
}

// EventSender is the capability every component uses to push a status
// event to the StatusHub. It is intentionally minimal: the Event
// payload is opaque to the registry so pkg/registry does not need to
// import pkg/statushub.
type EventSender interface {
	SendEvent(event any)
}

// Registry is a mutex-guarded map from component type to its
// registered sender. A single Registry instance is constructed by the
// Supervisor at startup and passed to every worker constructor that
// needs to publish events.
type Registry struct {
	mu      sync.RWMutex
	senders map[ComponentType]EventSender
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{senders: make(map[ComponentType]EventSender)}
}

// Register associates a component type with its sender. Registering
// the same component type twice replaces the previous sender.
func (r *Registry) Register(component ComponentType, sender EventSender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[component] = sender
}

// Lookup returns the sender registered for component, or an error if
// none has been registered yet.
func (r *Registry) Lookup(component ComponentType) (EventSender, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sender, ok := r.senders[component]
	if !ok {
		return nil, fmt.Errorf("registry: no sender registered for component %s", component)
	}
	return sender, nil
}

// MustLookup panics if component has no registered sender. Used only
// at startup wiring time, never from a worker's hot path.
func (r *Registry) MustLookup(component ComponentType) EventSender {
	sender, err := r.Lookup(component)
	if err != nil {
		panic(err)
	}
	return sender
}

// SendEvent publishes an event to the StatusHub, if one has been
// registered; it is a silent no-op otherwise (e.g. in unit tests that
// construct workers without a Supervisor).
func (r *Registry) SendEvent(event any) {
	sender, err := r.Lookup(ComponentStatusHub)
	if err != nil {
		return
	}
	sender.SendEvent(event)
}
