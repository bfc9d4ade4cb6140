// Package resource tracks acquired hardware and timer resources and
// guarantees their release across normal and abnormal termination paths.
package resource

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"scantrack/internal/platform"
)

// Kind classifies a managed resource.
type Kind string

const (
	KindCameraStream Kind = "camera_stream"
	KindScanner      Kind = "scanner"
	KindTimer        Kind = "timer"
)

// ReleaseFunc releases a resource. Errors are logged and swallowed; a
// failed release still removes the bookkeeping entry.
type ReleaseFunc func() error

type entry struct {
	kind    Kind
	release ReleaseFunc
}

// Manager is the single source of truth for resources that need explicit
// release. It must never propagate a release failure back to callers.
type Manager struct {
	mu        sync.Mutex
	resources map[string]entry

	bindOnce        sync.Once
	cancelLifecycle func()
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{resources: make(map[string]entry)}
}

// Bind subscribes the manager to lifecycle events: unload and freeze
// release everything, hidden releases only camera streams so scanning can
// resume quickly on return. Repeated calls are no-ops.
func (m *Manager) Bind(lifecycle platform.Lifecycle) {
	m.bindOnce.Do(func() {
		m.cancelLifecycle = lifecycle.Subscribe(func(event platform.LifecycleEvent) {
			switch event {
			case platform.EventUnload, platform.EventFreeze:
				n := m.ReleaseAll()
				slog.Info("resource: lifecycle teardown", "event", event.String(), "released", n)
			case platform.EventHidden:
				n := m.ReleaseAllOfKind(KindCameraStream)
				slog.Info("resource: released camera streams on hide", "released", n)
			}
		})
	})
}

// Register stores a release closure and returns the resource id. An empty
// id is auto-generated. Registering over an existing id releases the
// previous resource first, so re-acquisition always supersedes cleanly.
func (m *Manager) Register(kind Kind, release ReleaseFunc, id string) string {
	if id == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	prev, existed := m.resources[id]
	m.resources[id] = entry{kind: kind, release: release}
	m.mu.Unlock()

	if existed {
		slog.Debug("resource: superseding", "id", id, "kind", string(prev.kind))
		m.invoke(id, prev)
	}
	return id
}

// Release invokes the release closure for id and removes the entry.
// Returns whether an entry existed. Safe on unknown or already-released ids.
func (m *Manager) Release(id string) bool {
	m.mu.Lock()
	e, ok := m.resources[id]
	if ok {
		delete(m.resources, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.invoke(id, e)
	return true
}

// ReleaseAllOfKind releases every resource of the given kind and returns
// how many were released.
func (m *Manager) ReleaseAllOfKind(kind Kind) int {
	return m.releaseWhere(func(e entry) bool { return e.kind == kind })
}

// ReleaseAll releases every tracked resource and returns the count.
func (m *Manager) ReleaseAll() int {
	return m.releaseWhere(func(entry) bool { return true })
}

// Count returns the number of tracked resources of the given kind, or of
// all kinds when kind is empty.
func (m *Manager) Count(kind Kind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == "" {
		return len(m.resources)
	}
	n := 0
	for _, e := range m.resources {
		if e.kind == kind {
			n++
		}
	}
	return n
}

// Close unsubscribes from lifecycle events and releases everything.
func (m *Manager) Close() {
	if m.cancelLifecycle != nil {
		m.cancelLifecycle()
	}
	m.ReleaseAll()
}

func (m *Manager) releaseWhere(match func(entry) bool) int {
	m.mu.Lock()
	selected := make(map[string]entry)
	for id, e := range m.resources {
		if match(e) {
			selected[id] = e
			delete(m.resources, id)
		}
	}
	m.mu.Unlock()

	for id, e := range selected {
		m.invoke(id, e)
	}
	return len(selected)
}

// invoke runs a release closure outside the lock. Failures, including
// panics, are logged and suppressed.
func (m *Manager) invoke(id string, e entry) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("resource: release panicked", "id", id, "kind", string(e.kind), "panic", r)
		}
	}()
	if err := e.release(); err != nil {
		slog.Error("resource: release failed", "id", id, "kind", string(e.kind), "error", err)
	}
}
