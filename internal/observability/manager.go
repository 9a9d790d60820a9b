package observability

import (
	"context"
	"fmt"
	"sync"

	"github.com/wfcore/engine/internal/logger"
)

// Manager fans an Event out to every registered Observer without
// blocking the caller.
type Manager struct {
	observers []Observer
	log *logger.Logger
	mu sync.RWMutex
	bufferSize int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used for notification-failure diagnostics.
func WithLogger(l *logger.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

// WithBufferSize sets the async notification buffer size (currently
// informational; observers that need buffering, e.g. WebSocketHub, own
// their own channels).
func WithBufferSize(size int) ManagerOption {
	return func(m *Manager) { m.bufferSize = size }
}

// NewManager builds an empty Manager.
func NewManager(opts ...ManagerOption) *Manager {
	mgr := &Manager{observers: make([]Observer, 0), bufferSize: 100}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr
}

// Register adds an observer, rejecting a duplicate name.
func (m *Manager) Register(observer Observer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, obs := range m.observers {
		if obs.Name() == observer.Name() {
			return fmt.Errorf("observer with name %q already registered", observer.Name())
		}
	}
	m.observers = append(m.observers, observer)
	return nil
}

// Unregister removes an observer by name.
func (m *Manager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, obs := range m.observers {
		if obs.Name() == name {
			m.observers = append(m.observers[:i], m.observers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("observer %q not found", name)
}

// Notify fans event out to every registered observer, one goroutine
// each, decoupled from ctx's cancellation so a notification outlives the
// request that triggered it.
func (m *Manager) Notify(ctx context.Context, event Event) {
	m.mu.RLock()
	observersCopy := make([]Observer, len(m.observers))
	copy(observersCopy, m.observers)
	m.mu.RUnlock()

	observerCtx := context.WithoutCancel(ctx)
	for _, obs := range observersCopy {
		go m.notifyObserver(observerCtx, obs, event)
	}
}

func (m *Manager) notifyObserver(ctx context.Context, obs Observer, event Event) {
	defer func() {
		if r := recover(); r != nil && m.log != nil {
			m.log.ErrorContext(ctx, "observer panic recovered",
				"observer", obs.Name(), "event_type", string(event.Type), "panic", r)
		}
	}()

	if filter := obs.Filter(); filter != nil && !filter.ShouldNotify(event) {
		return
	}

	if err := obs.OnEvent(ctx, event); err != nil && m.log != nil {
		m.log.ErrorContext(ctx, "observer notification failed",
			"observer", obs.Name(), "event_type", string(event.Type), "error", err)
	}
}

// Count returns the number of registered observers.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.observers)
}
