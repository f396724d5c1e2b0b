package events

import (
	"log/slog"
	"sync"

	"github.com/eleven-am/warden/internal/domain"
)

const subscriberBuffer = 64

// Manager is the in-process pub/sub fan-out for run events. Subscribers are
// keyed by run id; an empty run id receives everything. Publish never
// blocks: a subscriber that stops draining loses events rather than
// stalling the engine.
type Manager struct {
	mu     sync.RWMutex
	subs   map[string]map[int]chan domain.Event
	nextID int
	closed bool
	logger *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		subs:   make(map[string]map[int]chan domain.Event),
		logger: logger.With("component", "events"),
	}
}

func (m *Manager) Publish(event domain.Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return
	}

	for _, key := range []string{event.RunID, ""} {
		for id, ch := range m.subs[key] {
			select {
			case ch <- event:
			default:
				m.logger.Warn("dropping event for slow subscriber",
					"run_id", event.RunID,
					"kind", event.Kind,
					"subscriber", id)
			}
		}
	}
}

func (m *Manager) Subscribe(runID string) (<-chan domain.Event, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan domain.Event, subscriberBuffer)
	if m.closed {
		close(ch)
		return ch, func() {}
	}

	id := m.nextID
	m.nextID++

	if m.subs[runID] == nil {
		m.subs[runID] = make(map[int]chan domain.Event)
	}
	m.subs[runID][id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if chans, ok := m.subs[runID]; ok {
			if sub, ok := chans[id]; ok {
				delete(chans, id)
				close(sub)
			}
			if len(chans) == 0 {
				delete(m.subs, runID)
			}
		}
	}

	m.logger.Debug("subscriber registered", "run_id", runID, "subscriber", id)
	return ch, cancel
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return domain.ErrClosed
	}
	m.closed = true

	for _, chans := range m.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	m.subs = make(map[string]map[int]chan domain.Event)
	return nil
}
