package ports

import (
	"context"

	"github.com/eleven-am/warden/internal/domain"
)

// EventSink persists an event and fans it out to subscribers. All engine
// components log through it so the audit trail stays complete even for
// failed runs.
type EventSink interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// EventManager is the in-process pub/sub surface backing run event streams.
type EventManager interface {
	Publish(event domain.Event)
	// Subscribe returns a channel of events for one run id, or all runs when
	// runID is empty, plus a cancel function that must be called.
	Subscribe(runID string) (<-chan domain.Event, func())
	Close() error
}
