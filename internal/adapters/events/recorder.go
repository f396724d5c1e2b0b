package events

import (
	"context"
	"log/slog"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/ports"
)

// Recorder is the single write path for events: append to the durable log
// first, then fan out. Components never publish an event that was not
// persisted, so the audit chain stays complete even for failed runs.
type Recorder struct {
	repo    ports.EventRepository
	manager ports.EventManager
	logger  *slog.Logger
}

func NewRecorder(repo ports.EventRepository, manager ports.EventManager, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		repo:    repo,
		manager: manager,
		logger:  logger.With("component", "recorder"),
	}
}

func (r *Recorder) Emit(ctx context.Context, event *domain.Event) error {
	if err := r.repo.Append(ctx, event); err != nil {
		r.logger.Error("failed to append event",
			"run_id", event.RunID,
			"kind", event.Kind,
			"error", err.Error())
		return err
	}

	if r.manager != nil {
		r.manager.Publish(*event)
	}

	r.logger.Debug("event recorded",
		"run_id", event.RunID,
		"kind", event.Kind,
		"seq", event.Seq)
	return nil
}
