package ports

import (
	"context"

	"github.com/eleven-am/warden/internal/domain"
)

// Repositories assume durable, strongly consistent per-record storage.
// Implementations live behind StoragePort; callers never see storage keys.

type WorkflowRepository interface {
	Save(ctx context.Context, workflow *domain.Workflow) error
	FindByID(ctx context.Context, id string) (*domain.Workflow, error)
}

type RunRepository interface {
	Save(ctx context.Context, run *domain.Run) error
	FindByID(ctx context.Context, id string) (*domain.Run, error)
}

type StepRepository interface {
	// Save assigns a per-run sequence number on first save and keeps it on
	// subsequent updates.
	Save(ctx context.Context, step *domain.Step) error
	ListByRun(ctx context.Context, runID string) ([]domain.Step, error)
	FindPending(ctx context.Context, runID string) ([]domain.Step, error)
}

type EventRepository interface {
	// Append persists an event, assigning its per-run sequence number.
	// Events are immutable once appended.
	Append(ctx context.Context, event *domain.Event) error
	ListByRun(ctx context.Context, runID string) ([]domain.Event, error)
}

type PolicyRepository interface {
	Save(ctx context.Context, policy *domain.Policy) error
	ListEnabled(ctx context.Context) ([]domain.Policy, error)
}

type ToolRepository interface {
	Save(ctx context.Context, tool *domain.Tool) error
	FindByID(ctx context.Context, id string) (*domain.Tool, error)
}

type AgentRepository interface {
	SaveContract(ctx context.Context, contract *domain.AgentContract) error
	FindContract(ctx context.Context, agentID string) (*domain.AgentContract, error)
}
