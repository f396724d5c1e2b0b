package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/ports"
	json "github.com/eleven-am/warden/internal/xjson"
	"github.com/google/uuid"
)

// Repositories is the record layer over StoragePort. Keys never leak to
// callers; per-run sequence numbers make prefix scans return append order.
type Repositories struct {
	Workflows ports.WorkflowRepository
	Runs      ports.RunRepository
	Steps     ports.StepRepository
	Events    ports.EventRepository
	Policies  ports.PolicyRepository
	Tools     ports.ToolRepository
	Agents    ports.AgentRepository
}

func NewRepositories(store ports.StoragePort, logger *slog.Logger) *Repositories {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "repository")

	return &Repositories{
		Workflows: &workflowRepository{store: store},
		Runs:      &runRepository{store: store},
		Steps:     &stepRepository{store: store},
		Events:    &eventRepository{store: store, logger: logger},
		Policies:  &policyRepository{store: store, logger: logger},
		Tools:     &toolRepository{store: store},
		Agents:    &agentRepository{store: store},
	}
}

type workflowRepository struct {
	store ports.StoragePort
}

func (r *workflowRepository) Save(ctx context.Context, workflow *domain.Workflow) error {
	if err := workflow.Validate(); err != nil {
		return err
	}
	return putJSON(r.store, domain.WorkflowKey(workflow.ID), workflow)
}

func (r *workflowRepository) FindByID(ctx context.Context, id string) (*domain.Workflow, error) {
	var workflow domain.Workflow
	if err := getJSON(r.store, domain.WorkflowKey(id), "workflow", id, &workflow); err != nil {
		return nil, err
	}
	return &workflow, nil
}

type runRepository struct {
	store ports.StoragePort
}

func (r *runRepository) Save(ctx context.Context, run *domain.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	return putJSON(r.store, domain.RunKey(run.ID), run)
}

func (r *runRepository) FindByID(ctx context.Context, id string) (*domain.Run, error) {
	var run domain.Run
	if err := getJSON(r.store, domain.RunKey(id), "run", id, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

type stepRepository struct {
	store ports.StoragePort
}

func (r *stepRepository) Save(ctx context.Context, step *domain.Step) error {
	if step.ID == "" {
		step.ID = uuid.New().String()
	}
	if step.Seq == 0 {
		seq, err := r.store.AtomicIncrement(domain.StepSeqKey(step.RunID))
		if err != nil {
			return err
		}
		step.Seq = seq
	}
	return putJSON(r.store, domain.StepKey(step.RunID, step.Seq), step)
}

func (r *stepRepository) ListByRun(ctx context.Context, runID string) ([]domain.Step, error) {
	items, err := r.store.ListByPrefix(domain.StepRunPrefix(runID))
	if err != nil {
		return nil, err
	}

	steps := make([]domain.Step, 0, len(items))
	for _, item := range items {
		var step domain.Step
		if err := json.Unmarshal(item.Value, &step); err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (r *stepRepository) FindPending(ctx context.Context, runID string) ([]domain.Step, error) {
	steps, err := r.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	var pending []domain.Step
	for _, step := range steps {
		if step.Status == domain.StepStatusPending {
			pending = append(pending, step)
		}
	}
	return pending, nil
}

type eventRepository struct {
	store  ports.StoragePort
	logger *slog.Logger
}

func (r *eventRepository) Append(ctx context.Context, event *domain.Event) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.TS.IsZero() {
		event.TS = time.Now()
	}

	seq, err := r.store.AtomicIncrement(domain.EventSeqKey(event.RunID))
	if err != nil {
		return err
	}
	event.Seq = seq

	return putJSON(r.store, domain.EventKey(event.RunID, event.Seq), event)
}

func (r *eventRepository) ListByRun(ctx context.Context, runID string) ([]domain.Event, error) {
	items, err := r.store.ListByPrefix(domain.EventRunPrefix(runID))
	if err != nil {
		return nil, err
	}

	events := make([]domain.Event, 0, len(items))
	for _, item := range items {
		var event domain.Event
		if err := json.Unmarshal(item.Value, &event); err != nil {
			r.logger.Warn("skipping undecodable event", "key", item.Key, "error", err.Error())
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

type policyRepository struct {
	store  ports.StoragePort
	logger *slog.Logger
}

func (r *policyRepository) Save(ctx context.Context, policy *domain.Policy) error {
	if policy.ID == "" {
		policy.ID = uuid.New().String()
	}
	return putJSON(r.store, domain.PolicyKey(policy.ID), policy)
}

func (r *policyRepository) ListEnabled(ctx context.Context) ([]domain.Policy, error) {
	items, err := r.store.ListByPrefix(domain.PolicyPrefix)
	if err != nil {
		return nil, err
	}

	var policies []domain.Policy
	for _, item := range items {
		var policy domain.Policy
		if err := json.Unmarshal(item.Value, &policy); err != nil {
			r.logger.Warn("skipping undecodable policy", "key", item.Key, "error", err.Error())
			continue
		}
		if policy.Enabled {
			policies = append(policies, policy)
		}
	}
	return policies, nil
}

type toolRepository struct {
	store ports.StoragePort
}

func (r *toolRepository) Save(ctx context.Context, tool *domain.Tool) error {
	return putJSON(r.store, domain.ToolKey(tool.ID), tool)
}

func (r *toolRepository) FindByID(ctx context.Context, id string) (*domain.Tool, error) {
	var tool domain.Tool
	if err := getJSON(r.store, domain.ToolKey(id), "tool", id, &tool); err != nil {
		return nil, err
	}
	return &tool, nil
}

type agentRepository struct {
	store ports.StoragePort
}

func (r *agentRepository) SaveContract(ctx context.Context, contract *domain.AgentContract) error {
	return putJSON(r.store, domain.AgentKey(contract.AgentID), contract)
}

func (r *agentRepository) FindContract(ctx context.Context, agentID string) (*domain.AgentContract, error) {
	var contract domain.AgentContract
	if err := getJSON(r.store, domain.AgentKey(agentID), "agent contract", agentID, &contract); err != nil {
		return nil, err
	}
	return &contract, nil
}

func putJSON(store ports.StoragePort, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return store.Put(key, data)
}

func getJSON(store ports.StoragePort, key, kind, id string, v interface{}) error {
	data, exists, err := store.Get(key)
	if err != nil {
		return err
	}
	if !exists {
		return domain.NewNotFoundError(kind, id)
	}
	return json.Unmarshal(data, v)
}
