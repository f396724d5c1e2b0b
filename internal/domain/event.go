package domain

import (
	"time"
)

// Event is an immutable, append-only fact about a run. Events are never
// mutated or deleted by the engine.
type Event struct {
	ID     string    `json:"id"`
	RunID  string    `json:"run_id"`
	StepID string    `json:"step_id,omitempty"`
	Kind   EventKind `json:"kind"`
	// Seq is the per-run append order, assigned by the event repository.
	Seq     int64                  `json:"seq"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	TS      time.Time              `json:"ts"`
}

type EventKind string

const (
	EventRunStarted    EventKind = "run_started"
	EventRunCompleted  EventKind = "run_completed"
	EventRunFailed     EventKind = "run_failed"
	EventStepStarted   EventKind = "step_started"
	EventStepCompleted EventKind = "step_completed"
	EventStepFailed    EventKind = "step_failed"
	EventToolCall      EventKind = "tool_call"
	EventLLMCall       EventKind = "llm_call"
	EventPolicyEval    EventKind = "policy_eval"
	EventError         EventKind = "error"
)
