package domain

import (
	"time"
)

type Step struct {
	ID     string   `json:"id"`
	RunID  string   `json:"run_id"`
	NodeID string   `json:"node_id"`
	Type   NodeType `json:"type"`
	// Seq is the per-run creation order, assigned by the step repository.
	Seq        int64                  `json:"seq"`
	Status     StepStatus             `json:"status"`
	Input      map[string]interface{} `json:"input,omitempty"`
	Output     map[string]interface{} `json:"output,omitempty"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
}

type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// ErrorDetail is the structured failure record stored in a failed step's
// output and in run_failed event payloads.
type ErrorDetail struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

func (d ErrorDetail) AsMap() map[string]interface{} {
	m := map[string]interface{}{
		"name":    d.Name,
		"message": d.Message,
	}
	if d.Stack != "" {
		m["stack"] = d.Stack
	}
	return m
}
