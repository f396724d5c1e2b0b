package domain

import (
	"fmt"
)

const (
	WorkflowPrefix = "workflow:"
	RunPrefix      = "run:"
	StepPrefix     = "step:"
	EventPrefix    = "event:"
	PolicyPrefix   = "policy:"
	ToolPrefix     = "tool:"
	AgentPrefix    = "agent:"
	SeqPrefix      = "seq:"
)

func WorkflowKey(id string) string {
	return WorkflowPrefix + id
}

func RunKey(id string) string {
	return RunPrefix + id
}

// StepKey and EventKey embed a zero-padded per-run sequence so a prefix scan
// yields records in append order.
func StepKey(runID string, seq int64) string {
	return fmt.Sprintf("%s%s:%012d", StepPrefix, runID, seq)
}

func StepRunPrefix(runID string) string {
	return StepPrefix + runID + ":"
}

func EventKey(runID string, seq int64) string {
	return fmt.Sprintf("%s%s:%012d", EventPrefix, runID, seq)
}

func EventRunPrefix(runID string) string {
	return EventPrefix + runID + ":"
}

func PolicyKey(id string) string {
	return PolicyPrefix + id
}

func ToolKey(id string) string {
	return ToolPrefix + id
}

func AgentKey(id string) string {
	return AgentPrefix + id
}

func StepSeqKey(runID string) string {
	return SeqPrefix + "step:" + runID
}

func EventSeqKey(runID string) string {
	return SeqPrefix + "event:" + runID
}
