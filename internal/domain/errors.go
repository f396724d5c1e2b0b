package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrBadRequest   = errors.New("bad request")
	ErrClosed       = errors.New("already closed")
)

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// PolicyDeniedError is raised when a gate denies an action. RequiresApproval
// marks a soft denial that a human approval can lift.
type PolicyDeniedError struct {
	Reason           string
	PolicyID         string
	RequiresApproval bool
}

func (e *PolicyDeniedError) Error() string {
	if e.RequiresApproval {
		return "policy requires approval: " + e.Reason
	}
	return "policy denied: " + e.Reason
}

func NewPolicyDeniedError(reason, policyID string, requiresApproval bool) *PolicyDeniedError {
	return &PolicyDeniedError{Reason: reason, PolicyID: policyID, RequiresApproval: requiresApproval}
}

// ApprovalRequiredError is control flow, not a failure: the orchestrator
// catches it to pause the run with the triggering step left pending.
type ApprovalRequiredError struct {
	RunID  string
	StepID string
	ToolID string
	Reason string
}

func (e *ApprovalRequiredError) Error() string {
	return fmt.Sprintf("tool %s requires approval: %s", e.ToolID, e.Reason)
}

type BudgetExceededError struct {
	RunID  string
	Reason string
	Limit  int64
	Actual int64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded for run %s: %s limit %d, actual %d", e.RunID, e.Reason, e.Limit, e.Actual)
}

// MaxStepsExceededError guards against graph pathology: cyclic workflows are
// legal but traversal is bounded.
type MaxStepsExceededError struct {
	RunID string
	Limit int
}

func (e *MaxStepsExceededError) Error() string {
	return fmt.Sprintf("run %s exceeded maximum of %d steps", e.RunID, e.Limit)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func IsBadRequest(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

func IsPolicyDenied(err error) bool {
	var denied *PolicyDeniedError
	return errors.As(err, &denied)
}

func IsApprovalRequired(err error) bool {
	var approval *ApprovalRequiredError
	return errors.As(err, &approval)
}

func AsApprovalRequired(err error) (*ApprovalRequiredError, bool) {
	var approval *ApprovalRequiredError
	if errors.As(err, &approval) {
		return approval, true
	}
	return nil, false
}

func IsBudgetExceeded(err error) bool {
	var exceeded *BudgetExceededError
	return errors.As(err, &exceeded)
}

func IsMaxStepsExceeded(err error) bool {
	var exceeded *MaxStepsExceededError
	return errors.As(err, &exceeded)
}

// NewErrorDetail captures an error as the structured detail persisted in
// step outputs and failure events.
func NewErrorDetail(err error) ErrorDetail {
	detail := ErrorDetail{Name: "Error", Message: err.Error()}
	switch {
	case IsNotFound(err):
		detail.Name = "NotFound"
	case IsPolicyDenied(err):
		detail.Name = "PolicyDenied"
	case IsBudgetExceeded(err):
		detail.Name = "BudgetExceeded"
	case IsMaxStepsExceeded(err):
		detail.Name = "MaxStepsExceeded"
	case IsInvalidInput(err):
		detail.Name = "InvalidInput"
	}
	return detail
}
