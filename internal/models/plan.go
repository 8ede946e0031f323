package models

import "time"

// PlanStatus is the plan lifecycle owned by the plan store.
type PlanStatus string

const (
	PlanPending  PlanStatus = "pending"
	PlanApproved PlanStatus = "approved"
	PlanRejected PlanStatus = "rejected"
	PlanExecuted PlanStatus = "executed"
	PlanFailed   PlanStatus = "failed"
)

// APICall is the concrete backend operation derived from a resolved intent.
type APICall struct {
	Method string                 `json:"method"`
	Path   string                 `json:"path"`
	Body   map[string]interface{} `json:"body,omitempty"`
}

// PlannedAction is one ordered step of an execution plan.
type PlannedAction struct {
	IntentID IntentID `json:"intentId"`
	APICall  APICall  `json:"apiCall"`
	Risks    []string `json:"risks,omitempty"`
}

// ExecutionPlan is built once per request and becomes immutable once
// persisted; only its status transitions afterwards.
type ExecutionPlan struct {
	PlanID           string           `json:"planId"`
	ConversationID   string           `json:"conversationId"`
	Actions          []PlannedAction  `json:"actions"`
	RequiresApproval bool             `json:"requiresApproval"`
	Summary          string           `json:"summary"`
	Advisories       []GuardViolation `json:"advisories,omitempty"`
	Status           PlanStatus       `json:"status"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// HasDestructiveAction reports whether any action carries a delete intent.
func (p *ExecutionPlan) HasDestructiveAction() bool {
	for _, a := range p.Actions {
		if a.IntentID == IntentDeletePurchaseOrder || a.IntentID == IntentDeletePOItem {
			return true
		}
	}
	return false
}

// ActionResult is the outcome of one planned action.
type ActionResult struct {
	IntentID IntentID    `json:"intentId"`
	Success  bool        `json:"success"`
	Data     interface{} `json:"data,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// ExecutionResult is produced exactly once per execution attempt.
// OverallSuccess is the AND of all per-action successes.
type ExecutionResult struct {
	PlanID         string         `json:"planId"`
	ExecutedAt     time.Time      `json:"executedAt"`
	Results        []ActionResult `json:"results"`
	OverallSuccess bool           `json:"overallSuccess"`
}
