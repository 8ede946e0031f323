package models

import "time"

// AuditPhase tags an audit entry with the pipeline phase it records.
type AuditPhase string

const (
	PhaseParse    AuditPhase = "parse"
	PhaseValidate AuditPhase = "validate"
	PhaseResolve  AuditPhase = "resolve"
	PhasePlan     AuditPhase = "plan"
	PhaseExecute  AuditPhase = "execute"
	PhaseApprove  AuditPhase = "approve"
	PhaseError    AuditPhase = "error"
)

// AuditEntry is an append-only record of one pipeline phase's input/output.
type AuditEntry struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	PlanID         string      `json:"planId,omitempty"`
	Phase          AuditPhase  `json:"phase"`
	Input          interface{} `json:"input,omitempty"`
	Output         interface{} `json:"output,omitempty"`
	DurationMs     int64       `json:"durationMs"`
	Usage          *TokenUsage `json:"usage,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}
