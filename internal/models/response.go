package models

// Outcome is the terminal result kind of one pipeline request.
// Clarification and validation failures are first-class outcomes, not errors.
type Outcome string

const (
	OutcomeClarification Outcome = "clarification"
	OutcomePlanPending   Outcome = "plan_pending"
	OutcomeExecuted      Outcome = "executed"
	OutcomeError         Outcome = "error"
)

// Response is the terminal result of one request/response cycle.
type Response struct {
	Outcome       Outcome          `json:"outcome"`
	Message       string           `json:"message,omitempty"`
	MissingFields []string         `json:"missingFields,omitempty"`
	Violations    []GuardViolation `json:"violations,omitempty"`
	Plan          *ExecutionPlan   `json:"plan,omitempty"`
	Execution     *ExecutionResult `json:"execution,omitempty"`
	ErrorCode     string           `json:"errorCode,omitempty"`
}

// Stage identifies a pipeline phase for progress reporting.
type Stage string

const (
	StageParsing    Stage = "parsing"
	StageValidating Stage = "validating"
	StageResolving  Stage = "resolving"
	StagePlanning   Stage = "planning"
	StageExecuting  Stage = "executing"
)

// StageStatus is the state of a stage-update event.
type StageStatus string

const (
	StageStarted   StageStatus = "started"
	StageCompleted StageStatus = "completed"
	StageErrored   StageStatus = "error"
	StageProgress  StageStatus = "progress"
)

// StageUpdate is one fire-and-forget progress event.
type StageUpdate struct {
	Stage  Stage       `json:"stage"`
	Status StageStatus `json:"status"`
	Data   interface{} `json:"data,omitempty"`
}
