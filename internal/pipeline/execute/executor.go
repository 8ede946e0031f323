// Package execute replays a built plan's API calls against the
// order-management backend.
package execute

import (
	"context"
	"time"

	"po-copilot/internal/common/logger"
	"po-copilot/internal/common/metrics"
	"po-copilot/internal/models"
)

// Caller replays one API call. The generic signature keeps the executor
// ignorant of per-intent endpoints; the plan already fixed those.
type Caller interface {
	Call(ctx context.Context, method, path string, body map[string]interface{}) (interface{}, error)
}

// AuditLog records what the executor did. A nil-safe no-op implementation
// is acceptable in tests.
type AuditLog interface {
	Log(ctx context.Context, entry models.AuditEntry) error
}

type Executor struct {
	backend Caller
	audit   AuditLog
	logger  logger.Logger
}

func NewExecutor(backend Caller, audit AuditLog, log logger.Logger) *Executor {
	return &Executor{
		backend: backend,
		audit:   audit,
		logger:  log.WithFields(map[string]interface{}{"component": "execute"}),
	}
}

// Execute runs every planned action independently. A failing action is
// converted into a per-action failure with its backend error message passed
// through unmodified; sibling actions still run. OverallSuccess is the
// logical AND of all per-action successes.
func (e *Executor) Execute(ctx context.Context, plan *models.ExecutionPlan) *models.ExecutionResult {
	result := &models.ExecutionResult{
		PlanID:         plan.PlanID,
		ExecutedAt:     time.Now().UTC(),
		OverallSuccess: true,
	}

	for _, action := range plan.Actions {
		ar := models.ActionResult{IntentID: action.IntentID}

		data, err := e.backend.Call(ctx, action.APICall.Method, action.APICall.Path, action.APICall.Body)
		if err != nil {
			ar.Success = false
			ar.Error = err.Error()
			result.OverallSuccess = false
			metrics.ActionsExecuted.WithLabelValues(string(action.IntentID), "failure").Inc()
			e.logger.WithError(err).Error("action failed", map[string]interface{}{
				"plan_id": plan.PlanID,
				"intent":  action.IntentID,
				"method":  action.APICall.Method,
				"path":    action.APICall.Path,
			})
			e.writeAudit(ctx, plan, models.PhaseError, map[string]interface{}{
				"intent": string(action.IntentID),
				"error":  err.Error(),
			})
		} else {
			ar.Success = true
			ar.Data = data
			metrics.ActionsExecuted.WithLabelValues(string(action.IntentID), "success").Inc()
		}

		result.Results = append(result.Results, ar)
		e.writeAudit(ctx, plan, models.PhaseExecute, map[string]interface{}{
			"intent":  string(action.IntentID),
			"method":  action.APICall.Method,
			"path":    action.APICall.Path,
			"success": ar.Success,
		})
	}

	return result
}

// writeAudit never fails the execution; audit errors are only logged.
func (e *Executor) writeAudit(ctx context.Context, plan *models.ExecutionPlan, phase models.AuditPhase, output map[string]interface{}) {
	if e.audit == nil {
		return
	}
	entry := models.AuditEntry{
		ConversationID: plan.ConversationID,
		PlanID:         plan.PlanID,
		Phase:          phase,
		Output:         output,
		CreatedAt:      time.Now().UTC(),
	}
	if err := e.audit.Log(ctx, entry); err != nil {
		e.logger.WithError(err).Warn("audit write failed", map[string]interface{}{
			"plan_id": plan.PlanID,
			"phase":   string(phase),
		})
	}
}
