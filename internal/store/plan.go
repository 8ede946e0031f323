package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	commonerrors "po-copilot/internal/common/errors"
	"po-copilot/internal/common/logger"
	"po-copilot/internal/models"
)

// PlanStore persists execution plans in Postgres and enforces the plan
// lifecycle: pending -> approved/rejected -> executed/failed. Status
// transitions are guarded in SQL so concurrent approvals cannot race.
type PlanStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPlanStore(db *sql.DB, log logger.Logger) *PlanStore {
	return &PlanStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "plan-store"}),
	}
}

// EnsureSchema creates the plans table if it does not exist yet.
func (s *PlanStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS execution_plans (
			plan_id         TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			status          TEXT NOT NULL,
			payload         JSONB NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return commonerrors.NewDatabaseConnectionFailedError(err)
	}
	return nil
}

func (s *PlanStore) Save(ctx context.Context, plan *models.ExecutionPlan) error {
	payload, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshaling plan %s: %w", plan.PlanID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO execution_plans (plan_id, conversation_id, status, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		plan.PlanID, plan.ConversationID, string(plan.Status), payload, plan.CreatedAt)
	if err != nil {
		s.logger.WithError(err).Error("plan insert failed", map[string]interface{}{"plan_id": plan.PlanID})
		return commonerrors.NewDatabaseConnectionFailedError(err)
	}
	return nil
}

func (s *PlanStore) Get(ctx context.Context, planID string) (*models.ExecutionPlan, error) {
	var payload []byte
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status, payload FROM execution_plans WHERE plan_id = $1`, planID).
		Scan(&status, &payload)
	if err == sql.ErrNoRows {
		return nil, commonerrors.NewPlanNotFoundError(planID)
	}
	if err != nil {
		return nil, commonerrors.NewDatabaseConnectionFailedError(err)
	}

	var plan models.ExecutionPlan
	if err := json.Unmarshal(payload, &plan); err != nil {
		return nil, fmt.Errorf("unmarshaling plan %s: %w", planID, err)
	}
	plan.Status = models.PlanStatus(status)
	return &plan, nil
}

// Transition moves a plan from one of the allowed source statuses to the
// target status. A plan in any other status yields a status-conflict error;
// this is what rejects re-execution of an already executed plan.
func (s *PlanStore) Transition(ctx context.Context, planID string, from []models.PlanStatus, to models.PlanStatus) error {
	if len(from) == 0 {
		return fmt.Errorf("transition to %s needs at least one source status", to)
	}

	sources := make([]string, len(from))
	args := []interface{}{string(to), planID}
	for i, st := range from {
		sources[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, string(st))
	}

	query := fmt.Sprintf(
		`UPDATE execution_plans SET status = $1, updated_at = now()
		 WHERE plan_id = $2 AND status IN (%s)`, strings.Join(sources, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return commonerrors.NewDatabaseConnectionFailedError(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return commonerrors.NewDatabaseConnectionFailedError(err)
	}
	if affected == 0 {
		// distinguish missing plan from wrong status
		if _, getErr := s.Get(ctx, planID); getErr != nil {
			return getErr
		}
		return commonerrors.NewPlanStatusConflictError(planID, string(to))
	}
	return nil
}

func (s *PlanStore) Approve(ctx context.Context, planID string) error {
	return s.Transition(ctx, planID, []models.PlanStatus{models.PlanPending}, models.PlanApproved)
}

func (s *PlanStore) Reject(ctx context.Context, planID string) error {
	return s.Transition(ctx, planID, []models.PlanStatus{models.PlanPending}, models.PlanRejected)
}

func (s *PlanStore) MarkExecuted(ctx context.Context, planID string, success bool) error {
	target := models.PlanExecuted
	if !success {
		target = models.PlanFailed
	}
	return s.Transition(ctx, planID,
		[]models.PlanStatus{models.PlanPending, models.PlanApproved}, target)
}
