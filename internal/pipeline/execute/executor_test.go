// internal/pipeline/execute/executor_test.go
package execute

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"po-copilot/internal/common/logger"
	"po-copilot/internal/models"
)

// scriptedCaller fails paths listed in failures and records call order.
type scriptedCaller struct {
	failures map[string]error
	calls    []string
}

func (s *scriptedCaller) Call(_ context.Context, method, path string, _ map[string]interface{}) (interface{}, error) {
	s.calls = append(s.calls, method+" "+path)
	if err, ok := s.failures[path]; ok {
		return nil, err
	}
	return map[string]interface{}{"ok": true}, nil
}

type recordingAudit struct {
	entries []models.AuditEntry
	err     error
}

func (r *recordingAudit) Log(_ context.Context, entry models.AuditEntry) error {
	r.entries = append(r.entries, entry)
	return r.err
}

func testPlan() *models.ExecutionPlan {
	return &models.ExecutionPlan{
		PlanID:         "plan-1",
		ConversationID: "conv-1",
		Actions: []models.PlannedAction{
			{IntentID: models.IntentGetPurchaseOrder, APICall: models.APICall{Method: "GET", Path: "/purchase-orders/4500001234"}},
			{IntentID: models.IntentUpdatePOItem, APICall: models.APICall{Method: "PATCH", Path: "/purchase-orders/4500001234/items/00010"}},
			{IntentID: models.IntentDeletePOItem, APICall: models.APICall{Method: "DELETE", Path: "/purchase-orders/4500001234/items/00020"}},
		},
	}
}

func TestExecute_AllActionsSucceed(t *testing.T) {
	caller := &scriptedCaller{}
	audit := &recordingAudit{}
	e := NewExecutor(caller, audit, logger.NewNoOpLogger())

	result := e.Execute(context.Background(), testPlan())

	assert.True(t, result.OverallSuccess)
	require.Len(t, result.Results, 3)
	for _, ar := range result.Results {
		assert.True(t, ar.Success)
		assert.NotNil(t, ar.Data)
	}
	assert.Equal(t, []string{
		"GET /purchase-orders/4500001234",
		"PATCH /purchase-orders/4500001234/items/00010",
		"DELETE /purchase-orders/4500001234/items/00020",
	}, caller.calls)
	// one execute-phase entry per action
	require.Len(t, audit.entries, 3)
	for _, entry := range audit.entries {
		assert.Equal(t, models.PhaseExecute, entry.Phase)
		assert.Equal(t, "plan-1", entry.PlanID)
	}
}

func TestExecute_FailureIsIsolated(t *testing.T) {
	caller := &scriptedCaller{failures: map[string]error{
		"/purchase-orders/4500001234/items/00010": errors.New("HTTP 423: item locked by user MJELLNER"),
	}}
	audit := &recordingAudit{}
	e := NewExecutor(caller, audit, logger.NewNoOpLogger())

	result := e.Execute(context.Background(), testPlan())

	assert.False(t, result.OverallSuccess)
	require.Len(t, result.Results, 3)
	assert.True(t, result.Results[0].Success)
	assert.False(t, result.Results[1].Success)
	// the backend's message passes through unmodified
	assert.Equal(t, "HTTP 423: item locked by user MJELLNER", result.Results[1].Error)
	// siblings still ran
	assert.True(t, result.Results[2].Success)
	assert.Len(t, caller.calls, 3)

	var errorPhases int
	for _, entry := range audit.entries {
		if entry.Phase == models.PhaseError {
			errorPhases++
			out, ok := entry.Output.(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, "HTTP 423: item locked by user MJELLNER", out["error"])
		}
	}
	assert.Equal(t, 1, errorPhases)
	// 3 execute entries + 1 error entry
	assert.Len(t, audit.entries, 4)
}

func TestExecute_BackendMessagePassthrough(t *testing.T) {
	tests := []struct {
		name    string
		message string
	}{
		{name: "authorization failure", message: "HTTP 401: unauthorized for purchasing group 100"},
		{name: "backend timeout", message: "Get \"/purchase-orders/4500001234\": context deadline exceeded"},
		{name: "record lock", message: "HTTP 423: item locked by user MJELLNER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &scriptedCaller{failures: map[string]error{
				"/purchase-orders/4500001234/items/00010": errors.New(tt.message),
			}}
			e := NewExecutor(caller, nil, logger.NewNoOpLogger())

			result := e.Execute(context.Background(), testPlan())

			require.Len(t, result.Results, 3)
			assert.False(t, result.Results[1].Success)
			// whatever the backend said is what the result carries
			assert.Equal(t, tt.message, result.Results[1].Error)
		})
	}
}

func TestExecute_AuditFailureDoesNotAbort(t *testing.T) {
	caller := &scriptedCaller{}
	audit := &recordingAudit{err: errors.New("elasticsearch unavailable")}
	e := NewExecutor(caller, audit, logger.NewNoOpLogger())

	result := e.Execute(context.Background(), testPlan())

	assert.True(t, result.OverallSuccess)
	assert.Len(t, result.Results, 3)
}

func TestExecute_NilAuditIsSafe(t *testing.T) {
	caller := &scriptedCaller{}
	e := NewExecutor(caller, nil, logger.NewNoOpLogger())

	result := e.Execute(context.Background(), testPlan())

	assert.True(t, result.OverallSuccess)
}
