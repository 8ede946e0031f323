// internal/notify/notifier_test.go
package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"po-copilot/internal/common/config"
	"po-copilot/internal/common/logger"
	"po-copilot/internal/models"
)

// ==========================================
// Mocks
// ==========================================

type MockSESService struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (m *MockSESService) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &ses.SendEmailOutput{}, nil
}

type MockSNSService struct {
	inputs []*sns.PublishInput
	err    error
}

func (m *MockSNSService) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.inputs = append(m.inputs, params)
	if m.err != nil {
		return nil, m.err
	}
	return &sns.PublishOutput{}, nil
}

func testConfig(emailEnabled, smsEnabled bool) config.NotificationConfig {
	var cfg config.NotificationConfig
	cfg.Email.Enabled = emailEnabled
	cfg.Email.FromEmail = "copilot@example.com"
	cfg.Email.ApproverEmail = "approver@example.com"
	cfg.SMS.Enabled = smsEnabled
	cfg.SMS.ApproverPhone = "+4915112345678"
	return cfg
}

func updatePlan() *models.ExecutionPlan {
	return &models.ExecutionPlan{
		PlanID:         "2f0c1b7a-55c4-4f1a-9a3e-0f2b8a6d9e11",
		ConversationID: "conv-1",
		Summary:        "Update purchase order item: 4500001234, item 00010 (steel bolts M8)",
		Actions: []models.PlannedAction{{
			IntentID: models.IntentUpdatePOItem,
			APICall:  models.APICall{Method: "PATCH", Path: "/purchase-orders/4500001234/items/00010"},
		}},
		RequiresApproval: true,
		Status:           models.PlanPending,
	}
}

func deletePlan() *models.ExecutionPlan {
	p := updatePlan()
	p.Actions = []models.PlannedAction{{
		IntentID: models.IntentDeletePOItem,
		APICall:  models.APICall{Method: "DELETE", Path: "/purchase-orders/4500001234/items/00010"},
		Risks:    []string{"destructive operation: deletes a purchase order line item"},
	}}
	return p
}

// ==========================================
// Tests
// ==========================================

func TestPlanAwaitingApproval_SendsEmail(t *testing.T) {
	sesMock := &MockSESService{}
	snsMock := &MockSNSService{}
	n := NewNotifierWithClients(testConfig(true, true), sesMock, snsMock, logger.NewNoOpLogger())

	n.PlanAwaitingApproval(context.Background(), updatePlan())

	require.Len(t, sesMock.inputs, 1)
	input := sesMock.inputs[0]
	assert.Equal(t, []string{"approver@example.com"}, input.Destination.ToAddresses)
	assert.Equal(t, "copilot@example.com", *input.Source)
	assert.Contains(t, *input.Message.Subject.Data, "awaits approval")
	assert.Contains(t, *input.Message.Body.Text.Data, "PATCH /purchase-orders/4500001234/items/00010")
	// non-destructive plans never page the approver's phone
	assert.Empty(t, snsMock.inputs)
}

func TestPlanAwaitingApproval_DestructivePlanAlsoSendsSMS(t *testing.T) {
	sesMock := &MockSESService{}
	snsMock := &MockSNSService{}
	n := NewNotifierWithClients(testConfig(true, true), sesMock, snsMock, logger.NewNoOpLogger())

	n.PlanAwaitingApproval(context.Background(), deletePlan())

	require.Len(t, sesMock.inputs, 1)
	assert.Contains(t, *sesMock.inputs[0].Message.Body.Text.Data, "destructive operation")
	require.Len(t, snsMock.inputs, 1)
	assert.Equal(t, "+4915112345678", *snsMock.inputs[0].PhoneNumber)
}

func TestPlanAwaitingApproval_DisabledChannelsStaySilent(t *testing.T) {
	sesMock := &MockSESService{}
	snsMock := &MockSNSService{}
	n := NewNotifierWithClients(testConfig(false, false), sesMock, snsMock, logger.NewNoOpLogger())

	n.PlanAwaitingApproval(context.Background(), deletePlan())

	assert.Empty(t, sesMock.inputs)
	assert.Empty(t, snsMock.inputs)
}

func TestPlanAwaitingApproval_SendFailuresAreSwallowed(t *testing.T) {
	sesMock := &MockSESService{err: errors.New("ses throttled")}
	snsMock := &MockSNSService{err: errors.New("sns unavailable")}
	n := NewNotifierWithClients(testConfig(true, true), sesMock, snsMock, logger.NewNoOpLogger())

	// must not panic or surface the errors
	n.PlanAwaitingApproval(context.Background(), deletePlan())

	assert.Len(t, sesMock.inputs, 1)
	assert.Len(t, snsMock.inputs, 1)
}

func TestRenderPlanMessage_IncludesAdvisories(t *testing.T) {
	p := updatePlan()
	p.Advisories = []models.GuardViolation{{
		RuleID:   "SUPPLIER_BLOCKED",
		RuleName: "Supplier is blocked",
		Severity: models.SeverityWarn,
		Message:  "supplier ACME Industrial is currently blocked; the change may be rejected downstream",
	}}

	body := renderPlanMessage(p)

	assert.Contains(t, body, "Summary: Update purchase order item")
	assert.Contains(t, body, "[warn] Supplier is blocked")
}
