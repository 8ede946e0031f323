// internal/notify/notifier.go
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"po-copilot/internal/common/config"
	"po-copilot/internal/common/logger"
	"po-copilot/internal/models"
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notifier alerts an approver when a plan awaits approval. Notification
// failures are logged and swallowed; the pipeline outcome never depends on
// the approver's inbox.
type Notifier struct {
	config    config.NotificationConfig
	logger    logger.Logger
	sesClient SESService
	snsClient SNSService
}

func NewNotifier(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*Notifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Notifier{
		config:    cfg,
		logger:    log.WithFields(map[string]interface{}{"component": "notify"}),
		sesClient: ses.NewFromConfig(awsCfg),
		snsClient: sns.NewFromConfig(awsCfg),
	}, nil
}

// NewNotifierWithClients wires explicit clients; used by tests.
func NewNotifierWithClients(cfg config.NotificationConfig, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		config:    cfg,
		logger:    log.WithFields(map[string]interface{}{"component": "notify"}),
		sesClient: sesClient,
		snsClient: snsClient,
	}
}

// PlanAwaitingApproval notifies the configured approver about a pending
// plan. SMS goes out only for plans carrying a destructive action.
func (n *Notifier) PlanAwaitingApproval(ctx context.Context, plan *models.ExecutionPlan) {
	subject := fmt.Sprintf("Purchase order plan %s awaits approval", shortID(plan.PlanID))
	body := renderPlanMessage(plan)

	if n.config.Email.Enabled && n.config.Email.ApproverEmail != "" {
		if err := n.sendEmail(ctx, n.config.Email.ApproverEmail, subject, body); err != nil {
			n.logger.WithError(err).Error("approval email failed", map[string]interface{}{
				"plan_id": plan.PlanID,
				"email":   n.config.Email.ApproverEmail,
			})
		}
	}

	if n.config.SMS.Enabled && n.config.SMS.ApproverPhone != "" && plan.HasDestructiveAction() {
		if err := n.sendSMS(ctx, n.config.SMS.ApproverPhone, subject); err != nil {
			n.logger.WithError(err).Error("approval SMS failed", map[string]interface{}{
				"plan_id": plan.PlanID,
				"phone":   n.config.SMS.ApproverPhone,
			})
		}
	}
}

func renderPlanMessage(plan *models.ExecutionPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan %s (conversation %s), created %s.\n\n",
		plan.PlanID, plan.ConversationID, plan.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Summary: %s\n\nActions:\n", plan.Summary)
	for i, a := range plan.Actions {
		fmt.Fprintf(&b, "  %d. %s %s %s\n", i+1, a.IntentID, a.APICall.Method, a.APICall.Path)
		for _, r := range a.Risks {
			fmt.Fprintf(&b, "     risk: %s\n", r)
		}
	}
	if len(plan.Advisories) > 0 {
		b.WriteString("\nAdvisories:\n")
		for _, v := range plan.Advisories {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", v.Severity, v.RuleName, v.Message)
		}
	}
	return b.String()
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := n.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.config.Email.FromEmail),
	})
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, to, message string) error {
	_, err := n.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	})
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
