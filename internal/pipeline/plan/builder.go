// Package plan turns resolved intents into a concrete, ordered execution
// plan against the order-management API.
package plan

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"po-copilot/internal/common/logger"
	"po-copilot/internal/models"
	"po-copilot/pkg/registry"
)

type Builder struct {
	registry *registry.Registry
	logger   logger.Logger
}

func NewBuilder(reg *registry.Registry, log logger.Logger) *Builder {
	return &Builder{
		registry: reg,
		logger:   log.WithFields(map[string]interface{}{"component": "plan"}),
	}
}

// Build orders all read actions before any write action (stable otherwise),
// maps each intent to its API call, and decides whether the plan needs
// human approval.
func (b *Builder) Build(conversationID string, resolvedIntents []models.ResolvedIntent, advisories []models.GuardViolation) (*models.ExecutionPlan, error) {
	p := &models.ExecutionPlan{
		PlanID:         uuid.NewString(),
		ConversationID: conversationID,
		Advisories:     advisories,
		Status:         models.PlanPending,
		CreatedAt:      time.Now().UTC(),
	}

	var reads, writes []models.PlannedAction
	for _, ri := range resolvedIntents {
		def, ok := b.registry.Lookup(ri.Intent.ID)
		if !ok {
			return nil, fmt.Errorf("no definition for intent %s", ri.Intent.ID)
		}

		action, err := b.buildAction(ri)
		if err != nil {
			return nil, err
		}

		if def.Category == models.CategoryRead {
			reads = append(reads, *action)
			continue
		}
		writes = append(writes, *action)
		if def.Confirmation != models.ConfirmNever {
			p.RequiresApproval = true
		}
	}

	p.Actions = append(reads, writes...)
	if len(p.Actions) == 0 {
		return nil, fmt.Errorf("no executable actions for conversation %s", conversationID)
	}
	p.Summary = b.summarize(resolvedIntents)

	b.logger.Info("plan built", map[string]interface{}{
		"plan_id":           p.PlanID,
		"actions":           len(p.Actions),
		"requires_approval": p.RequiresApproval,
	})
	return p, nil
}

func (b *Builder) buildAction(ri models.ResolvedIntent) (*models.PlannedAction, error) {
	action := &models.PlannedAction{IntentID: ri.Intent.ID}

	orderNumber := resolvedValue(ri, models.EntityPurchaseOrder)
	itemNumber := resolvedValue(ri, models.EntityPOItem)

	switch ri.Intent.ID {
	case models.IntentGetPurchaseOrder:
		action.APICall = models.APICall{Method: "GET", Path: "/purchase-orders/" + orderNumber}
	case models.IntentListPurchaseOrders:
		action.APICall = models.APICall{Method: "GET", Path: "/purchase-orders"}
	case models.IntentGetPOItems:
		action.APICall = models.APICall{Method: "GET", Path: fmt.Sprintf("/purchase-orders/%s/items", orderNumber)}
	case models.IntentCreatePurchaseOrder:
		action.APICall = models.APICall{
			Method: "POST",
			Path:   "/purchase-orders",
			Body: map[string]interface{}{
				"supplier": ri.Intent.Fields["supplier"],
				"items":    ri.Intent.Fields["items"],
			},
		}
	case models.IntentUpdatePurchaseOrder:
		action.APICall = models.APICall{
			Method: "PATCH",
			Path:   "/purchase-orders/" + orderNumber,
			Body:   updatesBody(ri.Intent.Fields),
		}
	case models.IntentUpdatePOItem:
		action.APICall = models.APICall{
			Method: "PATCH",
			Path:   fmt.Sprintf("/purchase-orders/%s/items/%s", orderNumber, itemNumber),
			Body:   updatesBody(ri.Intent.Fields),
		}
	case models.IntentDeletePurchaseOrder:
		action.APICall = models.APICall{Method: "DELETE", Path: "/purchase-orders/" + orderNumber}
		action.Risks = append(action.Risks, "destructive operation: deletes the entire purchase order")
	case models.IntentDeletePOItem:
		action.APICall = models.APICall{Method: "DELETE", Path: fmt.Sprintf("/purchase-orders/%s/items/%s", orderNumber, itemNumber)}
		action.Risks = append(action.Risks, "destructive operation: deletes a purchase order line item")
	case models.IntentAddPONote:
		action.APICall = models.APICall{
			Method: "POST",
			Path:   fmt.Sprintf("/purchase-orders/%s/notes", orderNumber),
			Body:   map[string]interface{}{"note": ri.Intent.Fields["note"]},
		}
	default:
		return nil, fmt.Errorf("intent %s has no API mapping", ri.Intent.ID)
	}

	return action, nil
}

// summarize builds a deterministic human-readable line per intent from the
// resolved entity labels. Used for UI display and audit messages.
func (b *Builder) summarize(resolvedIntents []models.ResolvedIntent) string {
	var lines []string
	for _, ri := range resolvedIntents {
		def, ok := b.registry.Lookup(ri.Intent.ID)
		name := string(ri.Intent.ID)
		if ok {
			name = def.DisplayName
		}
		var labels []string
		for _, e := range ri.Entities {
			labels = append(labels, e.ResolvedLabel)
		}
		if len(labels) > 0 {
			lines = append(lines, fmt.Sprintf("%s: %s", name, strings.Join(labels, ", ")))
		} else {
			lines = append(lines, name)
		}
	}
	return strings.Join(lines, "; ")
}

func resolvedValue(ri models.ResolvedIntent, t models.EntityType) string {
	for _, e := range ri.Entities {
		if e.EntityType == t {
			return e.ResolvedValue
		}
	}
	return ""
}

func updatesBody(fields map[string]interface{}) map[string]interface{} {
	if updates, ok := fields["updates"].(map[string]interface{}); ok {
		return updates
	}
	return map[string]interface{}{}
}
