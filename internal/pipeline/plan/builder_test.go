// internal/pipeline/plan/builder_test.go
package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"po-copilot/internal/common/logger"
	"po-copilot/internal/models"
	"po-copilot/pkg/registry"
)

func newTestBuilder() *Builder {
	return NewBuilder(registry.Builtin(), logger.NewNoOpLogger())
}

func resolvedIntent(id models.IntentID, fields map[string]interface{}, entities ...models.ResolvedEntity) models.ResolvedIntent {
	return models.ResolvedIntent{
		Intent:   models.ParsedIntent{ID: id, Fields: fields},
		Entities: entities,
	}
}

func poEntity(orderNumber, label string) models.ResolvedEntity {
	return models.ResolvedEntity{
		EntityType:    models.EntityPurchaseOrder,
		ResolvedValue: orderNumber,
		ResolvedLabel: label,
	}
}

func lineEntity(itemNumber, label string) models.ResolvedEntity {
	return models.ResolvedEntity{
		EntityType:    models.EntityPOItem,
		ResolvedValue: itemNumber,
		ResolvedLabel: label,
	}
}

func TestBuild_ReadsBeforeWrites(t *testing.T) {
	b := newTestBuilder()

	p, err := b.Build("conv-1", []models.ResolvedIntent{
		resolvedIntent(models.IntentUpdatePOItem, map[string]interface{}{
			"updates": map[string]interface{}{"quantity": float64(30)},
		}, poEntity("4500001234", ""), lineEntity("00010", "")),
		resolvedIntent(models.IntentGetPurchaseOrder, nil, poEntity("4500001234", "")),
		resolvedIntent(models.IntentGetPOItems, nil, poEntity("4500009999", "")),
	}, nil)

	require.NoError(t, err)
	require.Len(t, p.Actions, 3)
	// reads first, in their original relative order
	assert.Equal(t, models.IntentGetPurchaseOrder, p.Actions[0].IntentID)
	assert.Equal(t, models.IntentGetPOItems, p.Actions[1].IntentID)
	assert.Equal(t, models.IntentUpdatePOItem, p.Actions[2].IntentID)
	assert.Equal(t, models.PlanPending, p.Status)
	assert.NotEmpty(t, p.PlanID)
}

func TestBuild_UpdateItemCall(t *testing.T) {
	b := newTestBuilder()

	p, err := b.Build("conv-1", []models.ResolvedIntent{
		resolvedIntent(models.IntentUpdatePOItem, map[string]interface{}{
			"updates": map[string]interface{}{"quantity": float64(30)},
		}, poEntity("4500001234", ""), lineEntity("00010", "")),
	}, nil)

	require.NoError(t, err)
	call := p.Actions[0].APICall
	assert.Equal(t, "PATCH", call.Method)
	assert.Equal(t, "/purchase-orders/4500001234/items/00010", call.Path)
	assert.Equal(t, map[string]interface{}{"quantity": float64(30)}, call.Body)
	assert.True(t, p.RequiresApproval)
}

func TestBuild_NoteSkipsApproval(t *testing.T) {
	b := newTestBuilder()

	p, err := b.Build("conv-1", []models.ResolvedIntent{
		resolvedIntent(models.IntentAddPONote, map[string]interface{}{
			"note": "called the supplier, delivery confirmed",
		}, poEntity("4500001234", "")),
	}, nil)

	require.NoError(t, err)
	assert.False(t, p.RequiresApproval)
	call := p.Actions[0].APICall
	assert.Equal(t, "POST", call.Method)
	assert.Equal(t, "/purchase-orders/4500001234/notes", call.Path)
}

func TestBuild_DeleteCarriesRisk(t *testing.T) {
	b := newTestBuilder()

	p, err := b.Build("conv-1", []models.ResolvedIntent{
		resolvedIntent(models.IntentDeletePOItem, nil,
			poEntity("4500001234", ""), lineEntity("00020", "")),
	}, nil)

	require.NoError(t, err)
	action := p.Actions[0]
	assert.Equal(t, "DELETE", action.APICall.Method)
	assert.Equal(t, "/purchase-orders/4500001234/items/00020", action.APICall.Path)
	require.Len(t, action.Risks, 1)
	assert.Contains(t, action.Risks[0], "destructive operation")
	assert.True(t, p.HasDestructiveAction())
	assert.True(t, p.RequiresApproval)
}

func TestBuild_CreateBody(t *testing.T) {
	b := newTestBuilder()
	items := []interface{}{map[string]interface{}{"materialNumber": "MAT-1", "quantity": float64(10)}}

	p, err := b.Build("conv-1", []models.ResolvedIntent{
		resolvedIntent(models.IntentCreatePurchaseOrder, map[string]interface{}{
			"supplier": "ACME Industrial",
			"items":    items,
		}),
	}, nil)

	require.NoError(t, err)
	call := p.Actions[0].APICall
	assert.Equal(t, "POST", call.Method)
	assert.Equal(t, "/purchase-orders", call.Path)
	assert.Equal(t, "ACME Industrial", call.Body["supplier"])
	assert.Equal(t, items, call.Body["items"])
}

func TestBuild_Summary(t *testing.T) {
	b := newTestBuilder()

	p, err := b.Build("conv-1", []models.ResolvedIntent{
		resolvedIntent(models.IntentGetPurchaseOrder, nil,
			poEntity("4500001234", "4500001234 (ACME Industrial)")),
		resolvedIntent(models.IntentDeletePOItem, nil,
			poEntity("4500001234", "4500001234 (ACME Industrial)"),
			lineEntity("00020", "item 00020 (copper wire spool)")),
	}, nil)

	require.NoError(t, err)
	assert.Equal(t,
		"Get purchase order: 4500001234 (ACME Industrial); "+
			"Delete purchase order item: 4500001234 (ACME Industrial), item 00020 (copper wire spool)",
		p.Summary)
}

func TestBuild_AdvisoriesAttached(t *testing.T) {
	b := newTestBuilder()
	advisories := []models.GuardViolation{{RuleID: "SUPPLIER_BLOCKED", Severity: models.SeverityWarn}}

	p, err := b.Build("conv-1", []models.ResolvedIntent{
		resolvedIntent(models.IntentGetPurchaseOrder, nil, poEntity("4500001234", "")),
	}, advisories)

	require.NoError(t, err)
	assert.Equal(t, advisories, p.Advisories)
}

func TestBuild_EmptyPlanFails(t *testing.T) {
	b := newTestBuilder()

	_, err := b.Build("conv-1", nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no executable actions")
}
