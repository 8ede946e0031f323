// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"po-copilot/internal/models"
)

// Registry indexes intent definitions by id.
type Registry struct {
	byID map[models.IntentID]IntentDefinition
}

func New(defs []IntentDefinition) *Registry {
	byID := make(map[models.IntentID]IntentDefinition, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
	}
	return &Registry{byID: byID}
}

func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg IntentRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse intent registry: %w", err)
	}
	return New(reg.Intents), nil
}

// Lookup returns the definition for an intent id.
func (r *Registry) Lookup(id models.IntentID) (IntentDefinition, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// Known reports whether the intent id is registered.
func (r *Registry) Known(id models.IntentID) bool {
	_, ok := r.byID[id]
	return ok
}

// Builtin returns the default registry used when no registry file is
// configured. Tests rely on it too.
func Builtin() *Registry {
	return New([]IntentDefinition{
		{
			ID:             models.IntentGetPurchaseOrder,
			DisplayName:    "Get purchase order",
			Category:       models.CategoryRead,
			RequiredFields: []string{"orderNumber"},
			Confirmation:   models.ConfirmAuto,
		},
		{
			ID:             models.IntentListPurchaseOrders,
			DisplayName:    "List purchase orders",
			Category:       models.CategoryRead,
			RequiredFields: nil,
			Confirmation:   models.ConfirmAuto,
		},
		{
			ID:             models.IntentGetPOItems,
			DisplayName:    "Get purchase order items",
			Category:       models.CategoryRead,
			RequiredFields: []string{"orderNumber"},
			Confirmation:   models.ConfirmAuto,
		},
		{
			ID:             models.IntentCreatePurchaseOrder,
			DisplayName:    "Create purchase order",
			Category:       models.CategoryCreate,
			RequiredFields: []string{"supplier", "items"},
			Confirmation:   models.ConfirmAlways,
			FieldSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"supplier": map[string]interface{}{"type": "string", "minLength": 1},
					"currency": map[string]interface{}{"type": "string"},
					"items":    map[string]interface{}{"type": "array", "minItems": 1},
				},
			},
		},
		{
			ID:             models.IntentUpdatePurchaseOrder,
			DisplayName:    "Update purchase order",
			Category:       models.CategoryUpdate,
			RequiredFields: []string{"orderNumber", "updates"},
			Confirmation:   models.ConfirmAlways,
		},
		{
			ID:             models.IntentUpdatePOItem,
			DisplayName:    "Update purchase order item",
			Category:       models.CategoryUpdate,
			RequiredFields: []string{"orderNumber", "itemNumber", "updates"},
			Confirmation:   models.ConfirmAlways,
		},
		{
			ID:             models.IntentDeletePurchaseOrder,
			DisplayName:    "Delete purchase order",
			Category:       models.CategoryDelete,
			RequiredFields: []string{"orderNumber"},
			Confirmation:   models.ConfirmAlways,
		},
		{
			ID:             models.IntentDeletePOItem,
			DisplayName:    "Delete purchase order item",
			Category:       models.CategoryDelete,
			RequiredFields: []string{"orderNumber", "itemNumber"},
			Confirmation:   models.ConfirmAlways,
		},
		{
			ID:             models.IntentAddPONote,
			DisplayName:    "Add purchase order note",
			Category:       models.CategoryUpdate,
			RequiredFields: []string{"orderNumber", "note"},
			// Notes are additive, so they skip approval.
			Confirmation: models.ConfirmNever,
		},
	})
}
