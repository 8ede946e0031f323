// pkg/registry/registry_test.go
package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"po-copilot/internal/models"
)

func TestBuiltin_CoversAllIntents(t *testing.T) {
	reg := Builtin()

	all := []models.IntentID{
		models.IntentGetPurchaseOrder,
		models.IntentListPurchaseOrders,
		models.IntentGetPOItems,
		models.IntentCreatePurchaseOrder,
		models.IntentUpdatePurchaseOrder,
		models.IntentUpdatePOItem,
		models.IntentDeletePurchaseOrder,
		models.IntentDeletePOItem,
		models.IntentAddPONote,
	}
	for _, id := range all {
		assert.True(t, reg.Known(id), "missing %s", id)
	}
}

func TestBuiltin_ConfirmationPolicies(t *testing.T) {
	reg := Builtin()

	note, ok := reg.Lookup(models.IntentAddPONote)
	require.True(t, ok)
	assert.Equal(t, models.ConfirmNever, note.Confirmation)
	assert.True(t, note.IsWrite())

	del, ok := reg.Lookup(models.IntentDeletePurchaseOrder)
	require.True(t, ok)
	assert.Equal(t, models.ConfirmAlways, del.Confirmation)

	get, ok := reg.Lookup(models.IntentGetPurchaseOrder)
	require.True(t, ok)
	assert.False(t, get.IsWrite())
}

func TestLookup_Unknown(t *testing.T) {
	reg := Builtin()

	_, ok := reg.Lookup(models.IntentID("ORDER_PIZZA"))
	assert.False(t, ok)
	assert.False(t, reg.Known(models.IntentID("ORDER_PIZZA")))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intents.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"version": "0.1.0",
		"lastUpdated": "2026-08-01",
		"intents": [{
			"id": "GET_PURCHASE_ORDER",
			"displayName": "Get purchase order",
			"category": "read",
			"requiredFields": ["orderNumber"],
			"confirmation": "auto"
		}]
	}`), 0o644))

	reg, err := Load(path)
	require.NoError(t, err)

	def, ok := reg.Lookup(models.IntentGetPurchaseOrder)
	require.True(t, ok)
	assert.Equal(t, "Get purchase order", def.DisplayName)
	assert.Equal(t, models.CategoryRead, def.Category)
	assert.False(t, reg.Known(models.IntentDeletePOItem))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"intents": [`), 0o644))
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intent registry")
}
