// pkg/registry/schema.go
package registry

import "po-copilot/internal/models"

type IntentRegistry struct {
	Version     string             `json:"version"`
	LastUpdated string             `json:"lastUpdated"`
	Intents     []IntentDefinition `json:"intents"`
}

// IntentDefinition is the static per-intent contract: category, required
// fields, field schema, and confirmation policy. Never mutated at runtime.
type IntentDefinition struct {
	ID             models.IntentID           `json:"id"`
	DisplayName    string                    `json:"displayName"`
	Description    string                    `json:"description"`
	Category       models.IntentCategory     `json:"category"`
	RequiredFields []string                  `json:"requiredFields"`
	FieldSchema    map[string]interface{}    `json:"fieldSchema,omitempty"`
	Confirmation   models.ConfirmationPolicy `json:"confirmation"`
}

// IsWrite reports whether the intent mutates backend state.
func (d *IntentDefinition) IsWrite() bool {
	return d.Category != models.CategoryRead
}

// RequiresField reports whether the named field is part of the intent's
// required contract.
func (d *IntentDefinition) RequiresField(name string) bool {
	for _, f := range d.RequiredFields {
		if f == name {
			return true
		}
	}
	return false
}
