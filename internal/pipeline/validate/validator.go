// Package validate checks parsed intents against their registered
// required-field contracts. Pure: no network or storage access.
package validate

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"po-copilot/internal/models"
	"po-copilot/pkg/registry"
)

// IntentValidation is the per-intent validation outcome.
type IntentValidation struct {
	IntentID      models.IntentID `json:"intentId"`
	MissingFields []string        `json:"missingFields,omitempty"`
	SchemaErrors  []string        `json:"schemaErrors,omitempty"`
}

type Validator struct {
	registry *registry.Registry
}

func NewValidator(reg *registry.Registry) *Validator {
	return &Validator{registry: reg}
}

// ValidateAll computes the missing required fields for each intent from its
// definition versus the extracted fields, plus JSON-schema findings where the
// definition declares a field schema.
func (v *Validator) ValidateAll(intents []models.ParsedIntent) []IntentValidation {
	out := make([]IntentValidation, 0, len(intents))
	for _, intent := range intents {
		out = append(out, v.validate(intent))
	}
	return out
}

// AllMissingFields flattens every missing field across validations, prefixed
// with the owning intent id when more than one intent is present.
func AllMissingFields(validations []IntentValidation) []string {
	var out []string
	multi := len(validations) > 1
	for _, val := range validations {
		for _, f := range val.MissingFields {
			if multi {
				out = append(out, fmt.Sprintf("%s.%s", val.IntentID, f))
			} else {
				out = append(out, f)
			}
		}
	}
	return out
}

// AllMissingFields runs a full validation and flattens the result into the
// clarification list the orchestrator surfaces to the user. Schema findings
// count as missing information too.
func (v *Validator) AllMissingFields(intents []models.ParsedIntent) []string {
	validations := v.ValidateAll(intents)
	out := AllMissingFields(validations)
	for _, val := range validations {
		out = append(out, val.SchemaErrors...)
	}
	return out
}

func (v *Validator) validate(intent models.ParsedIntent) IntentValidation {
	result := IntentValidation{IntentID: intent.ID}

	def, ok := v.registry.Lookup(intent.ID)
	if !ok {
		result.SchemaErrors = append(result.SchemaErrors, "unknown intent")
		return result
	}

	for _, field := range def.RequiredFields {
		val, present := intent.Fields[field]
		if !present || isEmpty(val) {
			result.MissingFields = append(result.MissingFields, field)
		}
	}

	if def.FieldSchema != nil && len(result.MissingFields) == 0 {
		schemaLoader := gojsonschema.NewGoLoader(def.FieldSchema)
		docLoader := gojsonschema.NewGoLoader(intent.Fields)

		res, err := gojsonschema.Validate(schemaLoader, docLoader)
		if err != nil {
			result.SchemaErrors = append(result.SchemaErrors, err.Error())
			return result
		}
		for _, schemaErr := range res.Errors() {
			result.SchemaErrors = append(result.SchemaErrors, schemaErr.String())
		}
	}

	return result
}

func isEmpty(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []interface{}:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	default:
		return false
	}
}
