// Package models defines the core domain model shared by the pipeline stages.
package models

// IntentID identifies a supported operation.
type IntentID string

const (
	IntentGetPurchaseOrder    IntentID = "GET_PURCHASE_ORDER"
	IntentListPurchaseOrders  IntentID = "LIST_PURCHASE_ORDERS"
	IntentGetPOItems          IntentID = "GET_PO_ITEMS"
	IntentCreatePurchaseOrder IntentID = "CREATE_PURCHASE_ORDER"
	IntentUpdatePurchaseOrder IntentID = "UPDATE_PURCHASE_ORDER"
	IntentUpdatePOItem        IntentID = "UPDATE_PO_ITEM"
	IntentDeletePurchaseOrder IntentID = "DELETE_PURCHASE_ORDER"
	IntentDeletePOItem        IntentID = "DELETE_PO_ITEM"
	IntentAddPONote           IntentID = "ADD_PO_NOTE"
)

// IntentCategory classifies the backend effect of an intent.
type IntentCategory string

const (
	CategoryRead   IntentCategory = "read"
	CategoryCreate IntentCategory = "create"
	CategoryUpdate IntentCategory = "update"
	CategoryDelete IntentCategory = "delete"
)

// ConfirmationPolicy controls whether a planned action needs human approval.
type ConfirmationPolicy string

const (
	ConfirmAlways ConfirmationPolicy = "always"
	ConfirmAuto   ConfirmationPolicy = "auto"
	ConfirmNever  ConfirmationPolicy = "never"
)

// FieldConfidence carries per-field interpretation detail from the classifier.
type FieldConfidence struct {
	RawText       string        `json:"rawText,omitempty"`
	OriginalValue interface{}   `json:"originalValue,omitempty"`
	CurrentValue  interface{}   `json:"currentValue,omitempty"`
	Alternatives  []interface{} `json:"alternatives,omitempty"`
}

// ParsedIntent is one classified operation extracted from a user message.
// Immutable after parsing.
type ParsedIntent struct {
	ID                    IntentID                   `json:"intentId"`
	Confidence            float64                    `json:"confidence"`
	Fields                map[string]interface{}     `json:"extractedFields"`
	MissingRequiredFields []string                   `json:"missingRequiredFields,omitempty"`
	FieldConfidence       map[string]FieldConfidence `json:"fieldConfidence,omitempty"`
}

// TokenUsage reports classifier cost for audit purposes.
type TokenUsage struct {
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	CostUSD          float64 `json:"costUsd,omitempty"`
}

// ParseResult is the classifier output for one message.
type ParseResult struct {
	Intents          []ParsedIntent `json:"intents"`
	UnhandledContent string         `json:"unhandledContent,omitempty"`
	Usage            *TokenUsage    `json:"usage,omitempty"`
}
