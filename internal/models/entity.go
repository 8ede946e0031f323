package models

// ResolutionConfidence is the closed confidence tier used for control flow,
// distinct from the continuous corroboration score.
type ResolutionConfidence string

const (
	ResolutionExact     ResolutionConfidence = "exact"
	ResolutionHigh      ResolutionConfidence = "high"
	ResolutionLow       ResolutionConfidence = "low"
	ResolutionAmbiguous ResolutionConfidence = "ambiguous"
)

// MatchType records how a reference was matched against backend records.
type MatchType string

const (
	MatchLiteral    MatchType = "literal"
	MatchNormalized MatchType = "normalized"
	MatchFuzzy      MatchType = "fuzzy"
	MatchContext    MatchType = "context"
)

// EntityType discriminates the resolved record kind.
type EntityType string

const (
	EntityPurchaseOrder EntityType = "purchase_order"
	EntityPOItem        EntityType = "po_item"
)

// OrderSnapshot captures the order-header attributes the guard rules and
// corroborator need.
type OrderSnapshot struct {
	OrderNumber     string  `json:"orderNumber"`
	Supplier        string  `json:"supplier"`
	SupplierName    string  `json:"supplierName,omitempty"`
	SupplierBlocked bool    `json:"supplierBlocked"`
	Currency        string  `json:"currency"`
	TotalValue      float64 `json:"totalValue"`
	IsDeleted       bool    `json:"isDeleted"`
	ReleaseComplete bool    `json:"releaseComplete"`
}

// ItemSnapshot captures the line-item attributes the guard rules and
// corroborator need.
type ItemSnapshot struct {
	OrderNumber       string  `json:"orderNumber"`
	ItemNumber        string  `json:"itemNumber"`
	Description       string  `json:"description"`
	Quantity          float64 `json:"quantity"`
	Unit              string  `json:"unit"`
	Price             float64 `json:"price"`
	Currency          string  `json:"currency"`
	Plant             string  `json:"plant"`
	DeliveryDate      string  `json:"deliveryDate"`
	IsDeleted         bool    `json:"isDeleted"`
	DeliveryCompleted bool    `json:"deliveryCompleted"`
	FinallyInvoiced   bool    `json:"finallyInvoiced"`
	DeletionFlagged   bool    `json:"deletionFlagged"`
}

// RecordSnapshot is a tagged union over the per-entity-type snapshots;
// EntityType is the discriminant.
type RecordSnapshot struct {
	EntityType EntityType     `json:"entityType"`
	Order      *OrderSnapshot `json:"order,omitempty"`
	Item       *ItemSnapshot  `json:"item,omitempty"`
}

// ResolvedEntity maps a natural-language reference to a concrete backend
// record. Read-only downstream of the resolver.
type ResolvedEntity struct {
	OriginalValue string               `json:"originalValue"`
	ResolvedValue string               `json:"resolvedValue"`
	ResolvedLabel string               `json:"resolvedLabel"`
	Confidence    ResolutionConfidence `json:"confidence"`
	MatchType     MatchType            `json:"matchType"`
	EntityType    EntityType           `json:"entityType"`
	Metadata      *RecordSnapshot      `json:"metadata,omitempty"`
}

// ResolvedIntent pairs a parsed intent with its resolved entities.
type ResolvedIntent struct {
	Intent   ParsedIntent     `json:"intent"`
	Entities []ResolvedEntity `json:"resolvedEntities"`
}

// OrderEntity returns the resolved purchase-order entity, if any.
func (r *ResolvedIntent) OrderEntity() *ResolvedEntity {
	for i := range r.Entities {
		if r.Entities[i].EntityType == EntityPurchaseOrder {
			return &r.Entities[i]
		}
	}
	return nil
}

// ItemEntity returns the resolved line-item entity, if any.
func (r *ResolvedIntent) ItemEntity() *ResolvedEntity {
	for i := range r.Entities {
		if r.Entities[i].EntityType == EntityPOItem {
			return &r.Entities[i]
		}
	}
	return nil
}
