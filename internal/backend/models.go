// Package backend is the HTTP client for the order-management system.
package backend

// PurchaseOrderItem is one line of a purchase order as the backend returns it.
type PurchaseOrderItem struct {
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

// PurchaseOrder is an order header plus (optionally) its items.
type PurchaseOrder struct {
	OrderNumber     string              `json:"orderNumber"`
	Supplier        string              `json:"supplier"`
	SupplierName    string              `json:"supplierName,omitempty"`
	SupplierBlocked bool                `json:"supplierBlocked"`
	Currency        string              `json:"currency"`
	TotalValue      float64             `json:"totalValue"`
	IsDeleted       bool                `json:"isDeleted"`
	ReleaseComplete bool                `json:"releaseComplete"`
	Items           []PurchaseOrderItem `json:"items,omitempty"`
}

// HealthStatus is the backend pre-flight probe response.
type HealthStatus struct {
	Status  string `json:"status"` // "ok", "degraded", or "error"
	Message string `json:"message,omitempty"`
}

// ListFilter scopes a purchase-order listing.
type ListFilter struct {
	Supplier string
	Limit    int
}
