// Package resolve maps natural-language references to concrete backend
// record identifiers.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"po-copilot/internal/backend"
	commonerrors "po-copilot/internal/common/errors"
	"po-copilot/internal/common/logger"
	"po-copilot/internal/models"
	"po-copilot/pkg/registry"
)

// Backend is the read surface of the order-management client the resolver
// needs.
type Backend interface {
	GetOrder(ctx context.Context, orderNumber string) (*backend.PurchaseOrder, error)
	ListOrders(ctx context.Context, filter backend.ListFilter) ([]backend.PurchaseOrder, error)
	GetItems(ctx context.Context, orderNumber string) ([]backend.PurchaseOrderItem, error)
}

type Resolver struct {
	backend  Backend
	registry *registry.Registry
	cache    *redis.Client // optional order-snapshot cache
	cacheTTL time.Duration
	logger   logger.Logger
}

func NewResolver(be Backend, reg *registry.Registry, cache *redis.Client, cacheTTL time.Duration, log logger.Logger) *Resolver {
	return &Resolver{
		backend:  be,
		registry: reg,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   log.WithFields(map[string]interface{}{"component": "resolve"}),
	}
}

// Resolve maps every natural reference in the intent's fields to backend
// records. An ambiguous match is still returned (with the ambiguous tier) so
// downstream guards can treat it as unresolved for writes.
func (r *Resolver) Resolve(ctx context.Context, intent models.ParsedIntent, convCtx *models.ConversationContext) (*models.ResolvedIntent, error) {
	resolved := &models.ResolvedIntent{Intent: intent}

	orderRef, hasOrderRef := stringField(intent.Fields, "orderNumber")
	if !hasOrderRef && convCtx != nil && r.expectsOrderReference(intent.ID) {
		// Fall back to the conversation's active order for implicit references.
		if active := convCtx.LatestEntity(models.EntityPurchaseOrder); active != nil {
			orderRef = active.Value
			hasOrderRef = true
		}
	}

	var order *backend.PurchaseOrder
	if hasOrderRef {
		entity, po, err := r.resolveOrder(ctx, orderRef)
		if err != nil {
			return nil, err
		}
		if !fieldPresent(intent.Fields, "orderNumber") {
			entity.MatchType = models.MatchContext
		}
		resolved.Entities = append(resolved.Entities, *entity)
		order = po
	}

	itemRef, hasItemRef := itemReference(intent.Fields)
	if hasItemRef {
		if order == nil {
			return nil, fmt.Errorf("line item %q referenced without a resolvable purchase order", itemRef)
		}
		entity, err := r.resolveItem(ctx, order.OrderNumber, itemRef)
		if err != nil {
			return nil, err
		}
		resolved.Entities = append(resolved.Entities, *entity)
	}

	return resolved, nil
}

// expectsOrderReference reports whether the intent's contract names an order
// reference. Creates and listings never do, so the conversation's active
// order must not leak into them.
func (r *Resolver) expectsOrderReference(id models.IntentID) bool {
	if r.registry == nil {
		return false
	}
	def, ok := r.registry.Lookup(id)
	return ok && def.RequiresField("orderNumber")
}

// resolveOrder tries exact match, then normalized/zero-padded match, then a
// fuzzy match over the order listing.
func (r *Resolver) resolveOrder(ctx context.Context, ref string) (*models.ResolvedEntity, *backend.PurchaseOrder, error) {
	ref = strings.TrimSpace(ref)

	if po := r.lookupOrder(ctx, ref); po != nil {
		return orderEntity(ref, po, models.ResolutionExact, models.MatchLiteral), po, nil
	}

	padded := padNumeric(ref, 10)
	if padded != "" && padded != ref {
		if po := r.lookupOrder(ctx, padded); po != nil {
			return orderEntity(ref, po, models.ResolutionHigh, models.MatchNormalized), po, nil
		}
	}

	orders, err := r.backend.ListOrders(ctx, backend.ListFilter{Limit: 200})
	if err != nil {
		return nil, nil, fmt.Errorf("order listing for fuzzy match failed: %w", err)
	}

	best, tie := bestOrderMatch(ref, orders)
	if best == nil {
		return nil, nil, fmt.Errorf("no purchase order matches %q: %w", ref,
			commonerrors.NewRecordNotFoundError("purchase_order", ref))
	}

	confidence := models.ResolutionLow
	if tie {
		confidence = models.ResolutionAmbiguous
	}
	return orderEntity(ref, best, confidence, models.MatchFuzzy), best, nil
}

// resolveItem matches a line-item reference within the stated order only.
func (r *Resolver) resolveItem(ctx context.Context, orderNumber, ref string) (*models.ResolvedEntity, error) {
	items, err := r.backend.GetItems(ctx, orderNumber)
	if err != nil {
		return nil, fmt.Errorf("fetching items of order %s failed: %w", orderNumber, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("order %s has no line items", orderNumber)
	}

	ref = strings.TrimSpace(ref)

	for i := range items {
		if items[i].ItemNumber == ref {
			return itemEntity(ref, &items[i], models.ResolutionExact, models.MatchLiteral), nil
		}
	}

	padded := padNumeric(ref, 5)
	if padded != "" {
		for i := range items {
			if items[i].ItemNumber == padded || strings.TrimLeft(items[i].ItemNumber, "0") == strings.TrimLeft(padded, "0") {
				return itemEntity(ref, &items[i], models.ResolutionHigh, models.MatchNormalized), nil
			}
		}
	}

	best, tie := bestItemMatch(ref, items)
	if best == nil {
		return nil, fmt.Errorf("no line item of order %s matches %q: %w", orderNumber, ref,
			commonerrors.NewRecordNotFoundError("po_item", ref))
	}

	confidence := models.ResolutionLow
	if tie {
		confidence = models.ResolutionAmbiguous
	}
	return itemEntity(ref, best, confidence, models.MatchFuzzy), nil
}

// lookupOrder consults the snapshot cache before the backend; cache failures
// fall through to the backend silently.
func (r *Resolver) lookupOrder(ctx context.Context, orderNumber string) *backend.PurchaseOrder {
	cacheKey := "po:snapshot:" + orderNumber
	if r.cache != nil {
		if val, err := r.cache.Get(ctx, cacheKey).Result(); err == nil {
			var po backend.PurchaseOrder
			if err := json.Unmarshal([]byte(val), &po); err == nil {
				return &po
			}
		}
	}

	po, err := r.backend.GetOrder(ctx, orderNumber)
	if err != nil {
		return nil
	}

	if r.cache != nil {
		if data, err := json.Marshal(po); err == nil {
			_ = r.cache.Set(ctx, cacheKey, data, r.cacheTTL).Err()
		}
	}
	return po
}

// bestOrderMatch scores orders by token overlap with the reference over
// order number and supplier name. A tie between distinct top candidates is
// reported as ambiguous.
func bestOrderMatch(ref string, orders []backend.PurchaseOrder) (*backend.PurchaseOrder, bool) {
	refTokens := tokenize(ref)
	if len(refTokens) == 0 {
		return nil, false
	}

	var best *backend.PurchaseOrder
	bestScore, tie := 0, false
	for i := range orders {
		score := overlap(refTokens, tokenize(orders[i].OrderNumber+" "+orders[i].SupplierName))
		if score > bestScore {
			best, bestScore, tie = &orders[i], score, false
		} else if score == bestScore && score > 0 {
			tie = true
		}
	}
	return best, tie
}

func bestItemMatch(ref string, items []backend.PurchaseOrderItem) (*backend.PurchaseOrderItem, bool) {
	refTokens := tokenize(ref)
	if len(refTokens) == 0 {
		return nil, false
	}

	var best *backend.PurchaseOrderItem
	bestScore, tie := 0, false
	for i := range items {
		score := overlap(refTokens, tokenize(items[i].Description))
		if score > bestScore {
			best, bestScore, tie = &items[i], score, false
		} else if score == bestScore && score > 0 {
			tie = true
		}
	}
	return best, tie
}

func orderEntity(ref string, po *backend.PurchaseOrder, conf models.ResolutionConfidence, mt models.MatchType) *models.ResolvedEntity {
	label := po.OrderNumber
	if po.SupplierName != "" {
		label = fmt.Sprintf("%s (%s)", po.OrderNumber, po.SupplierName)
	}
	return &models.ResolvedEntity{
		OriginalValue: ref,
		ResolvedValue: po.OrderNumber,
		ResolvedLabel: label,
		Confidence:    conf,
		MatchType:     mt,
		EntityType:    models.EntityPurchaseOrder,
		Metadata: &models.RecordSnapshot{
			EntityType: models.EntityPurchaseOrder,
			Order: &models.OrderSnapshot{
				OrderNumber:     po.OrderNumber,
				Supplier:        po.Supplier,
				SupplierName:    po.SupplierName,
				SupplierBlocked: po.SupplierBlocked,
				Currency:        po.Currency,
				TotalValue:      po.TotalValue,
				IsDeleted:       po.IsDeleted,
				ReleaseComplete: po.ReleaseComplete,
			},
		},
	}
}

func itemEntity(ref string, item *backend.PurchaseOrderItem, conf models.ResolutionConfidence, mt models.MatchType) *models.ResolvedEntity {
	return &models.ResolvedEntity{
		OriginalValue: ref,
		ResolvedValue: item.ItemNumber,
		ResolvedLabel: fmt.Sprintf("item %s (%s)", item.ItemNumber, item.Description),
		Confidence:    conf,
		MatchType:     mt,
		EntityType:    models.EntityPOItem,
		Metadata: &models.RecordSnapshot{
			EntityType: models.EntityPOItem,
			Item: &models.ItemSnapshot{
				OrderNumber:       item.OrderNumber,
				ItemNumber:        item.ItemNumber,
				Description:       item.Description,
				Quantity:          item.Quantity,
				Unit:              item.Unit,
				Price:             item.Price,
				Currency:          item.Currency,
				Plant:             item.Plant,
				DeliveryDate:      item.DeliveryDate,
				IsDeleted:         item.IsDeleted,
				DeliveryCompleted: item.DeliveryCompleted,
				FinallyInvoiced:   item.FinallyInvoiced,
				DeletionFlagged:   item.DeletionFlagged,
			},
		},
	}
}

func stringField(fields map[string]interface{}, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	switch val := v.(type) {
	case string:
		return val, val != ""
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%v", val), ".0"), true
	default:
		return "", false
	}
}

func fieldPresent(fields map[string]interface{}, key string) bool {
	_, ok := fields[key]
	return ok
}

// itemReference prefers the explicit item number, falling back to the
// item description.
func itemReference(fields map[string]interface{}) (string, bool) {
	if v, ok := stringField(fields, "itemNumber"); ok {
		return v, true
	}
	if v, ok := stringField(fields, "itemDescription"); ok {
		return v, true
	}
	return "", false
}

// padNumeric left-pads a purely numeric reference with zeros; returns ""
// when the reference contains non-digits.
func padNumeric(ref string, width int) string {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" {
		return ""
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return ""
		}
	}
	if len(trimmed) >= width {
		return trimmed
	}
	return strings.Repeat("0", width-len(trimmed)) + trimmed
}

func tokenize(s string) []string {
	var tokens []string
	for _, t := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	}) {
		if len(t) > 1 {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func overlap(a, b []string) int {
	set := make(map[string]struct{}, len(b))
	for _, t := range b {
		set[t] = struct{}{}
	}
	n := 0
	for _, t := range a {
		if _, ok := set[t]; ok {
			n++
		}
	}
	return n
}
