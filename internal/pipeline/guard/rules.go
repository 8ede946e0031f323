package guard

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"po-copilot/internal/models"
)

const (
	maxQuantity = 1_000_000
	maxPrice    = 10_000_000

	quantityIncreaseFactor = 5.0
	quantityDecreaseFloor  = 0.10
)

type rule struct {
	id         string
	name       string
	categories []models.IntentCategory
	eval       func(ctx Context) []models.GuardViolation
}

func (r *rule) ID() string                                   { return r.id }
func (r *rule) Name() string                                 { return r.name }
func (r *rule) AppliesTo() []models.IntentCategory           { return r.categories }
func (r *rule) Evaluate(ctx Context) []models.GuardViolation { return r.eval(ctx) }

var (
	writeCategories  = []models.IntentCategory{models.CategoryCreate, models.CategoryUpdate, models.CategoryDelete}
	mutateCategories = []models.IntentCategory{models.CategoryCreate, models.CategoryUpdate}
	changeCategories = []models.IntentCategory{models.CategoryUpdate, models.CategoryDelete}
	updateOnly       = []models.IntentCategory{models.CategoryUpdate}
	createOnly       = []models.IntentCategory{models.CategoryCreate}
)

// DefaultRules is the production rule set, evaluated in declaration order.
func DefaultRules() []Rule {
	return []Rule{
		&rule{
			id: "NEGATIVE_QUANTITY", name: "Quantity must not be negative",
			categories: mutateCategories,
			eval: func(ctx Context) []models.GuardViolation {
				return checkNumericBound(ctx, "NEGATIVE_QUANTITY", "Quantity must not be negative",
					"quantity", func(q float64) bool { return q < 0 },
					models.SeverityBlock, "quantity %s is negative", "use a quantity of zero or more")
			},
		},
		&rule{
			id: "EXCESSIVE_QUANTITY", name: "Quantity exceeds the plausible maximum",
			categories: mutateCategories,
			eval: func(ctx Context) []models.GuardViolation {
				return checkNumericBound(ctx, "EXCESSIVE_QUANTITY", "Quantity exceeds the plausible maximum",
					"quantity", func(q float64) bool { return q > maxQuantity },
					models.SeverityBlock, "quantity %s exceeds the allowed maximum", fmt.Sprintf("stay at or below %d", maxQuantity))
			},
		},
		&rule{
			id: "NEGATIVE_PRICE", name: "Price must not be negative",
			categories: mutateCategories,
			eval: func(ctx Context) []models.GuardViolation {
				return checkNumericBound(ctx, "NEGATIVE_PRICE", "Price must not be negative",
					"price", func(p float64) bool { return p < 0 },
					models.SeverityBlock, "price %s is negative", "use a price of zero or more")
			},
		},
		&rule{
			id: "EXCESSIVE_PRICE", name: "Price exceeds the plausible maximum",
			categories: mutateCategories,
			eval: func(ctx Context) []models.GuardViolation {
				return checkNumericBound(ctx, "EXCESSIVE_PRICE", "Price exceeds the plausible maximum",
					"price", func(p float64) bool { return p > maxPrice },
					models.SeverityBlock, "price %s exceeds the allowed maximum", fmt.Sprintf("stay at or below %d", maxPrice))
			},
		},
		&rule{
			// Prices on existing lines are immutable contract terms; new
			// lines on a create are exempt.
			id: "PRICE_MODIFICATION", name: "Price changes on existing lines are not allowed",
			categories: updateOnly,
			eval: func(ctx Context) []models.GuardViolation {
				updates := ctx.Updates()
				newPrice, ok := numericValue(updates["price"])
				if !ok {
					return nil
				}
				v := violation(ctx, "PRICE_MODIFICATION", "Price changes on existing lines are not allowed",
					models.SeverityBlock, "price",
					"prices are contractually fixed once a line exists; create a new line instead")
				v.CurrentValue = newPrice
				if ctx.Item != nil {
					v.SystemValue = ctx.Item.Price
				}
				v.SuggestedFix = "create a new line item with the corrected price"
				return []models.GuardViolation{v}
			},
		},
		&rule{
			id: "DELETED_PO_MODIFICATION", name: "Order is deleted",
			categories: changeCategories,
			eval: func(ctx Context) []models.GuardViolation {
				if ctx.Order == nil || !ctx.Order.IsDeleted {
					return nil
				}
				return []models.GuardViolation{violation(ctx, "DELETED_PO_MODIFICATION", "Order is deleted",
					models.SeverityBlock, "",
					fmt.Sprintf("purchase order %s is deleted and cannot be modified", ctx.Order.OrderNumber))}
			},
		},
		&rule{
			id: "DELETED_ITEM_MODIFICATION", name: "Line item is deleted",
			categories: changeCategories,
			eval: func(ctx Context) []models.GuardViolation {
				if ctx.Item == nil || !ctx.Item.IsDeleted {
					return nil
				}
				return []models.GuardViolation{violation(ctx, "DELETED_ITEM_MODIFICATION", "Line item is deleted",
					models.SeverityBlock, "",
					fmt.Sprintf("item %s is deleted and cannot be modified", ctx.Item.ItemNumber))}
			},
		},
		&rule{
			id: "DELIVERY_COMPLETED_MODIFICATION", name: "Delivery already completed",
			categories: changeCategories,
			eval: func(ctx Context) []models.GuardViolation {
				if ctx.Item == nil || !ctx.Item.DeliveryCompleted {
					return nil
				}
				return []models.GuardViolation{violation(ctx, "DELIVERY_COMPLETED_MODIFICATION", "Delivery already completed",
					models.SeverityBlock, "",
					fmt.Sprintf("delivery for item %s is complete; the line can no longer change", ctx.Item.ItemNumber))}
			},
		},
		&rule{
			id: "FINAL_INVOICE_MODIFICATION", name: "Line item is finally invoiced",
			categories: changeCategories,
			eval: func(ctx Context) []models.GuardViolation {
				if ctx.Item == nil || !ctx.Item.FinallyInvoiced {
					return nil
				}
				return []models.GuardViolation{violation(ctx, "FINAL_INVOICE_MODIFICATION", "Line item is finally invoiced",
					models.SeverityBlock, "",
					fmt.Sprintf("item %s carries a final invoice; changes would break the billing record", ctx.Item.ItemNumber))}
			},
		},
		&rule{
			id: "DELETION_FLAG_MODIFICATION", name: "Line item is flagged for deletion",
			categories: updateOnly,
			eval: func(ctx Context) []models.GuardViolation {
				if ctx.Item == nil || !ctx.Item.DeletionFlagged {
					return nil
				}
				return []models.GuardViolation{violation(ctx, "DELETION_FLAG_MODIFICATION", "Line item is flagged for deletion",
					models.SeverityBlock, "",
					fmt.Sprintf("item %s is flagged for deletion; unflag it before editing", ctx.Item.ItemNumber))}
			},
		},
		&rule{
			id: "QUANTITY_SWING_INCREASE", name: "Quantity increase is unusually large",
			categories: updateOnly,
			eval: func(ctx Context) []models.GuardViolation {
				newQty, ok := numericValue(ctx.Updates()["quantity"])
				if !ok || ctx.Item == nil || ctx.Item.Quantity <= 0 {
					return nil
				}
				if newQty <= ctx.Item.Quantity*quantityIncreaseFactor {
					return nil
				}
				v := violation(ctx, "QUANTITY_SWING_INCREASE", "Quantity increase is unusually large",
					models.SeverityWarn, "quantity",
					fmt.Sprintf("quantity would grow from %s to %s, more than %.0fx", trimFloat(ctx.Item.Quantity), trimFloat(newQty), quantityIncreaseFactor))
				v.CurrentValue = newQty
				v.SystemValue = ctx.Item.Quantity
				return []models.GuardViolation{v}
			},
		},
		&rule{
			id: "QUANTITY_SWING_DECREASE", name: "Quantity decrease is unusually large",
			categories: updateOnly,
			eval: func(ctx Context) []models.GuardViolation {
				newQty, ok := numericValue(ctx.Updates()["quantity"])
				if !ok || ctx.Item == nil || ctx.Item.Quantity <= 0 {
					return nil
				}
				if newQty >= ctx.Item.Quantity*quantityDecreaseFloor {
					return nil
				}
				v := violation(ctx, "QUANTITY_SWING_DECREASE", "Quantity decrease is unusually large",
					models.SeverityWarn, "quantity",
					fmt.Sprintf("quantity would shrink from %s to %s, a drop of more than 90%%", trimFloat(ctx.Item.Quantity), trimFloat(newQty)))
				v.CurrentValue = newQty
				v.SystemValue = ctx.Item.Quantity
				return []models.GuardViolation{v}
			},
		},
		&rule{
			id: "CURRENCY_CHANGE", name: "Currency changes on existing orders are not allowed",
			categories: updateOnly,
			eval: func(ctx Context) []models.GuardViolation {
				newCurrency, ok := ctx.Updates()["currency"].(string)
				if !ok || newCurrency == "" {
					return nil
				}
				current := ""
				if ctx.Item != nil {
					current = ctx.Item.Currency
				} else if ctx.Order != nil {
					current = ctx.Order.Currency
				}
				if current == "" || strings.EqualFold(newCurrency, current) {
					// unchanged currency is a no-op, not a violation
					return nil
				}
				v := violation(ctx, "CURRENCY_CHANGE", "Currency changes on existing orders are not allowed",
					models.SeverityBlock, "currency",
					fmt.Sprintf("order currency is fixed at %s", current))
				v.CurrentValue = newCurrency
				v.SystemValue = current
				return []models.GuardViolation{v}
			},
		},
		&rule{
			id: "SUPPLIER_BLOCKED", name: "Supplier is blocked",
			categories: writeCategories,
			eval: func(ctx Context) []models.GuardViolation {
				if ctx.Order == nil || !ctx.Order.SupplierBlocked {
					return nil
				}
				return []models.GuardViolation{violation(ctx, "SUPPLIER_BLOCKED", "Supplier is blocked",
					models.SeverityWarn, "",
					fmt.Sprintf("supplier %s is currently blocked; the change may be rejected downstream", ctx.Order.SupplierName))}
			},
		},
		&rule{
			id: "INCOMPLETE_RELEASE", name: "Order release is incomplete",
			categories: changeCategories,
			eval: func(ctx Context) []models.GuardViolation {
				if ctx.Order == nil || ctx.Order.ReleaseComplete {
					return nil
				}
				return []models.GuardViolation{violation(ctx, "INCOMPLETE_RELEASE", "Order release is incomplete",
					models.SeverityWarn, "",
					fmt.Sprintf("purchase order %s has not completed its release strategy", ctx.Order.OrderNumber))}
			},
		},
		&rule{
			id: "LOW_CONFIDENCE_WRITE", name: "Write targets a weakly resolved record",
			categories: writeCategories,
			eval: func(ctx Context) []models.GuardViolation {
				if ctx.Resolution != models.ResolutionLow && ctx.Resolution != models.ResolutionAmbiguous {
					return nil
				}
				v := violation(ctx, "LOW_CONFIDENCE_WRITE", "Write targets a weakly resolved record",
					models.SeverityWarn, "",
					fmt.Sprintf("record was resolved with %s confidence; verify the target before approving", ctx.Resolution))
				v.SuggestedFix = "restate the request with the exact order or item number"
				return []models.GuardViolation{v}
			},
		},
		&rule{
			id: "PAST_DELIVERY_DATE", name: "Delivery date lies in the past",
			categories: mutateCategories,
			eval: func(ctx Context) []models.GuardViolation {
				var violations []models.GuardViolation
				check := func(raw interface{}) {
					str, ok := raw.(string)
					if !ok {
						return
					}
					day, parsed := parseDay(str)
					if !parsed || !day.Before(today()) {
						return
					}
					v := violation(ctx, "PAST_DELIVERY_DATE", "Delivery date lies in the past",
						models.SeverityWarn, "deliveryDate",
						fmt.Sprintf("delivery date %s has already passed", day.Format("2006-01-02")))
					v.CurrentValue = str
					violations = append(violations, v)
				}
				check(ctx.Updates()["deliveryDate"])
				for _, item := range ctx.Items() {
					check(item["deliveryDate"])
				}
				return violations
			},
		},
		&rule{
			id: "MISSING_UNIT", name: "Line item has no unit of measure",
			categories: createOnly,
			eval: func(ctx Context) []models.GuardViolation {
				var violations []models.GuardViolation
				for i, item := range ctx.Items() {
					unit, _ := item["unit"].(string)
					if strings.TrimSpace(unit) != "" {
						continue
					}
					v := violation(ctx, "MISSING_UNIT", "Line item has no unit of measure",
						models.SeverityInfo, "unit",
						fmt.Sprintf("item %d has no unit; the backend default will apply", i+1))
					violations = append(violations, v)
				}
				return violations
			},
		},
	}
}

// checkNumericBound applies a numeric predicate to a field in the update map
// and to the same field of every line item on a create.
func checkNumericBound(ctx Context, ruleID, ruleName, field string, bad func(float64) bool, sev models.Severity, msgFormat, fix string) []models.GuardViolation {
	var violations []models.GuardViolation
	flag := func(val float64) {
		v := violation(ctx, ruleID, ruleName, sev, field, fmt.Sprintf(msgFormat, trimFloat(val)))
		v.CurrentValue = val
		v.SuggestedFix = fix
		violations = append(violations, v)
	}
	if val, ok := numericValue(ctx.Updates()[field]); ok && bad(val) {
		flag(val)
	}
	for _, item := range ctx.Items() {
		if val, ok := numericValue(item[field]); ok && bad(val) {
			flag(val)
		}
	}
	return violations
}

func violation(ctx Context, ruleID, ruleName string, sev models.Severity, field, message string) models.GuardViolation {
	return models.GuardViolation{
		RuleID:   ruleID,
		RuleName: ruleName,
		Severity: sev,
		IntentID: ctx.Intent.ID,
		Field:    field,
		Message:  message,
	}
}

func numericValue(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseDay(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "02.01.2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

func today() time.Time {
	return time.Now().UTC().Truncate(24 * time.Hour)
}
