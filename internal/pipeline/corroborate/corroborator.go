// Package corroborate cross-checks user-claimed facts against resolved
// backend snapshots and adjusts intent confidence accordingly.
package corroborate

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"po-copilot/internal/common/logger"
	"po-copilot/internal/models"
)

const (
	matchLift       = 0.6
	mismatchPenalty = 0.3
	confidenceFloor = 0.05
)

type Corroborator struct {
	logger logger.Logger
}

func NewCorroborator(log logger.Logger) *Corroborator {
	return &Corroborator{logger: log.WithFields(map[string]interface{}{"component": "corroborate"})}
}

// Corroborate evaluates every claim the user made that the resolved snapshot
// can answer. Signals the snapshot cannot answer are reported as unavailable
// and excluded from the aggregate.
func (c *Corroborator) Corroborate(intent models.ParsedIntent, resolved *models.ResolvedIntent, rawMessage string) *models.CorroborationResult {
	result := &models.CorroborationResult{
		InitialConfidence: intent.Confidence,
		FinalConfidence:   intent.Confidence,
	}

	order := orderSnapshot(resolved)
	item := itemSnapshot(resolved)

	if claim, ok := stringClaim(intent.Fields, "supplierName"); ok {
		result.Signals = append(result.Signals, supplierSignal(claim, order))
	}
	if claim, ok := stringClaim(intent.Fields, "currency"); ok {
		result.Signals = append(result.Signals, currencySignal(claim, order, item))
	}
	if claim, ok := numericClaim(intent.Fields, "currentQuantity"); ok {
		result.Signals = append(result.Signals, quantitySignal(claim, item))
	}
	if claim, ok := numericClaim(intent.Fields, "currentPrice"); ok {
		result.Signals = append(result.Signals, priceSignal(claim, item))
	}
	if claim, ok := stringClaim(intent.Fields, "deliveryDate"); ok {
		result.Signals = append(result.Signals, deliveryDateSignal(claim, item))
	}
	result.Signals = append(result.Signals, descriptionSignal(intent.Fields, rawMessage, item))
	if claim, ok := stringClaim(intent.Fields, "plant"); ok {
		result.Signals = append(result.Signals, plantSignal(claim, item))
	}
	if claim, ok := stringClaim(intent.Fields, "unit"); ok {
		result.Signals = append(result.Signals, unitSignal(claim, item))
	}
	result.Signals = append(result.Signals, unitCoherenceSignal(rawMessage, item))

	result.FinalConfidence = aggregate(intent.Confidence, result.Signals)

	c.logger.Debug("corroboration complete", map[string]interface{}{
		"intent":     intent.ID,
		"signals":    len(result.Signals),
		"initial":    result.InitialConfidence,
		"final":      result.FinalConfidence,
	})
	return result
}

// aggregate folds signal outcomes into a single confidence. Partial matches
// count as half a match. Unavailable signals do not move the needle.
func aggregate(initial float64, signals []models.CorroborationSignal) float64 {
	var matched, mismatched, considered float64
	for _, s := range signals {
		switch s.Result {
		case models.SignalMatch:
			matched += s.Weight
			considered += s.Weight
		case models.SignalPartial:
			matched += 0.5 * s.Weight
			considered += s.Weight
		case models.SignalMismatch:
			mismatched += s.Weight
			considered += s.Weight
		}
	}
	if considered == 0 {
		return initial
	}

	matchRatio := matched / considered
	mismatchRatio := mismatched / considered
	final := initial + (1-initial)*matchRatio*matchLift - initial*mismatchRatio*mismatchPenalty
	return math.Max(confidenceFloor, math.Min(1, final))
}

func supplierSignal(claim string, order *models.OrderSnapshot) models.CorroborationSignal {
	s := models.CorroborationSignal{
		ID:        "supplier_name",
		Label:     "Supplier name",
		UserClaim: claim,
		Weight:    1,
	}
	if order == nil {
		s.Result = models.SignalUnavailable
		s.Explanation = "no purchase order snapshot to compare against"
		return s
	}
	s.SystemValue = order.SupplierName
	switch {
	case normalize(claim) == normalize(order.SupplierName):
		s.Result = models.SignalMatch
	case tokenOverlap(claim, order.SupplierName) > 0:
		s.Result = models.SignalPartial
		s.Explanation = fmt.Sprintf("%q partially matches supplier %q", claim, order.SupplierName)
	default:
		s.Result = models.SignalMismatch
		s.Explanation = fmt.Sprintf("order belongs to %q, not %q", order.SupplierName, claim)
	}
	return s
}

func currencySignal(claim string, order *models.OrderSnapshot, item *models.ItemSnapshot) models.CorroborationSignal {
	s := models.CorroborationSignal{
		ID:        "currency",
		Label:     "Currency",
		UserClaim: claim,
		Weight:    1,
	}
	system := ""
	if item != nil {
		system = item.Currency
	} else if order != nil {
		system = order.Currency
	}
	if system == "" {
		s.Result = models.SignalUnavailable
		s.Explanation = "no currency recorded on the resolved record"
		return s
	}
	s.SystemValue = system
	if strings.EqualFold(strings.TrimSpace(claim), system) {
		s.Result = models.SignalMatch
	} else {
		s.Result = models.SignalMismatch
		s.Explanation = fmt.Sprintf("record is in %s, not %s", system, claim)
	}
	return s
}

func quantitySignal(claim float64, item *models.ItemSnapshot) models.CorroborationSignal {
	s := models.CorroborationSignal{
		ID:        "current_quantity",
		Label:     "Current quantity",
		UserClaim: trimFloat(claim),
		Weight:    1,
	}
	if item == nil {
		s.Result = models.SignalUnavailable
		s.Explanation = "no line item snapshot to compare against"
		return s
	}
	s.SystemValue = trimFloat(item.Quantity)
	if floatEqual(claim, item.Quantity) {
		s.Result = models.SignalMatch
	} else {
		s.Result = models.SignalMismatch
		s.Explanation = fmt.Sprintf("recorded quantity is %s, not %s", s.SystemValue, s.UserClaim)
	}
	return s
}

func priceSignal(claim float64, item *models.ItemSnapshot) models.CorroborationSignal {
	s := models.CorroborationSignal{
		ID:        "current_price",
		Label:     "Current price",
		UserClaim: trimFloat(claim),
		Weight:    1,
	}
	if item == nil {
		s.Result = models.SignalUnavailable
		s.Explanation = "no line item snapshot to compare against"
		return s
	}
	s.SystemValue = trimFloat(item.Price)
	if floatEqual(claim, item.Price) {
		s.Result = models.SignalMatch
	} else {
		s.Result = models.SignalMismatch
		s.Explanation = fmt.Sprintf("recorded price is %s, not %s", s.SystemValue, s.UserClaim)
	}
	return s
}

// deliveryDateSignal compares at day granularity; time-of-day differences
// never count as a mismatch.
func deliveryDateSignal(claim string, item *models.ItemSnapshot) models.CorroborationSignal {
	s := models.CorroborationSignal{
		ID:        "delivery_date",
		Label:     "Delivery date",
		UserClaim: claim,
		Weight:    1,
	}
	if item == nil || item.DeliveryDate == "" {
		s.Result = models.SignalUnavailable
		s.Explanation = "no delivery date recorded on the resolved record"
		return s
	}
	s.SystemValue = item.DeliveryDate

	claimDay, okClaim := parseDay(claim)
	systemDay, okSystem := parseDay(item.DeliveryDate)
	if !okClaim || !okSystem {
		s.Result = models.SignalUnavailable
		s.Explanation = "delivery date could not be parsed for comparison"
		return s
	}
	if claimDay.Equal(systemDay) {
		s.Result = models.SignalMatch
	} else {
		s.Result = models.SignalMismatch
		s.Explanation = fmt.Sprintf("recorded delivery date is %s", systemDay.Format("2006-01-02"))
	}
	return s
}

// descriptionSignal sources the user's claim through three tiers: the
// explicit itemDescription field, alternative phrasings of it, and finally a
// keyword scan of the raw message. The first two tiers penalize a mismatch;
// the raw-message tier is neutral on no-match, because the user never
// explicitly claimed a description there.
func descriptionSignal(fields map[string]interface{}, rawMessage string, item *models.ItemSnapshot) models.CorroborationSignal {
	s := models.CorroborationSignal{
		ID:     "item_description",
		Label:  "Item description",
		Weight: 1,
	}
	if item == nil {
		s.Result = models.SignalUnavailable
		s.Explanation = "no line item snapshot to compare against"
		return s
	}
	s.SystemValue = item.Description

	claim, explicit := stringClaim(fields, "itemDescription")
	if !explicit {
		for _, alt := range []string{"description", "materialDescription", "item"} {
			if v, ok := stringClaim(fields, alt); ok {
				claim, explicit = v, true
				break
			}
		}
	}

	if explicit {
		s.UserClaim = claim
		switch {
		case normalize(claim) == normalize(item.Description):
			s.Result = models.SignalMatch
		case tokenOverlap(claim, item.Description) > 0:
			s.Result = models.SignalPartial
			s.Explanation = fmt.Sprintf("%q loosely matches %q", claim, item.Description)
		default:
			s.Result = models.SignalMismatch
			s.Explanation = fmt.Sprintf("item is described as %q", item.Description)
		}
		return s
	}

	if rawMessage != "" && tokenOverlap(rawMessage, item.Description) > 0 {
		s.UserClaim = rawMessage
		s.Result = models.SignalMatch
		s.Explanation = "message wording matches the recorded item description"
		return s
	}
	s.Result = models.SignalUnavailable
	s.Explanation = "no description claimed by the user"
	return s
}

func unitSignal(claim string, item *models.ItemSnapshot) models.CorroborationSignal {
	s := models.CorroborationSignal{
		ID:        "unit",
		Label:     "Unit of measure",
		UserClaim: claim,
		Weight:    1,
	}
	if item == nil || item.Unit == "" {
		s.Result = models.SignalUnavailable
		s.Explanation = "no unit recorded on the resolved record"
		return s
	}
	s.SystemValue = item.Unit
	if strings.EqualFold(strings.TrimSpace(claim), item.Unit) {
		s.Result = models.SignalMatch
	} else {
		s.Result = models.SignalMismatch
		s.Explanation = fmt.Sprintf("recorded unit is %s", item.Unit)
	}
	return s
}

func plantSignal(claim string, item *models.ItemSnapshot) models.CorroborationSignal {
	s := models.CorroborationSignal{
		ID:        "plant",
		Label:     "Plant",
		UserClaim: claim,
		Weight:    1,
	}
	if item == nil || item.Plant == "" {
		s.Result = models.SignalUnavailable
		s.Explanation = "no plant recorded on the resolved record"
		return s
	}
	s.SystemValue = item.Plant
	if strings.EqualFold(strings.TrimSpace(claim), item.Plant) {
		s.Result = models.SignalMatch
	} else {
		s.Result = models.SignalMismatch
		s.Explanation = fmt.Sprintf("item belongs to plant %s", item.Plant)
	}
	return s
}

// unitCoherenceSignal scans the raw message for unit-of-measure vocabulary
// and flags wording that contradicts the recorded unit. Absence of any unit
// wording is neutral.
func unitCoherenceSignal(rawMessage string, item *models.ItemSnapshot) models.CorroborationSignal {
	s := models.CorroborationSignal{
		ID:     "unit_coherence",
		Label:  "Unit coherence",
		Weight: 0.5,
	}
	if item == nil || item.Unit == "" || rawMessage == "" {
		s.Result = models.SignalUnavailable
		return s
	}
	s.SystemValue = item.Unit

	mentioned := mentionedUnits(rawMessage)
	if len(mentioned) == 0 {
		s.Result = models.SignalUnavailable
		s.Explanation = "no unit wording in the message"
		return s
	}
	s.UserClaim = strings.Join(mentioned, ", ")

	recorded := canonicalUnit(item.Unit)
	for _, u := range mentioned {
		if canonicalUnit(u) == recorded {
			s.Result = models.SignalMatch
			return s
		}
	}
	s.Result = models.SignalMismatch
	s.Explanation = fmt.Sprintf("message speaks in %s but the item is measured in %s", s.UserClaim, item.Unit)
	return s
}

// unitAliases maps spoken unit vocabulary onto the backend's unit codes.
var unitAliases = map[string]string{
	"pcs": "PC", "pieces": "PC", "piece": "PC", "pc": "PC", "ea": "PC", "each": "PC",
	"kg": "KG", "kilo": "KG", "kilos": "KG", "kilogram": "KG", "kilograms": "KG",
	"l": "L", "liter": "L", "liters": "L", "litre": "L", "litres": "L",
	"m": "M", "meter": "M", "meters": "M", "metre": "M", "metres": "M",
	"t": "TO", "ton": "TO", "tons": "TO", "tonne": "TO", "tonnes": "TO",
	"box": "BOX", "boxes": "BOX", "pal": "PAL", "pallet": "PAL", "pallets": "PAL",
}

func mentionedUnits(message string) []string {
	seen := make(map[string]struct{})
	var units []string
	for _, t := range strings.Fields(strings.ToLower(message)) {
		t = strings.Trim(t, ".,;:!?")
		if _, ok := unitAliases[t]; ok {
			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				units = append(units, t)
			}
		}
	}
	return units
}

func canonicalUnit(u string) string {
	key := strings.ToLower(strings.TrimSpace(u))
	if mapped, ok := unitAliases[key]; ok {
		return mapped
	}
	return strings.ToUpper(key)
}

func orderSnapshot(resolved *models.ResolvedIntent) *models.OrderSnapshot {
	if resolved == nil {
		return nil
	}
	if e := resolved.OrderEntity(); e != nil && e.Metadata != nil {
		return e.Metadata.Order
	}
	return nil
}

func itemSnapshot(resolved *models.ResolvedIntent) *models.ItemSnapshot {
	if resolved == nil {
		return nil
	}
	if e := resolved.ItemEntity(); e != nil && e.Metadata != nil {
		return e.Metadata.Item
	}
	return nil
}

func stringClaim(fields map[string]interface{}, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	if !ok || strings.TrimSpace(str) == "" {
		return "", false
	}
	return str, true
}

// numericClaim accepts both JSON numbers and numeric strings with common
// formatting noise ("1,000 pcs" compares as 1000).
func numericClaim(fields map[string]interface{}, key string) (float64, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case string:
		stripped := stripNonNumeric(val)
		if stripped == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(stripped, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stripNonNumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func floatEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseDay(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "02.01.2006", "01/02/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Truncate(24 * time.Hour), true
		}
	}
	return time.Time{}, false
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

func tokenOverlap(a, b string) int {
	bt := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(b)) {
		if len(t) > 2 {
			bt[t] = struct{}{}
		}
	}
	n := 0
	for _, t := range strings.Fields(strings.ToLower(a)) {
		if _, ok := bt[t]; ok {
			n++
		}
	}
	return n
}
