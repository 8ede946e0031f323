// Package decompose restates arithmetically complex requests into an
// unambiguous normalized form before intent parsing.
package decompose

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"po-copilot/internal/common/logger"
)

// NumberRole is the semantic role a number plays in the request.
type NumberRole string

const (
	RoleOriginal   NumberRole = "original"
	RoleDelivered  NumberRole = "delivered"
	RoleTarget     NumberRole = "target"
	RoleRemaining  NumberRole = "remaining"
	RoleAdjustment NumberRole = "adjustment"
)

// ChangeType classifies how a field change is expressed.
type ChangeType string

const (
	ChangeAbsolute         ChangeType = "absolute"
	ChangeRelativeIncrease ChangeType = "relative_increase"
	ChangeRelativeDecrease ChangeType = "relative_decrease"
	ChangePercentage       ChangeType = "percentage"
	ChangeMultiply         ChangeType = "multiply"
)

// ExtractedNumber is one number found in the message, annotated with its role.
type ExtractedNumber struct {
	Value   float64    `json:"value"`
	Role    NumberRole `json:"role"`
	Context string     `json:"context"`
}

// ChangeSpec is one per-field change the message asks for.
type ChangeSpec struct {
	Field      string     `json:"field"`
	ChangeType ChangeType `json:"changeType"`
	Amount     float64    `json:"amount"`
	Target     float64    `json:"target,omitempty"`
}

// Result is the normalized decomposition of a complex request.
type Result struct {
	Numbers     []ExtractedNumber `json:"numbers"`
	Changes     []ChangeSpec      `json:"changes"`
	Consistent  bool              `json:"consistent"`
	Warnings    []string          `json:"warnings,omitempty"`
	Restatement string            `json:"restatement"`
}

var (
	numberPattern  = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	percentPattern = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*(?:%|percent)`)
	lineRefPattern = regexp.MustCompile(`(?i)\b(?:line|item|position)\s*#?\s*\d+`)

	increaseWords = []string{"increase", "raise", "add", "more", "additional", "extra", "bump"}
	decreaseWords = []string{"decrease", "reduce", "lower", "less", "fewer", "cut", "drop"}
	multiplyWords = []string{"double", "triple", "times", "multiply"}
	temporalWords = []string{"originally", "already", "so far", "remaining", "left", "still", "now", "then", "after"}
	mathWords     = []string{"total", "sum", "difference", "plus", "minus", "net"}
)

type Decomposer struct {
	logger logger.Logger
}

func NewDecomposer(log logger.Logger) *Decomposer {
	return &Decomposer{
		logger: log.WithFields(map[string]interface{}{"component": "decompose"}),
	}
}

// ShouldDecompose is the cheap pre-gate: it inspects the raw text for signs
// of compound arithmetic and only then is the costlier decomposition run.
func ShouldDecompose(text string) bool {
	numbers := numberPattern.FindAllString(text, -1)
	lower := strings.ToLower(text)

	if len(numbers) >= 4 {
		return true
	}

	if len(numbers) >= 3 && (containsAny(lower, temporalWords) || containsAny(lower, mathWords)) {
		return true
	}

	if percentPattern.MatchString(lower) {
		return true
	}

	if containsAny(lower, increaseWords) || containsAny(lower, decreaseWords) || containsAny(lower, multiplyWords) {
		if len(numbers) >= 1 {
			return true
		}
	}

	if len(lineRefPattern.FindAllString(text, -1)) >= 2 {
		return true
	}

	return false
}

// Decompose extracts every number's semantic role, the requested change
// specifications, checks them for arithmetic self-consistency, and builds a
// normalized restatement of the request.
func (d *Decomposer) Decompose(text string) *Result {
	lower := strings.ToLower(text)
	result := &Result{Consistent: true}

	result.Numbers = extractNumbers(lower)
	result.Changes = extractChanges(lower, result.Numbers)

	d.checkConsistency(result)
	result.Restatement = restate(text, result)

	d.logger.Info("request decomposed", map[string]interface{}{
		"numbers":    len(result.Numbers),
		"changes":    len(result.Changes),
		"consistent": result.Consistent,
		"warnings":   len(result.Warnings),
	})

	return result
}

func extractNumbers(lower string) []ExtractedNumber {
	var out []ExtractedNumber
	for _, loc := range numberPattern.FindAllStringIndex(lower, -1) {
		raw := lower[loc[0]:loc[1]]
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}

		window := contextWindow(lower, loc[0], loc[1])
		out = append(out, ExtractedNumber{
			Value:   val,
			Role:    classifyRole(window),
			Context: strings.TrimSpace(window),
		})
	}
	return out
}

// contextWindow returns up to 30 chars on either side of the number.
func contextWindow(s string, start, end int) string {
	lo := start - 30
	if lo < 0 {
		lo = 0
	}
	hi := end + 30
	if hi > len(s) {
		hi = len(s)
	}
	return s[lo:hi]
}

func classifyRole(window string) NumberRole {
	switch {
	case containsAny(window, []string{"originally", "ordered", "original", "was"}):
		return RoleOriginal
	case containsAny(window, []string{"delivered", "received", "arrived", "shipped"}):
		return RoleDelivered
	case containsAny(window, []string{"remaining", "left", "still open", "outstanding"}):
		return RoleRemaining
	case containsAny(window, []string{"increase by", "decrease by", "reduce by", "add", "more", "less", "fewer"}):
		return RoleAdjustment
	default:
		return RoleTarget
	}
}

func extractChanges(lower string, numbers []ExtractedNumber) []ChangeSpec {
	var changes []ChangeSpec

	if m := percentPattern.FindStringSubmatch(lower); m != nil {
		amount, _ := strconv.ParseFloat(m[1], 64)
		changes = append(changes, ChangeSpec{
			Field:      "quantity",
			ChangeType: ChangePercentage,
			Amount:     amount,
		})
		return changes
	}

	if strings.Contains(lower, "double") {
		changes = append(changes, ChangeSpec{Field: "quantity", ChangeType: ChangeMultiply, Amount: 2})
		return changes
	}
	if strings.Contains(lower, "triple") {
		changes = append(changes, ChangeSpec{Field: "quantity", ChangeType: ChangeMultiply, Amount: 3})
		return changes
	}

	for _, n := range numbers {
		if n.Role != RoleAdjustment {
			continue
		}
		ct := ChangeRelativeIncrease
		if containsAny(n.Context, decreaseWords) {
			ct = ChangeRelativeDecrease
		}
		changes = append(changes, ChangeSpec{
			Field:      "quantity",
			ChangeType: ct,
			Amount:     n.Value,
		})
	}

	if len(changes) == 0 {
		for _, n := range numbers {
			if n.Role == RoleTarget && containsAny(n.Context, append(increaseWords, decreaseWords...)) {
				changes = append(changes, ChangeSpec{
					Field:      "quantity",
					ChangeType: ChangeAbsolute,
					Amount:     n.Value,
					Target:     n.Value,
				})
				break
			}
		}
	}

	return changes
}

// checkConsistency verifies original - delivered == remaining when all three
// roles are present, and flags contradictory change directions.
func (d *Decomposer) checkConsistency(r *Result) {
	var original, delivered, remaining *float64
	for i := range r.Numbers {
		n := r.Numbers[i]
		switch n.Role {
		case RoleOriginal:
			original = &r.Numbers[i].Value
		case RoleDelivered:
			delivered = &r.Numbers[i].Value
		case RoleRemaining:
			remaining = &r.Numbers[i].Value
		}
	}

	if original != nil && delivered != nil && remaining != nil {
		expected := *original - *delivered
		if math.Abs(expected-*remaining) > 1e-9 {
			r.Consistent = false
			r.Warnings = append(r.Warnings, fmt.Sprintf(
				"stated remaining quantity %v does not match original %v minus delivered %v (expected %v)",
				*remaining, *original, *delivered, expected))
		}
	}

	var sawIncrease, sawDecrease bool
	for _, c := range r.Changes {
		switch c.ChangeType {
		case ChangeRelativeIncrease:
			sawIncrease = true
		case ChangeRelativeDecrease:
			sawDecrease = true
		}
	}
	if sawIncrease && sawDecrease {
		r.Consistent = false
		r.Warnings = append(r.Warnings, "request asks for both an increase and a decrease of the same field")
	}
}

// restate builds the normalized request text handed to the intent parser in
// place of the raw message.
func restate(original string, r *Result) string {
	if len(r.Changes) == 0 {
		return original
	}

	var b strings.Builder
	for i, c := range r.Changes {
		if i > 0 {
			b.WriteString("; ")
		}
		switch c.ChangeType {
		case ChangeAbsolute:
			fmt.Fprintf(&b, "set %s to %v", c.Field, c.Amount)
		case ChangeRelativeIncrease:
			fmt.Fprintf(&b, "increase %s by %v", c.Field, c.Amount)
		case ChangeRelativeDecrease:
			fmt.Fprintf(&b, "decrease %s by %v", c.Field, c.Amount)
		case ChangePercentage:
			fmt.Fprintf(&b, "change %s by %v percent", c.Field, c.Amount)
		case ChangeMultiply:
			fmt.Fprintf(&b, "multiply %s by %v", c.Field, c.Amount)
		}
	}

	return fmt.Sprintf("%s (normalized: %s)", original, b.String())
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
