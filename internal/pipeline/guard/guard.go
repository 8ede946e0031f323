// Package guard evaluates business-safety rules over resolved intents
// before any plan is built.
package guard

import (
	"po-copilot/internal/common/logger"
	"po-copilot/internal/common/metrics"
	"po-copilot/internal/models"
	"po-copilot/pkg/registry"
)

// Context is the pure input one rule evaluation sees. Rules do no I/O.
type Context struct {
	Intent     models.ParsedIntent
	Definition registry.IntentDefinition
	Order      *models.OrderSnapshot
	Item       *models.ItemSnapshot
	Resolution models.ResolutionConfidence
}

// Updates returns the field-change map of an update-shaped intent.
func (c Context) Updates() map[string]interface{} {
	if v, ok := c.Intent.Fields["updates"].(map[string]interface{}); ok {
		return v
	}
	return nil
}

// Items returns the line items of a create-shaped intent.
func (c Context) Items() []map[string]interface{} {
	raw, ok := c.Intent.Fields["items"].([]interface{})
	if !ok {
		return nil
	}
	var items []map[string]interface{}
	for _, e := range raw {
		if m, ok := e.(map[string]interface{}); ok {
			items = append(items, m)
		}
	}
	return items
}

// Rule is one business-safety check. AppliesTo limits it to intent
// categories; an empty list applies everywhere.
type Rule interface {
	ID() string
	Name() string
	AppliesTo() []models.IntentCategory
	Evaluate(ctx Context) []models.GuardViolation
}

type Engine struct {
	registry *registry.Registry
	rules    []Rule
	logger   logger.Logger
}

func NewEngine(reg *registry.Registry, log logger.Logger) *Engine {
	return &Engine{
		registry: reg,
		rules:    DefaultRules(),
		logger:   log.WithFields(map[string]interface{}{"component": "guard"}),
	}
}

// Evaluate runs every applicable rule against every resolved intent.
// Read-only intents incur zero checks. Passed flips only on a
// block-severity violation; warn and info findings stay advisory.
func (e *Engine) Evaluate(resolvedIntents []models.ResolvedIntent) *models.GuardReport {
	report := &models.GuardReport{Passed: true}

	for _, ri := range resolvedIntents {
		def, ok := e.registry.Lookup(ri.Intent.ID)
		if !ok {
			continue
		}
		ctx := buildContext(ri, def)

		for _, rule := range e.rules {
			if !applies(rule, def.Category) {
				continue
			}
			report.ChecksPerformed++
			report.Checks = append(report.Checks, rule.ID())

			violations := rule.Evaluate(ctx)
			if len(violations) == 0 {
				report.RulesPassed++
				continue
			}
			for _, v := range violations {
				metrics.GuardViolations.WithLabelValues(v.RuleID, string(v.Severity)).Inc()
				if v.Severity == models.SeverityBlock {
					report.Passed = false
				}
			}
			report.Violations = append(report.Violations, violations...)
		}
	}

	e.logger.Info("guard evaluation complete", map[string]interface{}{
		"passed":           report.Passed,
		"checks_performed": report.ChecksPerformed,
		"violations":       len(report.Violations),
	})
	return report
}

func buildContext(ri models.ResolvedIntent, def registry.IntentDefinition) Context {
	ctx := Context{
		Intent:     ri.Intent,
		Definition: def,
		Resolution: models.ResolutionExact,
	}
	if e := ri.OrderEntity(); e != nil {
		if e.Metadata != nil {
			ctx.Order = e.Metadata.Order
		}
		ctx.Resolution = weaker(ctx.Resolution, e.Confidence)
	}
	if e := ri.ItemEntity(); e != nil {
		if e.Metadata != nil {
			ctx.Item = e.Metadata.Item
		}
		ctx.Resolution = weaker(ctx.Resolution, e.Confidence)
	}
	return ctx
}

func applies(r Rule, category models.IntentCategory) bool {
	cats := r.AppliesTo()
	if len(cats) == 0 {
		return true
	}
	for _, c := range cats {
		if c == category {
			return true
		}
	}
	return false
}

var resolutionRank = map[models.ResolutionConfidence]int{
	models.ResolutionExact:     3,
	models.ResolutionHigh:      2,
	models.ResolutionLow:       1,
	models.ResolutionAmbiguous: 0,
}

func weaker(a, b models.ResolutionConfidence) models.ResolutionConfidence {
	if resolutionRank[b] < resolutionRank[a] {
		return b
	}
	return a
}
