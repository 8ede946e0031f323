// Package parse turns a raw user message into typed intents via the
// external classification service.
package parse

import (
	"context"

	"po-copilot/internal/common/logger"
	"po-copilot/internal/models"
	"po-copilot/internal/pipeline/decompose"
	"po-copilot/pkg/registry"
)

// Service is the intent-classification collaborator.
type Service interface {
	Parse(ctx context.Context, message string, convCtx *models.ConversationContext) (*models.ParseResult, error)
}

type Parser struct {
	service    Service
	registry   *registry.Registry
	decomposer *decompose.Decomposer
	logger     logger.Logger
}

func NewParser(service Service, reg *registry.Registry, dec *decompose.Decomposer, log logger.Logger) *Parser {
	return &Parser{
		service:    service,
		registry:   reg,
		decomposer: dec,
		logger:     log.WithFields(map[string]interface{}{"component": "parse"}),
	}
}

// Parse classifies the message, running the decomposition pre-stage when the
// heuristic gate triggers. Unknown intent ids are dropped with a warning and
// confidence values are clamped into [0,1].
func (p *Parser) Parse(ctx context.Context, message string, convCtx *models.ConversationContext) (*models.ParseResult, error) {
	text := message
	if decompose.ShouldDecompose(message) {
		d := p.decomposer.Decompose(message)
		text = d.Restatement
		if !d.Consistent {
			p.logger.Warn("decomposed request is arithmetically inconsistent", map[string]interface{}{
				"warnings": d.Warnings,
			})
		}
	}

	result, err := p.service.Parse(ctx, text, convCtx)
	if err != nil {
		return nil, err
	}

	kept := make([]models.ParsedIntent, 0, len(result.Intents))
	for _, intent := range result.Intents {
		if !p.registry.Known(intent.ID) {
			p.logger.Warn("dropping unknown intent", map[string]interface{}{
				"intentId": intent.ID,
			})
			continue
		}
		intent.Confidence = clamp01(intent.Confidence)
		kept = append(kept, intent)
	}
	result.Intents = kept

	return result, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
