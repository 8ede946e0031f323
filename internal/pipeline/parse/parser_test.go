// internal/pipeline/parse/parser_test.go
package parse

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"po-copilot/internal/common/logger"
	"po-copilot/internal/models"
	"po-copilot/internal/pipeline/decompose"
	"po-copilot/pkg/registry"
)

// fakeService records the message it received and replays a canned result.
type fakeService struct {
	lastMessage string
	result      *models.ParseResult
	err         error
}

func (f *fakeService) Parse(_ context.Context, message string, _ *models.ConversationContext) (*models.ParseResult, error) {
	f.lastMessage = message
	return f.result, f.err
}

func newParser(svc Service) *Parser {
	log := logger.NewNoOpLogger()
	return NewParser(svc, registry.Builtin(), decompose.NewDecomposer(log), log)
}

func TestParser_DropsUnknownIntents(t *testing.T) {
	svc := &fakeService{
		result: &models.ParseResult{
			Intents: []models.ParsedIntent{
				{ID: models.IntentGetPurchaseOrder, Confidence: 0.9},
				{ID: models.IntentID("ORDER_PIZZA"), Confidence: 0.8},
			},
		},
	}

	result, err := newParser(svc).Parse(context.Background(), "show order 4500001234", nil)

	require.NoError(t, err)
	require.Len(t, result.Intents, 1)
	assert.Equal(t, models.IntentGetPurchaseOrder, result.Intents[0].ID)
}

func TestParser_ClampsConfidence(t *testing.T) {
	svc := &fakeService{
		result: &models.ParseResult{
			Intents: []models.ParsedIntent{
				{ID: models.IntentGetPurchaseOrder, Confidence: 1.7},
				{ID: models.IntentListPurchaseOrders, Confidence: -0.3},
			},
		},
	}

	result, err := newParser(svc).Parse(context.Background(), "show order 4500001234", nil)

	require.NoError(t, err)
	require.Len(t, result.Intents, 2)
	assert.Equal(t, 1.0, result.Intents[0].Confidence)
	assert.Equal(t, 0.0, result.Intents[1].Confidence)
}

func TestParser_DecomposesCompoundRequests(t *testing.T) {
	svc := &fakeService{
		result: &models.ParseResult{
			Intents: []models.ParsedIntent{{ID: models.IntentUpdatePOItem, Confidence: 0.8}},
		},
	}

	_, err := newParser(svc).Parse(context.Background(), "add 25 more units to the line", nil)

	require.NoError(t, err)
	// the classifier must see the normalized restatement, not the raw text
	assert.Contains(t, svc.lastMessage, "(normalized: increase quantity by 25)")
}

func TestParser_PlainMessagesSkipDecomposition(t *testing.T) {
	svc := &fakeService{
		result: &models.ParseResult{
			Intents: []models.ParsedIntent{{ID: models.IntentGetPurchaseOrder, Confidence: 0.95}},
		},
	}

	_, err := newParser(svc).Parse(context.Background(), "show me purchase order 4500001234", nil)

	require.NoError(t, err)
	assert.Equal(t, "show me purchase order 4500001234", svc.lastMessage)
}

func TestParser_PropagatesServiceError(t *testing.T) {
	svc := &fakeService{err: errors.New("PARSE_FAILED")}

	result, err := newParser(svc).Parse(context.Background(), "show order 42", nil)

	assert.Nil(t, result)
	assert.EqualError(t, err, "PARSE_FAILED")
}

func TestParser_KeepsUnhandledContent(t *testing.T) {
	svc := &fakeService{
		result: &models.ParseResult{
			UnhandledContent: "I could not map that to a purchase-order operation.",
		},
	}

	result, err := newParser(svc).Parse(context.Background(), "sing me a song", nil)

	require.NoError(t, err)
	assert.Empty(t, result.Intents)
	assert.Equal(t, "I could not map that to a purchase-order operation.", result.UnhandledContent)
}
