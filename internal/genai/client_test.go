// internal/genai/client_test.go
package genai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"po-copilot/internal/common/logger"
	"po-copilot/internal/models"
)

func newTestClient(baseURL string, maxRetries int) *Client {
	return NewClient(&Config{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Timeout:    2 * time.Second,
		MaxRetries: maxRetries,
	}, logger.NewNoOpLogger())
}

func classifierResponse() string {
	return `{
		"intents": [{
			"intentId": "GET_PURCHASE_ORDER",
			"confidence": 0.93,
			"extractedFields": {"orderNumber": "4500001234"}
		}],
		"usage": {"promptTokens": 812, "completionTokens": 96}
	}`
}

func TestParse_Success(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		w.Write([]byte(classifierResponse()))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	convCtx := &models.ConversationContext{ConversationID: "conv-1"}
	result, err := c.Parse(context.Background(), "show order 4500001234", convCtx)

	require.NoError(t, err)
	require.Len(t, result.Intents, 1)
	assert.Equal(t, models.IntentGetPurchaseOrder, result.Intents[0].ID)
	assert.Equal(t, 0.93, result.Intents[0].Confidence)
	assert.Equal(t, "4500001234", result.Intents[0].Fields["orderNumber"])
	require.NotNil(t, result.Usage)
	assert.Equal(t, 812, result.Usage.PromptTokens)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "/api/ai/parse-intents", gotPath)
	assert.Equal(t, "show order 4500001234", gotBody["message"])
	// conversation context rides along for pronoun grounding
	assert.NotNil(t, gotBody["context"])
}

func TestParse_RetriesOnServerError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(classifierResponse()))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	result, err := c.Parse(context.Background(), "show order 4500001234", nil)

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Len(t, result.Intents, 1)
}

func TestParse_ExhaustedRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	_, err := c.Parse(context.Background(), "show order 4500001234", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParseFailed)
	assert.Equal(t, 3, attempts)
}

func TestParse_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.Write([]byte(classifierResponse()))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Parse(ctx, "show order 4500001234", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntentAPITimeout)
}

func TestParse_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"intents": [`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 0)
	_, err := c.Parse(context.Background(), "show order 4500001234", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParseFailed)
}
