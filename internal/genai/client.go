// Package genai is the HTTP client for the intent-classification service.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"po-copilot/internal/common/logger"
	"po-copilot/internal/models"
)

var (
	ErrParseFailed      = errors.New("PARSE_FAILED")
	ErrIntentAPITimeout = errors.New("INTENT_API_TIMEOUT")
)

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

type Client struct {
	config *Config
	client *http.Client
	logger logger.Logger
}

func NewClient(config *Config, log logger.Logger) *Client {
	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		logger: log.WithFields(map[string]interface{}{
			"component": "genai",
		}),
	}
}

// Parse classifies a message into zero or more typed intents. The active
// entities of the conversation are passed along so the classifier can ground
// pronouns and implicit references.
func (c *Client) Parse(ctx context.Context, message string, convCtx *models.ConversationContext) (*models.ParseResult, error) {
	requestBody := map[string]interface{}{
		"message": message,
	}

	// Only include context if it's not nil
	if convCtx != nil {
		requestBody["context"] = convCtx
	}

	body, _ := json.Marshal(requestBody)
	req, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/api/ai/parse-intents", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {

		if attempt > 0 {
			// Apply exponential backoff for retries
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ErrIntentAPITimeout
			}
		}

		resp, lastErr = c.client.Do(req)

		// If context expired during the request, return timeout immediately.
		if ctx.Err() != nil ||
			errors.Is(lastErr, context.DeadlineExceeded) ||
			errors.Is(lastErr, context.Canceled) {

			return nil, ErrIntentAPITimeout
		}

		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			// For non-OK status codes, treat as error and retry
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrIntentAPITimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, lastErr)
	}

	if resp == nil {
		return nil, fmt.Errorf("%w: no successful response after retries", ErrParseFailed)
	}
	defer resp.Body.Close()

	var result models.ParseResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrParseFailed, err)
	}

	c.logger.Info("message classified", map[string]interface{}{
		"intentCount": len(result.Intents),
		"unhandled":   result.UnhandledContent != "",
	})

	return &result, nil
}
