package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to the order-management backend over HTTP. Every thrown error
// is treated by callers as action failure; there are no special cases.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("backend request failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// Call executes an arbitrary planned API call and returns the decoded
// response. The executor replays plan actions through it.
func (c *Client) Call(ctx context.Context, method, path string, body map[string]interface{}) (interface{}, error) {
	respBody, err := c.do(ctx, method, path, bodyOrNil(body))
	if err != nil {
		return nil, err
	}
	if len(respBody) == 0 {
		return nil, nil
	}

	var data interface{}
	if err := json.Unmarshal(respBody, &data); err != nil {
		// Non-JSON payloads are passed through verbatim.
		return string(respBody), nil
	}
	return data, nil
}

func bodyOrNil(body map[string]interface{}) interface{} {
	if len(body) == 0 {
		return nil
	}
	return body
}

// GetOrder fetches one purchase order by its exact number.
func (c *Client) GetOrder(ctx context.Context, orderNumber string) (*PurchaseOrder, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/purchase-orders/"+url.PathEscape(orderNumber), nil)
	if err != nil {
		return nil, err
	}

	var order PurchaseOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	return &order, nil
}

// ListOrders fetches purchase orders, optionally scoped by supplier.
func (c *Client) ListOrders(ctx context.Context, filter ListFilter) ([]PurchaseOrder, error) {
	q := url.Values{}
	if filter.Supplier != "" {
		q.Set("supplier", filter.Supplier)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	path := "/purchase-orders"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	respBody, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Orders []PurchaseOrder `json:"orders"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal orders: %w", err)
	}
	return result.Orders, nil
}

// GetItems fetches the line items of one purchase order.
func (c *Client) GetItems(ctx context.Context, orderNumber string) ([]PurchaseOrderItem, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/purchase-orders/"+url.PathEscape(orderNumber)+"/items", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Items []PurchaseOrderItem `json:"items"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal items: %w", err)
	}
	return result.Items, nil
}

// GetItem fetches a single line item.
func (c *Client) GetItem(ctx context.Context, orderNumber, itemNumber string) (*PurchaseOrderItem, error) {
	path := "/purchase-orders/" + url.PathEscape(orderNumber) + "/items/" + url.PathEscape(itemNumber)
	respBody, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var item PurchaseOrderItem
	if err := json.Unmarshal(respBody, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	return &item, nil
}

// Health performs the pre-flight connectivity probe.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	respBody, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return &HealthStatus{Status: "error", Message: err.Error()}, nil
	}

	var status HealthStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal health status: %w", err)
	}
	return &status, nil
}
