package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"

	"po-copilot/internal/common/logger"
	"po-copilot/internal/models"
)

// AuditLog writes pipeline audit entries to an Elasticsearch index.
// Audit writes are best-effort: the caller decides whether a write failure
// is fatal (it never is in the pipeline itself).
type AuditLog struct {
	client *elasticsearch.Client
	index  string
	logger logger.Logger
}

func NewAuditLog(client *elasticsearch.Client, index string, log logger.Logger) *AuditLog {
	return &AuditLog{
		client: client,
		index:  index,
		logger: log.WithFields(map[string]interface{}{"component": "audit-log"}),
	}
}

func (a *AuditLog) Log(ctx context.Context, entry models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}

	res, err := a.client.Index(a.index, bytes.NewReader(body),
		a.client.Index.WithContext(ctx),
		a.client.Index.WithDocumentID(entry.ID),
	)
	if err != nil {
		return fmt.Errorf("indexing audit entry: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("audit index returned %s", res.Status())
	}
	return nil
}

// GetEntries returns the audit trail of one conversation, oldest first.
func (a *AuditLog) GetEntries(ctx context.Context, conversationID string) ([]models.AuditEntry, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{
				"conversationId.keyword": conversationID,
			},
		},
		"sort": []map[string]interface{}{
			{"createdAt": map[string]interface{}{"order": "asc"}},
		},
		"size": 500,
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("marshaling audit query: %w", err)
	}

	res, err := a.client.Search(
		a.client.Search.WithContext(ctx),
		a.client.Search.WithIndex(a.index),
		a.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("searching audit entries: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("audit search returned %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source models.AuditEntry `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding audit search response: %w", err)
	}

	entries := make([]models.AuditEntry, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		entries = append(entries, h.Source)
	}
	return entries, nil
}
