// internal/common/database/elasticsearch.go
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"po-copilot/internal/common/config"

	"github.com/elastic/go-elasticsearch/v8"
)

// auditIndexMapping keys the fields the audit search path filters and sorts
// on. Everything else in an entry stays dynamically mapped.
const auditIndexMapping = `{
  "mappings": {
    "properties": {
      "conversationId": {"type": "keyword"},
      "planId":         {"type": "keyword"},
      "phase":          {"type": "keyword"},
      "createdAt":      {"type": "date"}
    }
  }
}`

// ElasticsearchClient wraps the Elasticsearch client used for the audit trail.
type ElasticsearchClient struct {
	Client *elasticsearch.Client
}

func NewElasticsearch(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
	}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ElasticsearchClient{Client: es}, nil
}

// Ping tests the Elasticsearch connection.
func (c *ElasticsearchClient) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := c.Client.Ping(c.Client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}
	return nil
}

// EnsureAuditIndex creates the audit index with its explicit mapping if it
// does not yet exist. A 400 from the create call means another instance won
// the race, which is fine.
func (c *ElasticsearchClient) EnsureAuditIndex(ctx context.Context, index string) error {
	exists, err := c.Client.Indices.Exists([]string{index},
		c.Client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("audit index check failed: %w", err)
	}
	defer exists.Body.Close()
	if exists.StatusCode == 200 {
		return nil
	}

	res, err := c.Client.Indices.Create(index,
		c.Client.Indices.Create.WithContext(ctx),
		c.Client.Indices.Create.WithBody(strings.NewReader(auditIndexMapping)),
	)
	if err != nil {
		return fmt.Errorf("audit index create failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 400 {
		return fmt.Errorf("audit index create error: %s", res.Status())
	}
	return nil
}
