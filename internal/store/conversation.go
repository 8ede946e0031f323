// Package store holds the persistence collaborators of the pipeline:
// conversations in Redis, plans in Postgres, audit entries in Elasticsearch.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	commonerrors "po-copilot/internal/common/errors"
	"po-copilot/internal/common/logger"
	"po-copilot/internal/models"
)

const (
	conversationKeyPrefix = "conversation:"
	contextKeySuffix      = ":context"
)

// ConversationStore keeps conversations and their active-entity context in
// Redis as JSON documents.
type ConversationStore struct {
	client      *redis.Client
	ttl         time.Duration
	maxEntities int
	logger      logger.Logger
}

func NewConversationStore(client *redis.Client, ttl time.Duration, maxEntities int, log logger.Logger) *ConversationStore {
	return &ConversationStore{
		client:      client,
		ttl:         ttl,
		maxEntities: maxEntities,
		logger:      log.WithFields(map[string]interface{}{"component": "conversation-store"}),
	}
}

func (s *ConversationStore) Create(ctx context.Context) (*models.Conversation, error) {
	conv := &models.Conversation{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.write(ctx, conversationKeyPrefix+conv.ID, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *ConversationStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.read(ctx, conversationKeyPrefix+id, &conv); err != nil {
		if err == redis.Nil {
			return nil, commonerrors.NewConversationError(id)
		}
		return nil, err
	}
	return &conv, nil
}

func (s *ConversationStore) AppendMessage(ctx context.Context, id string, msg models.Message) error {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	conv.Messages = append(conv.Messages, msg)
	return s.write(ctx, conversationKeyPrefix+id, conv)
}

// GetContext returns the active-entity context; a missing context is an
// empty one, not an error.
func (s *ConversationStore) GetContext(ctx context.Context, id string) (*models.ConversationContext, error) {
	var cc models.ConversationContext
	if err := s.read(ctx, conversationKeyPrefix+id+contextKeySuffix, &cc); err != nil {
		if err == redis.Nil {
			return &models.ConversationContext{ConversationID: id}, nil
		}
		return nil, err
	}
	return &cc, nil
}

// RememberEntities merges newly resolved entities into the bounded context.
func (s *ConversationStore) RememberEntities(ctx context.Context, id string, entities []models.ActiveEntity) error {
	cc, err := s.GetContext(ctx, id)
	if err != nil {
		return err
	}
	for _, e := range entities {
		cc.AddEntity(e, s.maxEntities)
	}
	return s.write(ctx, conversationKeyPrefix+id+contextKeySuffix, cc)
}

func (s *ConversationStore) write(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.logger.WithError(err).Error("redis write failed", map[string]interface{}{"key": key})
		return commonerrors.NewDatabaseConnectionFailedError(err)
	}
	return nil
}

func (s *ConversationStore) read(ctx context.Context, key string, v interface{}) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
