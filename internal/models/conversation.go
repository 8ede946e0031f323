package models

import "time"

// Message is one turn of a conversation.
type Message struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Conversation groups the turns of one user session.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  []Message `json:"messages,omitempty"`
}

// ActiveEntity is a previously resolved record carried across turns so later
// messages can reference it implicitly.
type ActiveEntity struct {
	Type  EntityType `json:"type"`
	Value string     `json:"value"`
	Label string     `json:"label,omitempty"`
}

// ConversationContext accumulates active entities, deduplicated by
// type+value.
type ConversationContext struct {
	ConversationID string         `json:"conversationId"`
	ActiveEntities []ActiveEntity `json:"activeEntities,omitempty"`
}

// AddEntity appends an entity unless an equal type+value pair is already
// present; maxEntities bounds the context (oldest dropped first, 0 means
// unbounded).
func (c *ConversationContext) AddEntity(e ActiveEntity, maxEntities int) {
	for i, existing := range c.ActiveEntities {
		if existing.Type == e.Type && existing.Value == e.Value {
			// refresh recency and label
			c.ActiveEntities = append(c.ActiveEntities[:i], c.ActiveEntities[i+1:]...)
			break
		}
	}
	c.ActiveEntities = append(c.ActiveEntities, e)
	if maxEntities > 0 && len(c.ActiveEntities) > maxEntities {
		c.ActiveEntities = c.ActiveEntities[len(c.ActiveEntities)-maxEntities:]
	}
}

// LatestEntity returns the most recently added entity of the given type.
func (c *ConversationContext) LatestEntity(t EntityType) *ActiveEntity {
	for i := len(c.ActiveEntities) - 1; i >= 0; i-- {
		if c.ActiveEntities[i].Type == t {
			return &c.ActiveEntities[i]
		}
	}
	return nil
}
