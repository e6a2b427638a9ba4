package entity

import (
	"time"

	"github.com/google/uuid"
)

// OutboxEvent is one captured domain event waiting to be relayed to the broker.
type OutboxEvent struct {
	ID            int64         `json:"id"`
	EventID       uuid.UUID     `json:"event_id"`
	EventType     EventType     `json:"event_type"`
	AggregateType AggregateType `json:"aggregate_type"`
	AggregateID   string        `json:"aggregate_id"`
	Payload       []byte        `json:"payload"`
	Status        OutboxStatus  `json:"status"`
	RetryCount    int           `json:"retry_count"`
	CreatedAt     time.Time     `json:"created_at"`
	PublishedAt   *time.Time    `json:"published_at,omitempty"`
}

// Message builds the broker message for the row.
func (e OutboxEvent) Message() Message {
	return Message{
		Exchange:   e.AggregateType.Exchange(),
		RoutingKey: e.EventType.RoutingKey(),
		Key:        e.AggregateID,
		Body:       e.Payload,
		Headers: map[string]string{
			HeaderEventID:       e.EventID.String(),
			HeaderEventType:     string(e.EventType),
			HeaderAggregateID:   e.AggregateID,
			HeaderAggregateType: string(e.AggregateType),
		},
	}
}
