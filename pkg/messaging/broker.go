package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is the envelope fanned out to subscribers of a channel.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func NewMessage(eventType string, payload interface{}) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Message{
		ID:         uuid.NewString(),
		Type:       eventType,
		Payload:    raw,
		OccurredAt: time.Now().UTC(),
	}, nil
}

// Publisher defines the interface for publishing messages
type Publisher interface {
	Publish(ctx context.Context, channel string, msg Message) error
}

type Subscriber interface {
	// Subscribe delivers messages until ctx is cancelled, then closes the
	// returned channel.
	Subscribe(ctx context.Context, channel string) (<-chan Message, error)
}

// Broker defines the interface for message brokers
type Broker interface {
	Publisher
	Subscriber
}
