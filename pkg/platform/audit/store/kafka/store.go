// Package kafka appends audit events to a Kafka topic as JSON, keyed by user
// so a user's events stay ordered within a partition.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	audit "backoffice/pkg/platform/audit"
)

// Producer is the subset of the platform Kafka producer the store needs.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

type Store struct {
	producer Producer
	topic    string
}

func New(producer Producer, topic string) *Store {
	return &Store{producer: producer, topic: topic}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	headers := map[string]string{
		"category": string(event.Category),
		"action":   event.Action,
	}
	return s.producer.Publish(ctx, s.topic, []byte(event.UserID), payload, headers)
}
