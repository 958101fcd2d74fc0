package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prohmpiriya/eventgate/internal/dto"
)

// RecordProducer writes one keyed record to a topic
type RecordProducer interface {
	Produce(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

type kafkaEventPublisher struct {
	producer RecordProducer
	topic    string
	source   string
}

// NewKafkaEventPublisher publishes JSON events to topic, keyed by Event.Key
func NewKafkaEventPublisher(producer RecordProducer, topic, source string) EventPublisher {
	return &kafkaEventPublisher{producer: producer, topic: topic, source: source}
}

func (p *kafkaEventPublisher) Publish(ctx context.Context, event dto.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.Type(), err)
	}

	headers := map[string]string{
		"event_type": event.Type(),
		"source":     p.source,
	}
	if err := p.producer.Produce(ctx, p.topic, event.Key(), value, headers); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type(), err)
	}
	return nil
}

type noopEventPublisher struct{}

// NewNoopEventPublisher discards events
func NewNoopEventPublisher() EventPublisher {
	return noopEventPublisher{}
}

func (noopEventPublisher) Publish(ctx context.Context, event dto.Event) error {
	return nil
}
