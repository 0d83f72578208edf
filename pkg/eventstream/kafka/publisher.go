// Package kafka implements the eventstream publisher on a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	segmentio "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/lumonlabs/aria/pkg/eventstream"
)

// Publisher ships lifecycle events to a Kafka topic as JSON messages keyed
// by turn or job id, so consumers see per-entity ordering.
type Publisher struct {
	writer *segmentio.Writer
	logger *zap.Logger
}

// NewPublisher creates a Kafka publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string, logger *zap.Logger) *Publisher {
	return &Publisher{
		writer: &segmentio.Writer{
			Addr:     segmentio.TCP(brokers...),
			Topic:    topic,
			Balancer: &segmentio.LeastBytes{},
		},
		logger: logger,
	}
}

// PublishTurn writes a turn-completed event keyed by turn id.
func (p *Publisher) PublishTurn(ctx context.Context, event *eventstream.TurnCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	return p.publish(ctx, event.TurnID, event)
}

// PublishJob writes a job-finished event keyed by job id.
func (p *Publisher) PublishJob(ctx context.Context, event *eventstream.JobFinishedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	return p.publish(ctx, event.JobID, event)
}

func (p *Publisher) publish(ctx context.Context, key string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, segmentio.Message{
		Key:   []byte(key),
		Value: value,
	}); err != nil {
		p.logger.Error("failed to publish event",
			zap.String("key", key),
			zap.Error(err),
		)
		return fmt.Errorf("writing kafka message: %w", err)
	}

	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
