package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// kafkaProducer is the slice of kgo.Client the publisher needs; tests swap in
// a recording fake so no broker container is required.
type kafkaProducer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Close()
}

// KafkaPublisher emits audit events to a Kafka topic for downstream SIEM and
// reporting consumers. Production is fire-and-forget: a delivery failure is
// logged, not surfaced to the request that triggered the event.
type KafkaPublisher struct {
	client kafkaProducer
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher connects to the given seed brokers.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic, logger: logger}, nil
}

// newKafkaPublisherWithClient is the seam for tests.
func newKafkaPublisherWithClient(client kafkaProducer, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic, logger: logger}
}

func (p *KafkaPublisher) Emit(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.Subject),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil && p.logger != nil {
			p.logger.Warn("audit event delivery failed",
				"action", event.Action,
				"error", err.Error(),
			)
		}
	})
	return nil
}

// Close flushes and releases the underlying Kafka client.
func (p *KafkaPublisher) Close() {
	p.client.Close()
}
