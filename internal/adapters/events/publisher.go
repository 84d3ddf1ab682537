// Package events publishes settlement lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Dours-d/D2C/internal/core/domain"
	"github.com/Dours-d/D2C/internal/core/ports/gateways"
	"github.com/Dours-d/D2C/internal/platform/config"
	"github.com/IBM/sarama"
)

// DefaultTopic receives events when no topic is configured.
const DefaultTopic = "settlement.events"

// KafkaPublisher writes events as JSON, keyed by batch so one batch's events stay ordered.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

var _ gateways.EventPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher connects a synchronous producer to the configured brokers.
func NewKafkaPublisher(cfg config.KafkaConfig) (*KafkaPublisher, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, cfg.Topic), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish sends one event and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.SettlementEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.BatchID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(event.Type)},
			{Key: []byte("event-id"), Value: []byte(event.EventID)},
		},
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send event %s: %w", event.EventID, err)
	}

	slog.DebugContext(ctx, "Settlement event published",
		slog.String("event_id", event.EventID),
		slog.String("type", string(event.Type)),
		slog.String("batch_id", event.BatchID),
		slog.Int("partition", int(partition)),
		slog.Int64("offset", offset))
	return nil
}

// Close flushes and closes the producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// LogPublisher writes events to the log. It is used when no brokers are configured.
type LogPublisher struct {
	logger *slog.Logger
}

var _ gateways.EventPublisher = (*LogPublisher)(nil)

// NewLogPublisher returns a publisher that logs through logger, or the default logger when nil.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event domain.SettlementEvent) error {
	p.logger.InfoContext(ctx, "Settlement event",
		slog.String("event_id", event.EventID),
		slog.String("type", string(event.Type)),
		slog.String("batch_id", event.BatchID),
		slog.String("status", string(event.Status)),
		slog.String("previous_status", string(event.PrevStatus)),
		slog.String("tx_hash", event.TxHash))
	return nil
}
