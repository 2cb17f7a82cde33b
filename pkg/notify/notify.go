// Package notify publishes export events for downstream consumers.
// Publishing is best effort: callers log failures and carry on.
package notify

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ajitpratap0/ghlexport/pkg/config"
	"github.com/ajitpratap0/ghlexport/pkg/errors"
	jsonpool "github.com/ajitpratap0/ghlexport/pkg/json"
)

// EventType distinguishes the published events.
type EventType string

const (
	// EventSnapshotSaved follows every successful persist of a domain
	EventSnapshotSaved EventType = "snapshot_saved"
	// EventRunCompleted carries the run summary
	EventRunCompleted EventType = "run_completed"
)

// Event is one published message.
type Event struct {
	Type       EventType   `json:"type"`
	RunID      string      `json:"runId"`
	Domain     string      `json:"domain,omitempty"`
	LocationID string      `json:"locationId"`
	Count      int         `json:"count"`
	ExportedAt time.Time   `json:"exportedAt"`
	Summary    interface{} `json:"summary,omitempty"`
}

// Key partitions events by location and domain.
func (e Event) Key() string {
	if e.Domain == "" {
		return e.LocationID
	}
	return e.LocationID + "/" + e.Domain
}

// Notifier publishes events.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// New returns a Kafka notifier when brokers are configured, Nop otherwise.
func New(cfg config.NotifyConfig, logger *zap.Logger) (Notifier, error) {
	if len(cfg.Brokers) == 0 {
		return Nop{}, nil
	}
	return NewKafkaNotifier(cfg, logger)
}

// KafkaNotifier publishes events as JSON messages through a synchronous
// producer.
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewKafkaNotifier connects a synchronous producer to the brokers.
func NewKafkaNotifier(cfg config.NotifyConfig, logger *zap.Logger) (*KafkaNotifier, error) {
	if cfg.Topic == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "notify topic is required")
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create kafka producer").
			WithDetail("brokers", cfg.Brokers)
	}
	return NewKafkaNotifierWithProducer(producer, cfg.Topic, logger), nil
}

// NewKafkaNotifierWithProducer wraps an existing producer.
func NewKafkaNotifierWithProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaNotifier{
		producer: producer,
		topic:    topic,
		logger:   logger.With(zap.String("component", "notifier")),
	}
}

func saramaConfig(cfg config.NotifyConfig) *sarama.Config {
	c := sarama.NewConfig()
	c.ClientID = cfg.ClientID
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Retry.Max = 3
	c.Producer.Return.Successes = true
	c.Producer.Return.Errors = true
	c.Producer.Compression = sarama.CompressionSnappy
	c.Producer.Idempotent = false
	c.Net.DialTimeout = 10 * time.Second
	return c
}

// Publish implements Notifier.
func (n *KafkaNotifier) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := jsonpool.Marshal(event)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode event")
	}

	msg := &sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(event.Key()),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(event.Type)},
			{Key: []byte("content-type"), Value: []byte("application/json")},
		},
		Timestamp: event.ExportedAt,
	}
	partition, offset, err := n.producer.SendMessage(msg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to publish event").
			WithDetail("topic", n.topic)
	}
	n.logger.Debug("event published",
		zap.String("type", string(event.Type)),
		zap.String("key", event.Key()),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Close flushes and closes the producer.
func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}
