// Package publisher emits audit events to Kafka. Compliance events are
// produced synchronously (fail-closed: the business operation must not
// proceed if its audit trail cannot be persisted); security and operations
// events are produced asynchronously so they stay off the request hot path.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"peopleflow/pkg/platform/audit"
	"peopleflow/pkg/requestcontext"
)

// Kafka publishes audit events to a single topic, keyed by tenant so one
// tenant's trail stays ordered within a partition.
type Kafka struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// KafkaOption configures a Kafka publisher.
type KafkaOption func(*Kafka)

// WithLogger sets a logger for async produce failures.
func WithLogger(logger *slog.Logger) KafkaOption {
	return func(k *Kafka) {
		k.logger = logger
	}
}

// NewKafka connects to the given brokers and ensures the audit topic exists.
func NewKafka(ctx context.Context, brokers []string, topic string, opts ...KafkaOption) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProduceRequestTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopic(ctx, client, topic); err != nil {
		client.Close()
		return nil, err
	}

	k := &Kafka{client: client, topic: topic}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// ensureTopic creates the audit topic if it does not exist yet. Idempotent;
// an already-exists response is not an error.
func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, 3, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create audit topic: %w", err)
	}
	for _, t := range resp {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create audit topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}

// Emit publishes an event. Compliance events block until the broker
// acknowledges the write; everything else is fire-and-forget with failures
// logged.
func (k *Kafka) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(event.TenantID.String()),
		Value: payload,
	}

	if event.Category == audit.CategoryCompliance {
		if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
			return fmt.Errorf("produce compliance audit event: %w", err)
		}
		return nil
	}

	k.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil && k.logger != nil {
			k.logger.Error("audit event produce failed",
				"action", event.Action,
				"error", err,
			)
		}
	})
	return nil
}

// Close flushes pending records and releases the client.
func (k *Kafka) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := k.client.Flush(ctx); err != nil {
		k.client.Close()
		return err
	}
	k.client.Close()
	return nil
}
