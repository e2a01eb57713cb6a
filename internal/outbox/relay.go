package outbox

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher delivers a record to the message broker.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
}

// Relay polls the outbox and publishes unsent records. Delivery is
// at-least-once: a record whose MarkSent fails is published again.
type Relay struct {
	source    Source
	publisher Publisher
	interval  time.Duration
	batchSize int
}

// NewRelay creates a Relay that polls every interval for up to batchSize
// records.
func NewRelay(source Source, publisher Publisher, interval time.Duration, batchSize int) *Relay {
	return &Relay{
		source:    source,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run relays records until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	lg := zctx.From(ctx).Named("outbox")
	lg.Info("Starting outbox relay",
		zap.Duration("interval", r.interval),
		zap.Int("batch_size", r.batchSize),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			lg.Warn("Outbox flush failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			lg.Info("Outbox relay stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch and returns how many records were sent. It
// stops at the first publish failure so records keep their order.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	records, err := r.source.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, errors.Wrap(err, "fetch pending")
	}

	sent := 0
	for _, rec := range records {
		if err := r.publisher.Publish(ctx, rec); err != nil {
			return sent, errors.Wrapf(err, "publish event %s", rec.EventID)
		}
		if err := r.source.MarkSent(ctx, rec.ID); err != nil {
			return sent, errors.Wrapf(err, "mark event %s sent", rec.EventID)
		}
		sent++
	}

	if sent > 0 {
		zctx.From(ctx).Debug("Outbox flushed", zap.Int("sent", sent))
	}
	return sent, nil
}

// KafkaPublisher publishes records to the topic stored on each record.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for brokers. Messages with the same
// key (order id) land on the same partition.
func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Publish writes rec synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, rec Record) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: rec.Topic,
		Key:   []byte(rec.Key),
		Value: rec.Payload,
		Time:  rec.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(rec.EventID)},
		},
	})
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
