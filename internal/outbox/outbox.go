// Package outbox records domain events in the order transaction and relays
// them to Kafka once committed.
package outbox

import (
	"context"
	"time"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/xenking/kart-orders/internal/domain/order"
)

// EventOrderConfirmed is the event type written when a cart is confirmed.
const EventOrderConfirmed = "order.confirmed"

// Record is a stored event awaiting publication.
type Record struct {
	ID        int64
	EventID   string
	Topic     string
	Key       string
	Payload   []byte
	CreatedAt time.Time
	SentAt    *time.Time
}

// Store persists records. Insert must use the transaction carried by ctx.
type Store interface {
	Insert(ctx context.Context, rec Record) error
}

// Source yields unsent records to the relay.
type Source interface {
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, id int64) error
}

var _ order.EventSink = (*Writer)(nil)

// Writer turns order lifecycle events into outbox records.
type Writer struct {
	store Store
	topic string
	now   func() time.Time
}

// NewWriter returns a Writer that stores records for topic.
func NewWriter(store Store, topic string) *Writer {
	return &Writer{store: store, topic: topic, now: time.Now}
}

// OrderConfirmed stores an order.confirmed event keyed by order id.
func (w *Writer) OrderConfirmed(ctx context.Context, o *order.Order) error {
	eventID := uuid.New().String()
	return w.store.Insert(ctx, Record{
		EventID:   eventID,
		Topic:     w.topic,
		Key:       o.ID,
		Payload:   encodeOrderConfirmed(eventID, w.now().UTC(), o),
		CreatedAt: w.now().UTC(),
	})
}

// encodeOrderConfirmed renders the event envelope. Money is encoded as a
// fixed two-decimal string.
func encodeOrderConfirmed(eventID string, at time.Time, o *order.Order) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(eventID) })
		e.Field("type", func(e *jx.Encoder) { e.Str(EventOrderConfirmed) })
		e.Field("timestamp", func(e *jx.Encoder) { e.Str(at.Format(time.RFC3339Nano)) })
		e.Field("order", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
				e.Field("user_id", func(e *jx.Encoder) { e.Str(o.UserID) })
				e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
				e.Field("total", func(e *jx.Encoder) { e.Str(o.Total.StringFixed(2)) })
				if o.HasPromo() {
					e.Field("promo_id", func(e *jx.Encoder) { e.Str(o.PromoID) })
				}
				e.Field("items", func(e *jx.Encoder) {
					e.Arr(func(e *jx.Encoder) {
						for _, it := range o.Items {
							e.Obj(func(e *jx.Encoder) {
								e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
								e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
							})
						}
					})
				})
			})
		})
	})

	return append([]byte(nil), e.Bytes()...)
}
