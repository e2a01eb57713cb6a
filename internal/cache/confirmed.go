// Package cache provides a Redis read-through cache for confirmed orders.
package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/order"
)

const (
	confirmedKeyPrefix  = "confirmed_orders:"
	generationKeyPrefix = "confirmed_orders_gen:"
	defaultTTL          = 5 * time.Minute
	// generationTTL outlives any read-through window by far; an expired
	// generation restarts at zero.
	generationTTL = 24 * time.Hour
)

var (
	_ order.ConfirmedCache = (*Confirmed)(nil)

	errStaleGeneration = errors.New("generation changed")
)

// Confirmed caches each user's confirmed orders under one key, guarded by a
// per-user generation counter. Cache failures are logged and reported as
// misses.
type Confirmed struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewConfirmed creates a cache over client. A zero ttl selects the default.
func NewConfirmed(client redis.UniversalClient, ttl time.Duration) *Confirmed {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Confirmed{client: client, ttl: ttl}
}

func confirmedKey(userID string) string {
	return confirmedKeyPrefix + userID
}

func generationKey(userID string) string {
	return generationKeyPrefix + userID
}

// GetConfirmed returns the cached orders for userID and the generation they
// were read at.
func (c *Confirmed) GetConfirmed(ctx context.Context, userID string) ([]order.Order, int64, bool) {
	lg := zctx.From(ctx).With(zap.String("user_id", userID))

	values, err := c.client.MGet(ctx, confirmedKey(userID), generationKey(userID)).Result()
	if err != nil {
		lg.Warn("Cache get failed", zap.Error(err))
		return nil, 0, false
	}

	gen, err := parseGeneration(values[1])
	if err != nil {
		lg.Warn("Cache generation corrupt", zap.Error(err))
		return nil, 0, false
	}

	data, ok := values[0].(string)
	if !ok {
		return nil, gen, false
	}
	orders, err := decodeOrders([]byte(data))
	if err != nil {
		lg.Warn("Cache entry corrupt", zap.Error(err))
		return nil, gen, false
	}
	return orders, gen, true
}

// SetConfirmed stores orders for userID with the configured TTL, unless the
// generation has moved past gen.
func (c *Confirmed) SetConfirmed(ctx context.Context, userID string, gen int64, orders []order.Order) {
	data := encodeOrders(orders)
	genKey := generationKey(userID)

	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, confirmedKey(userID), data, c.ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		zctx.From(ctx).Debug("Cache set skipped, entry invalidated meanwhile",
			zap.String("user_id", userID),
			zap.Int64("generation", gen),
		)
	default:
		zctx.From(ctx).Warn("Cache set failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// InvalidateConfirmed advances the generation for userID and drops the
// cached orders.
func (c *Confirmed) InvalidateConfirmed(ctx context.Context, userID string) {
	genKey := generationKey(userID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, confirmedKey(userID))
		return nil
	})
	if err != nil {
		zctx.From(ctx).Warn("Cache invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func parseGeneration(v any) (int64, error) {
	if v == nil {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, errors.Errorf("unexpected generation type %T", v)
	}
	return jx.DecodeStr(s).Int64()
}

func encodeOrders(orders []order.Order) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.Arr(func(e *jx.Encoder) {
		for _, o := range orders {
			e.Obj(func(e *jx.Encoder) {
				e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
				e.Field("user_id", func(e *jx.Encoder) { e.Str(o.UserID) })
				e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
				e.Field("total", func(e *jx.Encoder) { e.Str(o.Total.String()) })
				if o.HasPromo() {
					e.Field("promo_id", func(e *jx.Encoder) { e.Str(o.PromoID) })
				}
				e.Field("discount_factor", func(e *jx.Encoder) { e.Str(o.DiscountFactor.String()) })
				e.Field("version", func(e *jx.Encoder) { e.Int64(o.Version) })
				e.Field("created_at", func(e *jx.Encoder) { e.Str(o.CreatedAt.Format(time.RFC3339Nano)) })
				e.Field("updated_at", func(e *jx.Encoder) { e.Str(o.UpdatedAt.Format(time.RFC3339Nano)) })
				if o.ConfirmedAt != nil {
					e.Field("confirmed_at", func(e *jx.Encoder) { e.Str(o.ConfirmedAt.Format(time.RFC3339Nano)) })
				}
				e.Field("items", func(e *jx.Encoder) {
					e.Arr(func(e *jx.Encoder) {
						for _, it := range o.Items {
							e.Obj(func(e *jx.Encoder) {
								e.Field("id", func(e *jx.Encoder) { e.Str(it.ID) })
								e.Field("product_id", func(e *jx.Encoder) { e.Str(it.ProductID) })
								e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
							})
						}
					})
				})
			})
		}
	})

	return append([]byte(nil), e.Bytes()...)
}

func decodeOrders(data []byte) ([]order.Order, error) {
	orders := make([]order.Order, 0)
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var o order.Order
		if err := decodeOrder(d, &o); err != nil {
			return err
		}
		orders = append(orders, o)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode cached orders")
	}
	return orders, nil
}

func decodeOrder(d *jx.Decoder, o *order.Order) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			o.ID, err = d.Str()
		case "user_id":
			o.UserID, err = d.Str()
		case "status":
			var s string
			s, err = d.Str()
			o.Status = order.Status(s)
		case "total":
			o.Total, err = decodeDecimal(d)
		case "promo_id":
			o.PromoID, err = d.Str()
		case "discount_factor":
			o.DiscountFactor, err = decodeDecimal(d)
		case "version":
			o.Version, err = d.Int64()
		case "created_at":
			o.CreatedAt, err = decodeTime(d)
		case "updated_at":
			o.UpdatedAt, err = decodeTime(d)
		case "confirmed_at":
			var at time.Time
			at, err = decodeTime(d)
			o.ConfirmedAt = &at
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				var it order.Item
				if err := decodeItem(d, &it); err != nil {
					return err
				}
				o.Items = append(o.Items, it)
				return nil
			})
		default:
			err = d.Skip()
		}
		return fieldErr(key, err)
	})
}

func decodeItem(d *jx.Decoder, it *order.Item) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			it.ID, err = d.Str()
		case "product_id":
			it.ProductID, err = d.Str()
		case "quantity":
			it.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return fieldErr(key, err)
	})
}

func fieldErr(key []byte, err error) error {
	if err != nil {
		return errors.Wrapf(err, "field %q", key)
	}
	return nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(s)
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}
