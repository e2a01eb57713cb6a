// Package observability decorates domain services with tracing, metrics and
// structured logging.
package observability

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/apperr"
	"github.com/xenking/kart-orders/internal/domain/order"
)

const instrumentationName = "github.com/xenking/kart-orders/internal/observability"

var _ order.Cart = (*Cart)(nil)

// Cart wraps an order.Cart.
type Cart struct {
	inner  order.Cart
	tracer trace.Tracer

	mutations metric.Int64Counter
	promos    metric.Int64Counter
	confirmed metric.Int64Counter
	failures  metric.Int64Counter
}

// NewCart instruments inner with spans and counters from the given providers.
func NewCart(inner order.Cart, tp trace.TracerProvider, mp metric.MeterProvider) (*Cart, error) {
	meter := mp.Meter(instrumentationName)

	c := &Cart{
		inner:  inner,
		tracer: tp.Tracer(instrumentationName),
	}

	var err error
	if c.mutations, err = meter.Int64Counter("cart.mutations",
		metric.WithDescription("Cart item mutations by action"),
	); err != nil {
		return nil, errors.Wrap(err, "cart.mutations")
	}
	if c.promos, err = meter.Int64Counter("cart.promos_applied",
		metric.WithDescription("Promo codes applied to carts"),
	); err != nil {
		return nil, errors.Wrap(err, "cart.promos_applied")
	}
	if c.confirmed, err = meter.Int64Counter("orders.confirmed",
		metric.WithDescription("Orders confirmed"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.confirmed")
	}
	if c.failures, err = meter.Int64Counter("cart.failures",
		metric.WithDescription("Failed cart operations by operation and error kind"),
	); err != nil {
		return nil, errors.Wrap(err, "cart.failures")
	}

	return c, nil
}

func (c *Cart) EnsureCart(ctx context.Context, userID string) (*order.Order, error) {
	ctx, span := c.start(ctx, "Cart.EnsureCart", userID)
	defer span.End()

	o, err := c.inner.EnsureCart(ctx, userID)
	if err != nil {
		return nil, c.fail(ctx, span, "ensure_cart", err)
	}
	c.annotate(span, o)
	return o, nil
}

func (c *Cart) ModifyItem(ctx context.Context, userID, productID string, action order.Action, quantity int) (*order.Order, error) {
	ctx, span := c.start(ctx, "Cart.ModifyItem", userID,
		attribute.String("product.id", productID),
		attribute.String("cart.action", action.String()),
		attribute.Int("cart.quantity", quantity),
	)
	defer span.End()

	o, err := c.inner.ModifyItem(ctx, userID, productID, action, quantity)
	if err != nil {
		return nil, c.fail(ctx, span, "modify_item", err)
	}
	c.mutations.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action.String())))
	c.annotate(span, o)
	zctx.From(ctx).Debug("Cart modified",
		zap.String("order_id", o.ID),
		zap.String("product_id", productID),
		zap.Stringer("action", action),
		zap.Int("items", len(o.Items)),
	)
	return o, nil
}

func (c *Cart) ApplyPromo(ctx context.Context, userID, code string) (*order.Order, error) {
	ctx, span := c.start(ctx, "Cart.ApplyPromo", userID)
	defer span.End()

	o, err := c.inner.ApplyPromo(ctx, userID, code)
	if err != nil {
		return nil, c.fail(ctx, span, "apply_promo", err)
	}
	c.promos.Add(ctx, 1)
	c.annotate(span, o)
	zctx.From(ctx).Info("Promo applied",
		zap.String("order_id", o.ID),
		zap.String("promo_id", o.PromoID),
		zap.String("total", o.Total.StringFixed(2)),
	)
	return o, nil
}

func (c *Cart) Confirm(ctx context.Context, userID string) (*order.Order, error) {
	ctx, span := c.start(ctx, "Cart.Confirm", userID)
	defer span.End()

	o, err := c.inner.Confirm(ctx, userID)
	if err != nil {
		return nil, c.fail(ctx, span, "confirm", err)
	}
	c.confirmed.Add(ctx, 1)
	c.annotate(span, o)
	zctx.From(ctx).Info("Order confirmed",
		zap.String("order_id", o.ID),
		zap.String("user_id", userID),
		zap.String("total", o.Total.StringFixed(2)),
	)
	return o, nil
}

func (c *Cart) Clear(ctx context.Context, userID string) (*order.Order, error) {
	ctx, span := c.start(ctx, "Cart.Clear", userID)
	defer span.End()

	o, err := c.inner.Clear(ctx, userID)
	if err != nil {
		return nil, c.fail(ctx, span, "clear", err)
	}
	c.annotate(span, o)
	return o, nil
}

func (c *Cart) ListConfirmed(ctx context.Context, userID string) ([]order.Order, error) {
	ctx, span := c.start(ctx, "Cart.ListConfirmed", userID)
	defer span.End()

	orders, err := c.inner.ListConfirmed(ctx, userID)
	if err != nil {
		return nil, c.fail(ctx, span, "list_confirmed", err)
	}
	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return orders, nil
}

func (c *Cart) start(ctx context.Context, name, userID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("user.id", userID))
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (c *Cart) annotate(span trace.Span, o *order.Order) {
	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.String("order.status", string(o.Status)),
		attribute.Int("order.items", len(o.Items)),
		attribute.Int64("order.version", o.Version),
	)
}

// fail records err on the span and counters. Expected domain failures are
// logged at debug level; only internal errors mark the span as failed.
func (c *Cart) fail(ctx context.Context, span trace.Span, op string, err error) error {
	kind := apperr.KindOf(err)
	c.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("kind", kind.String()),
	))
	span.SetAttributes(attribute.String("error.kind", kind.String()))

	lg := zctx.From(ctx)
	if kind == apperr.KindInternal {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		lg.Error("Cart operation failed", zap.String("op", op), zap.Error(err))
		return err
	}
	lg.Debug("Cart operation rejected", zap.String("op", op), zap.Stringer("kind", kind), zap.Error(err))
	return err
}
