package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/apperr"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/internal/domain/promo"
)

// Cart is the cart and order API consumed by transports.
type Cart interface {
	EnsureCart(ctx context.Context, userID string) (*Order, error)
	ModifyItem(ctx context.Context, userID, productID string, action Action, quantity int) (*Order, error)
	ApplyPromo(ctx context.Context, userID, code string) (*Order, error)
	Confirm(ctx context.Context, userID string) (*Order, error)
	Clear(ctx context.Context, userID string) (*Order, error)
	ListConfirmed(ctx context.Context, userID string) ([]Order, error)
}

var _ Cart = (*Service)(nil)

// Service is the single authority for cart mutation, pricing, promo
// application and confirmation. Every call runs in one transaction.
type Service struct {
	tx       Transactor
	products product.Repository
	promos   PromoConsumer
	orders   Store
	events   EventSink
	cache    ConfirmedCache
	now      func() time.Time
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithEvents publishes lifecycle events to sink inside the transaction.
func WithEvents(sink EventSink) Option {
	return func(s *Service) {
		s.events = sink
	}
}

// WithCache serves ListConfirmed through c.
func WithCache(c ConfirmedCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	tx Transactor,
	products product.Repository,
	promos PromoConsumer,
	orders Store,
	opts ...Option,
) *Service {
	s := &Service{
		tx:       tx,
		products: products,
		promos:   promos,
		orders:   orders,
		events:   nopEvents{},
		cache:    nopCache{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureCart returns the user's PENDING order, creating an empty one if the
// user has none. Concurrent callers converge on the same order.
func (s *Service) EnsureCart(ctx context.Context, userID string) (*Order, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}

	var cart *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		cart, err = s.ensurePending(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// ModifyItem applies action to the cart line for productID, reprices the
// whole cart from current catalog prices and persists the full item set.
func (s *Service) ModifyItem(ctx context.Context, userID, productID string, action Action, quantity int) (*Order, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	if productID == "" {
		return nil, apperr.Validation("product_id", "must not be empty")
	}
	if err := validateQuantity(action, quantity); err != nil {
		return nil, err
	}

	var cart *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		cart, err = s.ensurePending(ctx, userID)
		if err != nil {
			return err
		}

		if action == ActionAdd || action == ActionSet {
			p, err := s.products.GetByID(ctx, productID)
			if err != nil {
				if errors.Is(err, product.ErrNotFound) {
					return &ProductNotFoundError{ProductID: productID}
				}
				return errors.Wrap(err, "get product")
			}
			if !p.Active {
				return &ProductNotFoundError{ProductID: productID}
			}
		}

		items, err := applyAction(cart.Items, productID, action, quantity)
		if err != nil {
			return err
		}

		total, err := s.reprice(ctx, items, cart.DiscountFactor)
		if err != nil {
			return err
		}

		cart.Total = total
		if err := s.update(ctx, cart); err != nil {
			return err
		}
		if err := s.orders.ReplaceItems(ctx, cart.ID, items); err != nil {
			return errors.Wrap(err, "replace items")
		}
		cart.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// ApplyPromo consumes the promo identified by code and discounts the cart
// by its percentage. Applying a second promo compounds: the total becomes the
// item subtotal times the product of every applied multiplier, priced the
// same way ModifyItem prices it.
func (s *Service) ApplyPromo(ctx context.Context, userID, code string) (*Order, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}
	if code == "" {
		return nil, promo.ErrNotFound
	}

	var cart *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		cart, err = s.nonEmptyPending(ctx, userID)
		if err != nil {
			return err
		}

		p, err := s.promos.Consume(ctx, code)
		if err != nil {
			if errors.Is(err, promo.ErrNotFound) {
				return promo.ErrNotFound
			}
			return errors.Wrap(err, "consume promo")
		}

		factor := cart.DiscountFactor.Mul(p.Multiplier())
		total, err := s.reprice(ctx, cart.Items, factor)
		if err != nil {
			return err
		}
		cart.Total = total
		cart.DiscountFactor = factor
		cart.PromoID = p.ID
		return s.update(ctx, cart)
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// Confirm freezes the user's non-empty cart as a CONFIRMED order.
func (s *Service) Confirm(ctx context.Context, userID string) (*Order, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}

	var cart *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		cart, err = s.nonEmptyPending(ctx, userID)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		cart.Status = StatusConfirmed
		cart.ConfirmedAt = &now
		if err := s.update(ctx, cart); err != nil {
			return err
		}
		if err := s.events.OrderConfirmed(ctx, cart); err != nil {
			return errors.Wrap(err, "record order confirmed event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.InvalidateConfirmed(ctx, userID)
	return cart, nil
}

// Clear removes every line of the user's cart and resets the total and
// promo. The status is unchanged.
func (s *Service) Clear(ctx context.Context, userID string) (*Order, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}

	var cart *Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		cart, err = s.pending(ctx, userID)
		if err != nil {
			return err
		}

		cart.Total = decimal.Zero
		cart.PromoID = ""
		cart.DiscountFactor = one
		if err := s.update(ctx, cart); err != nil {
			return err
		}
		if err := s.orders.ReplaceItems(ctx, cart.ID, nil); err != nil {
			return errors.Wrap(err, "delete items")
		}
		cart.Items = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// ListConfirmed returns the user's confirmed orders, newest first. A user
// without any is reported as ErrNoConfirmedOrders.
func (s *Service) ListConfirmed(ctx context.Context, userID string) ([]Order, error) {
	if err := validateUser(userID); err != nil {
		return nil, err
	}

	cached, gen, ok := s.cache.GetConfirmed(ctx, userID)
	if ok && len(cached) > 0 {
		return cached, nil
	}

	orders, err := s.orders.ListConfirmed(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list confirmed orders")
	}
	if len(orders) == 0 {
		return nil, ErrNoConfirmedOrders
	}

	s.cache.SetConfirmed(ctx, userID, gen, orders)
	return orders, nil
}

func (s *Service) ensurePending(ctx context.Context, userID string) (*Order, error) {
	cart, err := s.orders.GetPending(ctx, userID)
	switch {
	case err == nil:
		return cart, nil
	case !errors.Is(err, ErrCartNotFound):
		return nil, errors.Wrap(err, "get pending order")
	}

	now := s.now().UTC()
	cart = &Order{
		ID:             uuid.New().String(),
		UserID:         userID,
		Status:         StatusPending,
		Total:          decimal.Zero,
		DiscountFactor: one,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created, err := s.orders.CreatePending(ctx, cart)
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	if created {
		return cart, nil
	}

	// Another request created the cart first.
	cart, err = s.orders.GetPending(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "get pending order")
	}
	return cart, nil
}

func (s *Service) pending(ctx context.Context, userID string) (*Order, error) {
	cart, err := s.orders.GetPending(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return nil, ErrCartNotFound
		}
		return nil, errors.Wrap(err, "get pending order")
	}
	return cart, nil
}

func (s *Service) nonEmptyPending(ctx context.Context, userID string) (*Order, error) {
	cart, err := s.pending(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return nil, ErrCartEmpty
		}
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, ErrCartEmpty
	}
	return cart, nil
}

// reprice returns the total of items at current catalog prices discounted
// by factor.
func (s *Service) reprice(ctx context.Context, items []Item, factor decimal.Decimal) (decimal.Decimal, error) {
	if len(items) == 0 {
		return decimal.Zero, nil
	}
	catalog, err := s.products.GetByIDs(ctx, productIDs(items))
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "get products")
	}
	return priceItems(items, catalog, factor)
}

// update persists the cart header. A lost conditional write is resolved by
// reloading the order: a status change wins as *StatusError, anything else
// is a concurrent modification.
func (s *Service) update(ctx context.Context, cart *Order) error {
	cart.UpdatedAt = s.now().UTC()
	err := s.orders.Update(ctx, cart)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrVersionMismatch) {
		return errors.Wrap(err, "update order")
	}

	current, gerr := s.orders.Get(ctx, cart.ID)
	if gerr != nil {
		return errors.Wrap(gerr, "reload order")
	}
	if !current.Status.Mutable() {
		return &StatusError{OrderID: current.ID, Status: current.Status}
	}
	return ErrConcurrentUpdate
}

func validateUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperr.Validation("user_id", "must not be empty")
	}
	return nil
}

type nopEvents struct{}

func (nopEvents) OrderConfirmed(context.Context, *Order) error { return nil }

type nopCache struct{}

func (nopCache) GetConfirmed(context.Context, string) ([]Order, int64, bool) { return nil, 0, false }

func (nopCache) SetConfirmed(context.Context, string, int64, []Order) {}

func (nopCache) InvalidateConfirmed(context.Context, string) {}
