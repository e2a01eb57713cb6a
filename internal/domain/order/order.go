package order

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/apperr"
	"github.com/xenking/kart-orders/internal/domain/promo"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	// StatusCanceled is never produced by the service. It is kept so that
	// stored orders can be expired by an external sweep.
	StatusCanceled Status = "CANCELED"
)

// Mutable reports whether an order in this status accepts cart changes.
func (s Status) Mutable() bool {
	return s == StatusPending
}

// Action is a cart line mutation.
type Action int

const (
	ActionAdd Action = iota + 1
	ActionRemove
	ActionRemoveAll
	ActionSet
)

func (a Action) String() string {
	switch a {
	case ActionAdd:
		return "add"
	case ActionRemove:
		return "remove"
	case ActionRemoveAll:
		return "remove_all"
	case ActionSet:
		return "set"
	default:
		return "unknown"
	}
}

// ParseAction converts the wire name of an action into an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "add":
		return ActionAdd, nil
	case "remove":
		return ActionRemove, nil
	case "remove_all":
		return ActionRemoveAll, nil
	case "set":
		return ActionSet, nil
	default:
		return 0, apperr.Validation("action", "unknown action "+s)
	}
}

// Order is a user's cart while PENDING and a frozen purchase afterwards.
type Order struct {
	ID     string
	UserID string
	Status Status
	Total  decimal.Decimal
	// PromoID references the most recently applied promo. Empty when none.
	PromoID string
	// DiscountFactor is the product of the multipliers of every promo
	// applied since the cart was created or last cleared.
	DiscountFactor decimal.Decimal
	Version        int64
	Items          []Item
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ConfirmedAt    *time.Time
}

// Item is a single cart line. Quantity is always positive once stored.
type Item struct {
	ID        string
	ProductID string
	Quantity  int
}

// HasPromo reports whether a promo has been applied.
func (o *Order) HasPromo() bool {
	return o.PromoID != ""
}

// Store defines persistence operations for orders and their items.
type Store interface {
	// GetPending returns the user's PENDING order with items, or
	// ErrCartNotFound.
	GetPending(ctx context.Context, userID string) (*Order, error)
	// Get returns an order by id, or ErrCartNotFound.
	Get(ctx context.Context, id string) (*Order, error)
	// CreatePending inserts o unless the user already has a PENDING order,
	// in which case it reports false.
	CreatePending(ctx context.Context, o *Order) (bool, error)
	// Update writes the header fields of o if the stored version equals
	// o.Version and the stored status is PENDING. On success o.Version is
	// incremented. Returns ErrVersionMismatch otherwise.
	Update(ctx context.Context, o *Order) error
	// ReplaceItems deletes every line of the order and inserts items in
	// order.
	ReplaceItems(ctx context.Context, orderID string, items []Item) error
	// ListConfirmed returns the user's CONFIRMED orders, newest first.
	ListConfirmed(ctx context.Context, userID string) ([]Order, error)
}

// Transactor runs fn in a single persistence transaction carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PromoConsumer atomically consumes single-use promos.
type PromoConsumer interface {
	Consume(ctx context.Context, code string) (*promo.Promo, error)
}

// EventSink receives lifecycle events inside the order transaction.
type EventSink interface {
	OrderConfirmed(ctx context.Context, o *Order) error
}

// ConfirmedCache caches a user's confirmed orders. Implementations must
// not fail the caller; a miss is reported with ok == false.
//
// Every entry is guarded by a generation that InvalidateConfirmed advances.
// GetConfirmed reports the current generation even on a miss, and
// SetConfirmed stores nothing unless the generation is still gen, so a list
// read before an invalidation can never be cached after it.
type ConfirmedCache interface {
	GetConfirmed(ctx context.Context, userID string) (orders []Order, gen int64, ok bool)
	SetConfirmed(ctx context.Context, userID string, gen int64, orders []Order)
	InvalidateConfirmed(ctx context.Context, userID string)
}
