package promo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/apperr"
)

var (
	// ErrNotFound is returned when a promo does not exist or has already been
	// consumed. The two cases are deliberately indistinguishable.
	ErrNotFound = errors.Wrap(apperr.ErrNotFound, "promo")
	// ErrCodeExists is returned when creating a promo whose code is taken.
	ErrCodeExists = errors.Wrap(apperr.ErrAlreadyExists, "promo code")
)

const (
	MaxCodeLen     = 20
	MinPercent     = 1
	MaxPercent     = 100
	hundredPercent = 100
)

// Promo is a single-use percentage discount code.
type Promo struct {
	ID              string
	Code            string
	DiscountPercent int
	Available       bool
	CreatedAt       time.Time
}

// Multiplier returns the factor a total is multiplied by when the promo is
// applied, e.g. 0.8 for a 20% promo.
func (p Promo) Multiplier() decimal.Decimal {
	return decimal.NewFromInt(hundredPercent - int64(p.DiscountPercent)).
		Div(decimal.NewFromInt(hundredPercent))
}

// Repository provides promo persistence.
type Repository interface {
	// Consume atomically marks an available promo as used and returns it as
	// it was before the flip. Returns ErrNotFound when the code is unknown or
	// the promo is no longer available.
	Consume(ctx context.Context, code string) (*Promo, error)
	GetByCode(ctx context.Context, code string) (*Promo, error)
	// Create returns ErrCodeExists on a duplicate code.
	Create(ctx context.Context, p *Promo) error
	// Delete returns ErrNotFound when no promo has the given id.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Promo, error)
}
