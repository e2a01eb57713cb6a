package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/apperr"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.Wrap(apperr.ErrNotFound, "product")

// Product is a read-only view of a catalog item as the cart needs it.
type Product struct {
	ID     string
	Name   string
	Price  decimal.Decimal
	Active bool
}

// Repository defines read operations for the product catalog.
type Repository interface {
	// GetByID returns ErrNotFound when no product has the given id.
	GetByID(ctx context.Context, id string) (*Product, error)
	// GetByIDs returns the products matching ids. Missing ids are silently
	// absent from the result.
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
