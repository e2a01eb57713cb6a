package order

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-orders/internal/domain/apperr"
)

var (
	// ErrCartNotFound is returned when the user has no PENDING order.
	ErrCartNotFound = errors.Wrap(apperr.ErrNotFound, "cart")
	// ErrCartEmpty is returned when promo application or confirmation is
	// attempted on a cart without items.
	ErrCartEmpty = errors.Wrap(apperr.ErrNotFound, "cart empty")
	// ErrNoConfirmedOrders is returned when the user has never confirmed
	// an order.
	ErrNoConfirmedOrders = errors.Wrap(apperr.ErrNotFound, "confirmed orders")
	// ErrConcurrentUpdate is returned when another request changed the
	// cart between read and write.
	ErrConcurrentUpdate = errors.Wrap(apperr.ErrConflict, "cart was modified concurrently")
	// ErrVersionMismatch is returned by Store.Update when the conditional
	// write matched no row.
	ErrVersionMismatch = errors.New("order version mismatch")
)

// ProductNotFoundError indicates a product that does not exist, is
// inactive, or is not a line of the cart.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == apperr.ErrNotFound
}

// StatusError indicates an operation on an order that is no longer PENDING.
type StatusError struct {
	OrderID string
	Status  Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("order %s is not modifiable: status %s", e.OrderID, e.Status)
}

func (e *StatusError) Is(target error) bool {
	return target == apperr.ErrInvalidState
}

// QuantityError indicates a quantity outside the range allowed by the action.
type QuantityError struct {
	Action   Action
	Quantity int
}

func (e *QuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %d for %s", e.Quantity, e.Action)
}

func (e *QuantityError) Is(target error) bool {
	return target == apperr.ErrValidation
}
