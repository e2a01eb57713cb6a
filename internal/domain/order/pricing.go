package order

import (
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-orders/internal/domain/apperr"
	"github.com/xenking/kart-orders/internal/domain/product"
)

const (
	// moneyPlaces is the number of decimal places persisted for totals.
	moneyPlaces = 2
	// MaxQuantity is the largest quantity a cart line can hold.
	MaxQuantity = math.MaxInt32
)

var (
	one = decimal.NewFromInt(1)
	// maxTotal is the first amount that no longer fits the persisted total.
	maxTotal = decimal.New(1, 10)
)

// validateQuantity checks quantity against the rules of action.
// Add and Remove need a positive delta, Set accepts zero to drop the line,
// RemoveAll ignores the quantity entirely. No quantity may exceed
// MaxQuantity.
func validateQuantity(action Action, quantity int) error {
	switch action {
	case ActionAdd, ActionRemove:
		if quantity < 1 || quantity > MaxQuantity {
			return &QuantityError{Action: action, Quantity: quantity}
		}
	case ActionSet:
		if quantity < 0 || quantity > MaxQuantity {
			return &QuantityError{Action: action, Quantity: quantity}
		}
	case ActionRemoveAll:
	default:
		return &QuantityError{Action: action, Quantity: quantity}
	}
	return nil
}

// applyAction returns the item list that results from applying action to
// the line for productID. Lines that reach zero are dropped; the input slice
// is not modified. Remove and RemoveAll on a product without a line fail
// with *ProductNotFoundError, an Add that would grow the line past
// MaxQuantity with *QuantityError.
func applyAction(items []Item, productID string, action Action, quantity int) ([]Item, error) {
	out := make([]Item, 0, len(items)+1)
	found := false

	for _, it := range items {
		if it.ProductID != productID {
			out = append(out, it)
			continue
		}
		found = true

		switch action {
		case ActionAdd:
			if it.Quantity > MaxQuantity-quantity {
				return nil, &QuantityError{Action: action, Quantity: quantity}
			}
			it.Quantity += quantity
		case ActionRemove:
			it.Quantity = max(0, it.Quantity-quantity)
		case ActionRemoveAll:
			it.Quantity = 0
		case ActionSet:
			it.Quantity = max(0, quantity)
		}
		if it.Quantity > 0 {
			out = append(out, it)
		}
	}

	if found {
		return out, nil
	}

	switch action {
	case ActionRemove, ActionRemoveAll:
		return nil, &ProductNotFoundError{ProductID: productID}
	case ActionAdd, ActionSet:
		if quantity > 0 {
			out = append(out, Item{
				ID:        uuid.New().String(),
				ProductID: productID,
				Quantity:  quantity,
			})
		}
	}
	return out, nil
}

// productIDs returns the distinct product ids of items in line order.
func productIDs(items []Item) []string {
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}
	return ids
}

// priceItems returns the discounted total of items at the prices in
// catalog: the exact subtotal times factor, rounded once. Every total the
// service persists goes through here. Every line must have a catalog entry;
// the first missing one is reported as *ProductNotFoundError.
func priceItems(items []Item, catalog []product.Product, factor decimal.Decimal) (decimal.Decimal, error) {
	prices := make(map[string]decimal.Decimal, len(catalog))
	for _, p := range catalog {
		prices[p.ID] = p.Price
	}

	subtotal := decimal.Zero
	for _, it := range items {
		price, ok := prices[it.ProductID]
		if !ok {
			return decimal.Zero, &ProductNotFoundError{ProductID: it.ProductID}
		}
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	total := roundMoney(subtotal.Mul(factor))
	if total.GreaterThanOrEqual(maxTotal) {
		return decimal.Zero, apperr.Validation("quantity", "cart total exceeds the maximum order amount")
	}
	return total, nil
}

func roundMoney(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d.Round(moneyPlaces)
}
