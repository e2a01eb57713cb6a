package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-orders/internal/domain/order"
)

const (
	orderColumns = `id, user_id, status, total_amount, promo_id, discount_factor,
	version, created_at, updated_at, confirmed_at`

	getPendingOrderSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE user_id = $1 AND status = 'PENDING'`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listConfirmedOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE user_id = $1 AND status = 'CONFIRMED'
	ORDER BY confirmed_at DESC, created_at DESC`

	// The conflict target matches the partial unique index on pending carts.
	createPendingOrderSQL = `INSERT INTO orders (id, user_id, status, total_amount, promo_id,
	discount_factor, version, created_at, updated_at)
	VALUES ($1, $2, 'PENDING', $3, NULL, $4, $5, $6, $6)
	ON CONFLICT (user_id) WHERE status = 'PENDING' DO NOTHING`

	updateOrderSQL = `UPDATE orders
	SET status = $3, total_amount = $4, promo_id = $5, discount_factor = $6,
		confirmed_at = $7, updated_at = $8, version = version + 1
	WHERE id = $1 AND version = $2 AND status = 'PENDING'`

	listItemsSQL = `SELECT order_id, id, product_id, quantity FROM order_items
	WHERE order_id = ANY($1) ORDER BY order_id, position`

	deleteItemsSQL = `DELETE FROM order_items WHERE order_id = $1`

	insertItemSQL = `INSERT INTO order_items (id, order_id, product_id, quantity, position)
	VALUES ($1, $2, $3, $4, $5)`
)

var _ order.Store = (*OrderRepository)(nil)

// OrderRepository implements order.Store backed by PostgreSQL. Orders and
// their items are read together; writes are guarded by the version column.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetPending returns the user's open cart with its items.
func (r *OrderRepository) GetPending(ctx context.Context, userID string) (*order.Order, error) {
	o, err := r.getOne(ctx, getPendingOrderSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("getting pending order for %q: %w", userID, err)
	}
	return o, nil
}

// Get returns an order by id with its items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	o, err := r.getOne(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return o, nil
}

func (r *OrderRepository) getOne(ctx context.Context, sql string, arg string) (*order.Order, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrCartNotFound
		}
		return nil, err
	}

	orders := []order.Order{o}
	if err := r.loadItems(ctx, q, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// CreatePending inserts o as the user's cart. It reports false without error
// when the user already has one.
func (r *OrderRepository) CreatePending(ctx context.Context, o *order.Order) (bool, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, createPendingOrderSQL,
		o.ID, o.UserID, o.Total, o.DiscountFactor, o.Version, o.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Update writes the order header if nobody else has written it since o was
// read and it is still PENDING.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	var promoID *string
	if o.PromoID != "" {
		promoID = &o.PromoID
	}

	tag, err := conn(ctx, r.pool).Exec(ctx, updateOrderSQL,
		o.ID, o.Version, string(o.Status), o.Total, promoID, o.DiscountFactor,
		o.ConfirmedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrVersionMismatch
	}
	o.Version++
	return nil
}

// ReplaceItems swaps the full item set of an order. Callers run it inside
// the same transaction as the header Update.
func (r *OrderRepository) ReplaceItems(ctx context.Context, orderID string, items []order.Item) error {
	q := conn(ctx, r.pool)

	if _, err := q.Exec(ctx, deleteItemsSQL, orderID); err != nil {
		return fmt.Errorf("deleting items of order %q: %w", orderID, err)
	}
	if len(items) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for i, it := range items {
		b.Queue(insertItemSQL, it.ID, orderID, it.ProductID, it.Quantity, i)
	}
	if err := q.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("inserting items of order %q: %w", orderID, err)
	}
	return nil
}

// ListConfirmed returns the user's confirmed orders with items, newest first.
func (r *OrderRepository) ListConfirmed(ctx context.Context, userID string) ([]order.Order, error) {
	q := conn(ctx, r.pool)

	rows, err := q.Query(ctx, listConfirmedOrdersSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing confirmed orders for %q: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing confirmed orders for %q: %w", userID, err)
	}
	if err := r.loadItems(ctx, q, orders); err != nil {
		return nil, fmt.Errorf("listing confirmed orders for %q: %w", userID, err)
	}
	return orders, nil
}

// loadItems fills Items of every order with a single query.
func (r *OrderRepository) loadItems(ctx context.Context, q querier, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := q.Query(ctx, listItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID  string
			it       order.Item
			quantity int32
		)
		if err := rows.Scan(&orderID, &it.ID, &it.ProductID, &quantity); err != nil {
			return fmt.Errorf("scanning item: %w", err)
		}
		it.Quantity = int(quantity)
		i := index[orderID]
		orders[i].Items = append(orders[i].Items, it)
	}
	return rows.Err()
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o       order.Order
		status  string
		promoID *string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &status, &o.Total, &promoID, &o.DiscountFactor,
		&o.Version, &o.CreatedAt, &o.UpdatedAt, &o.ConfirmedAt,
	)
	o.Status = order.Status(status)
	if promoID != nil {
		o.PromoID = *promoID
	}
	return o, err
}
