package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-orders/internal/domain/promo"
)

const (
	promoColumns = `id, code, discount_percent, is_available, created_at`

	// The row is returned as it was before the flip, so is_available is
	// always true here.
	consumePromoSQL = `UPDATE promos SET is_available = FALSE
	WHERE code = $1 AND is_available
	RETURNING id, code, discount_percent, TRUE, created_at`

	getPromoByCodeSQL = `SELECT ` + promoColumns + ` FROM promos WHERE code = $1`

	listPromosSQL = `SELECT ` + promoColumns + ` FROM promos ORDER BY created_at, code`

	createPromoSQL = `INSERT INTO promos (` + promoColumns + `) VALUES ($1, $2, $3, $4, $5)`

	insertPromoIfAbsentSQL = `INSERT INTO promos (` + promoColumns + `) VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (code) DO NOTHING`

	deletePromoSQL = `DELETE FROM promos WHERE id = $1`
)

var _ promo.Repository = (*PromoRepository)(nil)

// PromoRepository implements promo.Repository backed by PostgreSQL.
type PromoRepository struct {
	pool *pgxpool.Pool
}

// NewPromoRepository returns a PromoRepository that uses the given pool.
func NewPromoRepository(pool *pgxpool.Pool) *PromoRepository {
	return &PromoRepository{pool: pool}
}

// Consume flips an available promo to unavailable in a single conditional
// UPDATE, so two concurrent callers can never both succeed.
func (r *PromoRepository) Consume(ctx context.Context, code string) (*promo.Promo, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, consumePromoSQL, code)
	if err != nil {
		return nil, fmt.Errorf("consuming promo %q: %w", code, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("consuming promo %q: %w", code, err)
	}
	return &p, nil
}

// GetByCode looks up a promo by its exact, case-sensitive code.
func (r *PromoRepository) GetByCode(ctx context.Context, code string) (*promo.Promo, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getPromoByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("getting promo %q: %w", code, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanPromo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promo.ErrNotFound
		}
		return nil, fmt.Errorf("getting promo %q: %w", code, err)
	}
	return &p, nil
}

// Create inserts a new promo, mapping a duplicate code to
// promo.ErrCodeExists.
func (r *PromoRepository) Create(ctx context.Context, p *promo.Promo) error {
	_, err := conn(ctx, r.pool).Exec(ctx, createPromoSQL,
		p.ID, p.Code, p.DiscountPercent, p.Available, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return promo.ErrCodeExists
		}
		return fmt.Errorf("creating promo %q: %w", p.Code, err)
	}
	return nil
}

// InsertMany inserts promos in one batch, skipping codes that already
// exist. It returns the number of rows actually inserted.
func (r *PromoRepository) InsertMany(ctx context.Context, promos []promo.Promo) (int64, error) {
	if len(promos) == 0 {
		return 0, nil
	}

	b := &pgx.Batch{}
	for _, p := range promos {
		b.Queue(insertPromoIfAbsentSQL, p.ID, p.Code, p.DiscountPercent, p.Available, p.CreatedAt)
	}

	br := conn(ctx, r.pool).SendBatch(ctx, b)
	defer func() { _ = br.Close() }()

	var inserted int64
	for _, p := range promos {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("inserting promo %q: %w", p.Code, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// Delete removes a promo by id. Orders that referenced it keep their totals.
func (r *PromoRepository) Delete(ctx context.Context, id string) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, deletePromoSQL, id)
	if err != nil {
		return fmt.Errorf("deleting promo %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promo.ErrNotFound
	}
	return nil
}

// List returns every promo ordered by creation time.
func (r *PromoRepository) List(ctx context.Context) ([]promo.Promo, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, listPromosSQL)
	if err != nil {
		return nil, fmt.Errorf("listing promos: %w", err)
	}
	return pgx.CollectRows(rows, scanPromo)
}

func scanPromo(row pgx.CollectableRow) (promo.Promo, error) {
	var (
		p       promo.Promo
		percent int32
	)
	err := row.Scan(&p.ID, &p.Code, &percent, &p.Available, &p.CreatedAt)
	p.DiscountPercent = int(percent)
	return p, err
}
