package promo

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Service implements administrative promo management. Authorization is the
// caller's concern.
type Service struct {
	promos Repository
	now    func() time.Time
}

// NewService creates a promo Service backed by the given Repository.
func NewService(promos Repository) *Service {
	return &Service{promos: promos, now: time.Now}
}

// Create validates and stores a new available promo.
func (s *Service) Create(ctx context.Context, code string, discountPercent int) (*Promo, error) {
	if err := ValidateCode(code); err != nil {
		return nil, err
	}
	if err := ValidatePercent(discountPercent); err != nil {
		return nil, err
	}

	p := &Promo{
		ID:              uuid.New().String(),
		Code:            code,
		DiscountPercent: discountPercent,
		Available:       true,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.promos.Create(ctx, p); err != nil {
		if errors.Is(err, ErrCodeExists) {
			return nil, err
		}
		return nil, errors.Wrap(err, "create promo")
	}
	return p, nil
}

// Delete removes the promo with the given id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	if err := s.promos.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return errors.Wrap(err, "delete promo")
	}
	return nil
}

// List returns every promo. An empty catalog is reported as ErrNotFound.
func (s *Service) List(ctx context.Context) ([]Promo, error) {
	promos, err := s.promos.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list promos")
	}
	if len(promos) == 0 {
		return nil, ErrNotFound
	}
	return promos, nil
}
