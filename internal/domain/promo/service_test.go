package promo

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/kart-orders/internal/domain/apperr"
)

type mockPromoRepo struct {
	byCode    map[string]*Promo
	createErr error
	listErr   error
}

func newPromoRepo(promos ...Promo) *mockPromoRepo {
	m := &mockPromoRepo{byCode: make(map[string]*Promo)}
	for i := range promos {
		m.byCode[promos[i].Code] = &promos[i]
	}
	return m
}

func (m *mockPromoRepo) Consume(_ context.Context, code string) (*Promo, error) {
	p, ok := m.byCode[code]
	if !ok || !p.Available {
		return nil, ErrNotFound
	}
	before := *p
	p.Available = false
	return &before, nil
}

func (m *mockPromoRepo) GetByCode(_ context.Context, code string) (*Promo, error) {
	p, ok := m.byCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockPromoRepo) Create(_ context.Context, p *Promo) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.byCode[p.Code]; ok {
		return ErrCodeExists
	}
	m.byCode[p.Code] = p
	return nil
}

func (m *mockPromoRepo) Delete(_ context.Context, id string) error {
	for code, p := range m.byCode {
		if p.ID == id {
			delete(m.byCode, code)
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockPromoRepo) List(_ context.Context) ([]Promo, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]Promo, 0, len(m.byCode))
	for _, p := range m.byCode {
		out = append(out, *p)
	}
	return out, nil
}

func TestService_Create(t *testing.T) {
	fixedNow := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		code    string
		percent int
		wantErr error
	}{
		{name: "valid promo", code: "SPRING20", percent: 20},
		{name: "full discount", code: "FREE", percent: 100},
		{name: "empty code", code: "", percent: 10, wantErr: apperr.ErrValidation},
		{name: "code too long", code: strings.Repeat("A", 21), percent: 10, wantErr: apperr.ErrValidation},
		{name: "padded code", code: " SPRING ", percent: 10, wantErr: apperr.ErrValidation},
		{name: "zero percent", code: "ZERO", percent: 0, wantErr: apperr.ErrValidation},
		{name: "over hundred", code: "TOOMUCH", percent: 101, wantErr: apperr.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newPromoRepo())
			svc.now = func() time.Time { return fixedNow }

			p, err := svc.Create(context.Background(), tt.code, tt.percent)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, p.ID)
			assert.Equal(t, tt.code, p.Code)
			assert.Equal(t, tt.percent, p.DiscountPercent)
			assert.True(t, p.Available)
			assert.Equal(t, fixedNow, p.CreatedAt)
		})
	}
}

func TestService_CreateDuplicate(t *testing.T) {
	svc := NewService(newPromoRepo(Promo{ID: "p1", Code: "SAVE10", DiscountPercent: 10, Available: true}))

	_, err := svc.Create(context.Background(), "SAVE10", 15)
	require.ErrorIs(t, err, ErrCodeExists)
	assert.Equal(t, apperr.KindAlreadyExists, apperr.KindOf(err))
}

func TestService_CreateCaseSensitive(t *testing.T) {
	svc := NewService(newPromoRepo(Promo{ID: "p1", Code: "SAVE10", DiscountPercent: 10, Available: true}))

	_, err := svc.Create(context.Background(), "save10", 10)
	require.NoError(t, err)
}

func TestService_CreateStorageError(t *testing.T) {
	repo := newPromoRepo()
	repo.createErr = errors.New("connection reset")
	svc := NewService(repo)

	_, err := svc.Create(context.Background(), "OK", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create promo")
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestService_Delete(t *testing.T) {
	svc := NewService(newPromoRepo(Promo{ID: "p1", Code: "SAVE10", DiscountPercent: 10}))

	require.NoError(t, svc.Delete(context.Background(), "p1"))
	require.ErrorIs(t, svc.Delete(context.Background(), "p1"), ErrNotFound)
	require.ErrorIs(t, svc.Delete(context.Background(), ""), apperr.ErrNotFound)
}

func TestService_List(t *testing.T) {
	t.Run("empty is not found", func(t *testing.T) {
		svc := NewService(newPromoRepo())

		_, err := svc.List(context.Background())
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("returns promos", func(t *testing.T) {
		svc := NewService(newPromoRepo(
			Promo{ID: "p1", Code: "A", DiscountPercent: 10},
			Promo{ID: "p2", Code: "B", DiscountPercent: 20},
		))

		promos, err := svc.List(context.Background())
		require.NoError(t, err)
		assert.Len(t, promos, 2)
	})
}

func TestPromo_Multiplier(t *testing.T) {
	tests := []struct {
		percent int
		want    string
	}{
		{percent: 20, want: "0.8"},
		{percent: 1, want: "0.99"},
		{percent: 100, want: "0"},
		{percent: 33, want: "0.67"},
	}

	for _, tt := range tests {
		got := Promo{DiscountPercent: tt.percent}.Multiplier()
		assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "percent %d: got %s", tt.percent, got)
	}
}
