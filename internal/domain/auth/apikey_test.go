package auth

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockKeyRepo struct {
	byHash map[string]*APIKeyInfo
	err    error
}

func (m *mockKeyRepo) FindByHash(_ context.Context, hash string) (*APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	info, ok := m.byHash[hash]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return info, nil
}

func TestAuthenticator(t *testing.T) {
	pepper := []byte("pepper")
	cartHash := HashKey("cart-key", pepper)
	adminHash := HashKey("admin-key", pepper)

	repo := &mockKeyRepo{byHash: map[string]*APIKeyInfo{
		cartHash:  {ID: "k1", KeyHash: cartHash, Name: "storefront", Scopes: []string{ScopeCart}},
		adminHash: {ID: "k2", KeyHash: adminHash, Name: "backoffice", Scopes: []string{ScopeCart, ScopeAdmin}},
	}}
	a := NewAuthenticator(repo, pepper)
	ctx := context.Background()

	tests := []struct {
		name    string
		key     string
		scope   string
		wantID  string
		wantErr error
	}{
		{name: "cart key for cart", key: "cart-key", scope: ScopeCart, wantID: "k1"},
		{name: "admin key for admin", key: "admin-key", scope: ScopeAdmin, wantID: "k2"},
		{name: "admin key for cart", key: "admin-key", scope: ScopeCart, wantID: "k2"},
		{name: "cart key for admin", key: "cart-key", scope: ScopeAdmin, wantErr: ErrForbidden},
		{name: "unknown key", key: "nope", scope: ScopeCart, wantErr: ErrUnauthorized},
		{name: "empty key", key: "", scope: ScopeCart, wantErr: ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := a.Authenticate(ctx, tt.key, tt.scope)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, info.ID)
		})
	}
}

func TestAuthenticator_WrongPepper(t *testing.T) {
	hash := HashKey("key", []byte("a"))
	repo := &mockKeyRepo{byHash: map[string]*APIKeyInfo{
		hash: {ID: "k1", KeyHash: hash, Scopes: []string{ScopeCart}},
	}}

	_, err := NewAuthenticator(repo, []byte("b")).Authenticate(context.Background(), "key", ScopeCart)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticator_StoredHashMismatch(t *testing.T) {
	pepper := []byte("p")
	hash := HashKey("key", pepper)
	repo := &mockKeyRepo{byHash: map[string]*APIKeyInfo{
		hash: {ID: "k1", KeyHash: "not-hex", Scopes: []string{ScopeCart}},
	}}

	_, err := NewAuthenticator(repo, pepper).Authenticate(context.Background(), "key", ScopeCart)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticator_RepositoryError(t *testing.T) {
	repo := &mockKeyRepo{err: errors.New("db down")}

	_, err := NewAuthenticator(repo, nil).Authenticate(context.Background(), "key", ScopeCart)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}
