package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	users map[string]*User
	shops map[string]*Shop
}

func (m *mockRepo) GetUser(_ context.Context, id string) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *mockRepo) GetUserForUpdate(ctx context.Context, id string) (*User, error) {
	return m.GetUser(ctx, id)
}

func (m *mockRepo) SetPicked(_ context.Context, _ string, _ bool) error { return nil }

func (m *mockRepo) GetShop(_ context.Context, id string) (*Shop, error) {
	for _, s := range m.shops {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, ErrShopNotFound
}

func (m *mockRepo) FindActiveShopByOwner(_ context.Context, ownerID string) (*Shop, error) {
	s, ok := m.shops[ownerID]
	if !ok || !s.IsActive {
		return nil, ErrShopInactive
	}
	return s, nil
}

func TestActiveShopOf(t *testing.T) {
	repo := &mockRepo{
		users: map[string]*User{
			"owner":    {ID: "owner", IsActive: true, HasShop: true},
			"inactive": {ID: "inactive", IsActive: false, HasShop: true},
			"noshop":   {ID: "noshop", IsActive: true},
			"closed":   {ID: "closed", IsActive: true, HasShop: true},
		},
		shops: map[string]*Shop{
			"owner":  {ID: "s1", OwnerID: "owner", IsActive: true},
			"closed": {ID: "s2", OwnerID: "closed", IsActive: false},
		},
	}

	tests := []struct {
		user    string
		wantErr error
	}{
		{user: "missing", wantErr: ErrUserNotFound},
		{user: "inactive", wantErr: ErrUserInactive},
		{user: "noshop", wantErr: ErrNoShop},
		{user: "closed", wantErr: ErrShopInactive},
	}
	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			_, err := ActiveShopOf(context.Background(), repo, tt.user)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	shop, err := ActiveShopOf(context.Background(), repo, "owner")
	require.NoError(t, err)
	assert.Equal(t, "s1", shop.ID)
}
