package auth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orionlabs/orion-go/internal/config"
	"github.com/orionlabs/orion-go/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestService(t *testing.T, enabled bool) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), newTestStore(t), config.AuthConfig{
		Enabled:      enabled,
		Secret:       "test-secret",
		TokenTTLDays: 1,
	})
	require.NoError(t, err)
	return svc
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-password")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret-password", hash)
	require.True(t, CheckPassword(hash, "s3cret-password"))
	require.False(t, CheckPassword(hash, "wrong"))
}

func TestRegisterLoginVerify(t *testing.T) {
	svc := newTestService(t, true)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret-password")
	require.NoError(t, err)
	require.Equal(t, "alice", user.Username)

	_, err = svc.Register(ctx, "alice", "other@example.com", "whatever-pass")
	require.ErrorIs(t, err, ErrUserExists)

	token, got, err := svc.Login(ctx, "alice", "s3cret-password")
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
	require.NotEmpty(t, token)

	userID, err := svc.Verify(token)
	require.NoError(t, err)
	require.Equal(t, user.ID, userID)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t, true)
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret-password")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "alice", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody", "s3cret-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyRejectsGarbageAndForeignTokens(t *testing.T) {
	svc := newTestService(t, true)

	_, err := svc.Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)

	other := newTestService(t, true)
	_, err = other.Register(context.Background(), "eve", "eve@example.com", "s3cret-password")
	require.NoError(t, err)
	token, _, err := other.Login(context.Background(), "eve", "s3cret-password")
	require.NoError(t, err)

	otherSecret, err := NewService(context.Background(), newTestStore(t), config.AuthConfig{
		Enabled: true, Secret: "different-secret", TokenTTLDays: 1,
	})
	require.NoError(t, err)
	_, err = otherSecret.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAnonymousMode(t *testing.T) {
	svc := newTestService(t, false)
	require.False(t, svc.Enabled())
	require.NotZero(t, svc.AnonymousID())
}
