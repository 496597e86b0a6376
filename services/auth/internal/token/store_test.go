package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedToken(value string, expiresAt time.Time) *IssuedToken {
	now := time.Now()
	return &IssuedToken{
		TokenValue:    value,
		PrincipalName: "core-service",
		GrantType:     GrantClientCredentials,
		Scopes:        []string{"internal"},
		IssuedAt:      now,
		ExpiresAt:     expiresAt,
	}
}

func TestMemoryStoreSaveFind(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, seedToken("tok-1", time.Now().Add(time.Hour))))

	found, err := store.Find(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "core-service", found.PrincipalName)
	assert.Equal(t, []string{"internal"}, found.Scopes)

	missing, err := store.Find(ctx, "tok-unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStoreRemove(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, seedToken("tok-1", time.Now().Add(time.Hour))))
	require.NoError(t, store.Remove(ctx, "tok-1"))

	found, err := store.Find(ctx, "tok-1")
	require.NoError(t, err)
	assert.Nil(t, found)

	// 删除不存在的令牌不报错
	require.NoError(t, store.Remove(ctx, "tok-1"))
}

func TestMemoryStoreSweepExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, seedToken("live", now.Add(time.Hour))))
	require.NoError(t, store.Save(ctx, seedToken("dead-1", now.Add(-time.Minute))))
	require.NoError(t, store.Save(ctx, seedToken("dead-2", now.Add(-time.Hour))))

	swept, err := store.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, swept)
	assert.Equal(t, 1, store.Count())

	found, err := store.Find(ctx, "live")
	require.NoError(t, err)
	assert.NotNil(t, found)
}

func TestIssuedTokenExpired(t *testing.T) {
	now := time.Now()
	tok := seedToken("tok", now.Add(time.Minute))

	assert.False(t, tok.Expired(now))
	assert.True(t, tok.Expired(now.Add(2*time.Minute)))
}
