package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dmarketbot/internal/domain"
)

func newTestCache() (*Cache, *time.Time) {
	c := New(domain.DefaultCacheTTLs())
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestGetMissAndHit(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "resp:/a:k1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "resp:/a:k1", []byte("v"), domain.TierShort))
	v, ok, err := c.Get(ctx, "resp:/a:k1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestExpiredEntryReadsAsMissAndIsDropped(t *testing.T) {
	c, now := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "resp:/a:k1", []byte("v"), domain.TierShort))
	*now = now.Add(31 * time.Second) // TierShort TTL is 30s

	_, ok, err := c.Get(ctx, "resp:/a:k1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTiersHaveDistinctTTLs(t *testing.T) {
	c, now := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("s"), domain.TierShort))
	require.NoError(t, c.Set(ctx, "medium", []byte("m"), domain.TierMedium))
	require.NoError(t, c.Set(ctx, "long", []byte("l"), domain.TierLong))

	*now = now.Add(time.Minute)
	_, ok, _ := c.Get(ctx, "short")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "medium")
	assert.True(t, ok)

	*now = now.Add(10 * time.Minute)
	_, ok, _ = c.Get(ctx, "medium")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "long")
	assert.True(t, ok)
}

func TestInvalidateByPrefix(t *testing.T) {
	c, _ := newTestCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "resp:/a:k1", []byte("1"), domain.TierLong))
	require.NoError(t, c.Set(ctx, "resp:/a:k2", []byte("2"), domain.TierLong))
	require.NoError(t, c.Set(ctx, "resp:/b:k1", []byte("3"), domain.TierLong))

	require.NoError(t, c.Invalidate(ctx, "resp:/a:"))

	_, ok, _ := c.Get(ctx, "resp:/a:k1")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "resp:/b:k1")
	assert.True(t, ok)
}
