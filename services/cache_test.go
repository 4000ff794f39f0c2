package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemCacheGetSet(t *testing.T) {
	c := NewMemCache()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", val)
}

func TestMemCacheExpiry(t *testing.T) {
	c := NewMemCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemCacheSetNX(t *testing.T) {
	c := NewMemCache()
	ctx := context.Background()

	won, err := c.SetNX(ctx, "k", "first", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = c.SetNX(ctx, "k", "second", time.Minute)
	require.NoError(t, err)
	assert.False(t, won)

	val, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first", val)
}

func TestMemCacheSetNXWinsAfterExpiry(t *testing.T) {
	c := NewMemCache()
	ctx := context.Background()

	won, err := c.SetNX(ctx, "k", "first", time.Millisecond)
	require.NoError(t, err)
	require.True(t, won)
	time.Sleep(5 * time.Millisecond)

	won, err = c.SetNX(ctx, "k", "second", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestMemCacheDelReleasesSetNXClaim(t *testing.T) {
	c := NewMemCache()
	ctx := context.Background()

	won, err := c.SetNX(ctx, "k", "first", time.Minute)
	require.NoError(t, err)
	require.True(t, won)

	require.NoError(t, c.Del(ctx, "k"))

	won, err = c.SetNX(ctx, "k", "second", time.Minute)
	require.NoError(t, err)
	assert.True(t, won)
}
