package commands_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komparu/komparu-go/cmd/kclient/commands"
	"github.com/komparu/komparu-go/pkg/komparu"
)

func TestInvalidateTag(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := komparu.NewMemoryCache(10)

	require.NoError(t, cache.Set(ctx, "a", &komparu.CacheEntry{Data: []byte("1"), Tags: []string{"resource:product"}}))
	require.NoError(t, cache.Set(ctx, "b", &komparu.CacheEntry{Data: []byte("2"), Tags: []string{"resource:offer"}}))

	require.NoError(t, commands.InvalidateTag(ctx, cache, "resource:product"))
	assert.False(t, cache.Has(ctx, "a"))
	assert.True(t, cache.Has(ctx, "b"))

	err := commands.InvalidateTag(ctx, komparu.NewNoOpCache(), "resource:product")
	require.ErrorIs(t, err, komparu.ErrTagInvalidationUnsupported)
}

func TestNewCacheCommand(t *testing.T) {
	t.Parallel()

	cmd := commands.NewCacheCommand()
	assert.Equal(t, "cache", cmd.Use)
	assert.Len(t, cmd.Commands(), 2)

	invalidate := findSubcommand(cmd, "invalidate")
	require.NotNil(t, invalidate)
	assert.Equal(t, "invalidate RESOURCE", invalidate.Use)
	assert.NotNil(t, findSubcommand(cmd, "clear"))
}
