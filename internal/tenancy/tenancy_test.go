package tenancy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remnabot/internal/entities"
)

func TestWithBot(t *testing.T) {
	ctx := WithBot(context.Background(), 42)

	id, ok := BotID(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	// Inner scopes shadow outer ones
	inner := WithBot(ctx, 7)
	id, _ = BotID(inner)
	assert.Equal(t, int64(7), id)
	id, _ = BotID(ctx)
	assert.Equal(t, int64(42), id)
}

func TestBotID_Missing(t *testing.T) {
	_, ok := BotID(context.Background())
	assert.False(t, ok)

	//nolint:staticcheck
	_, ok = BotID(nil)
	assert.False(t, ok)

	_, ok = BotID(WithBot(context.Background(), 0))
	assert.False(t, ok)
}

func TestMustBotID(t *testing.T) {
	_, err := MustBotID(context.Background())
	assert.ErrorIs(t, err, entities.ErrTenantMissing)

	id, err := MustBotID(WithBot(context.Background(), 3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
}
