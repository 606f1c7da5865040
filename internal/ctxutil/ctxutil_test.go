package ctxutil_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelonglearners/tortoise/internal/auth"
	"github.com/lifelonglearners/tortoise/internal/ctxutil"
	"github.com/lifelonglearners/tortoise/internal/model"
)

func TestClaims(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, ctxutil.ClaimsFromContext(ctx))
	assert.Nil(t, ctxutil.UserIDFromContext(ctx))
	assert.False(t, ctxutil.CanActFor(ctx, uuid.New()))

	me := uuid.New()
	ctx = ctxutil.WithClaims(ctx, &auth.Claims{UserID: me, Role: model.RoleLearner})
	id := ctxutil.UserIDFromContext(ctx)
	require.NotNil(t, id)
	assert.Equal(t, me, *id)
	assert.True(t, ctxutil.CanActFor(ctx, me))
	assert.False(t, ctxutil.CanActFor(ctx, uuid.New()))

	admin := ctxutil.WithClaims(context.Background(), &auth.Claims{UserID: uuid.New(), Role: model.RoleAdmin})
	assert.True(t, ctxutil.CanActFor(admin, me))
}

func TestRequestID(t *testing.T) {
	assert.Empty(t, ctxutil.RequestIDFromContext(context.Background()))
	ctx := ctxutil.WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", ctxutil.RequestIDFromContext(ctx))
}
