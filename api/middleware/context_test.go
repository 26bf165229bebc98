package middleware

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/trackvault-backend/pkg/errors"
)

func TestCallerContext(t *testing.T) {
	assert.Empty(t, UserIDFromContext(context.Background()))
	assert.Empty(t, RoleFromContext(nil))

	ctx := WithRole(WithUserID(context.Background(), "u-1"), "ADMIN")
	assert.Equal(t, "u-1", UserIDFromContext(ctx))
	assert.Equal(t, "ADMIN", RoleFromContext(ctx))

	child := WithUserID(ctx, "u-2")
	assert.Equal(t, "u-2", UserIDFromContext(child))
	assert.Equal(t, "ADMIN", RoleFromContext(child))
	assert.Equal(t, "u-1", UserIDFromContext(ctx), "parent unchanged")
}

func TestRequireUserID(t *testing.T) {
	_, err := RequireUserID(context.Background())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	_, err = RequireUserID(WithUserID(context.Background(), "nope"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	want := uuid.New()
	got, err := RequireUserID(WithUserID(context.Background(), want.String()))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
