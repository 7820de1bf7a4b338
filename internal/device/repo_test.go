package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartlab/internal/apperr"
	"smartlab/internal/store/storetest"
)

func TestPostgresRegistry(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t, "smartlab_device_test")
	r := NewPostgresRegistry(db)

	require.NoError(t, r.Register(ctx, "lab-door-1"))
	require.NoError(t, r.Register(ctx, "lab-door-1"))
	assert.ErrorIs(t, r.Register(ctx, "bad id"), apperr.ErrInvalidInput)

	var readers int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rfid_readers`).Scan(&readers))
	assert.Equal(t, 1, readers)

	require.NoError(t, r.SaveRefreshToken(ctx, "lab-door-1", "tok", time.Now().Add(time.Hour)))
	deviceID, err := r.ConsumeRefreshToken(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "lab-door-1", deviceID)
	_, err = r.ConsumeRefreshToken(ctx, "tok")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	require.NoError(t, r.SaveRefreshToken(ctx, "lab-door-1", "revoked", time.Now().Add(time.Hour)))
	require.NoError(t, r.RevokeRefreshToken(ctx, "revoked"))
	_, err = r.ConsumeRefreshToken(ctx, "revoked")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	require.NoError(t, r.SaveRefreshToken(ctx, "lab-door-1", "stale", time.Now().Add(-time.Minute)))
	_, err = r.ConsumeRefreshToken(ctx, "stale")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	err = r.SaveRefreshToken(ctx, "unknown-reader", "orphan", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)
}
