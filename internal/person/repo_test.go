package person

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartlab/internal/apperr"
	"smartlab/internal/store/storetest"
)

func TestPostgresRepository(t *testing.T) {
	ctx := context.Background()
	db := storetest.Open(t, "smartlab_person_test")
	repo := NewPostgresRepository(db)

	ana, err := repo.Create(ctx, MinimalProfile{Name: "Ana", ProcessNumber: "EST-001", Course: "Informática", PasswordHash: "x", BadgeID: strPtr("04:A3:2B:1C")})
	require.NoError(t, err)
	bruno, err := repo.Create(ctx, MinimalProfile{Name: "Bruno", ProcessNumber: "EST-002"})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, ana)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Name)
	assert.Equal(t, "Informática", got.Course)
	require.NotNil(t, got.BadgeID)
	assert.Equal(t, "04:A3:2B:1C", *got.BadgeID)

	got, err = repo.GetByID(ctx, bruno)
	require.NoError(t, err)
	assert.Empty(t, got.Course)
	assert.False(t, got.HasBadge())

	owner, err := repo.GetByBadge(ctx, "04:A3:2B:1C")
	require.NoError(t, err)
	assert.Equal(t, ana, owner.ID)

	_, err = repo.GetByBadge(ctx, "FFFF")
	assert.ErrorIs(t, err, apperr.ErrPersonNotFound)
	_, err = repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, apperr.ErrPersonNotFound)

	assert.ErrorIs(t, repo.SetBadge(ctx, bruno, strPtr("04:A3:2B:1C")), apperr.ErrBadgeConflict)
	_, err = repo.Create(ctx, MinimalProfile{Name: "Carla", ProcessNumber: "EST-003", BadgeID: strPtr("04:A3:2B:1C")})
	assert.ErrorIs(t, err, apperr.ErrBadgeConflict)
	assert.ErrorIs(t, repo.SetBadge(ctx, 999, strPtr("BEEF")), apperr.ErrPersonNotFound)

	require.NoError(t, repo.SetBadge(ctx, ana, nil))
	require.NoError(t, repo.SetBadge(ctx, bruno, strPtr("04:A3:2B:1C")))

	people, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, people, 2)
	assert.Equal(t, ana, people[0].ID)
	assert.False(t, people[0].HasBadge())
	assert.True(t, people[1].HasBadge())
}
