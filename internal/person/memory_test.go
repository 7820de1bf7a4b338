package person

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartlab/internal/apperr"
)

func strPtr(s string) *string { return &s }

func TestMemoryRepositoryBadgeUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(
		Person{ID: 1, Name: "Ana", BadgeID: strPtr("AA11")},
		Person{ID: 2, Name: "Bruno"},
	)

	err := repo.SetBadge(ctx, 2, strPtr("AA11"))
	require.ErrorIs(t, err, apperr.ErrBadgeConflict)

	ana, err := repo.GetByBadge(ctx, "AA11")
	require.NoError(t, err)
	assert.Equal(t, int64(1), ana.ID)

	// re-assigning a person's own badge is not a conflict
	require.NoError(t, repo.SetBadge(ctx, 1, strPtr("AA11")))

	require.NoError(t, repo.SetBadge(ctx, 1, nil))
	require.NoError(t, repo.SetBadge(ctx, 2, strPtr("AA11")))
	bruno, err := repo.GetByBadge(ctx, "AA11")
	require.NoError(t, err)
	assert.Equal(t, int64(2), bruno.ID)
}

func TestMemoryRepositoryCreateAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(Person{ID: 7, Name: "Maria"})

	id, err := repo.Create(ctx, MinimalProfile{Name: "Visitante", ProcessNumber: "TMP-1", BadgeID: strPtr("CC33")})
	require.NoError(t, err)
	assert.Equal(t, int64(8), id)

	_, err = repo.Create(ctx, MinimalProfile{Name: "Outro", ProcessNumber: "TMP-2", BadgeID: strPtr("CC33")})
	assert.ErrorIs(t, err, apperr.ErrBadgeConflict)

	people, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, people, 2)
	assert.Equal(t, "Maria", people[0].Name)
	assert.True(t, people[1].HasBadge())
}

func TestMemoryRepositoryNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	_, err := repo.GetByID(ctx, 99)
	assert.ErrorIs(t, err, apperr.ErrPersonNotFound)
	_, err = repo.GetByBadge(ctx, "ZZ99")
	assert.ErrorIs(t, err, apperr.ErrPersonNotFound)
	assert.ErrorIs(t, repo.SetBadge(ctx, 99, nil), apperr.ErrPersonNotFound)
}
