package badge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartlab/internal/apperr"
	"smartlab/internal/person"
)

func int64Ptr(v int64) *int64 { return &v }

type countsStub map[int64]int

func (c countsStub) PresenceCounts(context.Context) (map[int64]int, error) { return c, nil }

type brokenRepo struct{ person.Repository }

func (brokenRepo) GetByBadge(context.Context, string) (person.Person, error) {
	return person.Person{}, errors.New("connection refused")
}

func TestNormalize(t *testing.T) {
	for _, in := range []string{"a1 b2", "A1B2", " a1b2 ", "a1\tB2\n"} {
		assert.Equal(t, "A1B2", Normalize(in), "%q", in)
	}
	assert.Equal(t, "", Normalize("  \t"))
}

func TestResolveAnyFormatting(t *testing.T) {
	ctx := context.Background()
	dir := NewDirectory(person.NewMemoryRepository(person.Person{ID: 1, Name: "Ana"}), nil, nil)

	_, err := dir.Enroll(ctx, "A1B2", Target{PersonID: int64Ptr(1)})
	require.NoError(t, err)

	for _, in := range []string{"a1 b2", "A1B2", " a1b2 "} {
		p, err := dir.Resolve(ctx, in)
		require.NoError(t, err, in)
		assert.Equal(t, int64(1), p.ID)
	}

	_, err = dir.Resolve(ctx, "ZZ99")
	assert.ErrorIs(t, err, apperr.ErrBadgeNotFound)
	_, err = dir.Resolve(ctx, "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestEnrollConflictKeepsOwner(t *testing.T) {
	ctx := context.Background()
	repo := person.NewMemoryRepository(
		person.Person{ID: 1, Name: "Ana"},
		person.Person{ID: 2, Name: "Bruno"},
	)
	dir := NewDirectory(repo, nil, nil)

	_, err := dir.Enroll(ctx, "cafe 01", Target{PersonID: int64Ptr(2)})
	require.NoError(t, err)

	_, err = dir.Enroll(ctx, "CAFE01", Target{PersonID: int64Ptr(1)})
	require.ErrorIs(t, err, apperr.ErrBadgeConflict)

	_, err = dir.Enroll(ctx, "cafe01", Target{Name: "Visitante"})
	require.ErrorIs(t, err, apperr.ErrBadgeConflict)

	owner, err := dir.Resolve(ctx, "CAFE01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), owner.ID)

	ana, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ana.HasBadge())

	// enrolling the owner again is a no-op
	again, err := dir.Enroll(ctx, "CAFE01", Target{PersonID: int64Ptr(2)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Person.ID)
}

func TestEnrollUnknownPerson(t *testing.T) {
	dir := NewDirectory(person.NewMemoryRepository(), nil, nil)
	_, err := dir.Enroll(context.Background(), "AA11", Target{PersonID: int64Ptr(42)})
	assert.ErrorIs(t, err, apperr.ErrPersonNotFound)
}

func TestEnrollRequiresTarget(t *testing.T) {
	dir := NewDirectory(person.NewMemoryRepository(), nil, nil)
	_, err := dir.Enroll(context.Background(), "AA11", Target{Name: "  "})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = dir.Enroll(context.Background(), "", Target{Name: "Ana"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestEnrollByNameProvisionsPerson(t *testing.T) {
	ctx := context.Background()
	repo := person.NewMemoryRepository(person.Person{ID: 7, Name: "Maria"})
	dir := NewDirectory(repo, nil, nil)

	got, err := dir.Enroll(ctx, "bb 22", Target{Name: " Visitante "})
	require.NoError(t, err)
	assert.True(t, got.Provisional)
	assert.Equal(t, "Visitante", got.Person.Name)
	assert.True(t, strings.HasPrefix(got.Person.ProcessNumber, "TMP-"))
	require.NotNil(t, got.Person.BadgeID)
	assert.Equal(t, "BB22", *got.Person.BadgeID)

	p, err := dir.Resolve(ctx, "BB22")
	require.NoError(t, err)
	assert.Equal(t, got.Person.ID, p.ID)
}

func TestUnenroll(t *testing.T) {
	ctx := context.Background()
	dir := NewDirectory(person.NewMemoryRepository(person.Person{ID: 1, Name: "Ana"}), nil, nil)

	_, err := dir.Enroll(ctx, "AA11", Target{PersonID: int64Ptr(1)})
	require.NoError(t, err)
	require.NoError(t, dir.Unenroll(ctx, 1))

	_, err = dir.Resolve(ctx, "AA11")
	assert.ErrorIs(t, err, apperr.ErrBadgeNotFound)

	assert.ErrorIs(t, dir.Unenroll(ctx, 99), apperr.ErrPersonNotFound)
}

func TestListEnrolledAndLookup(t *testing.T) {
	ctx := context.Background()
	repo := person.NewMemoryRepository(
		person.Person{ID: 1, Name: "Ana"},
		person.Person{ID: 2, Name: "Bruno"},
		person.Person{ID: 7, Name: "Maria"},
	)
	dir := NewDirectory(repo, countsStub{7: 12}, nil)

	_, err := dir.Enroll(ctx, "AA11BB22", Target{PersonID: int64Ptr(7)})
	require.NoError(t, err)
	_, err = dir.Enroll(ctx, "cc33", Target{PersonID: int64Ptr(1)})
	require.NoError(t, err)

	list, err := dir.ListEnrolled(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Enrolled{
		{PersonID: 1, Name: "Ana", BadgeID: "CC33"},
		{PersonID: 7, Name: "Maria", BadgeID: "AA11BB22", PresenceCount: 12},
	}, list)

	av, err := dir.Lookup(ctx, "aa11 bb22")
	require.NoError(t, err)
	assert.False(t, av.Available)
	require.NotNil(t, av.Owner)
	assert.Equal(t, "Maria", av.Owner.Name)

	av, err = dir.Lookup(ctx, "dd44")
	require.NoError(t, err)
	assert.True(t, av.Available)
	assert.Equal(t, "DD44", av.UID)
}

func TestResolveStorageFailure(t *testing.T) {
	dir := NewDirectory(brokenRepo{}, nil, nil)
	_, err := dir.Resolve(context.Background(), "AA11")
	assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, apperr.ErrBadgeNotFound)
}
