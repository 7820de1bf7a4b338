package attendance

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartlab/internal/apperr"
	"smartlab/internal/person"
)

var day = Date{Year: 2024, Month: 3, Day: 11}

func at(h, m int) TimeOfDay { return NewTimeOfDay(h, m, 0) }

func newTestResolver(policy Policy, people ...person.Person) (*Resolver, *MemoryStore) {
	if len(people) == 0 {
		people = []person.Person{{ID: 7, Name: "Maria"}}
	}
	store := NewMemoryStore()
	return NewResolver(store, person.NewMemoryRepository(people...), policy, nil), store
}

func TestResolveReEntryCycle(t *testing.T) {
	ctx := context.Background()
	r, store := newTestResolver(PolicyReEntry)

	out, err := r.Resolve(ctx, 7, day, at(8, 0))
	require.NoError(t, err)
	assert.Equal(t, Entrada, out.Kind)
	require.NotNil(t, out.Record.CheckIn)
	assert.Equal(t, at(8, 0), *out.Record.CheckIn)
	assert.Nil(t, out.Record.CheckOut)
	first := out.Record.ID

	out, err = r.Resolve(ctx, 7, day, at(12, 0))
	require.NoError(t, err)
	assert.Equal(t, Saida, out.Kind)
	assert.Equal(t, first, out.Record.ID)
	require.NotNil(t, out.Record.CheckOut)
	assert.Equal(t, at(12, 0), *out.Record.CheckOut)

	out, err = r.Resolve(ctx, 7, day, at(13, 0))
	require.NoError(t, err)
	assert.Equal(t, Entrada, out.Kind)
	assert.NotEqual(t, first, out.Record.ID)

	out, err = r.Resolve(ctx, 7, day, at(17, 0))
	require.NoError(t, err)
	assert.Equal(t, Saida, out.Kind)

	records, err := store.ListForDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.True(t, rec.Closed())
	}
}

func TestResolveClosedDay(t *testing.T) {
	ctx := context.Background()
	r, store := newTestResolver(PolicyClosedDay)

	out, err := r.Resolve(ctx, 7, day, at(8, 0))
	require.NoError(t, err)
	assert.Equal(t, Entrada, out.Kind)

	out, err = r.Resolve(ctx, 7, day, at(17, 0))
	require.NoError(t, err)
	assert.Equal(t, Saida, out.Kind)

	out, err = r.Resolve(ctx, 7, day, at(18, 0))
	require.NoError(t, err)
	assert.Equal(t, DayClosed, out.Kind)
	assert.True(t, out.Record.Closed())

	records, err := store.ListForDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, at(17, 0), *records[0].CheckOut)

	// the next day starts fresh
	out, err = r.Resolve(ctx, 7, Date{Year: 2024, Month: 3, Day: 12}, at(8, 0))
	require.NoError(t, err)
	assert.Equal(t, Entrada, out.Kind)
}

func TestResolveRejectsCheckOutBeforeCheckIn(t *testing.T) {
	ctx := context.Background()
	r, store := newTestResolver(PolicyReEntry)

	_, err := r.Resolve(ctx, 7, day, at(10, 0))
	require.NoError(t, err)

	_, err = r.Resolve(ctx, 7, day, at(9, 30))
	require.ErrorIs(t, err, apperr.ErrInvalidTimeOrdering)

	open, err := store.FindOpen(ctx, 7, day)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Nil(t, open.CheckOut)
	assert.Equal(t, at(10, 0), *open.CheckIn)
}

func TestResolveRejectsReEntryBeforeLastCheckOut(t *testing.T) {
	ctx := context.Background()
	r, store := newTestResolver(PolicyReEntry)

	_, err := r.Resolve(ctx, 7, day, at(8, 0))
	require.NoError(t, err)
	_, err = r.Resolve(ctx, 7, day, at(12, 0))
	require.NoError(t, err)

	_, err = r.Resolve(ctx, 7, day, at(11, 0))
	require.ErrorIs(t, err, apperr.ErrInvalidTimeOrdering)

	records, err := store.ListForDate(ctx, day)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestResolveSameInstantCheckOut(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver(PolicyReEntry)

	_, err := r.Resolve(ctx, 7, day, at(8, 0))
	require.NoError(t, err)
	out, err := r.Resolve(ctx, 7, day, at(8, 0))
	require.NoError(t, err)
	assert.Equal(t, Saida, out.Kind)
}

func TestResolveFillsAbsencePlaceholder(t *testing.T) {
	ctx := context.Background()
	r, store := newTestResolver(PolicyReEntry)

	n, err := r.RegisterAbsences(ctx, day)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	out, err := r.Resolve(ctx, 7, day, at(9, 15))
	require.NoError(t, err)
	assert.Equal(t, Entrada, out.Kind)

	records, err := store.ListForDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Open())
	assert.Equal(t, out.Record.ID, records[0].ID)
}

func TestRegisterAbsences(t *testing.T) {
	ctx := context.Background()
	r, store := newTestResolver(PolicyReEntry,
		person.Person{ID: 1, Name: "Ana"},
		person.Person{ID: 2, Name: "Bruno"},
		person.Person{ID: 7, Name: "Maria"},
	)

	_, err := r.Resolve(ctx, 7, day, at(8, 0))
	require.NoError(t, err)

	n, err := r.RegisterAbsences(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.RegisterAbsences(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	records, err := store.ListForDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, records, 3)
	placeholders := map[int64]int{}
	for _, rec := range records {
		if rec.Placeholder() {
			placeholders[rec.PersonID]++
		}
	}
	assert.Equal(t, map[int64]int{1: 1, 2: 1}, placeholders)
}

func TestResolveConcurrentScansCloseOnce(t *testing.T) {
	ctx := context.Background()
	r, store := newTestResolver(PolicyClosedDay)

	_, err := r.Resolve(ctx, 7, day, at(8, 0))
	require.NoError(t, err)

	const scans = 8
	kinds := make(chan Kind, scans)
	var wg sync.WaitGroup
	for i := 0; i < scans; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.Resolve(ctx, 7, day, at(17, 0))
			if assert.NoError(t, err) {
				kinds <- out.Kind
			}
		}()
	}
	wg.Wait()
	close(kinds)

	counts := map[Kind]int{}
	for k := range kinds {
		counts[k]++
	}
	assert.Equal(t, 1, counts[Saida])
	assert.Equal(t, scans-1, counts[DayClosed])

	records, err := store.ListForDate(ctx, day)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestResolveConcurrentFirstScans(t *testing.T) {
	ctx := context.Background()
	r, store := newTestResolver(PolicyReEntry)

	var wg sync.WaitGroup
	results := make([]Kind, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := r.Resolve(ctx, 7, day, at(8, 0))
			if assert.NoError(t, err) {
				results[i] = out.Kind
			}
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []Kind{Entrada, Saida}, results)

	records, err := store.ListForDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, records, 1)
	open := 0
	for _, rec := range records {
		if rec.Open() {
			open++
		}
	}
	assert.LessOrEqual(t, open, 1)
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver(PolicyReEntry)

	for d := 1; d <= 3; d++ {
		date := Date{Year: 2024, Month: 3, Day: d}
		_, err := r.Resolve(ctx, 7, date, at(8, 0))
		require.NoError(t, err)
		_, err = r.Resolve(ctx, 7, date, at(16, 0))
		require.NoError(t, err)
	}

	records, err := r.History(ctx, 7, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 3, records[0].Date.Day)
	assert.Equal(t, 2, records[1].Date.Day)

	_, err = r.History(ctx, 99, 10)
	assert.ErrorIs(t, err, apperr.ErrPersonNotFound)

	defaulted, err := r.History(ctx, 7, 0)
	require.NoError(t, err)
	assert.Len(t, defaulted, 3)
}

func TestDaily(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver(PolicyReEntry,
		person.Person{ID: 1, Name: "Ana"},
		person.Person{ID: 2, Name: "Bruno"},
		person.Person{ID: 7, Name: "Maria"},
	)

	_, err := r.Resolve(ctx, 7, day, at(8, 0))
	require.NoError(t, err)
	_, err = r.Resolve(ctx, 1, day, at(8, 30))
	require.NoError(t, err)
	_, err = r.Resolve(ctx, 1, day, at(12, 0))
	require.NoError(t, err)
	_, err = r.RegisterAbsences(ctx, day)
	require.NoError(t, err)

	summary, err := r.Daily(ctx, day)
	require.NoError(t, err)
	require.Len(t, summary.Present, 2)
	assert.Equal(t, int64(1), summary.Present[0].Person.ID)
	assert.False(t, summary.Present[0].Inside)
	assert.Equal(t, int64(7), summary.Present[1].Person.ID)
	assert.True(t, summary.Present[1].Inside)
	require.Len(t, summary.Absent, 1)
	assert.Equal(t, "Bruno", summary.Absent[0].Name)
}
