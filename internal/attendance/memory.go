package attendance

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"smartlab/internal/apperr"
)

type dayKey struct {
	personID int64
	date     Date
}

// MemoryStore is a minimal in-process Store for dev/testing. Work for one
// (person, date) is serialized by a mutex per key; it mirrors the
// single-open-record index of the Postgres schema.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	records []Record

	locks sync.Map // dayKey -> *sync.Mutex
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// WithinDay holds the (personID, date) lock while fn runs. Mutations made by
// fn before it fails are not rolled back.
func (s *MemoryStore) WithinDay(ctx context.Context, personID int64, date Date, fn func(Ledger) error) error {
	if err := ctx.Err(); err != nil {
		return apperr.Storage("lock presence day", err)
	}
	m, _ := s.locks.LoadOrStore(dayKey{personID: personID, date: date}, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return fn(s)
}

func (s *MemoryStore) FindOpen(_ context.Context, personID int64, date Date) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestLocked(personID, date, Record.Open), nil
}

func (s *MemoryStore) FindLatest(_ context.Context, personID int64, date Date) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestLocked(personID, date, func(Record) bool { return true }), nil
}

func (s *MemoryStore) latestLocked(personID int64, date Date, keep func(Record) bool) *Record {
	var best *Record
	for i := range s.records {
		rec := s.records[i]
		if rec.PersonID != personID || rec.Date != date || !keep(rec) {
			continue
		}
		if best == nil || newer(rec, *best) {
			r := clone(rec)
			best = &r
		}
	}
	return best
}

// newer orders by check-in with placeholders last, then by id.
func newer(a, b Record) bool {
	switch {
	case a.CheckIn == nil && b.CheckIn == nil:
		return a.ID > b.ID
	case a.CheckIn == nil:
		return false
	case b.CheckIn == nil:
		return true
	case *a.CheckIn != *b.CheckIn:
		return *a.CheckIn > *b.CheckIn
	default:
		return a.ID > b.ID
	}
}

func (s *MemoryStore) Insert(_ context.Context, rec Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Open() && s.latestLocked(rec.PersonID, rec.Date, Record.Open) != nil {
		return 0, apperr.Storage("insert presence", fmt.Errorf("person %d already has an open record on %s", rec.PersonID, rec.Date))
	}
	s.nextID++
	rec.ID = s.nextID
	rec.CheckIn = copyTime(rec.CheckIn)
	rec.CheckOut = copyTime(rec.CheckOut)
	s.records = append(s.records, rec)
	return rec.ID, nil
}

func (s *MemoryStore) CloseOut(_ context.Context, id int64, at TimeOfDay) error {
	return s.update(id, "close presence", func(rec *Record) bool {
		if !rec.Open() {
			return false
		}
		rec.CheckOut = copyTime(&at)
		return true
	})
}

func (s *MemoryStore) FillCheckIn(_ context.Context, id int64, at TimeOfDay) error {
	return s.update(id, "fill presence check-in", func(rec *Record) bool {
		if !rec.Placeholder() {
			return false
		}
		rec.CheckIn = copyTime(&at)
		return true
	})
}

func (s *MemoryStore) update(id int64, op string, apply func(*Record) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			if apply(&s.records[i]) {
				return nil
			}
			break
		}
	}
	return fmt.Errorf("%s %d: %w", op, id, ErrRecordNotOpen)
}

func (s *MemoryStore) ListForDate(_ context.Context, date Date) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if rec.Date == date {
			out = append(out, clone(rec))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PersonID != out[j].PersonID {
			return out[i].PersonID < out[j].PersonID
		}
		return newer(out[j], out[i])
	})
	return out, nil
}

func (s *MemoryStore) ListForPerson(_ context.Context, personID int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if rec.PersonID == personID {
			out = append(out, clone(rec))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Time().After(out[j].Date.Time())
		}
		return newer(out[i], out[j])
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) PresenceCounts(_ context.Context) (map[int64]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[int64]int)
	for _, rec := range s.records {
		if !rec.Placeholder() {
			counts[rec.PersonID]++
		}
	}
	return counts, nil
}

func clone(rec Record) Record {
	rec.CheckIn = copyTime(rec.CheckIn)
	rec.CheckOut = copyTime(rec.CheckOut)
	return rec
}

func copyTime(t *TimeOfDay) *TimeOfDay {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
