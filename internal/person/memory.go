package person

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"smartlab/internal/apperr"
)

// MemoryRepository is a map-backed Repository for dev/testing. It enforces the
// same badge uniqueness the database constraint does.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int64
	people map[int64]Person
}

// NewMemoryRepository creates an empty repository seeded with people.
func NewMemoryRepository(seed ...Person) *MemoryRepository {
	r := &MemoryRepository{people: make(map[int64]Person)}
	for _, p := range seed {
		r.people[p.ID] = p
		if p.ID > r.nextID {
			r.nextID = p.ID
		}
	}
	return r
}

func (r *MemoryRepository) GetByID(_ context.Context, id int64) (Person, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.people[id]
	if !ok {
		return Person{}, fmt.Errorf("person %d: %w", id, apperr.ErrPersonNotFound)
	}
	return p, nil
}

func (r *MemoryRepository) GetByBadge(_ context.Context, normalizedUID string) (Person, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.people {
		if p.BadgeID != nil && *p.BadgeID == normalizedUID {
			return p, nil
		}
	}
	return Person{}, apperr.ErrPersonNotFound
}

func (r *MemoryRepository) SetBadge(_ context.Context, id int64, uid *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.people[id]
	if !ok {
		return fmt.Errorf("person %d: %w", id, apperr.ErrPersonNotFound)
	}
	if uid != nil && r.badgeTakenLocked(*uid, id) {
		return fmt.Errorf("set badge: %w", apperr.ErrBadgeConflict)
	}
	if uid != nil {
		v := *uid
		uid = &v
	}
	p.BadgeID = uid
	r.people[id] = p
	return nil
}

func (r *MemoryRepository) Create(_ context.Context, profile MinimalProfile) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if profile.BadgeID != nil && r.badgeTakenLocked(*profile.BadgeID, 0) {
		return 0, fmt.Errorf("create person: %w", apperr.ErrBadgeConflict)
	}
	r.nextID++
	p := Person{
		ID:            r.nextID,
		Name:          profile.Name,
		ProcessNumber: profile.ProcessNumber,
		Course:        profile.Course,
	}
	if profile.BadgeID != nil {
		v := *profile.BadgeID
		p.BadgeID = &v
	}
	r.people[p.ID] = p
	return p.ID, nil
}

func (r *MemoryRepository) ListAll(_ context.Context) ([]Person, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Person, 0, len(r.people))
	for _, p := range r.people {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepository) badgeTakenLocked(uid string, except int64) bool {
	for id, p := range r.people {
		if id != except && p.BadgeID != nil && *p.BadgeID == uid {
			return true
		}
	}
	return false
}
