package badge

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"smartlab/internal/apperr"
	"smartlab/internal/person"
)

// Normalize is the single comparison form of a badge uid: all whitespace
// removed, upper case.
func Normalize(raw string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToUpper(r)
	}, raw)
}

// PresenceCounter reports non-placeholder attendance records per person.
type PresenceCounter interface {
	PresenceCounts(ctx context.Context) (map[int64]int, error)
}

// Target names who a badge is enrolled for: an existing person by id, or a
// display name for which a minimal profile is created.
type Target struct {
	PersonID *int64
	Name     string
}

// Enrollment is the result of Enroll.
type Enrollment struct {
	Person person.Person `json:"person"`
	// Provisional is set when the person was synthesized from a bare name and
	// carries a placeholder process number and credential.
	Provisional bool `json:"provisional"`
}

// Enrolled is one row of ListEnrolled.
type Enrolled struct {
	PersonID      int64  `json:"person_id"`
	Name          string `json:"name"`
	BadgeID       string `json:"badge_id"`
	PresenceCount int    `json:"presence_count"`
}

// Availability tells whether a uid can be enrolled and, if not, who owns it.
type Availability struct {
	UID       string         `json:"uid"`
	Available bool           `json:"available"`
	Owner     *person.Person `json:"owner,omitempty"`
}

// Directory maps scanned uids to people and owns badge assignment.
type Directory struct {
	people   person.Repository
	presence PresenceCounter
	log      *zap.Logger
}

func NewDirectory(people person.Repository, presence PresenceCounter, log *zap.Logger) *Directory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Directory{people: people, presence: presence, log: log}
}

// Resolve returns the person owning rawUID.
func (d *Directory) Resolve(ctx context.Context, rawUID string) (person.Person, error) {
	uid := Normalize(rawUID)
	if uid == "" {
		return person.Person{}, fmt.Errorf("empty badge uid: %w", apperr.ErrInvalidInput)
	}
	p, err := d.people.GetByBadge(ctx, uid)
	if errors.Is(err, apperr.ErrPersonNotFound) {
		return person.Person{}, fmt.Errorf("badge %s: %w", uid, apperr.ErrBadgeNotFound)
	}
	if err != nil {
		return person.Person{}, apperr.Storage("resolve badge", err)
	}
	return p, nil
}

// Lookup reports whether rawUID is free.
func (d *Directory) Lookup(ctx context.Context, rawUID string) (Availability, error) {
	p, err := d.Resolve(ctx, rawUID)
	switch {
	case errors.Is(err, apperr.ErrBadgeNotFound):
		return Availability{UID: Normalize(rawUID), Available: true}, nil
	case err != nil:
		return Availability{}, err
	}
	return Availability{UID: Normalize(rawUID), Owner: &p}, nil
}

// Enroll binds rawUID to the target. A uid already bound to somebody else
// fails with apperr.ErrBadgeConflict and leaves that binding untouched.
func (d *Directory) Enroll(ctx context.Context, rawUID string, target Target) (Enrollment, error) {
	uid := Normalize(rawUID)
	if uid == "" {
		return Enrollment{}, fmt.Errorf("empty badge uid: %w", apperr.ErrInvalidInput)
	}
	name := strings.TrimSpace(target.Name)
	if target.PersonID == nil && name == "" {
		return Enrollment{}, fmt.Errorf("person id or name required: %w", apperr.ErrInvalidInput)
	}

	owner, err := d.people.GetByBadge(ctx, uid)
	switch {
	case err == nil:
		if target.PersonID == nil || owner.ID != *target.PersonID {
			return Enrollment{}, fmt.Errorf("badge %s belongs to person %d: %w", uid, owner.ID, apperr.ErrBadgeConflict)
		}
		return Enrollment{Person: owner}, nil
	case !errors.Is(err, apperr.ErrPersonNotFound):
		return Enrollment{}, apperr.Storage("check badge owner", err)
	}

	if target.PersonID != nil {
		return d.assign(ctx, *target.PersonID, uid)
	}
	return d.provision(ctx, name, uid)
}

func (d *Directory) assign(ctx context.Context, id int64, uid string) (Enrollment, error) {
	if err := d.people.SetBadge(ctx, id, &uid); err != nil {
		return Enrollment{}, apperr.Storage("set badge", err)
	}
	p, err := d.people.GetByID(ctx, id)
	if err != nil {
		return Enrollment{}, apperr.Storage("load person", err)
	}
	d.log.Info("badge enrolled", zap.Int64("person_id", id), zap.String("uid", uid))
	return Enrollment{Person: p}, nil
}

// provision creates a minimal person for a bare name. The generated process
// number and credential are placeholders that an admin must replace.
func (d *Directory) provision(ctx context.Context, name, uid string) (Enrollment, error) {
	secret := make([]byte, 16)
	if _, err := rand.Read(secret); err != nil {
		return Enrollment{}, fmt.Errorf("generate placeholder secret: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(secret)), bcrypt.DefaultCost)
	if err != nil {
		return Enrollment{}, fmt.Errorf("hash placeholder secret: %w", err)
	}
	profile := person.MinimalProfile{
		Name:          name,
		ProcessNumber: "TMP-" + uuid.NewString(),
		PasswordHash:  string(hash),
		BadgeID:       &uid,
	}
	id, err := d.people.Create(ctx, profile)
	if err != nil {
		return Enrollment{}, apperr.Storage("create person", err)
	}
	p, err := d.people.GetByID(ctx, id)
	if err != nil {
		return Enrollment{}, apperr.Storage("load person", err)
	}
	d.log.Warn("provisional person created for badge; process number and credential are placeholders",
		zap.Int64("person_id", id), zap.String("uid", uid), zap.String("process_number", profile.ProcessNumber))
	return Enrollment{Person: p, Provisional: true}, nil
}

// Unenroll clears the badge of personID.
func (d *Directory) Unenroll(ctx context.Context, personID int64) error {
	if err := d.people.SetBadge(ctx, personID, nil); err != nil {
		return apperr.Storage("clear badge", err)
	}
	d.log.Info("badge removed", zap.Int64("person_id", personID))
	return nil
}

// ListEnrolled returns everybody holding a badge with their presence count.
func (d *Directory) ListEnrolled(ctx context.Context) ([]Enrolled, error) {
	people, err := d.people.ListAll(ctx)
	if err != nil {
		return nil, apperr.Storage("list people", err)
	}
	counts := map[int64]int{}
	if d.presence != nil {
		if counts, err = d.presence.PresenceCounts(ctx); err != nil {
			return nil, apperr.Storage("count presences", err)
		}
	}
	out := []Enrolled{}
	for _, p := range people {
		if !p.HasBadge() {
			continue
		}
		out = append(out, Enrolled{
			PersonID:      p.ID,
			Name:          p.Name,
			BadgeID:       *p.BadgeID,
			PresenceCount: counts[p.ID],
		})
	}
	return out, nil
}
