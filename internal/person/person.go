package person

import "context"

// Person is the slice of an intern profile the attendance core reads.
type Person struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	Email         *string `json:"email,omitempty"`
	ProcessNumber string  `json:"process_number"`
	Course        string  `json:"course,omitempty"`
	BadgeID       *string `json:"badge_id,omitempty"`
}

// HasBadge reports whether p currently owns a badge.
func (p Person) HasBadge() bool {
	return p.BadgeID != nil && *p.BadgeID != ""
}

// MinimalProfile is the smallest record that can be created on the fly
// when a badge is enrolled against a bare display name.
type MinimalProfile struct {
	Name          string
	ProcessNumber string
	Course        string
	PasswordHash  string
	BadgeID       *string
}

// Repository is the profile store owned by the surrounding CRUD layer.
// GetByID and GetByBadge return apperr.ErrPersonNotFound when nothing matches;
// SetBadge returns apperr.ErrBadgeConflict when the badge belongs to someone else.
type Repository interface {
	GetByID(ctx context.Context, id int64) (Person, error)
	GetByBadge(ctx context.Context, normalizedUID string) (Person, error)
	SetBadge(ctx context.Context, id int64, uid *string) error
	Create(ctx context.Context, profile MinimalProfile) (int64, error)
	ListAll(ctx context.Context) ([]Person, error)
}
