package attendance

import (
	"context"
	"errors"
)

// ErrRecordNotOpen is returned by CloseOut when the record is missing or
// already closed.
var ErrRecordNotOpen = errors.New("presence record is not open")

// Ledger is a narrow storage facade over presence records. It carries no
// attendance policy.
type Ledger interface {
	// FindOpen returns the open record of personID on date, or nil.
	FindOpen(ctx context.Context, personID int64, date Date) (*Record, error)
	// FindLatest returns the record with the latest check-in (ties broken by
	// the larger id, placeholders last), or nil when the day is empty.
	FindLatest(ctx context.Context, personID int64, date Date) (*Record, error)
	Insert(ctx context.Context, rec Record) (int64, error)
	CloseOut(ctx context.Context, id int64, at TimeOfDay) error
	// FillCheckIn turns an absence placeholder into a check-in.
	FillCheckIn(ctx context.Context, id int64, at TimeOfDay) error
	ListForDate(ctx context.Context, date Date) ([]Record, error)
	// ListForPerson orders by date desc, check-in desc.
	ListForPerson(ctx context.Context, personID int64, limit int) ([]Record, error)
	// PresenceCounts counts non-placeholder records per person.
	PresenceCounts(ctx context.Context) (map[int64]int, error)
}

// Store is a Ledger that can run a unit of work serialized per
// (person, date). Work for other keys proceeds concurrently.
type Store interface {
	Ledger
	WithinDay(ctx context.Context, personID int64, date Date, fn func(Ledger) error) error
}
