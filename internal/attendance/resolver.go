package attendance

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"smartlab/internal/apperr"
	"smartlab/internal/person"
)

// MaxHistory caps attendance history queries.
const MaxHistory = 500

// Resolver is the attendance state machine. Per (person, date) it moves
// NO_RECORD -> OPEN -> CLOSED and, under PolicyReEntry, CLOSED -> OPEN again.
type Resolver struct {
	store  Store
	people person.Repository
	policy Policy
	log    *zap.Logger
}

// NewResolver creates a resolver. An empty policy means PolicyReEntry.
func NewResolver(store Store, people person.Repository, policy Policy, log *zap.Logger) *Resolver {
	if policy == "" {
		policy = PolicyReEntry
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{store: store, people: people, policy: policy, log: log}
}

// Policy returns the active policy.
func (r *Resolver) Policy() Policy { return r.policy }

// Resolve applies one scan of personID at (date, at) to the ledger.
func (r *Resolver) Resolve(ctx context.Context, personID int64, date Date, at TimeOfDay) (Outcome, error) {
	var out Outcome
	err := r.store.WithinDay(ctx, personID, date, func(l Ledger) error {
		var err error
		out, err = r.transition(ctx, l, personID, date, at)
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func (r *Resolver) transition(ctx context.Context, l Ledger, personID int64, date Date, at TimeOfDay) (Outcome, error) {
	open, err := l.FindOpen(ctx, personID, date)
	if err != nil {
		return Outcome{}, err
	}
	if open != nil {
		if at < *open.CheckIn {
			return Outcome{}, fmt.Errorf("record %d checked in at %s, scan at %s: %w",
				open.ID, open.CheckIn, at, apperr.ErrInvalidTimeOrdering)
		}
		if err := l.CloseOut(ctx, open.ID, at); err != nil {
			return Outcome{}, apperr.Storage("close presence", err)
		}
		open.CheckOut = &at
		return Outcome{Kind: Saida, Record: *open}, nil
	}

	latest, err := l.FindLatest(ctx, personID, date)
	if err != nil {
		return Outcome{}, err
	}
	switch {
	case latest == nil:
		return r.checkIn(ctx, l, personID, date, at)
	case latest.Placeholder():
		if err := l.FillCheckIn(ctx, latest.ID, at); err != nil {
			return Outcome{}, apperr.Storage("fill presence check-in", err)
		}
		latest.CheckIn = &at
		return Outcome{Kind: Entrada, Record: *latest}, nil
	case r.policy == PolicyClosedDay:
		return Outcome{Kind: DayClosed, Record: *latest}, nil
	case at < *latest.CheckOut:
		return Outcome{}, fmt.Errorf("record %d checked out at %s, re-entry at %s: %w",
			latest.ID, latest.CheckOut, at, apperr.ErrInvalidTimeOrdering)
	default:
		return r.checkIn(ctx, l, personID, date, at)
	}
}

func (r *Resolver) checkIn(ctx context.Context, l Ledger, personID int64, date Date, at TimeOfDay) (Outcome, error) {
	rec := Record{PersonID: personID, Date: date, CheckIn: &at}
	id, err := l.Insert(ctx, rec)
	if err != nil {
		return Outcome{}, err
	}
	rec.ID = id
	return Outcome{Kind: Entrada, Record: rec}, nil
}

// RegisterAbsences inserts one placeholder for every person with no record
// on date and returns how many were inserted. Re-running it for the same
// date inserts nothing new.
func (r *Resolver) RegisterAbsences(ctx context.Context, date Date) (int, error) {
	people, err := r.people.ListAll(ctx)
	if err != nil {
		return 0, apperr.Storage("list people", err)
	}
	inserted := 0
	for _, p := range people {
		err := r.store.WithinDay(ctx, p.ID, date, func(l Ledger) error {
			latest, err := l.FindLatest(ctx, p.ID, date)
			if err != nil || latest != nil {
				return err
			}
			if _, err := l.Insert(ctx, Record{PersonID: p.ID, Date: date}); err != nil {
				return err
			}
			inserted++
			return nil
		})
		if err != nil {
			return inserted, err
		}
	}
	r.log.Info("absences registered", zap.String("date", date.String()), zap.Int("inserted", inserted))
	return inserted, nil
}

// History returns the newest records of one person, newest first.
func (r *Resolver) History(ctx context.Context, personID int64, limit int) ([]Record, error) {
	if _, err := r.people.GetByID(ctx, personID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > MaxHistory {
		limit = MaxHistory
	}
	records, err := r.store.ListForPerson(ctx, personID, limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Attendee is one present person with the day's cycles.
type Attendee struct {
	Person  person.Person `json:"person"`
	Records []Record      `json:"records"`
	Inside  bool          `json:"inside"`
}

// DailySummary splits the roster into present and absent people for a day.
type DailySummary struct {
	Date    Date            `json:"date"`
	Present []Attendee      `json:"present"`
	Absent  []person.Person `json:"absent"`
}

// Daily builds the present/absent split for date. A person counts as present
// when at least one record of the day has a check-in.
func (r *Resolver) Daily(ctx context.Context, date Date) (DailySummary, error) {
	var (
		people  []person.Person
		records []Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		people, err = r.people.ListAll(gctx)
		return apperr.Storage("list people", err)
	})
	g.Go(func() error {
		var err error
		records, err = r.store.ListForDate(gctx, date)
		return err
	})
	if err := g.Wait(); err != nil {
		return DailySummary{}, err
	}

	byPerson := make(map[int64][]Record)
	for _, rec := range records {
		if !rec.Placeholder() {
			byPerson[rec.PersonID] = append(byPerson[rec.PersonID], rec)
		}
	}

	summary := DailySummary{Date: date, Present: []Attendee{}, Absent: []person.Person{}}
	for _, p := range people {
		recs, ok := byPerson[p.ID]
		if !ok {
			summary.Absent = append(summary.Absent, p)
			continue
		}
		inside := false
		for _, rec := range recs {
			if rec.Open() {
				inside = true
			}
		}
		summary.Present = append(summary.Present, Attendee{Person: p, Records: recs, Inside: inside})
	}
	sort.Slice(summary.Present, func(i, j int) bool { return summary.Present[i].Person.ID < summary.Present[j].Person.ID })
	sort.Slice(summary.Absent, func(i, j int) bool { return summary.Absent[i].ID < summary.Absent[j].ID })
	return summary, nil
}
