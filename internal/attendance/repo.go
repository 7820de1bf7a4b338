package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"smartlab/internal/apperr"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repository persists presence records in Postgres.
type Repository struct {
	db *sql.DB
	q  querier
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, q: db}
}

// WithinDay runs fn in a transaction holding an advisory lock scoped to
// (personID, date). Scans of other people or days do not wait on it.
func (r *Repository) WithinDay(ctx context.Context, personID int64, date Date, fn func(Ledger) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Storage("begin presence tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey(personID, date)); err != nil {
		return apperr.Storage("lock presence day", err)
	}
	if err := fn(&Repository{db: r.db, q: tx}); err != nil {
		return err
	}
	return apperr.Storage("commit presence tx", tx.Commit())
}

// lockKey names the advisory lock of one person and day. Postgres hashes it
// to a bigint, so the full person id takes part in the key.
func lockKey(personID int64, date Date) string {
	return fmt.Sprintf("presencas:%d:%s", personID, date)
}

const selectRecord = `SELECT id, estagiario_id, data, hora_entrada, hora_saida FROM presencas`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.PersonID, &rec.Date, &rec.CheckIn, &rec.CheckOut)
	return rec, err
}

func (r *Repository) queryOne(ctx context.Context, op, query string, args ...any) (*Record, error) {
	rec, err := scanRecord(r.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Storage(op, err)
	}
	return &rec, nil
}

// FindOpen returns the open record for the day, if any.
func (r *Repository) FindOpen(ctx context.Context, personID int64, date Date) (*Record, error) {
	return r.queryOne(ctx, "find open presence", selectRecord+`
		WHERE estagiario_id = $1 AND data = $2
		  AND hora_entrada IS NOT NULL AND hora_saida IS NULL
		ORDER BY hora_entrada DESC, id DESC
		LIMIT 1
	`, personID, date)
}

// FindLatest returns the most recent record for the day, if any.
func (r *Repository) FindLatest(ctx context.Context, personID int64, date Date) (*Record, error) {
	return r.queryOne(ctx, "find latest presence", selectRecord+`
		WHERE estagiario_id = $1 AND data = $2
		ORDER BY hora_entrada DESC NULLS LAST, id DESC
		LIMIT 1
	`, personID, date)
}

// Insert writes a new record and returns its id.
func (r *Repository) Insert(ctx context.Context, rec Record) (int64, error) {
	var id int64
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO presencas (estagiario_id, data, hora_entrada, hora_saida)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, rec.PersonID, rec.Date, rec.CheckIn, rec.CheckOut).Scan(&id)
	if err != nil {
		return 0, apperr.Storage("insert presence", err)
	}
	return id, nil
}

// CloseOut sets the check-out of an open record.
func (r *Repository) CloseOut(ctx context.Context, id int64, at TimeOfDay) error {
	return r.updateOne(ctx, "close presence", `
		UPDATE presencas SET hora_saida = $2
		WHERE id = $1 AND hora_entrada IS NOT NULL AND hora_saida IS NULL
	`, id, at)
}

// FillCheckIn sets the check-in of an absence placeholder.
func (r *Repository) FillCheckIn(ctx context.Context, id int64, at TimeOfDay) error {
	return r.updateOne(ctx, "fill presence check-in", `
		UPDATE presencas SET hora_entrada = $2
		WHERE id = $1 AND hora_entrada IS NULL
	`, id, at)
}

func (r *Repository) updateOne(ctx context.Context, op, query string, id int64, at TimeOfDay) error {
	res, err := r.q.ExecContext(ctx, query, id, at)
	if err != nil {
		return apperr.Storage(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Storage(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", op, id, ErrRecordNotOpen)
	}
	return nil
}

// ListForDate returns every record of a day ordered by person and check-in.
func (r *Repository) ListForDate(ctx context.Context, date Date) ([]Record, error) {
	return r.list(ctx, "list presences for date", selectRecord+`
		WHERE data = $1
		ORDER BY estagiario_id, hora_entrada NULLS FIRST, id
	`, date)
}

// ListForPerson returns the newest records of one person.
func (r *Repository) ListForPerson(ctx context.Context, personID int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(ctx, "list presences for person", selectRecord+`
		WHERE estagiario_id = $1
		ORDER BY data DESC, hora_entrada DESC NULLS LAST, id DESC
		LIMIT $2
	`, personID, limit)
}

func (r *Repository) list(ctx context.Context, op, query string, args ...any) ([]Record, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, apperr.Storage(op, err)
		}
		res = append(res, rec)
	}
	return res, apperr.Storage(op, rows.Err())
}

// PresenceCounts counts real (non-placeholder) records per person.
func (r *Repository) PresenceCounts(ctx context.Context) (map[int64]int, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT estagiario_id, COUNT(*)
		FROM presencas
		WHERE hora_entrada IS NOT NULL
		GROUP BY estagiario_id
	`)
	if err != nil {
		return nil, apperr.Storage("count presences", err)
	}
	defer rows.Close()
	counts := make(map[int64]int)
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, apperr.Storage("count presences", err)
		}
		counts[id] = n
	}
	return counts, apperr.Storage("count presences", rows.Err())
}
