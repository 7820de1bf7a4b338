package person

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"smartlab/internal/apperr"
)

const uniqueViolation = "23505"

// PostgresRepository reads and writes intern profiles in the estagiarios table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectPerson = `SELECT id, nome, email, numero_processo, COALESCE(curso, ''), rfid_uid FROM estagiarios`

func scanPerson(row interface{ Scan(...any) error }) (Person, error) {
	var p Person
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.ProcessNumber, &p.Course, &p.BadgeID)
	return p, err
}

// GetByID returns one profile.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (Person, error) {
	p, err := scanPerson(r.db.QueryRowContext(ctx, selectPerson+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Person{}, fmt.Errorf("person %d: %w", id, apperr.ErrPersonNotFound)
	}
	return p, apperr.Storage("get person", err)
}

// GetByBadge returns the owner of an already normalized badge uid.
func (r *PostgresRepository) GetByBadge(ctx context.Context, normalizedUID string) (Person, error) {
	p, err := scanPerson(r.db.QueryRowContext(ctx, selectPerson+` WHERE rfid_uid = $1`, normalizedUID))
	if errors.Is(err, sql.ErrNoRows) {
		return Person{}, apperr.ErrPersonNotFound
	}
	return p, apperr.Storage("get person by badge", err)
}

// SetBadge assigns or clears (uid == nil) the badge of a profile.
func (r *PostgresRepository) SetBadge(ctx context.Context, id int64, uid *string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE estagiarios SET rfid_uid = $2 WHERE id = $1`, id, uid)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("set badge: %w", apperr.ErrBadgeConflict)
		}
		return apperr.Storage("set badge", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Storage("set badge", err)
	}
	if n == 0 {
		return fmt.Errorf("person %d: %w", id, apperr.ErrPersonNotFound)
	}
	return nil
}

// Create inserts a minimal profile and returns its id.
func (r *PostgresRepository) Create(ctx context.Context, profile MinimalProfile) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO estagiarios (nome, numero_processo, curso, password_hash, rfid_uid)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
		RETURNING id
	`, profile.Name, profile.ProcessNumber, profile.Course, profile.PasswordHash, profile.BadgeID).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("create person: %w", apperr.ErrBadgeConflict)
		}
		return 0, apperr.Storage("create person", err)
	}
	return id, nil
}

// ListAll returns every profile ordered by id.
func (r *PostgresRepository) ListAll(ctx context.Context) ([]Person, error) {
	rows, err := r.db.QueryContext(ctx, selectPerson+` ORDER BY id`)
	if err != nil {
		return nil, apperr.Storage("list people", err)
	}
	defer rows.Close()

	var people []Person
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, apperr.Storage("scan person", err)
		}
		people = append(people, p)
	}
	return people, apperr.Storage("list people", rows.Err())
}

// isUniqueViolation reports a unique constraint failure. The only unique
// columns a badge write can hit are rfid_uid and the generated numero_processo.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
