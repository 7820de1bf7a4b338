package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"smartlab/internal/apperr"
)

// Registry records the badge readers that obtained tokens and the refresh
// tokens issued to them.
type Registry interface {
	Register(ctx context.Context, deviceID string) error
	SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error
	RevokeRefreshToken(ctx context.Context, token string) error
	// ConsumeRefreshToken revokes an active token and returns its reader.
	// Unknown, revoked and expired tokens yield apperr.ErrUnauthorized.
	ConsumeRefreshToken(ctx context.Context, token string) (string, error)
}

// ValidID reports whether deviceID is usable as a reader id and cache key.
func ValidID(deviceID string) bool {
	if deviceID == "" || len(deviceID) > 64 {
		return false
	}
	return !strings.ContainsAny(deviceID, " \t\r\n:")
}

// PostgresRegistry persists readers in the rfid_readers table.
type PostgresRegistry struct {
	db *sql.DB
}

func NewPostgresRegistry(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

// Register ensures a reader row exists and bumps its last-seen time.
func (r *PostgresRegistry) Register(ctx context.Context, deviceID string) error {
	if !ValidID(deviceID) {
		return fmt.Errorf("device id %q: %w", deviceID, apperr.ErrInvalidInput)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rfid_readers (device_id)
		VALUES ($1)
		ON CONFLICT (device_id) DO UPDATE SET last_seen_at = NOW()
	`, deviceID)
	return apperr.Storage("register reader", err)
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *PostgresRegistry) SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (device_id, token, expires_at)
		VALUES ($1, $2, $3)
	`, deviceID, token, expiresAt)
	return apperr.Storage("save refresh token", err)
}

// RevokeRefreshToken marks a token revoked.
func (r *PostgresRegistry) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return apperr.Storage("revoke refresh token", err)
}

func (r *PostgresRegistry) ConsumeRefreshToken(ctx context.Context, token string) (string, error) {
	var deviceID string
	err := r.db.QueryRowContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token = $1 AND NOT revoked AND expires_at > NOW()
		RETURNING device_id
	`, token).Scan(&deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("refresh token: %w", apperr.ErrUnauthorized)
	}
	if err != nil {
		return "", apperr.Storage("consume refresh token", err)
	}
	return deviceID, nil
}

// MemoryRegistry is an in-process Registry for dev/testing.
type MemoryRegistry struct {
	mu      sync.Mutex
	devices map[string]time.Time
	tokens  map[string]refresh
	now     func() time.Time
}

type refresh struct {
	deviceID  string
	expiresAt time.Time
	revoked   bool
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{devices: make(map[string]time.Time), tokens: make(map[string]refresh), now: time.Now}
}

func (r *MemoryRegistry) Register(_ context.Context, deviceID string) error {
	if !ValidID(deviceID) {
		return fmt.Errorf("device id %q: %w", deviceID, apperr.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[deviceID] = r.now()
	return nil
}

func (r *MemoryRegistry) SaveRefreshToken(_ context.Context, deviceID, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token] = refresh{deviceID: deviceID, expiresAt: expiresAt}
	return nil
}

func (r *MemoryRegistry) RevokeRefreshToken(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[token]; ok {
		t.revoked = true
		r.tokens[token] = t
	}
	return nil
}

// Registered reports whether deviceID has registered.
func (r *MemoryRegistry) Registered(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.devices[deviceID]
	return ok
}

func (r *MemoryRegistry) ConsumeRefreshToken(_ context.Context, token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[token]
	if !ok || t.revoked || !r.now().Before(t.expiresAt) {
		return "", fmt.Errorf("refresh token: %w", apperr.ErrUnauthorized)
	}
	t.revoked = true
	r.tokens[token] = t
	return t.deviceID, nil
}
