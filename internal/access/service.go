package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"smartlab/internal/apperr"
	"smartlab/internal/attendance"
	"smartlab/internal/badge"
	"smartlab/internal/metrics"
	"smartlab/internal/person"
)

// Denial reasons.
const (
	ReasonUnregistered        = "unregistered"
	ReasonInvalidInput        = "invalid_input"
	ReasonInvalidTimeOrdering = "invalid_time_ordering"
	ReasonInternal            = "internal_error"
)

// KindQuery reports a scan on a day that is already closed.
const KindQuery = "query"

// Decision is the uniform answer to a badge presented at a reader.
type Decision struct {
	Granted bool           `json:"granted"`
	Kind    string         `json:"kind,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Message string         `json:"message"`
	UID     string         `json:"uid,omitempty"`
	Person  *person.Person `json:"person,omitempty"`
	Date    string         `json:"date,omitempty"`
	Time    string         `json:"time,omitempty"`
}

// BadgeResolver finds the owner of a scanned uid.
type BadgeResolver interface {
	Resolve(ctx context.Context, rawUID string) (person.Person, error)
}

// AttendanceResolver applies a scan to the ledger.
type AttendanceResolver interface {
	Resolve(ctx context.Context, personID int64, date attendance.Date, at attendance.TimeOfDay) (attendance.Outcome, error)
}

// Service ties badge resolution and attendance resolution together and owns
// the per-reader scan cache.
type Service struct {
	badges  BadgeResolver
	ledger  AttendanceResolver
	clock   attendance.Clock
	cache   ReaderCache
	scanTTL time.Duration
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }
func WithLogger(l *zap.Logger) Option       { return func(s *Service) { s.log = l } }

// WithReaderCache sets the scan cache and how long a captured scan lives.
func WithReaderCache(c ReaderCache, ttl time.Duration) Option {
	return func(s *Service) { s.cache, s.scanTTL = c, ttl }
}

// WithNow overrides the wall clock used for reader scan expiry.
func WithNow(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(badges BadgeResolver, ledger AttendanceResolver, clock attendance.Clock, opts ...Option) *Service {
	s := &Service{
		badges:  badges,
		ledger:  ledger,
		clock:   clock,
		scanTTL: 30 * time.Second,
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NewMemoryReaderCache(s.now)
	}
	return s
}

// VerifyAccess resolves rawUID and records the scan. Business outcomes come
// back as denied decisions with a nil error; a storage fault returns an
// internal_error decision together with the error.
func (s *Service) VerifyAccess(ctx context.Context, rawUID string) (Decision, error) {
	uid := badge.Normalize(rawUID)
	p, err := s.badges.Resolve(ctx, uid)
	switch {
	case errors.Is(err, apperr.ErrInvalidInput):
		return s.deny(uid, ReasonInvalidInput, "badge uid is required"), nil
	case errors.Is(err, apperr.ErrBadgeNotFound):
		s.log.Info("access denied: badge not registered", zap.String("uid", uid))
		return s.deny(uid, ReasonUnregistered, "badge is not registered"), nil
	case err != nil:
		return s.fault(uid, err)
	}

	date, at := attendance.Stamp(s.clock)
	start := time.Now()
	out, err := s.ledger.Resolve(ctx, p.ID, date, at)
	s.metrics.ObserveResolve(start)
	if errors.Is(err, apperr.ErrInvalidTimeOrdering) {
		s.log.Warn("scan rejected: out of order", zap.Int64("person_id", p.ID), zap.Error(err))
		d := s.deny(uid, ReasonInvalidTimeOrdering, "scan time precedes the recorded time")
		d.Person = &p
		return d, nil
	}
	if err != nil {
		return s.fault(uid, err)
	}

	d := Decision{
		Granted: true,
		UID:     uid,
		Person:  &p,
		Date:    date.String(),
		Time:    at.String(),
	}
	switch out.Kind {
	case attendance.DayClosed:
		d.Kind = KindQuery
		d.Message = "already registered today"
	default:
		d.Kind = string(out.Kind)
		d.Message = fmt.Sprintf("access granted - %s", out.Kind)
	}
	s.metrics.Decision(d.Kind)
	s.log.Info("access granted", zap.Int64("person_id", p.ID), zap.String("kind", d.Kind), zap.String("time", d.Time))
	return d, nil
}

func (s *Service) deny(uid, reason, msg string) Decision {
	s.metrics.Decision(reason)
	return Decision{Granted: false, Reason: reason, Message: msg, UID: uid}
}

func (s *Service) fault(uid string, err error) (Decision, error) {
	s.metrics.Decision(ReasonInternal)
	return Decision{Granted: false, Reason: ReasonInternal, Message: "internal error", UID: uid}, err
}

// CaptureScan remembers uid as the latest scan of deviceID.
func (s *Service) CaptureScan(ctx context.Context, deviceID, rawUID string) (Scan, error) {
	uid := badge.Normalize(rawUID)
	if uid == "" || strings.TrimSpace(deviceID) == "" {
		return Scan{}, fmt.Errorf("device id and uid required: %w", apperr.ErrInvalidInput)
	}
	now := s.now()
	scan := Scan{DeviceID: deviceID, UID: uid, ScannedAt: now, ExpiresAt: now.Add(s.scanTTL)}
	if err := s.cache.Put(ctx, scan); err != nil {
		return Scan{}, err
	}
	return scan, nil
}

// LastScan returns the live scan of deviceID, or nil once it expired.
func (s *Service) LastScan(ctx context.Context, deviceID string) (*Scan, error) {
	return s.cache.Get(ctx, deviceID)
}

// ConfirmScan consumes the scan of deviceID when it still holds rawUID.
func (s *Service) ConfirmScan(ctx context.Context, deviceID, rawUID string) (bool, error) {
	uid := badge.Normalize(rawUID)
	if uid == "" {
		return false, fmt.Errorf("uid required: %w", apperr.ErrInvalidInput)
	}
	return s.cache.Consume(ctx, deviceID, uid)
}
