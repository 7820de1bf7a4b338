package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"smartlab/internal/attendance"
	"smartlab/internal/metrics"
	"smartlab/internal/queue"
)

// AbsenceRegistrar inserts absence placeholders for a day.
type AbsenceRegistrar interface {
	RegisterAbsences(ctx context.Context, date attendance.Date) (int, error)
}

// Worker consumes attendance jobs.
type Worker struct {
	q       queue.Queue
	absence AbsenceRegistrar
	metrics *metrics.Metrics
	log     *zap.Logger
}

func New(q queue.Queue, absence AbsenceRegistrar, m *metrics.Metrics, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{q: q, absence: absence, metrics: m, log: log}
}

// Run processes messages until ctx ends.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.q.Consume(ctx)
	if err != nil {
		return err
	}
	w.log.Info("worker started, waiting for messages")
	for msg := range messages {
		w.Handle(ctx, msg)
	}
	w.log.Info("worker stopped")
	return nil
}

// Handle processes one message. Failures are logged; the job is not retried.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) {
	log := w.log.With(zap.String("job_id", msg.ID), zap.String("type", msg.Type))
	if msg.Type != queue.TypeAbsences {
		log.Warn("ignoring unknown job type")
		return
	}
	date, err := attendance.ParseDate(string(msg.Body))
	if err != nil {
		log.Warn("ignoring absence job with bad date", zap.Error(err))
		return
	}
	n, err := w.absence.RegisterAbsences(ctx, date)
	w.metrics.AbsencesInserted(n)
	if err != nil {
		log.Error("register absences failed", zap.String("date", date.String()), zap.Int("inserted", n), zap.Error(err))
		return
	}
	log.Info("absence job done", zap.String("date", date.String()), zap.Int("inserted", n))
}

// Scheduler enqueues the absence job for the current day once the local
// clock passes the cutoff.
type Scheduler struct {
	q      queue.Queue
	clock  attendance.Clock
	cutoff attendance.TimeOfDay
	log    *zap.Logger

	mu   sync.Mutex
	last attendance.Date
}

func NewScheduler(q queue.Queue, clock attendance.Clock, cutoff time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{q: q, clock: clock, cutoff: attendance.TimeOfDay(cutoff / time.Second), log: log}
}

// Tick enqueues today's job if the cutoff passed and it was not enqueued
// yet by this scheduler. It reports whether a job was published.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	date, now := attendance.Stamp(s.clock)
	s.mu.Lock()
	defer s.mu.Unlock()
	if now < s.cutoff || s.last == date {
		return false, nil
	}
	if err := s.q.Publish(ctx, queue.NewAbsenceJob(date.String())); err != nil {
		return false, err
	}
	s.last = date
	s.log.Info("absence job enqueued", zap.String("date", date.String()))
	return true, nil
}

// Run ticks every interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("enqueue absence job failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
