package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors of the attendance service. A nil *Metrics
// records nothing.
type Metrics struct {
	Decisions       *prometheus.CounterVec
	Enrollments     *prometheus.CounterVec
	Absences        prometheus.Counter
	ResolveDuration prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartlab",
			Name:      "access_decisions_total",
			Help:      "Badge access decisions by outcome.",
		}, []string{"outcome"}),
		Enrollments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartlab",
			Name:      "badge_enrollments_total",
			Help:      "Badge enrollment attempts by result.",
		}, []string{"result"}),
		Absences: f.NewCounter(prometheus.CounterOpts{
			Namespace: "smartlab",
			Name:      "absence_placeholders_total",
			Help:      "Absence placeholders inserted.",
		}),
		ResolveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "smartlab",
			Name:      "attendance_resolve_seconds",
			Help:      "Latency of one attendance resolution, lock included.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
}

func (m *Metrics) Decision(outcome string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Enrollment(result string) {
	if m == nil {
		return
	}
	m.Enrollments.WithLabelValues(result).Inc()
}

func (m *Metrics) AbsencesInserted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Absences.Add(float64(n))
}

// ObserveResolve records the time elapsed since start.
func (m *Metrics) ObserveResolve(start time.Time) {
	if m == nil {
		return
	}
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}
