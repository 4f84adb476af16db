// Package metrics holds the Prometheus collectors of the ledger and the fraud
// scanner. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time" // Scan duration

	"github.com/prometheus/client_golang/prometheus" // Prometheus collectors
)

// Metrics groups the collectors
type Metrics struct {
	Submissions  *prometheus.CounterVec
	Errors       *prometheus.CounterVec
	Verdicts     *prometheus.CounterVec
	Reviews      *prometheus.CounterVec
	ScanDuration prometheus.Histogram
	ScanFlagged  prometheus.Counter
	CacheLookups *prometheus.CounterVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_ledger_submissions_total",
			Help: "Ledger submissions by kind and resulting status.",
		}, []string{"kind", "status"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_ledger_errors_total",
			Help: "Rejected ledger operations by error code.",
		}, []string{"code"}),
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_fraud_verdicts_total",
			Help: "Suspicious verdicts by rule and source.",
		}, []string{"rule", "source"}),
		Reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_review_decisions_total",
			Help: "Review decisions on flagged transactions.",
		}, []string{"action"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wallet_fraud_scan_duration_seconds",
			Help:    "Duration of fraud scans.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ScanFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wallet_fraud_scan_flagged_total",
			Help: "Transactions flagged by fraud scans.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_cache_lookups_total",
			Help: "Read cache lookups by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Submissions, m.Errors, m.Verdicts, m.Reviews, m.ScanDuration, m.ScanFlagged, m.CacheLookups)
	}
	return m
}

// Submission counts a recorded transaction by kind and status
func (m *Metrics) Submission(kind, status string) {
	if m != nil {
		m.Submissions.WithLabelValues(kind, status).Inc()
	}
}

// Error counts a failed ledger operation by error code
func (m *Metrics) Error(code string) {
	if m != nil {
		m.Errors.WithLabelValues(code).Inc()
	}
}

// Verdict counts a suspicious verdict; source is submit or scan
func (m *Metrics) Verdict(rule, source string) {
	if m != nil {
		m.Verdicts.WithLabelValues(rule, source).Inc()
	}
}

// Review counts a review decision
func (m *Metrics) Review(action string) {
	if m != nil {
		m.Reviews.WithLabelValues(action).Inc()
	}
}

// Scan records one scan's duration and how many transactions it flagged
func (m *Metrics) Scan(d time.Duration, flagged int) {
	if m != nil {
		m.ScanDuration.Observe(d.Seconds())
		m.ScanFlagged.Add(float64(flagged))
	}
}

// Cache counts a read cache hit or miss
func (m *Metrics) Cache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
	} else {
		m.CacheLookups.WithLabelValues("miss").Inc()
	}
}
