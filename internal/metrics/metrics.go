// Package metrics exposes Prometheus counters for verification and moderation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the application services report to.
type Recorder interface {
	CodeIssued(channel string)
	DispatchFailed(channel string)
	CodeVerified(channel string, ok bool)
	FlagReported()
	JobTransitioned(from, to string)
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	codesIssued      *prometheus.CounterVec
	dispatchFailures *prometheus.CounterVec
	verifications    *prometheus.CounterVec
	flagReports      prometheus.Counter
	transitions      *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		codesIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobboard_verification_codes_issued_total",
			Help: "Verification codes stored, by channel.",
		}, []string{"channel"}),
		dispatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobboard_verification_dispatch_failures_total",
			Help: "Verification notifications that failed to send, by channel.",
		}, []string{"channel"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobboard_verification_attempts_total",
			Help: "Code confirmation attempts, by channel and result.",
		}, []string{"channel", "result"}),
		flagReports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobboard_flag_reports_total",
			Help: "Flag reports recorded against jobs.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobboard_job_transitions_total",
			Help: "Job status transitions applied, by from and to status.",
		}, []string{"from", "to"}),
	}

	reg.MustRegister(
		c.codesIssued,
		c.dispatchFailures,
		c.verifications,
		c.flagReports,
		c.transitions,
	)
	return c
}

func (c *Collector) CodeIssued(channel string) {
	c.codesIssued.WithLabelValues(channel).Inc()
}

func (c *Collector) DispatchFailed(channel string) {
	c.dispatchFailures.WithLabelValues(channel).Inc()
}

func (c *Collector) CodeVerified(channel string, ok bool) {
	result := "rejected"
	if ok {
		result = "accepted"
	}
	c.verifications.WithLabelValues(channel, result).Inc()
}

func (c *Collector) FlagReported() {
	c.flagReports.Inc()
}

func (c *Collector) JobTransitioned(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything. Services default to it when no Recorder is wired.
type Nop struct{}

func (Nop) CodeIssued(string)              {}
func (Nop) DispatchFailed(string)          {}
func (Nop) CodeVerified(string, bool)      {}
func (Nop) FlagReported()                  {}
func (Nop) JobTransitioned(string, string) {}
