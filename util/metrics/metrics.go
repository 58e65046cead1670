// Package metrics exposes Prometheus counters for logins, tokens and rate limiting.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives auth and token events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	LoginAttempt(mode string, ok bool)
	TokenIssued(tokenType string)
	TokenRedeemed(tokenType string, ok bool)
	TokensPurged(n int64)
	RateLimited(path string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) LoginAttempt(string, bool) {}
func (Nop) TokenIssued(string) {}
func (Nop) TokenRedeemed(string, bool) {}
func (Nop) TokensPurged(int64) {}
func (Nop) RateLimited(string) {}

// Collector is the Prometheus Recorder.
type Collector struct {
	logins        *prometheus.CounterVec
	tokensIssued  *prometheus.CounterVec
	tokensRedeem  *prometheus.CounterVec
	tokensPurged  prometheus.Counter
	rateLimitHits *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paralegal_login_attempts_total",
			Help: "Login attempts by auth mode and result.",
		}, []string{"mode", "result"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paralegal_tokens_issued_total",
			Help: "Invite and password-reset tokens issued.",
		}, []string{"type"}),
		tokensRedeem: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paralegal_tokens_redeemed_total",
			Help: "Token redemptions by type and result.",
		}, []string{"type", "result"}),
		tokensPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paralegal_tokens_purged_total",
			Help: "Expired tokens deleted by the sweep.",
		}),
		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paralegal_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"path"}),
	}

	reg.MustRegister(
		c.logins,
		c.tokensIssued,
		c.tokensRedeem,
		c.tokensPurged,
		c.rateLimitHits,
	)
	return c
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (c *Collector) LoginAttempt(mode string, ok bool) {
	c.logins.WithLabelValues(mode, result(ok)).Inc()
}

func (c *Collector) TokenIssued(tokenType string) {
	c.tokensIssued.WithLabelValues(tokenType).Inc()
}

func (c *Collector) TokenRedeemed(tokenType string, ok bool) {
	c.tokensRedeem.WithLabelValues(tokenType, result(ok)).Inc()
}

func (c *Collector) TokensPurged(n int64) {
	c.tokensPurged.Add(float64(n))
}

func (c *Collector) RateLimited(path string) {
	c.rateLimitHits.WithLabelValues(path).Inc()
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
