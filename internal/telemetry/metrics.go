// Package telemetry provides Prometheus metrics, tracing and correlation-id aware logging helpers.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Flow outcomes recorded by RecordOAuthFlow.
const (
	OutcomeStarted = "started"
	OutcomeSuccess = "success"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

var (
	once sync.Once

	// OAuthFlows counts authorization starts and callback outcomes.
	OAuthFlows *prometheus.CounterVec

	// TokenRefreshes counts refresh attempts by trigger and outcome.
	TokenRefreshes *prometheus.CounterVec

	// RefreshDuration observes platform refresh latency in seconds.
	RefreshDuration *prometheus.HistogramVec

	// RefreshJobsDue is the number of refresh jobs due at the last poll.
	RefreshJobsDue prometheus.Gauge

	// RateLimitWaits counts X rate limit backoffs.
	RateLimitWaits prometheus.Counter
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		OAuthFlows = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_flows_total",
			Help: "OAuth authorization flows by platform and outcome",
		}, []string{"platform", "outcome"})
		TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_token_refreshes_total",
			Help: "Token refresh attempts by platform, trigger and outcome",
		}, []string{"platform", "trigger", "outcome"})
		RefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oauth_token_refresh_duration_seconds",
			Help:    "Token refresh duration seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"platform"})
		RefreshJobsDue = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "oauth_refresh_jobs_due",
			Help: "Refresh jobs due at the last scheduler poll",
		})
		RateLimitWaits = promauto.NewCounter(prometheus.CounterOpts{
			Name: "x_rate_limit_waits_total",
			Help: "Number of times an X call waited for a rate limit reset",
		})
	})
}

// RecordOAuthFlow increments the flow counter. Safe before Init.
func RecordOAuthFlow(platform, outcome string) {
	if OAuthFlows != nil {
		OAuthFlows.WithLabelValues(platform, outcome).Inc()
	}
}

// RecordTokenRefresh increments the refresh counter and observes duration.
// Safe before Init.
func RecordTokenRefresh(platform, trigger string, success bool, seconds float64) {
	if TokenRefreshes == nil {
		return
	}
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeError
	}
	TokenRefreshes.WithLabelValues(platform, trigger, outcome).Inc()
	RefreshDuration.WithLabelValues(platform).Observe(seconds)
}

// SetRefreshJobsDue records the current due job count.
func SetRefreshJobsDue(n int) {
	if RefreshJobsDue != nil {
		RefreshJobsDue.Set(float64(n))
	}
}

// RecordRateLimitWait counts one rate limit backoff.
func RecordRateLimitWait() {
	if RateLimitWaits != nil {
		RateLimitWaits.Inc()
	}
}
