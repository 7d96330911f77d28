package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	relayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_relay_requests_total",
			Help: "Relay invocations by method, outcome and response status",
		},
		[]string{"method", "outcome", "status"},
	)

	relayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompt_relay_request_duration_seconds",
			Help:    "End-to-end relay duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "outcome"},
	)

	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prompt_relay_upstream_duration_seconds",
			Help:    "generateContent call duration",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"model", "status"},
	)

	modelTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prompt_relay_model_tokens_total",
			Help: "Tokens reported by the provider per model",
		},
		[]string{"kind", "model"},
	)
)

// Register registers all relay collectors. Registering twice with the same registry is a no-op.
func Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{relayRequests, relayDuration, upstreamDuration, modelTokens} {
		if err := r.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// RecordRelayOutcome counts one relay invocation
func RecordRelayOutcome(method, outcome string, status int, dur time.Duration) {
	relayRequests.WithLabelValues(method, outcome, strconv.Itoa(status)).Inc()
	relayDuration.WithLabelValues(method, outcome).Observe(dur.Seconds())
}

// ObserveUpstreamDuration records a completed upstream exchange. Status 0 means the exchange failed.
func ObserveUpstreamDuration(model string, status int, dur time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	upstreamDuration.WithLabelValues(model, label).Observe(dur.Seconds())
}

// RecordTokens adds provider-reported token usage
func RecordTokens(model string, prompt, candidates int) {
	if prompt > 0 {
		modelTokens.WithLabelValues("prompt", model).Add(float64(prompt))
	}
	if candidates > 0 {
		modelTokens.WithLabelValues("candidates", model).Add(float64(candidates))
	}
}
