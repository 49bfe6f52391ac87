// Package metrics exposes prometheus counters for the turn pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TurnsTotal counts completed turns by outcome (done, invalid_input,
	// not_found, nothing_to_regenerate, provider_unavailable,
	// provider_timeout, internal).
	TurnsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orion",
		Name:      "turns_total",
		Help:      "Completed conversation turns by outcome.",
	}, []string{"outcome"})

	// TokensConsumed counts provider tokens consumed by successful turns.
	TokensConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orion",
		Name:      "tokens_consumed_total",
		Help:      "Total provider tokens consumed.",
	})

	// ProviderAttempts counts outbound completion attempts, retries included.
	ProviderAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orion",
		Name:      "provider_attempts_total",
		Help:      "Outbound completion attempts, including retries.",
	})

	// ProviderErrors counts failed completion attempts by kind.
	ProviderErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orion",
		Name:      "provider_errors_total",
		Help:      "Failed completion attempts by kind (timeout, status).",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(TurnsTotal, TokensConsumed, ProviderAttempts, ProviderErrors)
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
