// Package metrics holds the bot's Prometheus collectors and the small HTTP
// server that exposes them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	updatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echobot_updates_total",
		Help: "Text updates handled, by the chat mode that handled them",
	}, []string{"mode"})

	ratesRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "echobot_rates_requests_total",
		Help: "Currency rate lookups by outcome (fresh, cached, stale, error)",
	}, []string{"result"})

	sendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echobot_send_errors_total",
		Help: "Messages that failed to reach Telegram",
	})

	throttled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "echobot_throttled_total",
		Help: "Updates dropped by per-chat flood control",
	})
)

func RecordUpdate(mode string) {
	updatesTotal.WithLabelValues(mode).Inc()
}

func RecordRates(result string) {
	ratesRequests.WithLabelValues(result).Inc()
}

func RecordSendError() {
	sendErrors.Inc()
}

func RecordThrottled() {
	throttled.Inc()
}
