package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_active_connections",
		Help: "Active websocket connections",
	})
	MessagesRouted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_routed_total",
		Help: "Messages accepted into the ledger and routed",
	})
	EventErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_event_errors_total",
		Help: "Inbound events rejected with an error envelope",
	})
)

func Init() {
	prometheus.MustRegister(ActiveConnections, MessagesRouted, EventErrors)
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
