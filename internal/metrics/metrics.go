// Package metrics exposes the server's Prometheus instrumentation. Metrics
// register against the default registry via promauto, so importing this
// package is enough to make them scrapeable.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "railsgo"

var (
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connections_total",
		Help:      "Total number of accepted TCP connections",
	})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections_active",
		Help:      "Number of currently open sessions",
	})

	PacketsIn = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_in_total",
		Help:      "Total inbound frames processed",
	})

	PacketsOut = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_out_total",
		Help:      "Total outbound packets queued for delivery",
	})

	PacketsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_cancelled_total",
		Help:      "Packets dropped because an event listener cancelled them",
	})

	UnknownPackets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_unknown_total",
		Help:      "Inbound packets with no registration for their connection state",
	})

	Disconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "disconnects_total",
		Help:      "Sessions closed by the server with an explicit reason",
	})

	LoginsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_succeeded_total",
		Help:      "Logins that completed the encryption and identity handshake",
	})

	LoginsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_failed_total",
		Help:      "Logins rejected during the encryption or identity handshake",
	})
)

// Handler returns the scrape endpoint handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
