// ABOUTME: Prometheus metrics for the gateway
// ABOUTME: Session gauge, tool call counters, and quota rejection counter

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// GatewayMetrics holds all Prometheus metrics for the gateway.
type GatewayMetrics struct {
	ActiveSessions  prometheus.Gauge
	SessionsTotal   prometheus.Counter
	ToolCallsTotal  *prometheus.CounterVec
	QuotaRejections prometheus.Counter
}

// New initializes and registers the Prometheus metrics on a fresh registry.
// The registry is returned so the HTTP layer can serve it.
func New() (*GatewayMetrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &GatewayMetrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "teable_gateway",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of currently open MCP sessions.",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "teable_gateway",
			Subsystem: "sessions",
			Name:      "opened_total",
			Help:      "Total number of MCP sessions opened.",
		}),
		ToolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teable_gateway",
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Total number of tool invocations by tool name.",
		}, []string{"tool"}),
		QuotaRejections: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "teable_gateway",
			Subsystem: "quota",
			Name:      "rejections_total",
			Help:      "Total number of record writes rejected by the quota guard.",
		}),
	}
	return m, reg
}
