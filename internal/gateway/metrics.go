package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

type Metrics struct {
	// Latency: полное время проксированного вызова, включая апстрим
	ProxyDuration *prometheus.HistogramVec

	// Traffic: общее кол-во проксированных вызовов
	ProxyTotal *prometheus.CounterVec

	// Saturation: состояние предохранителя (0=closed, 1=half-open, 2=open)
	BreakerState *prometheus.GaugeVec

	// Audit: заполненность буфера аудита (backpressure)
	AuditBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern — без регистратора метрики уходят в локальный реестр
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		ProxyDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tag_proxy_duration_seconds",
			Help:    "Histogram of proxied call latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"app_id", "outcome"}),

		ProxyTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "tag_proxy_requests_total",
			Help: "Total number of proxied calls.",
		}, []string{"app_id", "method"}),

		BreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "tag_circuit_breaker_state",
			Help: "Current circuit breaker state per app (0=closed, 1=half-open, 2=open).",
		}, []string{"app_id"}),

		AuditBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "tag_audit_buffer_utilization",
			Help: "Current number of events in the audit buffer.",
		}),
	}
}

// ObserveBreakerState — хук для breaker.Registry.
func (m *Metrics) ObserveBreakerState(appID string, state gobreaker.State) {
	var v float64
	switch state {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.BreakerState.WithLabelValues(appID).Set(v)
}
