// Package metrics provides Prometheus metrics for the bot service
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the service
type Metrics struct {
	PaymentsTotal              *prometheus.CounterVec
	UpdatesTotal               *prometheus.CounterVec
	SubscriptionsExtendedTotal prometheus.Counter
	SubscriptionsExpiredTotal  prometheus.Counter
	ActiveBots                 prometheus.Gauge
	JobDuration                *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PaymentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "remnabot_payments_total",
			Help: "Payments that reached a status, by gateway",
		}, []string{"gateway", "status"}),
		UpdatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "remnabot_updates_total",
			Help: "Telegram updates handled, by kind",
		}, []string{"kind"}),
		SubscriptionsExtendedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "remnabot_subscriptions_extended_total",
			Help: "Subscriptions bought or extended",
		}),
		SubscriptionsExpiredTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "remnabot_subscriptions_expired_total",
			Help: "Subscriptions expired by the scheduler",
		}),
		ActiveBots: factory.NewGauge(prometheus.GaugeOpts{
			Name: "remnabot_active_bots",
			Help: "Tenant bots currently served",
		}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "remnabot_job_duration_seconds",
			Help:    "Duration of scheduled jobs",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}
}

// NewNop returns metrics registered nowhere, for tests and tools.
func NewNop() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func (m *Metrics) Payment(gateway, status string) {
	m.PaymentsTotal.WithLabelValues(gateway, status).Inc()
}

func (m *Metrics) Update(kind string) {
	m.UpdatesTotal.WithLabelValues(kind).Inc()
}
