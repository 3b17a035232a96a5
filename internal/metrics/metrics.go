package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
// All helper methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	HTTPRequests     *prometheus.CounterVec
	HTTPLatency      *prometheus.HistogramVec
	Deposits         *prometheus.CounterVec
	PaymentDecisions *prometheus.CounterVec
	ApprovedAmount   prometheus.Counter
	CampaignsCreated *prometheus.CounterVec
	CampaignsBlocked prometheus.Counter
	WorkerJobs       *prometheus.CounterVec
	RealtimeClients  prometheus.Gauge
	EventsPublished  *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by route and status.",
			}, []string{"method", "route", "status"}),
			HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Latency distribution for HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method", "route"}),
			Deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deposits_submitted_total",
				Help:      "Deposit submissions by outcome.",
			}, []string{"outcome"}),
			PaymentDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_decisions_total",
				Help:      "Admin decisions on payment requests.",
			}, []string{"decision"}),
			ApprovedAmount: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approved_amount_rupees_total",
				Help:      "Rupees credited to wallets through approvals.",
			}),
			CampaignsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "campaigns_created_total",
				Help:      "Campaigns created by placement.",
			}, []string{"placement"}),
			CampaignsBlocked: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "campaigns_blocked_total",
				Help:      "Campaign submissions refused for insufficient balance.",
			}),
			WorkerJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_jobs_total",
				Help:      "Background jobs by type and outcome.",
			}, []string{"type", "outcome"}),
			RealtimeClients: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "realtime_clients",
				Help:      "Connected WebSocket clients.",
			}),
			EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Domain events published by name.",
			}, []string{"event"}),
		}

		prometheus.MustRegister(
			metricsInstance.HTTPRequests,
			metricsInstance.HTTPLatency,
			metricsInstance.Deposits,
			metricsInstance.PaymentDecisions,
			metricsInstance.ApprovedAmount,
			metricsInstance.CampaignsCreated,
			metricsInstance.CampaignsBlocked,
			metricsInstance.WorkerJobs,
			metricsInstance.RealtimeClients,
			metricsInstance.EventsPublished,
		)
	})
	return metricsInstance
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route string, status int, latency time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(latency.Seconds())
}

// Deposit counts a deposit submission outcome (created, duplicate, error).
func (m *Metrics) Deposit(outcome string) {
	if m == nil {
		return
	}
	m.Deposits.WithLabelValues(outcome).Inc()
}

// Approved counts an approval and the rupees it credited.
func (m *Metrics) Approved(amount int64) {
	if m == nil {
		return
	}
	m.PaymentDecisions.WithLabelValues("approved").Inc()
	m.ApprovedAmount.Add(float64(amount))
}

// Decision counts a non-crediting admin decision (rejected, deleted).
func (m *Metrics) Decision(decision string) {
	if m == nil {
		return
	}
	m.PaymentDecisions.WithLabelValues(decision).Inc()
}

// CampaignCreated counts a created campaign.
func (m *Metrics) CampaignCreated(placement string) {
	if m == nil {
		return
	}
	m.CampaignsCreated.WithLabelValues(placement).Inc()
}

// CampaignBlocked counts a campaign refused by the balance guard.
func (m *Metrics) CampaignBlocked() {
	if m == nil {
		return
	}
	m.CampaignsBlocked.Inc()
}

// Job counts a processed background job.
func (m *Metrics) Job(jobType, outcome string) {
	if m == nil {
		return
	}
	m.WorkerJobs.WithLabelValues(jobType, outcome).Inc()
}

// ClientConnected adjusts the realtime client gauge by delta.
func (m *Metrics) ClientConnected(delta int) {
	if m == nil {
		return
	}
	m.RealtimeClients.Add(float64(delta))
}

// EventPublished counts a domain event.
func (m *Metrics) EventPublished(event string) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(event).Inc()
}
