package metrics

import "github.com/prometheus/client_golang/prometheus"

// LeadMetrics exposes counters/histograms for the intake pipeline.
type LeadMetrics struct {
	submissionsTotal *prometheus.CounterVec
	qualityScore     prometheus.Histogram
	leadScore        *prometheus.HistogramVec
	submitLatency    *prometheus.HistogramVec
}

func NewLeadMetrics(reg prometheus.Registerer) *LeadMetrics {
	m := &LeadMetrics{
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medici",
			Subsystem: "leads",
			Name:      "submissions_total",
			Help:      "Total lead submissions by origin and outcome",
		}, []string{"origin", "outcome"}),
		qualityScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "medici",
			Subsystem: "leads",
			Name:      "quality_score",
			Help:      "Validator quality score of accepted leads",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		leadScore: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medici",
			Subsystem: "leads",
			Name:      "score",
			Help:      "Marketing score of accepted leads",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}, []string{"label"}),
		submitLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medici",
			Subsystem: "leads",
			Name:      "submit_latency_seconds",
			Help:      "Latency of pipeline submits",
			Buckets:   prometheus.DefBuckets,
		}, []string{"origin"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.submissionsTotal, m.qualityScore, m.leadScore, m.submitLatency)
	return m
}

func (m *LeadMetrics) ObserveSubmission(origin, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(origin, outcome).Inc()
	m.submitLatency.WithLabelValues(origin).Observe(seconds)
}

func (m *LeadMetrics) ObserveScores(qualityScore, score int, label string) {
	if m == nil {
		return
	}
	m.qualityScore.Observe(float64(qualityScore))
	m.leadScore.WithLabelValues(label).Observe(float64(score))
}

// DeliveryMetrics exposes counters/histograms for outbound fan-out.
type DeliveryMetrics struct {
	deliveriesTotal *prometheus.CounterVec
	attempts        *prometheus.HistogramVec
	latency         *prometheus.HistogramVec
	channelTotal    *prometheus.CounterVec
}

func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	m := &DeliveryMetrics{
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medici",
			Subsystem: "webhooks",
			Name:      "deliveries_total",
			Help:      "Total webhook deliveries by event and result",
		}, []string{"event", "result"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medici",
			Subsystem: "webhooks",
			Name:      "delivery_attempts",
			Help:      "Attempts used per webhook delivery",
			Buckets:   []float64{1, 2, 3},
		}, []string{"event"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medici",
			Subsystem: "webhooks",
			Name:      "delivery_latency_seconds",
			Help:      "End-to-end latency of a webhook delivery including backoff",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
		channelTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medici",
			Subsystem: "notify",
			Name:      "channel_deliveries_total",
			Help:      "Total notification channel deliveries",
		}, []string{"channel", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.deliveriesTotal, m.attempts, m.latency, m.channelTotal)
	return m
}

func (m *DeliveryMetrics) ObserveDelivery(event, result string, attempts int, seconds float64) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(event, result).Inc()
	if attempts > 0 {
		m.attempts.WithLabelValues(event).Observe(float64(attempts))
	}
	m.latency.WithLabelValues(event).Observe(seconds)
}

func (m *DeliveryMetrics) ObserveChannel(channel string, success bool) {
	if m == nil {
		return
	}
	status := "failed"
	if success {
		status = "sent"
	}
	m.channelTotal.WithLabelValues(channel, status).Inc()
}
