package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeadMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLeadMetrics(reg)
	m.ObserveSubmission("form", "accepted", 0.02)
	m.ObserveSubmission("form", "accepted", 0.03)
	m.ObserveSubmission("zapier", "rejected", 0.01)
	m.ObserveScores(85, 60, "warm")

	assert.Equal(t, 2.0, counterValue(t, reg, "medici_leads_submissions_total", map[string]string{"origin": "form", "outcome": "accepted"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "medici_leads_submissions_total", map[string]string{"origin": "zapier", "outcome": "rejected"}))
}

func TestDeliveryMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDeliveryMetrics(reg)
	m.ObserveDelivery("new_lead", "delivered", 2, 4.1)
	m.ObserveDelivery("new_lead", "skipped", 0, 0)
	m.ObserveChannel("telegram", true)
	m.ObserveChannel("telegram", false)

	assert.Equal(t, 1.0, counterValue(t, reg, "medici_webhooks_deliveries_total", map[string]string{"event": "new_lead", "result": "delivered"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "medici_notify_channel_deliveries_total", map[string]string{"channel": "telegram", "status": "failed"}))
}

func TestMetricsNilSafe(t *testing.T) {
	var lm *LeadMetrics
	lm.ObserveSubmission("form", "accepted", 0.1)
	lm.ObserveScores(1, 2, "cold")

	var dm *DeliveryMetrics
	dm.ObserveDelivery("new_lead", "failed", 3, 14)
	dm.ObserveChannel("email", true)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) != len(labels) {
		return false
	}
	for _, lp := range metric.GetLabel() {
		if labels[lp.GetName()] != lp.GetValue() {
			return false
		}
	}
	return true
}
