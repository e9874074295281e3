package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.Payment("stars", "paid")
	m.Payment("stars", "paid")
	m.Update("message")
	m.SubscriptionsExtendedTotal.Inc()
	m.ActiveBots.Set(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PaymentsTotal.WithLabelValues("stars", "paid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpdatesTotal.WithLabelValues("message")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveBots))

	expected := `
# HELP remnabot_subscriptions_extended_total Subscriptions bought or extended
# TYPE remnabot_subscriptions_extended_total counter
remnabot_subscriptions_extended_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "remnabot_subscriptions_extended_total"))
}

func TestNewNopDoesNotPanicTwice(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNop()
		NewNop()
	})
}
