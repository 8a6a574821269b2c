package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("epayrobot", reg)

	m.FlowsTotal.WithLabelValues("bill_query", "200").Inc()
	m.CaptchaDecisions.WithLabelValues("poll", "resend").Add(2)
	m.ActiveSessions.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["epayrobot_flows_total"])
	assert.True(t, names["epayrobot_captcha_decisions_total"])
	assert.True(t, names["epayrobot_active_browser_sessions"])

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CaptchaDecisions.WithLabelValues("poll", "resend")))
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics("a", prometheus.NewRegistry())
		NewMetrics("a", prometheus.NewRegistry())
	})
}
