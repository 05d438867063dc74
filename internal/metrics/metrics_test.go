package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementTicketsIssued()
	m.IncrementTicketsIssued()
	m.IncrementQuotaRejections()
	m.ObserveLogin(LoginFailure)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TicketsIssued))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuotaRejections))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.M2MFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Logins.WithLabelValues(LoginFailure)))
}
