package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Login outcomes recorded by ObserveLogin.
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	TicketsIssued   prometheus.Counter
	QuotaRejections prometheus.Counter
	M2MFailures     prometheus.Counter
	Logins          *prometheus.CounterVec
}

// New creates the metrics and registers them with reg.  Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TicketsIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "vat_ticketing_tickets_issued_total",
			Help: "Total number of tickets issued",
		}),
		QuotaRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "vat_ticketing_quota_rejections_total",
			Help: "Ticket requests rejected because the VAT ID reached its quota",
		}),
		M2MFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "vat_ticketing_m2m_failures_total",
			Help: "Failed machine-to-machine token exchanges",
		}),
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vat_ticketing_logins_total",
			Help: "Completed login callbacks by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncrementTicketsIssued() { m.TicketsIssued.Inc() }

func (m *Metrics) IncrementQuotaRejections() { m.QuotaRejections.Inc() }

func (m *Metrics) IncrementM2MFailures() { m.M2MFailures.Inc() }

// ObserveLogin counts a finished callback; result is LoginSuccess or LoginFailure.
func (m *Metrics) ObserveLogin(result string) { m.Logins.WithLabelValues(result).Inc() }
