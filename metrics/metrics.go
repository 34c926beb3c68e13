package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relayer"

// Metrics holds all relay pipeline metrics
type Metrics struct {
	PolledTotal          prometheus.Counter
	ClaimedTotal         prometheus.Counter
	EnqueuedTotal        *prometheus.CounterVec
	EnqueueFailuresTotal *prometheus.CounterVec
	SubmissionsTotal     *prometheus.CounterVec
	CheckOutcomesTotal   *prometheus.CounterVec
	AbsorbedErrorsTotal  *prometheus.CounterVec
	DeliveriesTotal      *prometheus.CounterVec
	LastNonce            prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PolledTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polled_messages_total",
			Help:      "Total number of messages read from the source ledger",
		}),

		ClaimedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claimed_messages_total",
			Help:      "Total number of messages marked as processing",
		}),

		EnqueuedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enqueued_total",
			Help:      "Total number of envelopes enqueued",
		}, []string{"kind"}),

		EnqueueFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enqueue_failures_total",
			Help:      "Total number of envelopes that could not be enqueued",
		}, []string{"kind"}),

		SubmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Total number of destination submissions",
		}, []string{"kind", "result"}),

		CheckOutcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_outcomes_total",
			Help:      "Total number of transaction status checks by observed status",
		}, []string{"status"}),

		AbsorbedErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "absorbed_errors_total",
			Help:      "Total number of post-submission errors that were logged and dropped",
		}, []string{"step"}),

		DeliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total number of queue deliveries handled by outcome",
		}, []string{"consumer", "outcome"}),

		LastNonce: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_nonce",
			Help:      "Next nonce recorded in the store",
		}),
	}
}

// NewNop returns metrics registered nowhere.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
