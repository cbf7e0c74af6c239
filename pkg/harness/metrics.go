package harness

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/DeBrosOfficial/ledgerharness/pkg/errors"
)

const metricsNamespace = "ledgerharness"

// Result labels.
const (
	resultOK       = "ok"
	resultRejected = "rejected"
	resultError    = "error"
)

type metrics struct {
	submissions *prometheus.CounterVec
	queries     *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	submissions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "submissions_total",
		Help:      "Transactions submitted, by result.",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}
	queries, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "queries_total",
		Help:      "Table queries, by result.",
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}
	rpcDuration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "rpc_duration_seconds",
		Help:      "Latency of chain API calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"}))
	if err != nil {
		return nil, err
	}
	return &metrics{submissions: submissions, queries: queries, rpcDuration: rpcDuration}, nil
}

// register adds c to reg, reusing a collector registered earlier under the
// same descriptor.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *metrics) observeRPC(path string, elapsed time.Duration) {
	m.rpcDuration.WithLabelValues(strings.TrimPrefix(path, "/v1/chain/")).Observe(elapsed.Seconds())
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return resultOK
	case errors.IsSubmissionRejected(err):
		return resultRejected
	default:
		return resultError
	}
}
