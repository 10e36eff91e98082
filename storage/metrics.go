package storage

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	operationSign   = "sign"
	operationExists = "exists"
)

// Observer captures telemetry for signing helper operations.
type Observer interface {
	RecordOperation(operation string, mode SigningMode, duration time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) RecordOperation(string, SigningMode, time.Duration, error) {}

// PrometheusObserver exports helper metrics to Prometheus.
type PrometheusObserver struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewPrometheusObserver registers the operation duration and error metrics.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "cloud_sas"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	observer := &PrometheusObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of signing helper operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "mode"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Count of failed signing helper operations.",
		}, []string{"operation", "mode"}),
	}
	if err := reg.Register(observer.duration); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register signing metric: %w", err)
		}
		observer.duration = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	if err := reg.Register(observer.errors); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register signing metric: %w", err)
		}
		observer.errors = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return observer, nil
}

func (o *PrometheusObserver) RecordOperation(operation string, mode SigningMode, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(operation, mode.String()).Observe(duration.Seconds())
	if err != nil {
		o.errors.WithLabelValues(operation, mode.String()).Inc()
	}
}
