// Copyright 2016 Aleksandr Demakin. All rights reserved.

package domain

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "shmdomain"

// metrics holds domain counters. They are shared by all handles registered
// with the same registerer.
type metrics struct {
	bytesWritten prometheus.Counter
	bytesRead    prometheus.Counter
	barriers     prometheus.Counter
	failures     *prometheus.CounterVec
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_written_total",
			Help:      "Total number of bytes written into ring buffers",
		}),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_read_total",
			Help:      "Total number of bytes read from ring buffers",
		}),
		barriers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "barriers_total",
			Help:      "Total number of completed barrier calls",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "failures_total",
			Help:      "Total number of failed domain operations",
		}, []string{"op"}),
	}
	if registerer == nil {
		return m, nil
	}
	var err error
	if m.bytesWritten, err = registerCounter(registerer, m.bytesWritten); err != nil {
		return nil, err
	}
	if m.bytesRead, err = registerCounter(registerer, m.bytesRead); err != nil {
		return nil, err
	}
	if m.barriers, err = registerCounter(registerer, m.barriers); err != nil {
		return nil, err
	}
	if err = registerer.Register(m.failures); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, errors.Wrap(err, "failed to register metrics")
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, errors.Wrap(err, "failed to register metrics")
		}
		m.failures = existing
	}
	return m, nil
}

func registerCounter(registerer prometheus.Registerer, c prometheus.Counter) (prometheus.Counter, error) {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, errors.Wrap(err, "failed to register metrics")
		}
		existing, ok := are.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, errors.Wrap(err, "failed to register metrics")
		}
		return existing, nil
	}
	return c, nil
}

// observe counts a failure of op.
func (m *metrics) observe(op string, err error) error {
	if err != nil {
		m.failures.WithLabelValues(op).Inc()
	}
	return err
}
