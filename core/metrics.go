// Copyright (c) 2021 6 River Systems
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.

package core

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments a pipeline. All instruments are created eagerly and
// work unregistered, so an application that doesn't scrape pays only the
// counter updates.
type Metrics struct {
	operations *prometheus.CounterVec
	retries    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	breaker    prometheus.GaugeFunc
}

// Outcome labels for the operations counter and duration histogram.
const (
	outcomeSuccess  = "success"
	outcomeError    = "error"
	outcomeTimeout  = "timeout"
	outcomeCanceled = "canceled"
)

// NewMetrics builds the pipeline instruments and registers them with reg
// when it is non-nil. The breaker gauge reads the breaker's state directly
// (closed=0, open=1, half-open=2).
func NewMetrics(reg prometheus.Registerer, namespace string, breaker *Breaker) (*Metrics, error) {
	co := func(name, help string, labels ...string) (prometheus.CounterOpts, []string) {
		return prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "kv",
			Name:      name,
			Help:      help,
		}, labels
	}

	m := &Metrics{
		operations: prometheus.NewCounterVec(co("operations_total", "Number of completed operations, by outcome", "operation", "outcome")),
		retries:    prometheus.NewCounterVec(co("retries_total", "Number of operation retries, by reason", "operation", "reason")),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "kv",
				Name:      "operation_duration_seconds",
				Help:      "How long an operation takes end to end including retries, by outcome",
				Buckets: []float64{
					.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5,
					1, 2.5, 5, 10,
				},
			},
			[]string{"operation", "outcome"},
		),

		breaker: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "kv",
				Name:      "breaker_state",
				Help:      "Circuit breaker state: closed=0, open=1, half-open=2",
			},
			func() float64 { return float64(breaker.State()) },
		),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.operations, m.retries, m.duration, m.breaker,
		} {
			if err := reg.Register(c); err != nil {
				return m, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) observe(operation, outcome string, seconds float64) {
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation, outcome).Observe(seconds)
}

func (m *Metrics) countRetry(operation, reason string) {
	m.retries.WithLabelValues(operation, reason).Inc()
}
