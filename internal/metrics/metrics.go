// Package metrics exposes prometheus counters for store operations.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "h5store"

	opLabel     = "op"
	resultLabel = "result"

	ResultOK    = "ok"
	ResultError = "error"
)

// Operation names used as the op label.
const (
	OpWriteEntry     = "write_entry"
	OpReadEntry      = "read_entry"
	OpWriteAttribute = "write_attribute"
	OpReadAttribute  = "read_attribute"
)

// Metrics counts operations and transferred bytes. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ops          *prometheus.CounterVec
	bytesRead    prometheus.Counter
	bytesWritten prometheus.Counter
}

// New creates the collectors and registers them with reg. Collectors already
// registered by an earlier call are reused, so several files can report into
// one registry.
func New(reg prometheus.Registerer) *Metrics {
	var (
		ops = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Number of entry and attribute operations by result",
		}, []string{opLabel, resultLabel})

		bytesRead = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "read_bytes_total",
			Help:      "Number of element bytes read from entries",
		})

		bytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "written_bytes_total",
			Help:      "Number of element bytes written to entries",
		})
	)
	return &Metrics{
		ops:          register(reg, ops),
		bytesRead:    register(reg, bytesRead),
		bytesWritten: register(reg, bytesWritten),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Observe records one operation. A nil err counts as ok.
func (m *Metrics) Observe(op string, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.ops.With(prometheus.Labels{opLabel: op, resultLabel: result}).Inc()
}

// AddRead counts n bytes read from entries.
func (m *Metrics) AddRead(n uint64) {
	if m == nil {
		return
	}
	m.bytesRead.Add(float64(n))
}

// AddWritten counts n bytes written to entries.
func (m *Metrics) AddWritten(n uint64) {
	if m == nil {
		return
	}
	m.bytesWritten.Add(float64(n))
}
