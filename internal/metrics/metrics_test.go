package metrics_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/go-h5store/internal/metrics"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.Observe(metrics.OpWriteEntry, nil)
	m.Observe(metrics.OpWriteEntry, nil)
	m.Observe(metrics.OpReadEntry, errors.New("boom"))
	m.AddWritten(64)
	m.AddRead(16)

	n, err := testutil.GatherAndCount(reg, "h5store_engine_operations_total")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	expected := `
# HELP h5store_engine_written_bytes_total Number of element bytes written to entries
# TYPE h5store_engine_written_bytes_total counter
h5store_engine_written_bytes_total 64
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "h5store_engine_written_bytes_total"))
	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Equal(t, 4, count)
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	require.NotPanics(t, func() {
		m.Observe(metrics.OpReadAttribute, nil)
		m.AddRead(1)
		m.AddWritten(1)
	})
}

func TestRegisterTwiceSharesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := metrics.New(reg)
	b := metrics.New(reg)

	a.AddWritten(1)
	b.AddWritten(2)

	expected := `
# HELP h5store_engine_written_bytes_total Number of element bytes written to entries
# TYPE h5store_engine_written_bytes_total counter
h5store_engine_written_bytes_total 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "h5store_engine_written_bytes_total"))
}
