package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ConnectedClients.Set(3)
	m.EventsAppended.WithLabelValues("tenant-a").Inc()
	m.Lamport.Set(42)

	require.Equal(t, float64(3), testutil.ToFloat64(m.ConnectedClients))
	require.Equal(t, float64(1), testutil.ToFloat64(m.EventsAppended.WithLabelValues("tenant-a")))
	require.Equal(t, float64(42), testutil.ToFloat64(m.Lamport))
}
