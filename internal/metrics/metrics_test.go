package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	require.NotNil(t, c)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 9)
}

func TestCollectorsAreIndependentlyUsable(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.RoundsCommitted.Inc()
	c.VotesCast.Add(3)
	c.CurrentBlockRound.Set(42)

	require.Equal(t, float64(1), readCounter(t, c.RoundsCommitted))
	require.Equal(t, float64(3), readCounter(t, c.VotesCast))
	require.Equal(t, float64(42), readGauge(t, c.CurrentBlockRound))
}

func readCounter(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func readGauge(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}
