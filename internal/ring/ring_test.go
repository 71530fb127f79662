package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordAndWrap(t *testing.T) {
	r := New(3)
	require.Equal(t, 0, r.Len())
	r.Record(0.1)
	r.Record(0.2)
	require.Equal(t, 2, r.Len())
	r.Record(0.3)
	r.Record(0.4) // wraps, overwrites 0.1
	require.Equal(t, 3, r.Len())

	var got []float64
	r.Each(func(v float64) { got = append(got, v) })
	require.Equal(t, []float64{0.2, 0.3, 0.4}, got)
}

func TestWeightedEstimateEmpty(t *testing.T) {
	r := New(4)
	require.Equal(t, 0.0, r.WeightedEstimate(0.8))
}

func TestWeightedEstimateBiasesRecent(t *testing.T) {
	r := New(4)
	r.Record(0.0)
	r.Record(1.0)
	// With strong recency bias, the estimate should sit much closer to the
	// most recent sample (1.0) than to a plain average (0.5).
	got := r.WeightedEstimate(0.95)
	require.Greater(t, got, 0.5)
	require.Less(t, got, 1.0)
}

func TestWeightedEstimateClampsBias(t *testing.T) {
	r := New(2)
	r.Record(0.3)
	r.Record(0.7)
	lowClamped := r.WeightedEstimate(0.1)
	highClamped := r.WeightedEstimate(1.5)
	require.False(t, lowClamped != lowClamped) // not NaN
	require.False(t, highClamped != highClamped)
}
