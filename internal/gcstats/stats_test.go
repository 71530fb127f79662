package gcstats

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSnapshotAccumulates(t *testing.T) {
	s := New()
	s.RecordAllocation("pair", 24)
	s.RecordAllocation("pair", 24)
	s.RecordFree(24)
	s.SetBytesInUse("young", 4096)
	s.RecordCollection(KindMinor, false, 10*time.Microsecond)
	s.RecordCollection(KindMajor, true, 500*time.Microsecond)

	snap := s.Snapshot()
	require.Equal(t, uint64(48), snap.BytesAllocated)
	require.Equal(t, uint64(24), snap.BytesFreed)
	require.Equal(t, uint64(2), snap.ObjectsByShape["pair"])
	require.Equal(t, uint64(4096), snap.BytesInUse["young"])
	require.Equal(t, uint64(1), snap.Collections["minor"])
	require.Equal(t, uint64(1), snap.Collections["major"])
	require.Equal(t, uint64(1), snap.ForcedCollections["major"])
	require.Equal(t, uint64(0), snap.ForcedCollections["minor"])
}

func TestExporterPublishesCounters(t *testing.T) {
	s := New()
	reg := prometheus.NewRegistry()
	exp := NewExporter(s, reg)

	s.RecordAllocation("pair", 100)
	s.RecordCollection(KindMinor, false, time.Millisecond)
	exp.Refresh()

	got := testutil.ToFloat64(exp.bytesAllocated)
	require.Equal(t, 100.0, got)

	s.RecordAllocation("pair", 50)
	s.RecordCollection(KindMinor, false, time.Millisecond)
	exp.Refresh()
	require.Equal(t, 150.0, testutil.ToFloat64(exp.bytesAllocated))
}
