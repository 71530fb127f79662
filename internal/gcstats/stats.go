// Package gcstats is the Go realization of the teacher's
// runtime/mstats.go: a plain Snapshot struct plus a Prometheus exporter
// (grounded on Voskan-arena-cache's use of
// github.com/prometheus/client_golang), giving genheap's heap statistics
// surface (SPEC_FULL.md's [SUPPLEMENT] section) two faces — one for
// programmatic inspection, one for scraping.
package gcstats

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Kind names a collection flavour, for per-kind counters.
type Kind int

const (
	KindMinor Kind = iota
	KindMajor
	KindGlobal
	KindShare
)

func (k Kind) String() string {
	switch k {
	case KindMinor:
		return "minor"
	case KindMajor:
		return "major"
	case KindGlobal:
		return "global"
	case KindShare:
		return "share"
	default:
		return "kind(?)"
	}
}

// Snapshot is a point-in-time copy of the heap's accumulated statistics,
// the Go counterpart of the teacher's mstats/MemStats pair.
type Snapshot struct {
	BytesAllocated uint64
	BytesFreed     uint64
	ObjectsByShape map[string]uint64

	BytesInUse map[string]uint64 // by generation name

	Collections       map[string]uint64 // by kind
	ForcedCollections map[string]uint64 // by kind, subset of Collections
	PauseTotal        time.Duration
	LastPause         time.Duration
}

// Stats accumulates statistics for one Heap across its lifetime. All
// methods are safe for concurrent use by multiple heaplets.
type Stats struct {
	mu sync.Mutex

	bytesAllocated uint64
	bytesFreed     uint64
	objectsByShape map[string]uint64
	bytesInUse     map[string]uint64

	collections       map[Kind]uint64
	forcedCollections map[Kind]uint64
	pauseTotal        time.Duration
	lastPause         time.Duration
}

// New returns an empty Stats accumulator.
func New() *Stats {
	return &Stats{
		objectsByShape:    make(map[string]uint64),
		bytesInUse:        make(map[string]uint64),
		collections:       make(map[Kind]uint64),
		forcedCollections: make(map[Kind]uint64),
	}
}

// RecordAllocation is called on the allocation fast path.
func (s *Stats) RecordAllocation(shapeName string, bytes uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesAllocated += uint64(bytes)
	s.objectsByShape[shapeName]++
}

// RecordFree is called when a finalisable object is confirmed dead
// (§4.9).
func (s *Stats) RecordFree(bytes uintptr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesFreed += uint64(bytes)
}

// SetBytesInUse replaces the bytes-in-use gauge for one generation name,
// called after every collection's resize step (§4.8).
func (s *Stats) SetBytesInUse(generation string, bytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytesInUse[generation] = bytes
}

// RecordCollection accounts for one completed collection.
func (s *Stats) RecordCollection(kind Kind, forced bool, pause time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[kind]++
	if forced {
		s.forcedCollections[kind]++
	}
	s.pauseTotal += pause
	s.lastPause = pause
}

// Snapshot copies the current statistics out.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Snapshot{
		BytesAllocated:    s.bytesAllocated,
		BytesFreed:        s.bytesFreed,
		ObjectsByShape:    make(map[string]uint64, len(s.objectsByShape)),
		BytesInUse:        make(map[string]uint64, len(s.bytesInUse)),
		Collections:       make(map[string]uint64, len(s.collections)),
		ForcedCollections: make(map[string]uint64, len(s.forcedCollections)),
		PauseTotal:        s.pauseTotal,
		LastPause:         s.lastPause,
	}
	for k, v := range s.objectsByShape {
		out.ObjectsByShape[k] = v
	}
	for k, v := range s.bytesInUse {
		out.BytesInUse[k] = v
	}
	for k, v := range s.collections {
		out.Collections[k.String()] = v
	}
	for k, v := range s.forcedCollections {
		out.ForcedCollections[k.String()] = v
	}
	return out
}

// Exporter publishes a Stats accumulator as Prometheus metrics.
type Exporter struct {
	stats *Stats

	bytesInUse       *prometheus.GaugeVec
	bytesAllocated   prometheus.Counter
	bytesFreed       prometheus.Counter
	collectionsTotal *prometheus.CounterVec
	pauseSeconds     prometheus.Histogram

	mu                   sync.Mutex
	lastBytesAllocated   uint64
	lastBytesFreed       uint64
	lastCollections      map[string]uint64
}

// NewExporter builds an Exporter over stats and registers its collectors
// with reg (typically prometheus.DefaultRegisterer, or a dedicated
// registry in tests).
func NewExporter(stats *Stats, reg prometheus.Registerer) *Exporter {
	e := &Exporter{
		stats: stats,
		bytesInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "genheap",
			Name:      "bytes_in_use",
			Help:      "Bytes currently in use, by generation.",
		}, []string{"generation"}),
		bytesAllocated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "genheap",
			Name:      "bytes_allocated_total",
			Help:      "Cumulative bytes allocated.",
		}),
		bytesFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "genheap",
			Name:      "bytes_freed_total",
			Help:      "Cumulative bytes confirmed dead at finalisation time.",
		}),
		collectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "genheap",
			Name:      "collections_total",
			Help:      "Completed collections, by kind.",
		}, []string{"kind"}),
		pauseSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "genheap",
			Name:      "pause_seconds",
			Help:      "Collection pause duration.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
	}
	e.lastCollections = make(map[string]uint64)
	reg.MustRegister(e.bytesInUse, e.bytesAllocated, e.bytesFreed, e.collectionsTotal, e.pauseSeconds)
	return e
}

// Refresh copies the latest Snapshot into the registered collectors. The
// caller calls it, e.g. after each collection; nothing in internal/gc does.
// Snapshot's cumulative totals are translated into counter deltas,
// since Prometheus counters may only be incremented.
func (e *Exporter) Refresh() {
	snap := e.stats.Snapshot()

	e.mu.Lock()
	defer e.mu.Unlock()

	if d := snap.BytesAllocated - e.lastBytesAllocated; d > 0 {
		e.bytesAllocated.Add(float64(d))
		e.lastBytesAllocated = snap.BytesAllocated
	}
	if d := snap.BytesFreed - e.lastBytesFreed; d > 0 {
		e.bytesFreed.Add(float64(d))
		e.lastBytesFreed = snap.BytesFreed
	}
	for gen, bytes := range snap.BytesInUse {
		e.bytesInUse.WithLabelValues(gen).Set(float64(bytes))
	}
	for kind, n := range snap.Collections {
		if d := n - e.lastCollections[kind]; d > 0 {
			e.collectionsTotal.WithLabelValues(kind).Add(float64(d))
			e.lastCollections[kind] = n
		}
	}
	e.pauseSeconds.Observe(snap.LastPause.Seconds())
}
