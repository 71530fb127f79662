package genheap

import (
	"github.com/jitgen/genheap/internal/gc"
	"github.com/jitgen/genheap/internal/gclog"
	"github.com/jitgen/genheap/internal/gcstats"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Stats is a point-in-time snapshot of a Heap's accumulated allocation,
// survival, and pause statistics.
type Stats = gcstats.Snapshot

// Heap owns the shape table, the block allocator, and the shared
// generation every Heaplet created from it can promote objects into via
// Share. Create one Heap per process (or per isolated interpreter
// instance); create one Heaplet per mutator thread.
type Heap struct {
	h *gc.Heap
}

// NewHeap constructs a Heap. log may be nil (genheap then logs nothing);
// shapes must have had every shape registered before the first
// NewHeaplet call, at which point it is sealed against further
// registration.
func NewHeap(shapes *ShapeTable, cfg Config, log *zap.Logger) *Heap {
	return &Heap{h: gc.NewHeap(shapes.t, cfg, gclog.New(log), gcstats.New())}
}

// NewHeaplet creates and registers a fresh per-thread heaplet.
func (heap *Heap) NewHeaplet() (*Heaplet, error) {
	hl, err := heap.h.NewHeaplet()
	if err != nil {
		return nil, err
	}
	return &Heaplet{hl: hl}, nil
}

// DestroyHeaplet drains hl's generations back to the heap's shared unused
// pool and deregisters it. hl must not be used afterward.
func (heap *Heap) DestroyHeaplet(hl *Heaplet) { heap.h.DestroyHeaplet(hl.hl) }

// Stats returns a snapshot of the heap's accumulated statistics.
func (heap *Heap) Stats() Stats { return heap.h.Stats().Snapshot() }

// HeapletsInUse and HeapletsIdle report how many registered heaplets are
// currently running mutator code versus parked outside it (inside a
// Heaplet.BeforeBlocking/AfterBlocking bracket, or waiting in SafePoint
// for a global collection to finish), mirroring the teacher's
// runtime.NumGoroutine-style introspection.
func (heap *Heap) HeapletsInUse() int { return heap.h.HeapletsInUse() }
func (heap *Heap) HeapletsIdle() int  { return heap.h.HeapletsIdle() }

// NewPrometheusExporter returns an Exporter that publishes this heap's
// statistics to reg; call Refresh periodically (e.g. from a
// Heaplet.RegisterPostCollection hook) to keep the published metrics
// current.
func (heap *Heap) NewPrometheusExporter(reg prometheus.Registerer) *gcstats.Exporter {
	return gcstats.NewExporter(heap.h.Stats(), reg)
}

// Release returns every cached-but-unused block to the OS. Call once,
// after every Heaplet has been destroyed, typically at process shutdown.
func (heap *Heap) Release() error { return heap.h.Release() }
