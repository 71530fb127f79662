package gc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jitgen/genheap/internal/block"
	"github.com/jitgen/genheap/internal/gclog"
	"github.com/jitgen/genheap/internal/gcstats"
	"github.com/jitgen/genheap/internal/shape"
)

// Heap owns everything shared by every heaplet created from it: the
// (sealed, once the first heaplet exists) shape table, the block
// allocator, a shared pool of unused blocks, the heap-level shared-space
// block pool, and the global collection protocol's coordination state
// (§4.10-§4.11).
type Heap struct {
	shapes *shape.Table
	config Config
	logger *gclog.Logger
	stats  *gcstats.Stats

	alloc  *block.Allocator
	unused *blockPool

	// sharedPool is §3's "heap.shared_space": a lock-guarded pool of
	// blocks earmarked for the shared generation, kept separate from
	// unused so a block a heaplet's shared-own space drained never gets
	// handed back out as a young or old block. §8's REDESIGN FLAGS leaves
	// the rebalancing policy between a heaplet's shared-own space and
	// this pool implementation-defined; genheap's policy is the simplest
	// one that satisfies it: every per-heaplet shared-own space draws its
	// blocks from here on demand (collect.go's Share) and returns them
	// here when the heaplet is destroyed.
	sharedPool *blockPool

	mu       sync.Mutex
	heaplets map[string]*Heaplet
	nextID   uint64

	// requestWord is the global collection protocol's heap-wide signal
	// (§4.11): non-zero while a global collection has been requested,
	// consulted by every heaplet at its next safe point.
	requestWord atomic.Int32

	gc *gcCoordinator
}

// NewHeap constructs a Heap: invalid/uninitialised sentinels and the
// broken-heart type code belong to the shape table, which callers build
// via shape.NewTable and register shapes into before the first call to
// NewHeaplet (which seals it, per shape.Table's contract).
func NewHeap(shapes *shape.Table, cfg Config, logger *gclog.Logger, stats *gcstats.Stats) *Heap {
	cfg.validate()
	if logger == nil {
		logger = gclog.Nop()
	}
	if stats == nil {
		stats = gcstats.New()
	}
	alloc := block.NewAllocator(cfg.BlockSize)
	unused := newBlockPool(alloc)
	h := &Heap{
		shapes:     shapes,
		config:     cfg,
		logger:     logger,
		stats:      stats,
		alloc:      alloc,
		unused:     unused,
		sharedPool: newBlockPool(alloc),
		heaplets:   make(map[string]*Heaplet),
		gc:         newGCCoordinator(),
	}
	return h
}

// NewHeaplet creates and registers a fresh heaplet, sealing the shape
// table on the first call (§4.3).
func (heap *Heap) NewHeaplet() (*Heaplet, error) {
	heap.shapes.Seal()

	heap.mu.Lock()
	heap.nextID++
	id := fmt.Sprintf("hl%d", heap.nextID)
	heap.mu.Unlock()

	hl := newHeaplet(id, heap, heap.shapes, heap.config, heap.logger, heap.stats, heap.unused)
	if err := hl.nursery.ChangeBlock(); err != nil {
		return nil, fmt.Errorf("genheap: allocate initial nursery block: %w", err)
	}

	heap.mu.Lock()
	heap.heaplets[id] = hl
	heap.mu.Unlock()
	return hl, nil
}

// DestroyHeaplet drains hl's spaces back to the shared unused pool and
// deregisters it. hl must not be used afterward.
func (heap *Heap) DestroyHeaplet(hl *Heaplet) {
	heap.mu.Lock()
	delete(heap.heaplets, hl.id)
	heap.mu.Unlock()

	hl.nursery.Drain(true)
	for _, s := range hl.stepsActive {
		s.Drain(true)
	}
	for _, s := range hl.stepsReserve {
		s.Drain(true)
	}
	hl.oldActive.Drain(true)
	hl.oldReserve.Drain(true)
	if hl.sharedOwn != nil {
		hl.sharedOwn.Drain(true)
	}
	hl.destroyed = true
}

// Heaplets calls fn for every currently-registered heaplet; used by the
// global collection protocol (§4.11) to visit every heaplet under lock.
func (heap *Heap) Heaplets(fn func(*Heaplet)) {
	heap.mu.Lock()
	list := make([]*Heaplet, 0, len(heap.heaplets))
	for _, hl := range heap.heaplets {
		list = append(list, hl)
	}
	heap.mu.Unlock()
	for _, hl := range list {
		fn(hl)
	}
}

// HeapletsInUse and HeapletsIdle report §3's "two lists of heaplets
// (in-use / idle)" as counts, the way the teacher reports NumGoroutine
// rather than handing out the scheduler's run queues (runtime/debug.go).
// A heaplet counts as idle exactly when it is parked outside mutator
// code: it has called BeforeBlocking and not yet returned from
// AfterBlocking, or it is waiting in SafePoint for a requested global
// collection to finish (global.go).
// Every other registered heaplet, including one currently being collected,
// counts as in-use.
func (heap *Heap) HeapletsInUse() int {
	inUse, _ := heap.heapletCounts()
	return inUse
}

func (heap *Heap) HeapletsIdle() int {
	_, idle := heap.heapletCounts()
	return idle
}

func (heap *Heap) heapletCounts() (inUse, idle int) {
	heap.mu.Lock()
	defer heap.mu.Unlock()
	for _, hl := range heap.heaplets {
		if heapletState(hl.state.Load()) == stateBlocked {
			idle++
		} else {
			inUse++
		}
	}
	return inUse, idle
}

// Release returns every cached-but-unused block to the OS. Call after
// destroying all heaplets, typically at process shutdown.
func (heap *Heap) Release() error {
	for _, p := range []*blockPool{heap.unused, heap.sharedPool} {
		p.mu.Lock()
		free := p.free
		p.free = nil
		p.mu.Unlock()
		for _, b := range free {
			heap.alloc.FreeBlock(b)
		}
	}
	return heap.alloc.Release()
}

// Stats returns the heap's shared statistics accumulator.
func (heap *Heap) Stats() *gcstats.Stats { return heap.stats }
