// Package gc implements the generational, moving, copying collector
// described by SPEC_FULL.md: block allocation, shape-driven scavenging,
// write barriers, generational sizing, finalisation, and multi-heaplet
// global collection. genheap (the root package) is a thin façade over it.
package gc

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jitgen/genheap/internal/block"
	"github.com/jitgen/genheap/internal/dlist"
	"github.com/jitgen/genheap/internal/gclog"
	"github.com/jitgen/genheap/internal/gcstats"
	"github.com/jitgen/genheap/internal/ring"
	"github.com/jitgen/genheap/internal/shape"
)

// heapletState is the FSM a Heaplet moves through for global collection
// safe points (§4.11): a heaplet is either running mutator code
// (stateInUse), parked in SafePoint or inside a BeforeBlocking/
// AfterBlocking bracket (stateBlocked — see global.go), or being collected
// by a global collection (stateCollecting).
type heapletState int32

const (
	stateInUse heapletState = iota
	stateBlocked
	stateCollecting
)

// blockPool is the simplest blockSource: a free-list of unused blocks
// backed by an Allocator. The Heap owns two of them (unused and
// sharedPool), each shared by every heaplet's spaces (§4.1).
type blockPool struct {
	mu    sync.Mutex
	alloc *block.Allocator
	free  []*block.Block
}

func newBlockPool(alloc *block.Allocator) *blockPool {
	return &blockPool{alloc: alloc}
}

func (p *blockPool) GetBlock() (*block.Block, error) {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		b := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return b, nil
	}
	p.mu.Unlock()
	return p.alloc.AllocBlock()
}

func (p *blockPool) PutBlock(b *block.Block) {
	b.Generation = block.GenUnused
	p.mu.Lock()
	p.free = append(p.free, b)
	p.mu.Unlock()
}

// Heaplet is one mutator thread's private generational heap (§4.4): a
// nursery, zero or more ageing steps, an old generation, an optional
// per-heaplet shared-own space, and the root/hook/barrier bookkeeping a
// mutator drives directly.
type Heaplet struct {
	id   string
	heap *Heap

	shapes *shape.Table
	config Config
	logger *gclog.Logger
	stats  *gcstats.Stats

	unused *blockPool

	nursery *Space
	// stepsActive[i] is ageing step i's current bank; stepsReserve[i] is
	// the bank it swaps with at the next minor collection that promotes
	// into it (§3: "double-buffered, swapped each minor GC").
	stepsActive  []*Space
	stepsReserve []*Space

	oldActive  *Space
	oldReserve *Space

	sharedOwn *Space // nil unless this heaplet has shared anything yet

	rememberedSet map[shape.Tagged]struct{}
	ssb           *SSB

	globalRoots *dlist.List[rootBuf]
	tempRoots   []rootBuf
	hookRoots   *dlist.List[HookRootFunc]

	preCollection  *dlist.List[hookEntry]
	postCollection *dlist.List[hookEntry]
	preSSBFlush    *dlist.List[hookEntry]
	postSSBFlush   *dlist.List[hookEntry]

	survivalRing *ring.SurvivalRing
	// nurseryBudget and oldBudget are the sizing policy's current
	// targets (§4.8), clamped to [MinNursery,MaxNursery] and
	// [MinOld,MaxOld] respectively; they start at the configured minimum
	// and grow/shrink as survival history accumulates.
	nurseryBudget uintptr
	oldBudget     uintptr

	collectionDisabled bool
	state              atomic.Int32 // heapletState

	destroyed bool
}

// newHeaplet builds a Heaplet with empty spaces; the caller (Heap.NewHeaplet)
// must ChangeBlock the nursery before use.
func newHeaplet(id string, heap *Heap, shapes *shape.Table, cfg Config, logger *gclog.Logger, stats *gcstats.Stats, unused *blockPool) *Heaplet {
	hl := &Heaplet{
		id:     id,
		heap:   heap,
		shapes: shapes,
		config: cfg,
		logger: logger,
		stats:  stats,
		unused: unused,

		rememberedSet: make(map[shape.Tagged]struct{}),

		globalRoots: dlist.New[rootBuf](),
		hookRoots:   dlist.New[HookRootFunc](),

		preCollection:  dlist.New[hookEntry](),
		postCollection: dlist.New[hookEntry](),
		preSSBFlush:    dlist.New[hookEntry](),
		postSSBFlush:   dlist.New[hookEntry](),

		survivalRing: ring.New(cfg.SurvivalRatioHistory),

		nurseryBudget: cfg.MinNursery,
		oldBudget:     cfg.MinOld,
	}

	hl.nursery = NewSpace(id+":nursery", block.GenYoung, unused)
	hl.stepsActive = make([]*Space, cfg.NSteps)
	hl.stepsReserve = make([]*Space, cfg.NSteps)
	for i := 0; i < cfg.NSteps; i++ {
		hl.stepsActive[i] = NewSpace(fmt.Sprintf("%s:step%d.a", id, i), block.GenYoung, unused)
		hl.stepsReserve[i] = NewSpace(fmt.Sprintf("%s:step%d.b", id, i), block.GenYoung, unused)
	}
	hl.oldActive = NewSpace(id+":old.a", block.GenOld, unused)
	hl.oldReserve = NewSpace(id+":old.b", block.GenOld, unused)

	hl.ssb = NewSSB(hl, cfg.SSBCapacityWords)
	hl.state.Store(int32(stateInUse))
	return hl
}

// ID returns the heaplet's stable identifier, used in logs and metrics.
func (h *Heaplet) ID() string { return h.id }

// NurseryBudget and OldBudget expose the sizing policy's current targets
// (§4.8), for callers that build their own collection-trigger policy atop
// genheap's (e.g. deciding when to force a major collection).
func (h *Heaplet) NurseryBudget() uintptr { return h.nurseryBudget }
func (h *Heaplet) OldBudget() uintptr     { return h.oldBudget }

// DisableCollection and EnableCollection implement §4.5's escape hatch for
// a mutator section that must not observe objects moving (e.g. while
// holding a raw pointer across a non-allocating C call). Allocation still
// proceeds from existing headroom; once headroom is exhausted with
// collection disabled, allocation is a fatal error (a panic wrapping
// ErrAllocationExhausted) rather than a collection.
func (h *Heaplet) DisableCollection() { h.collectionDisabled = true }
func (h *Heaplet) EnableCollection()  { h.collectionDisabled = false }

// Allocate is §4.5's fast/slow path: bump-allocate sizeBytes (the shape's
// Size, rounded up to the object grain here via AllocSize) from the
// nursery, falling back to a forced minor (or, once the old generation has
// reached its own threshold, major) collection — or, if collection is
// disabled, a bare ChangeBlock — when the nursery's current block is full.
func (h *Heaplet) Allocate(sizeBytes uintptr, shapeName string) (shape.Raw, error) {
	sizeBytes = h.AllocSize(sizeBytes)

	if raw, ok := h.nursery.Allocate(sizeBytes); ok {
		h.stats.RecordAllocation(shapeName, sizeBytes)
		return shape.Raw(raw), nil
	}

	if err := h.slowAllocate(sizeBytes); err != nil {
		return 0, err
	}

	raw, ok := h.nursery.Allocate(sizeBytes)
	if !ok {
		allocationExhausted(h.logger, "nursery allocation still fails after collection")
		return 0, ErrAllocationExhausted
	}
	h.stats.RecordAllocation(shapeName, sizeBytes)
	return shape.Raw(raw), nil
}

// RegisterFinalisable implements §3's `add_finalisable(obj)`: tagged,
// already allocated and with its header (if headered) already written so
// shapes.Recognise can identify it, is linked into the nursery's
// finalisable list if its shape carries a finalise kind. Unrecognised or
// non-finalisable shapes make this a no-op, so it is safe to call on
// every freshly tagged allocation regardless of shape.
func (h *Heaplet) RegisterFinalisable(tagged shape.Tagged) {
	s := h.shapes.Recognise(tagged)
	if s == nil || s.Finalize == shape.FinalizeNone {
		return
	}
	h.nursery.AddFinalisable(&finalisableEntry{Tagged: tagged, Shape: s})
}

// AllocSize rounds n up to the object grain (§3: every object's size is a
// multiple of the allocation grain, which must be big enough to hold a
// broken-heart marker and a forwarding pointer).
func (h *Heaplet) AllocSize(n uintptr) uintptr {
	grain := h.config.grain()
	if min := 2 * block.WordSize; grain < min {
		grain = min
	}
	return (n + grain - 1) &^ (grain - 1)
}

// slowAllocate runs when the nursery's current block is full: try a fresh
// block first (the nursery may simply not have reached its configured
// size yet), otherwise force a collection. §4.5: a minor collection alone
// cannot shrink the old generation, so if old-space has already reached
// its own budget (this minor would only grow it further, never reclaim
// it), escalate straight to a major collection instead.
func (h *Heaplet) slowAllocate(need uintptr) error {
	if h.nursery.BytesUsed() < h.nurseryBudget {
		if err := h.nursery.ChangeBlock(); err != nil {
			return fmt.Errorf("%w: %s", ErrAllocationExhausted, err)
		}
		if h.nursery.AvailableBytes() >= need {
			return nil
		}
	}

	if h.collectionDisabled {
		allocationExhausted(h.logger, "nursery exhausted with collection disabled")
		return ErrAllocationExhausted
	}

	var err error
	if h.oldActive.BytesUsed() >= h.oldBudget {
		err = h.Collect(ActionForceMajor)
	} else {
		err = h.Collect(ActionForceMinor)
	}
	if err != nil {
		return err
	}
	// The collection drained the nursery; give it a block to retry in.
	if h.nursery.AvailableBytes() < need {
		if err := h.nursery.ChangeBlock(); err != nil {
			return fmt.Errorf("%w: %s", ErrAllocationExhausted, err)
		}
	}
	return nil
}
