package gc

import (
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Global collection (§4.10-§4.11) coordinates every heaplet registered
// with a Heap through a cooperative safe-point protocol: mutator code
// calls SafePoint() at points it chooses (allocation, loop back-edges),
// and a thread that is about to block on something outside genheap's view
// (I/O, a lock, a syscall) brackets that with BeforeBlocking/
// AfterBlocking so a pending global collection doesn't wait on it.
//
// There is no OS-level preemption here (no signals, no page-protection
// traps): a heaplet that never calls SafePoint and never blocks will
// simply stall a global collection indefinitely. That's a deliberate,
// documented simplification — the embedder is expected to call SafePoint
// at the same cadence a cooperative scheduler would.

// gcCoordinator holds the Heap's global-collection state, split out from
// Heap itself only to keep the struct's zero-value story simple (a Heap
// constructed via NewHeap always has one).
type gcCoordinator struct {
	mu     sync.Mutex
	cond   *sync.Cond
	active bool
}

func newGCCoordinator() *gcCoordinator {
	c := &gcCoordinator{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// SafePoint is a no-op unless a global collection has been requested, in
// which case it acknowledges by blocking until that collection completes.
func (h *Heaplet) SafePoint() {
	if h.heap.requestWord.Load() == 0 {
		return
	}
	h.state.Store(int32(stateBlocked))
	for h.heap.requestWord.Load() != 0 {
		runtime.Gosched()
	}
	h.state.Store(int32(stateInUse))
}

// BeforeBlocking marks the heaplet as safe to ignore for the duration of
// a blocking operation the caller is about to perform.
func (h *Heaplet) BeforeBlocking() { h.state.Store(int32(stateBlocked)) }

// AfterBlocking waits out any global collection in progress (begun while
// the caller was blocked) before resuming mutator work.
func (h *Heaplet) AfterBlocking() {
	for h.heap.requestWord.Load() != 0 {
		runtime.Gosched()
	}
	h.state.Store(int32(stateInUse))
}

func (h *Heaplet) waitForSafePoint() {
	for h.state.Load() == int32(stateInUse) {
		runtime.Gosched()
	}
}

// collectGlobal implements §4.10's global collection: raise the
// heap-wide request, wait (via an errgroup, one goroutine per heaplet)
// for every other heaplet to reach a safe point, then run a major
// collection on every heaplet in turn while none of them can be
// allocating. Concurrent callers of ActionForceGlobal queue behind
// Heap.gc's condition variable rather than racing.
func (heap *Heap) collectGlobal(initiator *Heaplet) error {
	heap.gc.mu.Lock()
	for heap.gc.active {
		heap.gc.cond.Wait()
	}
	heap.gc.active = true
	heap.requestWord.Store(1)
	heap.gc.mu.Unlock()

	var heaplets []*Heaplet
	heap.Heaplets(func(hl *Heaplet) { heaplets = append(heaplets, hl) })

	var g errgroup.Group
	for _, hl := range heaplets {
		if hl == initiator {
			continue
		}
		hl := hl
		g.Go(func() error {
			hl.waitForSafePoint()
			return nil
		})
	}
	_ = g.Wait()

	var firstErr error
	prev := make([]int32, len(heaplets))
	for i, hl := range heaplets {
		prev[i] = hl.state.Load()
		hl.state.Store(int32(stateCollecting))
		if err := hl.runMajor(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	// Restore each heaplet's state while the request is still raised: a
	// heaplet inside a BeforeBlocking bracket stays blocked, and one waiting
	// in SafePoint or AfterBlocking marks itself in use once it clears.
	for i, hl := range heaplets {
		hl.state.Store(prev[i])
	}

	heap.gc.mu.Lock()
	heap.requestWord.Store(0)
	heap.gc.active = false
	heap.gc.cond.Broadcast()
	heap.gc.mu.Unlock()
	return firstErr
}
