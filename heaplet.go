package genheap

import "github.com/jitgen/genheap/internal/gc"

// Heaplet is one mutator thread's private generational heap: a nursery,
// zero or more ageing steps, an old generation, and the root/barrier
// bookkeeping a mutator drives directly.
type Heaplet struct {
	hl *gc.Heaplet
}

// ID returns the heaplet's stable identifier, used in logs and metrics.
func (h *Heaplet) ID() string { return h.hl.ID() }

// Allocate returns sizeBytes of memory for an object of the named shape,
// rounded up to the heap's allocation grain. The memory is not cleared: a
// block reused from the pool keeps its previous contents. It runs a
// forced collection internally (minor, or major once old space has
// reached its budget) if the nursery's current block is exhausted and
// growing it further would exceed the sizing policy's current budget.
func (h *Heaplet) Allocate(sizeBytes uintptr, shapeName string) (Raw, error) {
	return h.hl.Allocate(sizeBytes, shapeName)
}

// RegisterFinalisable links obj, already allocated and tagged (its header
// word, if headered, must already be written so its shape can be
// recognised), into the nursery's finalisable list. It is a no-op unless
// obj's shape was registered with a finaliser.
func (h *Heaplet) RegisterFinalisable(obj Tagged) { h.hl.RegisterFinalisable(obj) }

// DisableCollection and EnableCollection bracket a mutator section that
// must not observe objects moving (e.g. while holding a raw pointer
// across a call that doesn't go through genheap). Allocation inside a
// disabled section still proceeds from existing headroom; once that
// headroom is exhausted, Allocate panics with an error wrapping
// ErrAllocationExhausted rather than collecting.
func (h *Heaplet) DisableCollection() { h.hl.DisableCollection() }
func (h *Heaplet) EnableCollection()  { h.hl.EnableCollection() }

// Collect runs one collection cycle of the requested kind.
func (h *Heaplet) Collect(kind CollectionKind) error { return h.hl.Collect(kind) }

// Share copies obj, and everything reachable from it, into this
// heaplet's shared-own space, returning the (possibly moved) reference.
// Use it the moment an object becomes visible to more than one thread.
func (h *Heaplet) Share(obj Tagged) Tagged { return h.hl.Share(obj) }

// WriteBarrier must be called after storing a value into *field, a field
// of owner. It is safe, and cheap, to call unconditionally: it is a no-op
// unless owner lives in the old or shared generation. If owner is shared,
// field is rewritten in place to the (possibly moved) shared copy of
// whatever was just stored there.
func (h *Heaplet) WriteBarrier(owner Tagged, field *Tagged) { h.hl.WriteBarrier(owner, field) }

// WriteField writes value into *field (one tagged word inside owner's
// object) and then runs the write barrier for owner.
func (h *Heaplet) WriteField(field *Tagged, owner, value Tagged) { h.hl.WriteField(field, owner, value) }

// SafePoint is a no-op unless a global collection has been requested, in
// which case it blocks until that collection completes. Call it at
// points a cooperative scheduler would yield at: loop back-edges,
// allocation, function entry.
func (h *Heaplet) SafePoint() { h.hl.SafePoint() }

// BeforeBlocking and AfterBlocking bracket a call that blocks outside
// genheap's view (I/O, a lock, a syscall), so a pending global collection
// doesn't wait on this heaplet.
func (h *Heaplet) BeforeBlocking() { h.hl.BeforeBlocking() }
func (h *Heaplet) AfterBlocking()  { h.hl.AfterBlocking() }

// NurseryBudget and OldBudget expose the sizing policy's current targets,
// for an embedder that wants to build its own collection-trigger policy
// (e.g. deciding when to request a major or global collection) on top of
// genheap's own.
func (h *Heaplet) NurseryBudget() uintptr { return h.hl.NurseryBudget() }
func (h *Heaplet) OldBudget() uintptr     { return h.hl.OldBudget() }

// RegisterGlobalRoot registers buf as a permanent root.
func (h *Heaplet) RegisterGlobalRoot(buf []Tagged) GlobalRootHandle {
	return GlobalRootHandle{h: h.hl.RegisterGlobalRoot(buf)}
}

// DeregisterGlobalRoot removes a previously registered global root.
func (h *Heaplet) DeregisterGlobalRoot(handle GlobalRootHandle) { h.hl.DeregisterGlobalRoot(handle.h) }

// PushTemporaryRoot pushes buf onto the temporary root stack, the idiom
// for function-local roots: push on entry, PopTemporaryRoot (or restore a
// saved GetTemporaryRootSetHeight) on every exit path.
func (h *Heaplet) PushTemporaryRoot(buf []Tagged) { h.hl.PushTemporaryRoot(buf) }
func (h *Heaplet) PopTemporaryRoot()              { h.hl.PopTemporaryRoot() }
func (h *Heaplet) GetTemporaryRootSetHeight() int  { return h.hl.GetTemporaryRootSetHeight() }
func (h *Heaplet) ResetTemporaryRootSetHeight(n int) {
	h.hl.ResetTemporaryRootSetHeight(n)
}
func (h *Heaplet) RemoveAllTemporaryRoots() { h.hl.RemoveAllTemporaryRoots() }

// HookRootFunc is called during root-scanning; it must call handleRoot
// for every live tagged word in caller-owned data whose logical length is
// tracked separately from its backing storage (e.g. a VM operand stack).
type HookRootFunc = gc.HookRootFunc

// RegisterHookRoot registers fn to be called once per collection during
// root-scanning.
func (h *Heaplet) RegisterHookRoot(fn HookRootFunc) HookRootHandle {
	return HookRootHandle{h: h.hl.RegisterHookRoot(fn)}
}
func (h *Heaplet) DeregisterHookRoot(handle HookRootHandle) { h.hl.DeregisterHookRoot(handle.h) }

// HookFunc is the signature of a collection/SSB-flush lifecycle hook.
type HookFunc = gc.HookFunc

func (h *Heaplet) RegisterPreCollection(fn HookFunc, data any) HookHandle {
	return HookHandle{h: h.hl.RegisterPreCollection(fn, data)}
}
func (h *Heaplet) DeregisterPreCollection(handle HookHandle) { h.hl.DeregisterPreCollection(handle.h) }

func (h *Heaplet) RegisterPostCollection(fn HookFunc, data any) HookHandle {
	return HookHandle{h: h.hl.RegisterPostCollection(fn, data)}
}
func (h *Heaplet) DeregisterPostCollection(handle HookHandle) {
	h.hl.DeregisterPostCollection(handle.h)
}

func (h *Heaplet) RegisterPreSSBFlush(fn HookFunc, data any) HookHandle {
	return HookHandle{h: h.hl.RegisterPreSSBFlush(fn, data)}
}
func (h *Heaplet) DeregisterPreSSBFlush(handle HookHandle) { h.hl.DeregisterPreSSBFlush(handle.h) }

func (h *Heaplet) RegisterPostSSBFlush(fn HookFunc, data any) HookHandle {
	return HookHandle{h: h.hl.RegisterPostSSBFlush(fn, data)}
}
func (h *Heaplet) DeregisterPostSSBFlush(handle HookHandle) { h.hl.DeregisterPostSSBFlush(handle.h) }

// GlobalRootHandle, HookRootHandle, and HookHandle are opaque
// deregistration tokens.
type GlobalRootHandle struct{ h gc.GlobalRootHandle }
type HookRootHandle struct{ h gc.HookRootHandle }
type HookHandle struct{ h gc.HookHandle }
