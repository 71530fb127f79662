package gc

import (
	"unsafe"

	"github.com/jitgen/genheap/internal/dlist"
	"github.com/jitgen/genheap/internal/shape"
)

// rootBuf is a caller-owned range of tagged words: the Go realization of
// §6's `register_global_root(heaplet, buf, size_bytes)`. Go code usually
// hands genheap a `[]shape.Tagged` it owns (a struct field, a local
// array); rootBuf keeps the pointer/length pair genheap actually needs to
// walk it during a collection, independent of how the caller expressed it.
type rootBuf struct {
	ptr   unsafe.Pointer
	words int
}

func rootBufOf(buf []shape.Tagged) rootBuf {
	if len(buf) == 0 {
		return rootBuf{}
	}
	return rootBuf{ptr: unsafe.Pointer(&buf[0]), words: len(buf)}
}

func rootBufOf1(word *shape.Tagged) rootBuf {
	return rootBuf{ptr: unsafe.Pointer(word), words: 1}
}

// each calls fn with the address of every tagged word in the buffer, so
// the scavenger can forward (and, for a moved object, rewrite) each root
// in place.
func (r rootBuf) each(fn func(*shape.Tagged)) {
	if r.words == 0 {
		return
	}
	words := unsafe.Slice((*shape.Tagged)(r.ptr), r.words)
	for i := range words {
		fn(&words[i])
	}
}

// GlobalRootHandle is returned by RegisterGlobalRoot for later
// deregistration. Global roots are doubly-linked (§4.4): deregistration in
// any order is O(1), at the cost of being more expensive to register than
// a temporary root.
type GlobalRootHandle struct {
	elem *dlist.Element[rootBuf]
}

// RegisterGlobalRoot registers buf as a permanent root, returning a handle
// for later deregistration.
func (h *Heaplet) RegisterGlobalRoot(buf []shape.Tagged) GlobalRootHandle {
	return GlobalRootHandle{elem: h.globalRoots.PushBack(rootBufOf(buf))}
}

// RegisterGlobalRoot1 is the one-word variant of RegisterGlobalRoot.
func (h *Heaplet) RegisterGlobalRoot1(word *shape.Tagged) GlobalRootHandle {
	return GlobalRootHandle{elem: h.globalRoots.PushBack(rootBufOf1(word))}
}

// DeregisterGlobalRoot removes a previously registered global root.
func (h *Heaplet) DeregisterGlobalRoot(handle GlobalRootHandle) {
	h.globalRoots.Remove(handle.elem)
}

// PushTemporaryRoot pushes buf onto the temporary root stack (§4.4: "the
// idiom for function-local roots"). Deregistration is PopTemporaryRoot or
// ResetTemporaryRootSetHeight, both O(1).
func (h *Heaplet) PushTemporaryRoot(buf []shape.Tagged) {
	h.tempRoots = append(h.tempRoots, rootBufOf(buf))
}

// PushTemporaryRoot1 is the one-word variant.
func (h *Heaplet) PushTemporaryRoot1(word *shape.Tagged) {
	h.tempRoots = append(h.tempRoots, rootBufOf1(word))
}

// PopTemporaryRoot removes the most recently pushed temporary root.
func (h *Heaplet) PopTemporaryRoot() {
	if len(h.tempRoots) == 0 {
		misuseAtMutator(h.logger, "temporary root stack underflow")
		return
	}
	h.tempRoots = h.tempRoots[:len(h.tempRoots)-1]
}

// GetTemporaryRootSetHeight returns the current stack height, to be saved
// by a caller that wants to restore it later (scoped root frames across
// multiple exit paths, §4.4).
func (h *Heaplet) GetTemporaryRootSetHeight() int { return len(h.tempRoots) }

// ResetTemporaryRootSetHeight truncates the stack back to a previously
// observed height.
func (h *Heaplet) ResetTemporaryRootSetHeight(height int) {
	if height < 0 || height > len(h.tempRoots) {
		misuseAtMutator(h.logger, "temporary root height out of range")
		return
	}
	h.tempRoots = h.tempRoots[:height]
}

// RemoveAllTemporaryRoots clears the temporary root stack entirely.
func (h *Heaplet) RemoveAllTemporaryRoots() { h.tempRoots = h.tempRoots[:0] }

// HookRootFunc is called during root-scanning; it must call handleRoot for
// every live tagged word in caller-owned data whose logical length is
// tracked separately from its backing storage (§4.4's example: "a VM
// operand stack whose logical length is tracked separately").
type HookRootFunc func(handleRoot func(*shape.Tagged))

// HookRootHandle is returned by RegisterHookRoot.
type HookRootHandle struct {
	elem *dlist.Element[HookRootFunc]
}

// RegisterHookRoot registers fn to be called once per collection during
// root-scanning.
func (h *Heaplet) RegisterHookRoot(fn HookRootFunc) HookRootHandle {
	return HookRootHandle{elem: h.hookRoots.PushBack(fn)}
}

// DeregisterHookRoot removes a previously registered hook root.
func (h *Heaplet) DeregisterHookRoot(handle HookRootHandle) {
	h.hookRoots.Remove(handle.elem)
}

// forEachRoot visits every global root, every temporary root, and invokes
// every hook root, calling fn with the address of each live tagged word.
func (h *Heaplet) forEachRoot(fn func(*shape.Tagged)) {
	h.globalRoots.Each(func(r rootBuf) { r.each(fn) })
	for _, r := range h.tempRoots {
		r.each(fn)
	}
	h.hookRoots.Each(func(hookFn HookRootFunc) { hookFn(fn) })
}
