package gc

import "github.com/jitgen/genheap/internal/dlist"

// HookFunc is the signature of a collection/SSB-flush lifecycle hook
// (§6): `(heaplet, data, collection_kind)`.
type HookFunc func(h *Heaplet, data any, kind CollectionKind)

type hookEntry struct {
	fn   HookFunc
	data any
}

// HookHandle is returned by the Register{Pre,Post}{Collection,SSBFlush}
// family for later deregistration.
type HookHandle struct {
	elem *dlist.Element[hookEntry]
}

func registerHook(list *dlist.List[hookEntry], fn HookFunc, data any) HookHandle {
	return HookHandle{elem: list.PushBack(hookEntry{fn: fn, data: data})}
}

func runHooks(h *Heaplet, list *dlist.List[hookEntry], kind CollectionKind) {
	list.Each(func(e hookEntry) { e.fn(h, e.data, kind) })
}

// RegisterPreCollection registers fn to run immediately before a
// collection begins (before roots are copied).
func (h *Heaplet) RegisterPreCollection(fn HookFunc, data any) HookHandle {
	return registerHook(h.preCollection, fn, data)
}

// DeregisterPreCollection removes a previously registered hook.
func (h *Heaplet) DeregisterPreCollection(handle HookHandle) { h.preCollection.Remove(handle.elem) }

// RegisterPostCollection registers fn to run immediately after a
// collection completes (after resize).
func (h *Heaplet) RegisterPostCollection(fn HookFunc, data any) HookHandle {
	return registerHook(h.postCollection, fn, data)
}

// DeregisterPostCollection removes a previously registered hook.
func (h *Heaplet) DeregisterPostCollection(handle HookHandle) {
	h.postCollection.Remove(handle.elem)
}

// RegisterPreSSBFlush registers fn to run immediately before an SSB flush.
func (h *Heaplet) RegisterPreSSBFlush(fn HookFunc, data any) HookHandle {
	return registerHook(h.preSSBFlush, fn, data)
}

// DeregisterPreSSBFlush removes a previously registered hook.
func (h *Heaplet) DeregisterPreSSBFlush(handle HookHandle) { h.preSSBFlush.Remove(handle.elem) }

// RegisterPostSSBFlush registers fn to run immediately after an SSB flush.
func (h *Heaplet) RegisterPostSSBFlush(fn HookFunc, data any) HookHandle {
	return registerHook(h.postSSBFlush, fn, data)
}

// DeregisterPostSSBFlush removes a previously registered hook.
func (h *Heaplet) DeregisterPostSSBFlush(handle HookHandle) { h.postSSBFlush.Remove(handle.elem) }
