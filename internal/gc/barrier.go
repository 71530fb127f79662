package gc

import (
	"github.com/jitgen/genheap/internal/block"
	"github.com/jitgen/genheap/internal/shape"
)

// WriteBarrier implements §4.6's write barrier: call it after storing
// value into *field, a field of owner. field is needed, not just owner,
// because the "with sharing" branch can rewrite the just-stored reference
// in place (§4.6: "If shared, enter the share barrier … which may collect
// and may relocate updated_obj and new_ref (caller must accept updated
// copies)").
//
// If owner is shared, value must itself live in the shared (or immortal)
// generation before the store is visible to other threads, so this
// promotes it via Share and rewrites *field to the (possibly moved)
// result. Otherwise this is the plain old→young case: a single block
// lookup on owner, no inspection of value, deliberately cheap and
// overapproximating — §4.6's SSB flush (internal/gc/ssb.go) re-derives
// the precise old→young membership when the buffer actually drains.
// Calling it when owner is not, in fact, an old-generation object is
// harmless: a young or unknown owner is not pushed at all.
func (h *Heaplet) WriteBarrier(owner shape.Tagged, field *shape.Tagged) {
	if h.shapes.IsUnboxed(owner) {
		return
	}
	raw := rawOf(owner, h.config.tagMask())
	b := block.Lookup(uintptr(raw), h.config.BlockSize)
	if b == nil {
		return
	}
	switch b.Generation {
	case block.GenShared:
		*field = h.Share(*field)
	case block.GenOld:
		h.ssb.Push(owner)
	}
}

// WriteField writes value into *field (a pointer to one tagged word
// inside owner's object) and then runs the write barrier for owner. This
// is the idiom genheap expects embedders to use for every field mutation
// (§4.6): young-into-young needs no barrier at all, but WriteBarrier's own
// generation check makes calling it unconditionally safe and simple.
func (h *Heaplet) WriteField(field *shape.Tagged, owner, value shape.Tagged) {
	*field = value
	h.WriteBarrier(owner, field)
}
