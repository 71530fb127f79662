package gc

import (
	"unsafe"

	"github.com/jitgen/genheap/internal/block"
	"github.com/jitgen/genheap/internal/shape"
)

// collection is one run of the Cheney-style scavenger (§4.7): a Scanner
// that knows, for each from-space it was constructed with, which space
// receives its survivors. Constructed fresh for every minor, major, or
// share collection.
type collection struct {
	hl  *Heaplet
	kind CollectionKind

	// destFor maps a from-space to the space its survivors are copied
	// into. A block whose owning space isn't a key here is left alone
	// (already old enough, or in a generation this collection doesn't
	// touch).
	destFor map[*Space]*Space
	// tospaces lists the distinct destination spaces touched, in
	// promotion-chain order (nursery's destination before that
	// destination's own destination, and so on). drainWorklists repeats
	// passes over them until one makes no progress, since scanning a later
	// tospace can enqueue work into an earlier one.
	tospaces []*Space

	bytesCopied uint64
	survived    uint64
}

func rawOf(t shape.Tagged, mask uintptr) shape.Raw { return shape.Raw(uintptr(t) &^ mask) }

// HandleWord implements shape.Scanner (§4.7's handle_word): given the
// address of one tagged field, forward it if it refers into a from-space,
// rewriting the field in place either way.
func (c *collection) HandleWord(word *shape.Tagged) {
	t := *word
	if c.hl.shapes.IsUnboxed(t) {
		return
	}
	mask := c.hl.config.tagMask()
	raw := rawOf(t, mask)

	b := block.Lookup(uintptr(raw), c.hl.config.BlockSize)
	if b == nil {
		invariantViolated(c.hl.logger, "tagged reference does not belong to any known block")
		return
	}
	owner := (*Space)(b.Owner)
	if owner == nil {
		invariantViolated(c.hl.logger, "block has no owning space")
		return
	}
	to, isFrom := c.destFor[owner]
	if !isFrom {
		return // not a from-space for this collection: leave as-is
	}

	// Broken-heart check: has some earlier reference to this exact
	// from-space object already forwarded it?
	header := block.ReadWord(uintptr(raw))
	if header == c.hl.shapes.BrokenHeartTypeCode() {
		fwd := block.ReadWord(uintptr(raw) + block.WordSize)
		*word = shape.Tagged(fwd)
		return
	}

	sh := c.hl.shapes.Recognise(t)
	if sh == nil {
		invariantViolated(c.hl.logger, "unrecognised shape during scavenge")
		return
	}

	size := sh.Size(t)
	toRaw, ok := to.Allocate(size)
	if !ok {
		if err := to.ChangeBlock(); err != nil {
			allocationExhausted(c.hl.logger, "tospace exhausted mid-collection: "+err.Error())
			return
		}
		toRaw, ok = to.Allocate(size)
		if !ok {
			allocationExhausted(c.hl.logger, "object larger than one block")
			return
		}
	}

	var newTagged shape.Tagged
	sh.CopyFn(c, &newTagged, raw, shape.Raw(toRaw))
	*word = newTagged

	block.WriteWord(uintptr(raw), c.hl.shapes.BrokenHeartTypeCode())
	block.WriteWord(uintptr(raw)+block.WordSize, uintptr(newTagged))

	c.bytesCopied += uint64(size)
	c.survived++
	c.hl.logger.Forward(sh.Name, uintptr(raw), toRaw)

	to.EnqueueScan(toRaw, newTagged)
}

// handleObject implements §4.7's handle_object: scan every tagged field of
// the (already-copied, tospace-resident) object at raw, forwarding each in
// turn. Headerless shapes have no ScanFn, since every word is a field;
// headered shapes supply their own ScanFn, which knows which words are
// pointers and which are unboxed payload.
func (c *collection) handleObject(raw uintptr, t shape.Tagged) {
	if c.hl.shapes.IsUnboxed(t) {
		return
	}
	sh := c.hl.shapes.Recognise(t)
	if sh == nil {
		invariantViolated(c.hl.logger, "unrecognised shape while scanning tospace object")
		return
	}
	if sh.Headerless {
		n := sh.Size(t) / block.WordSize
		words := block.Words(raw, int(n))
		for i := range words {
			fw := (*shape.Tagged)(unsafe.Pointer(&words[i]))
			c.HandleWord(fw)
		}
		return
	}
	if sh.IsTypeCode != nil && !sh.IsTypeCode(block.ReadWord(raw)) {
		invariantViolated(c.hl.logger, "copied object's header does not match its shape's type code")
		return
	}
	sh.ScanFn(c, shape.Raw(raw))
}

// drainWorklists empties every tospace's worklist, in order, restarting
// from the first whenever a later tospace's scan enqueues new work into an
// earlier one (the promotion-chain case: nursery -> step1 -> step2 -> old,
// where scanning a step1 survivor can discover another old-space pointer
// needing nothing, or another step1/step2 pointer needing forwarding).
func (c *collection) drainWorklists() {
	for {
		progressed := false
		for _, sp := range c.tospaces {
			for {
				raw, t, ok := sp.PopScan()
				if !ok {
					break
				}
				c.handleObject(raw, t)
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

// wordIsYoung reports whether t currently refers into the young
// generation (nursery or an ageing step), used by the remembered-set
// recompute after a minor collection (§4.7's tie-break: "objects that
// don't reference anything young after a minor collection are dropped").
func (hl *Heaplet) wordIsYoung(t shape.Tagged) bool {
	if hl.shapes.IsUnboxed(t) {
		return false
	}
	raw := rawOf(t, hl.config.tagMask())
	b := block.Lookup(uintptr(raw), hl.config.BlockSize)
	if b == nil {
		return false
	}
	return b.Generation == block.GenYoung
}

// scanFieldsFor calls handleObject as if raw/t had just been copied,
// without requiring it to have gone through HandleWord first — used to
// treat a remembered-set entry's fields as roots (§4.6: a remembered old
// object is scanned, not copied).
func (c *collection) scanFieldsFor(t shape.Tagged) {
	raw := rawOf(t, c.hl.config.tagMask())
	c.handleObject(uintptr(raw), t)
}
