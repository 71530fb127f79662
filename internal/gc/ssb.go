package gc

import (
	"unsafe"

	"github.com/jitgen/genheap/internal/block"
	"github.com/jitgen/genheap/internal/shape"
)

// SSB is the sequential store buffer (§3, §4.6): a bounded run of tagged
// words carved out of the nursery's own allocation limit, so recording a
// write-barrier entry costs exactly what shrinking ap's ceiling costs —
// no separate allocation, no separate free.
type SSB struct {
	hl       *Heaplet
	capacity int
	count    int
}

// NewSSB returns an SSB that borrows space from hl's nursery, holding up
// to capacityWords entries before it must flush.
func NewSSB(hl *Heaplet, capacityWords int) *SSB {
	return &SSB{hl: hl, capacity: capacityWords}
}

// Push records obj (an old-generation object that was just mutated to
// point somewhere new) in the SSB, flushing first if there is no room
// left in the nursery's current block for another entry (§4.6: "unless
// the slot would cross ap, in which case flush the SSB first").
func (b *SSB) Push(obj shape.Tagged) {
	if addr, ok := b.hl.nursery.ShrinkLimit(block.WordSize); ok {
		block.WriteWord(addr, uintptr(obj))
		b.count++
		if b.count >= b.capacity {
			b.Flush(false)
		}
		return
	}
	// No room for even one more slot: flush now, then retry. This is the
	// "incidental at SSB-enqueue overflow" path (§4.6); the overflowing
	// entry is not part of that flush but becomes the first entry of the
	// emptied buffer.
	b.Flush(true)
	if addr, ok := b.hl.nursery.ShrinkLimit(block.WordSize); ok {
		block.WriteWord(addr, uintptr(obj))
		b.count = 1
		return
	}
	invariantViolated(b.hl.logger, "SSB has no room immediately after a flush")
}

// Flush processes every pending SSB entry: each records a candidate
// old-to-young reference. An entry is kept in the remembered set only if
// it both belongs to the old generation (a young object's own SSB entries
// are irrelevant — it will be scanned wholesale at the next minor
// collection regardless) and still, right now, points at something young.
// incidental is true when Push found no room left in the nursery's block
// for another slot, and false for a flush at SSB capacity or one made
// before a collection (§4.6's ssb_flush_0 vs ssb_flush_1 distinction,
// surfaced in the log line).
func (b *SSB) Flush(incidental bool) {
	if b.count == 0 {
		return
	}
	runHooks(b.hl, b.hl.preSSBFlush, ActionDefault)

	entries := block.Words(b.hl.nursery.Limit(), b.count)
	kept := 0
	for _, w := range entries {
		t := shape.Tagged(w)
		if b.hl.shapes.IsUnboxed(t) {
			continue
		}
		raw := rawOf(t, b.hl.config.tagMask())
		blk := block.Lookup(uintptr(raw), b.hl.config.BlockSize)
		if blk == nil || blk.Generation != block.GenOld {
			continue
		}
		if b.hl.objectReferencesYoung(t) {
			if _, already := b.hl.rememberedSet[t]; !already {
				b.hl.rememberedSet[t] = struct{}{}
				kept++
			}
		}
	}

	b.hl.nursery.GrowLimit(uintptr(b.count) * block.WordSize)
	b.count = 0

	b.hl.logger.SSBFlush(b.hl.id, len(entries), kept, incidental)
	runHooks(b.hl, b.hl.postSSBFlush, ActionDefault)
}

// objectReferencesYoung scans t's fields (without forwarding anything —
// t lives in old space and isn't moving) and reports whether any field
// currently refers into the young generation.
func (hl *Heaplet) objectReferencesYoung(t shape.Tagged) bool {
	c := &youngChecker{hl: hl}
	raw := rawOf(t, hl.config.tagMask())
	c.scan(raw, t)
	return c.found
}

// youngChecker implements shape.Scanner to answer "does this object's
// field set currently contain a young reference", used both by SSB flush
// and by the post-minor-collection remembered-set recompute.
type youngChecker struct {
	hl    *Heaplet
	found bool
}

func (c *youngChecker) HandleWord(word *shape.Tagged) {
	if c.found {
		return
	}
	if c.hl.wordIsYoung(*word) {
		c.found = true
	}
}

func (c *youngChecker) scan(raw shape.Raw, t shape.Tagged) {
	if c.hl.shapes.IsUnboxed(t) {
		return
	}
	sh := c.hl.shapes.Recognise(t)
	if sh == nil {
		invariantViolated(c.hl.logger, "unrecognised shape while checking remembered-set entry")
		return
	}
	if sh.Headerless {
		n := sh.Size(t) / block.WordSize
		words := block.Words(uintptr(raw), int(n))
		for i := range words {
			if c.found {
				return
			}
			c.HandleWord((*shape.Tagged)(unsafe.Pointer(&words[i])))
		}
		return
	}
	sh.ScanFn(c, raw)
}
