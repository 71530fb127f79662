package gc

import (
	"github.com/jitgen/genheap/internal/block"
	"github.com/jitgen/genheap/internal/gcstats"
	"github.com/jitgen/genheap/internal/shape"
)

// Collect executes one collection cycle for hl (§4.7). ActionForceMajor
// runs a major collection, ActionForceEither picks major once old space
// has reached its budget, ActionForceGlobal collects every heaplet, and
// ActionBlockChange only swaps in a fresh nursery block; every other kind,
// ActionDefault included, runs a minor collection. Only ActionDefault is
// recorded in the statistics as not forced.
func (hl *Heaplet) Collect(kind CollectionKind) error {
	if kind == ActionForceGlobal {
		runHooks(hl, hl.preCollection, kind)
		clock := startClock()
		err := hl.heap.collectGlobal(hl)
		hl.stats.RecordCollection(gcstats.KindGlobal, true, clock.elapsed())
		runHooks(hl, hl.postCollection, kind)
		return err
	}

	// block_change (§4.5) swaps in a fresh nursery block and runs no
	// scavenge at all: no from-space/to-space pair, nothing forwarded,
	// nothing to account against a collection-kind counter. Hooks still
	// fire around it so an embedder watching preCollection/postCollection
	// sees every reason the nursery's bump pointer moved.
	if kind == ActionBlockChange {
		runHooks(hl, hl.preCollection, kind)
		err := hl.nursery.ChangeBlock()
		hl.publishBytesInUse()
		runHooks(hl, hl.postCollection, kind)
		return err
	}

	runHooks(hl, hl.preCollection, kind)
	clock := startClock()

	var statsKind gcstats.Kind
	var err error
	switch kind {
	case ActionForceMajor:
		statsKind = gcstats.KindMajor
		err = hl.runMajor()
	case ActionForceEither:
		// §4.5's old-space threshold: a minor collection alone cannot
		// reclaim old-space, so once old is at or past its budget, a
		// major collection is the only real choice.
		if hl.oldActive.BytesUsed() >= hl.oldBudget {
			statsKind = gcstats.KindMajor
			err = hl.runMajor()
		} else {
			statsKind = gcstats.KindMinor
			err = hl.runMinor()
		}
	default:
		statsKind = gcstats.KindMinor
		err = hl.runMinor()
	}

	forced := kind != ActionDefault
	hl.stats.RecordCollection(statsKind, forced, clock.elapsed())
	hl.publishBytesInUse()
	runHooks(hl, hl.postCollection, kind)
	return err
}

// youngFromSpaces returns, in promotion order, every space currently
// holding live young-generation objects: the nursery, then each ageing
// step's active bank.
func (hl *Heaplet) youngFromSpaces() []*Space {
	spaces := make([]*Space, 0, 1+len(hl.stepsActive))
	spaces = append(spaces, hl.nursery)
	spaces = append(spaces, hl.stepsActive...)
	return spaces
}

// runMinor implements §4.7's minor collection: the young generation
// (nursery plus every ageing step) is the from-space set; each forwards
// into the next space down the chain (nursery -> step 1 -> ... -> step N
// -> old), with old itself untouched as a destination-only sink (§4.1:
// "nursery → step-1 (or old, if N_STEPS = 0); step-i → step-(i+1);
// step-N → old").
func (hl *Heaplet) runMinor() error {
	c := &collection{hl: hl, kind: ActionForceMinor, destFor: make(map[*Space]*Space)}

	chain := hl.youngFromSpaces()
	for i, from := range chain {
		var to *Space
		switch {
		case i+1 < len(chain):
			to = hl.stepsReserve[i] // chain[i+1] is stepsActive[i], its reserve bank
		default:
			to = hl.oldActive
		}
		c.destFor[from] = to
		c.tospaces = appendUnique(c.tospaces, to)
	}

	hl.ssb.Flush(false)
	hl.scanRoots(c)
	for t := range hl.rememberedSet {
		c.scanFieldsFor(t)
	}
	c.drainWorklists()

	processed := hl.finalizeAcrossChain(c, chain)

	hl.recomputeRememberedSet()

	survivalRatio := 0.0
	if total := hl.nurseryBytesBeforeCollection(); total > 0 {
		survivalRatio = float64(c.bytesCopied) / float64(total)
	}
	hl.survivalRing.Record(survivalRatio)

	hl.nursery.Drain(true)
	for i := range hl.stepsActive {
		hl.stepsActive[i].Drain(true)
		hl.stepsActive[i], hl.stepsReserve[i] = hl.stepsReserve[i], hl.stepsActive[i]
	}

	hl.logger.Collection("minor", hl.id, c.bytesCopied, c.survived, "young", "old", false, 0)
	hl.resizeAfterMinor(survivalRatio)
	_ = processed
	return nil
}

// runMajor implements §4.7's major collection: young ∪ old is the
// from-space set, and old's reserve bank is the sole destination (a full
// compaction).
func (hl *Heaplet) runMajor() error {
	c := &collection{hl: hl, kind: ActionForceMajor, destFor: make(map[*Space]*Space)}

	chain := hl.youngFromSpaces()
	for _, from := range chain {
		c.destFor[from] = hl.oldReserve
	}
	c.destFor[hl.oldActive] = hl.oldReserve
	c.tospaces = []*Space{hl.oldReserve}

	hl.ssb.Flush(false)
	hl.scanRoots(c)
	c.drainWorklists()

	all := append(append([]*Space{}, chain...), hl.oldActive)
	hl.finalizeAcrossChain(c, all)

	hl.nursery.Drain(true)
	for i := range hl.stepsActive {
		hl.stepsActive[i].Drain(true)
		hl.stepsReserve[i].Drain(true)
	}
	hl.oldActive.Drain(true)
	hl.oldActive, hl.oldReserve = hl.oldReserve, hl.oldActive

	// Every old-generation reference the remembered set named has either
	// moved (and been rewritten in place via the broken-heart check) or
	// was never touched; either way the set must be rebuilt against the
	// post-compaction graph.
	hl.rememberedSet = make(map[shape.Tagged]struct{})

	hl.logger.Collection("major", hl.id, c.bytesCopied, c.survived, "young+old", "old", false, 0)
	hl.resizeAfterMajor()
	return nil
}

// Share implements §4.10's share barrier: obj and everything reachable
// from it is copied into this heaplet's per-thread shared-own space,
// which is created lazily on first use. The rest of the heaplet's
// generations are left untouched; only obj's transitive closure moves.
func (hl *Heaplet) Share(obj shape.Tagged) shape.Tagged {
	if hl.shapes.IsUnboxed(obj) {
		return obj
	}
	if hl.sharedOwn == nil {
		hl.sharedOwn = NewSpace(hl.id+":shared", block.GenShared, hl.heap.sharedPool)
		if err := hl.sharedOwn.ChangeBlock(); err != nil {
			allocationExhausted(hl.logger, "allocate initial shared-own block: "+err.Error())
			return obj
		}
	}

	c := &collection{hl: hl, kind: ActionShare, destFor: make(map[*Space]*Space)}
	for _, from := range hl.youngFromSpaces() {
		c.destFor[from] = hl.sharedOwn
	}
	c.destFor[hl.oldActive] = hl.sharedOwn
	c.tospaces = []*Space{hl.sharedOwn}

	root := obj
	c.HandleWord(&root)
	c.drainWorklists()

	hl.stats.RecordCollection(gcstats.KindShare, true, 0)
	hl.logger.Collection("share", hl.id, c.bytesCopied, c.survived, "young+old", "shared", true, 0)
	return root
}

// scanRoots visits every root (§4.4) and the hook-root callbacks,
// forwarding each in place.
func (hl *Heaplet) scanRoots(c *collection) {
	hl.forEachRoot(func(w *shape.Tagged) { c.HandleWord(w) })
}

// recomputeRememberedSet drops entries that, after this minor collection,
// no longer reference anything young (§4.7's tie-break).
func (hl *Heaplet) recomputeRememberedSet() {
	next := make(map[shape.Tagged]struct{}, len(hl.rememberedSet))
	for t := range hl.rememberedSet {
		if hl.objectReferencesYoung(t) {
			next[t] = struct{}{}
		}
	}
	hl.rememberedSet = next
}

func (hl *Heaplet) nurseryBytesBeforeCollection() uintptr {
	// bytesAllocated is reset by Drain, so it must be read before the
	// post-collection Drain(true) call; runMinor captures survivalRatio
	// before draining, so this reads the cycle's live value.
	return hl.nursery.bytesAllocated
}

func (hl *Heaplet) publishBytesInUse() {
	hl.stats.SetBytesInUse("young", uint64(hl.youngBytesInUse()))
	hl.stats.SetBytesInUse("old", uint64(hl.oldActive.BytesUsed()))
	if hl.sharedOwn != nil {
		hl.stats.SetBytesInUse("shared", uint64(hl.sharedOwn.BytesUsed()))
	}
}

func (hl *Heaplet) youngBytesInUse() uintptr {
	total := hl.nursery.BytesUsed()
	for _, s := range hl.stepsActive {
		total += s.BytesUsed()
	}
	return total
}

func appendUnique(spaces []*Space, s *Space) []*Space {
	for _, existing := range spaces {
		if existing == s {
			return spaces
		}
	}
	return append(spaces, s)
}
