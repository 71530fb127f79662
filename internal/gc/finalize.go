package gc

import (
	"github.com/jitgen/genheap/internal/block"
	"github.com/jitgen/genheap/internal/dlist"
	"github.com/jitgen/genheap/internal/shape"
)

// finalizeAcrossChain runs §4.9's finalisation phase for every from-space
// in chain, after the main scavenge has already forwarded every reachable
// object: survivors' finalisable bookkeeping migrates to the space they
// were copied into; quick-finalisable objects that did not survive run
// their finaliser immediately (from-space memory is still intact — it is
// only reclaimed by the Drain that follows); complete-object-finalisable
// objects that did not survive are resurrected (copied as one extra root,
// along with everything reachable from them) so their finaliser observes
// a fully live object, then finalised once; their entry stays in the
// tospace's list marked as already run, so a later collection drops it
// without running the finaliser again.
func (hl *Heaplet) finalizeAcrossChain(c *collection, chain []*Space) int {
	type dueFinalizer struct {
		shape *shape.Shape
		raw   uintptr
	}
	var dueNow []dueFinalizer
	var dueAfterResurrection []*finalisableEntry

	for _, from := range chain {
		to, isFrom := c.destFor[from]
		if !isFrom {
			continue
		}
		var next *dlist.Element[*finalisableEntry]
		for elem := from.Finalisables().Front(); elem != nil; elem = next {
			next = elem.Next()
			e := elem.Value
			from.RemoveFinalisable(elem)

			mask := hl.config.tagMask()
			raw := rawOf(e.Tagged, mask)
			header := block.ReadWord(uintptr(raw))

			if header == hl.shapes.BrokenHeartTypeCode() {
				fwd := block.ReadWord(uintptr(raw) + block.WordSize)
				e.Tagged = shape.Tagged(fwd)
				to.AddFinalisable(e)
				continue
			}

			switch e.Shape.Finalize {
			case shape.FinalizeQuick:
				dueNow = append(dueNow, dueFinalizer{shape: e.Shape, raw: uintptr(raw)})
			case shape.FinalizeCompleteObject:
				if e.NeedToRun {
					// Already finalised on a previous cycle and still
					// unreachable: let it die for good, no re-run.
					continue
				}
				c.HandleWord(&e.Tagged)
				e.NeedToRun = true
				to.AddFinalisable(e)
				dueAfterResurrection = append(dueAfterResurrection, e)
			}
		}
	}

	// Resurrection may have enqueued new work (the resurrected object's
	// own fields); drain it before running any finaliser that expects a
	// fully-copied object graph.
	c.drainWorklists()

	for _, d := range dueNow {
		d.shape.FinalizeFn(shape.Raw(d.raw))
		hl.stats.RecordFree(d.shape.Size(d.shape.Encode(shape.Raw(d.raw))))
	}
	for _, e := range dueAfterResurrection {
		raw := rawOf(e.Tagged, hl.config.tagMask())
		e.Shape.FinalizeFn(raw)
	}

	return len(dueNow) + len(dueAfterResurrection)
}
