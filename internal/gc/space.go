package gc

import (
	"unsafe"

	"github.com/jitgen/genheap/internal/block"
	"github.com/jitgen/genheap/internal/dlist"
	"github.com/jitgen/genheap/internal/shape"
)

// blockSource supplies fresh blocks to a Space and accepts drained ones
// back. The Heap's unused pool and its shared-space pool (both blockPools)
// implement it (§4.1: "maintain free block list").
type blockSource interface {
	GetBlock() (*block.Block, error)
	PutBlock(*block.Block)
}

// finalisableEntry is one object in a Space's finalisable list (§4.2).
type finalisableEntry struct {
	Tagged      shape.Tagged
	Shape       *shape.Shape
	NeedToRun   bool
}

// Space is a bump-allocation region: §4.2's contract over a list of
// blocks sharing one generation and role.
type Space struct {
	name       string
	generation block.Generation
	source     blockSource

	ap, limit uintptr // current allocation block's bump pointer and ceiling

	blocksHead, blocksTail *block.Block
	blockCount             int
	curAlloc               *block.Block

	bytesUsed      uintptr // committed via change_block/drain bookkeeping
	bytesAllocated uintptr // cumulative bump-allocated bytes, this collection cycle

	finalisables *dlist.List[*finalisableEntry]

	// pending is the tospace worklist (§4.7 step 3). The abstract spec
	// walks a "scan pointer" across raw tospace bytes, re-deriving each
	// object's shape from the bytes it finds there; that only works when
	// every object self-describes via a header word. genheap's shapes may
	// be headerless (§4.3: "every word is treated as a tagged field"), so
	// there is nothing in a headerless object's own bytes to recover its
	// shape from once it's sitting in tospace. Instead, whatever copies an
	// object into this space's tospace enqueues the (raw, tagged) pair it
	// already has in hand here, and the scavenger drains the queue
	// instead of walking memory. Same BFS order, same O(live bytes) work;
	// the bookkeeping moves from implicit (address arithmetic) to
	// explicit (a slice) to stay correct for both shape flavours.
	pending  []pendingScan
	scanHead int
}

type pendingScan struct {
	raw    uintptr
	tagged shape.Tagged
}

// NewSpace constructs an empty space of the given generation, drawing
// blocks from source on demand.
func NewSpace(name string, generation block.Generation, source blockSource) *Space {
	return &Space{
		name:         name,
		generation:   generation,
		source:       source,
		finalisables: dlist.New[*finalisableEntry](),
	}
}

func (s *Space) Name() string               { return s.name }
func (s *Space) Generation() block.Generation { return s.generation }
func (s *Space) BytesUsed() uintptr          { return s.bytesUsed }
func (s *Space) Finalisables() *dlist.List[*finalisableEntry] { return s.finalisables }

// Allocate bumps ap by sizeBytes (already rounded to the object grain) and
// returns the raw address, or ok=false if it would cross limit (§4.2).
func (s *Space) Allocate(sizeBytes uintptr) (raw uintptr, ok bool) {
	if s.ap+sizeBytes > s.limit {
		return 0, false
	}
	raw = s.ap
	s.ap += sizeBytes
	s.bytesAllocated += sizeBytes
	return raw, true
}

// AvailableBytes reports how much room remains before the next ChangeBlock.
func (s *Space) AvailableBytes() uintptr {
	if s.limit <= s.ap {
		return 0
	}
	return s.limit - s.ap
}

// ShrinkLimit moves limit down by n bytes, carving out a tail region (used
// by the SSB to borrow space from the nursery's allocation block, §4.6).
// It returns the address of the carved-out region's start, or ok=false if
// doing so would cross ap.
func (s *Space) ShrinkLimit(n uintptr) (addr uintptr, ok bool) {
	if s.limit < s.ap+n {
		return 0, false
	}
	s.limit -= n
	return s.limit, true
}

// GrowLimit moves limit back up by n bytes (SSB flush, §4.6).
func (s *Space) GrowLimit(n uintptr) { s.limit += n }

// Limit and AllocPointer expose the raw bump-allocation state, read by the
// SSB and by debug assertions.
func (s *Space) Limit() uintptr       { return s.limit }
func (s *Space) AllocPointer() uintptr { return s.ap }

// ChangeBlock persists ap into the current allocation block's UsedLimit,
// then links in a fresh (or reused) block and resets ap/limit to its
// payload range (§4.2).
func (s *Space) ChangeBlock() error {
	if s.curAlloc != nil {
		s.curAlloc.UsedLimit = s.ap - s.curAlloc.Base()
	}

	b, err := s.source.GetBlock()
	if err != nil {
		return err
	}
	b.Generation = s.generation
	b.Owner = unsafe.Pointer(s)
	s.linkBlock(b)

	s.curAlloc = b
	s.ap = b.Base()
	s.limit = b.End()
	s.bytesUsed += b.Size()
	return nil
}

func (s *Space) linkBlock(b *block.Block) {
	b.SetLinks(nil, s.blocksTail)
	if s.blocksTail != nil {
		s.blocksTail.SetLinks(b, s.blocksTail)
	}
	s.blocksTail = b
	if s.blocksHead == nil {
		s.blocksHead = b
	}
	s.blockCount++
}

func (s *Space) unlinkBlock(b *block.Block) {
	prev, next := b.Prev(), b.Next()
	if prev != nil {
		prev.SetLinks(next, prev.Prev())
	} else {
		s.blocksHead = next
	}
	if next != nil {
		next.SetLinks(next.Next(), prev)
	} else {
		s.blocksTail = prev
	}
	b.SetLinks(nil, nil)
	s.blockCount--
}

// Blocks calls fn for every block currently owned by the space, in link
// order.
func (s *Space) Blocks(fn func(*block.Block)) {
	for b := s.blocksHead; b != nil; b = b.Next() {
		fn(b)
	}
}

// BlockCount reports how many blocks the space currently owns.
func (s *Space) BlockCount() int { return s.blockCount }

// Drain moves the space's blocks to its block source's unused pool
// (§4.2). If !complete, one block is kept to avoid an immediate
// re-allocation on the next bump.
func (s *Space) Drain(complete bool) {
	keep := s.curAlloc
	if complete {
		keep = nil
	}

	b := s.blocksHead
	for b != nil {
		next := b.Next()
		if b != keep {
			s.unlinkBlock(b)
			b.Owner = nil
			s.source.PutBlock(b)
		}
		b = next
	}

	s.bytesUsed = 0
	s.bytesAllocated = 0
	s.pending = s.pending[:0]
	s.scanHead = 0

	if keep != nil {
		s.ap = keep.Base()
		s.limit = keep.End()
		s.bytesUsed = keep.Size()
	} else {
		s.curAlloc = nil
		s.ap, s.limit = 0, 0
	}
}

// ResetForTospace clears all blocks (they're about to be replaced by the
// space that was formerly its reserve bank) and empties the worklist,
// ready to receive copied objects.
func (s *Space) ResetForTospace() {
	s.Drain(true)
}

// EnqueueScan records that raw (tagged as t) was just copied into this
// space, so the scavenger's worklist drain (§4.7 step 3) will visit it.
func (s *Space) EnqueueScan(raw uintptr, t shape.Tagged) {
	s.pending = append(s.pending, pendingScan{raw: raw, tagged: t})
}

// PopScan removes and returns the next unscanned entry, or ok=false if the
// worklist is (currently) exhausted.
func (s *Space) PopScan() (raw uintptr, t shape.Tagged, ok bool) {
	if s.scanHead >= len(s.pending) {
		return 0, 0, false
	}
	e := s.pending[s.scanHead]
	s.scanHead++
	return e.raw, e.tagged, true
}

// ScanDone reports whether every object copied into this space so far has
// been scanned (the worklist is empty).
func (s *Space) ScanDone() bool { return s.scanHead >= len(s.pending) }

// AddFinalisable registers obj in this space's finalisable list (§4.2).
func (s *Space) AddFinalisable(e *finalisableEntry) *dlist.Element[*finalisableEntry] {
	return s.finalisables.PushBack(e)
}

// RemoveFinalisable deregisters a previously-added entry.
func (s *Space) RemoveFinalisable(elem *dlist.Element[*finalisableEntry]) {
	s.finalisables.Remove(elem)
}
