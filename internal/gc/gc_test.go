package gc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/jitgen/genheap/internal/block"
	"github.com/jitgen/genheap/internal/gclog"
	"github.com/jitgen/genheap/internal/gcstats"
	"github.com/jitgen/genheap/internal/shape"
)

// A tiny two-word cons cell is enough to exercise allocation, promotion
// through the ageing chain, and the write barrier without a full object
// model: tag 0 is an unboxed fixnum, tag 1 is a headerless cons cell
// {car, cdr}, tag 0xF is reserved for the broken-heart marker so it can
// never be confused with a live fixnum or cons reference.
const (
	consTag       = shape.Tagged(1)
	brokenHeartTC = ^uintptr(0)
)

func fixnum(n int64) shape.Tagged { return shape.Tagged(uintptr(n) << 4) }

func isUnboxed(t shape.Tagged) bool { return uintptr(t)&0xF == 0 }

func newConsTable() *shape.Table {
	t := shape.NewTable(fixnum(0), fixnum(0), brokenHeartTC, isUnboxed)
	t.AddHeaderless("cons",
		func(tg shape.Tagged) bool { return uintptr(tg)&0xF == uintptr(consTag) },
		func(raw shape.Raw) shape.Tagged { return shape.Tagged(uintptr(raw) | uintptr(consTag)) },
		func(shape.Tagged) uintptr { return 2 * block.WordSize },
		func(s shape.Scanner, dest *shape.Tagged, fromRaw, toRaw shape.Raw) uintptr {
			from := block.Words(uintptr(fromRaw), 2)
			to := block.Words(uintptr(toRaw), 2)
			copy(to, from)
			*dest = shape.Tagged(uintptr(toRaw) | uintptr(consTag))
			return 2 * block.WordSize
		},
	)
	return t
}

func newTestHeap(t *testing.T) (*Heap, *Heaplet) {
	t.Helper()
	cfg := DefaultConfig()
	heap := NewHeap(newConsTable(), cfg, gclog.Nop(), gcstats.New())
	hl, err := heap.NewHeaplet()
	require.NoError(t, err)
	t.Cleanup(func() {
		heap.DestroyHeaplet(hl)
		require.NoError(t, heap.Release())
	})
	return heap, hl
}

func allocCons(t *testing.T, hl *Heaplet, car, cdr shape.Tagged) shape.Tagged {
	t.Helper()
	raw, err := hl.Allocate(2*block.WordSize, "cons")
	require.NoError(t, err)
	block.WriteWord(uintptr(raw), uintptr(car))
	block.WriteWord(uintptr(raw)+block.WordSize, uintptr(cdr))
	return shape.Tagged(uintptr(raw) | uintptr(consTag))
}

func carOf(t shape.Tagged) shape.Tagged {
	raw := uintptr(t) &^ 0xF
	return shape.Tagged(block.ReadWord(raw))
}

func TestAllocateAndReadBack(t *testing.T) {
	_, hl := newTestHeap(t)
	cell := allocCons(t, hl, fixnum(42), fixnum(0))
	require.Equal(t, fixnum(42), carOf(cell))
}

func TestMinorCollectionPromotesThroughAgeingChain(t *testing.T) {
	_, hl := newTestHeap(t)
	cell := allocCons(t, hl, fixnum(7), fixnum(0))

	root := []shape.Tagged{cell}
	hl.RegisterGlobalRoot(root)

	require.NoError(t, hl.Collect(ActionForceMinor))
	moved := root[0]
	require.NotEqual(t, cell, moved, "survivor must have been forwarded to a new address")
	require.Equal(t, fixnum(7), carOf(moved))

	b := block.Lookup(uintptr(moved)&^0xF, hl.config.BlockSize)
	require.NotNil(t, b)
	require.Equal(t, block.GenYoung, b.Generation, "one minor collection promotes nursery -> step 1, still young")

	require.NoError(t, hl.Collect(ActionForceMinor))
	old := root[0]
	require.Equal(t, fixnum(7), carOf(old))
	b = block.Lookup(uintptr(old)&^0xF, hl.config.BlockSize)
	require.NotNil(t, b)
	require.Equal(t, block.GenOld, b.Generation, "second minor collection promotes step 1 -> old")
}

func TestMajorCollectionCompactsYoungAndOld(t *testing.T) {
	_, hl := newTestHeap(t)
	cell := allocCons(t, hl, fixnum(1), fixnum(0))
	root := []shape.Tagged{cell}
	hl.RegisterGlobalRoot(root)

	require.NoError(t, hl.Collect(ActionForceMajor))
	b := block.Lookup(uintptr(root[0])&^0xF, hl.config.BlockSize)
	require.NotNil(t, b)
	require.Equal(t, block.GenOld, b.Generation)
	require.Equal(t, fixnum(1), carOf(root[0]))
}

func TestUnreachableObjectIsNotPromoted(t *testing.T) {
	_, hl := newTestHeap(t)
	_ = allocCons(t, hl, fixnum(99), fixnum(0))
	require.NoError(t, hl.Collect(ActionForceMinor))
	require.Equal(t, uintptr(0), hl.stepsActive[0].BytesUsed())
}

func TestWriteBarrierRecordsOldToYoungReference(t *testing.T) {
	_, hl := newTestHeap(t)
	old := allocCons(t, hl, fixnum(1), fixnum(0))
	root := []shape.Tagged{old}
	hl.RegisterGlobalRoot(root)
	require.NoError(t, hl.Collect(ActionForceMajor)) // promote old into the old generation

	young := allocCons(t, hl, fixnum(2), fixnum(0))

	ownerRaw := uintptr(root[0]) &^ 0xF
	field := (*shape.Tagged)(unsafe.Pointer(ownerRaw + block.WordSize))
	*field = young
	hl.WriteBarrier(root[0], field)

	require.NoError(t, hl.Collect(ActionForceMinor))
	require.Equal(t, fixnum(2), carOf(*field), "young object reachable only via the remembered set must survive")
}
