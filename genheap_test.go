package genheap_test

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jitgen/genheap"
)

// A minimal two-word cons cell, registered the way an embedding language
// runtime would: tag 0 is an unboxed fixnum, tag 1 is the cons shape.
const consTag = genheap.Tagged(1)

func fixnum(n int64) genheap.Tagged { return genheap.Tagged(uintptr(n) << 4) }
func isUnboxed(t genheap.Tagged) bool { return uintptr(t)&0xF == 0 }

func newConsShapes() *genheap.ShapeTable {
	shapes := genheap.NewShapeTable(fixnum(0), fixnum(0), ^uintptr(0), isUnboxed)
	shapes.AddHeaderless("cons",
		func(t genheap.Tagged) bool { return uintptr(t)&0xF == uintptr(consTag) },
		func(raw genheap.Raw) genheap.Tagged { return genheap.Tagged(uintptr(raw) | uintptr(consTag)) },
		func(genheap.Tagged) uintptr { return 2 * unsafe.Sizeof(uintptr(0)) },
		func(s genheap.Scanner, dest *genheap.Tagged, fromRaw, toRaw genheap.Raw) uintptr {
			n := 2
			from := unsafe.Slice((*uintptr)(unsafe.Pointer(uintptr(fromRaw))), n)
			to := unsafe.Slice((*uintptr)(unsafe.Pointer(uintptr(toRaw))), n)
			copy(to, from)
			*dest = genheap.Tagged(uintptr(toRaw) | uintptr(consTag))
			return uintptr(n) * unsafe.Sizeof(uintptr(0))
		},
	)
	return shapes
}

func allocCons(t *testing.T, hl *genheap.Heaplet, car genheap.Tagged) genheap.Tagged {
	t.Helper()
	raw, err := hl.Allocate(2*unsafe.Sizeof(uintptr(0)), "cons")
	require.NoError(t, err)
	words := unsafe.Slice((*uintptr)(unsafe.Pointer(uintptr(raw))), 2)
	words[0] = uintptr(car)
	words[1] = uintptr(fixnum(0))
	return genheap.Tagged(uintptr(raw) | uintptr(consTag))
}

func carOf(t genheap.Tagged) genheap.Tagged {
	raw := uintptr(t) &^ 0xF
	return genheap.Tagged(*(*uintptr)(unsafe.Pointer(raw)))
}

func TestHeapAllocateAndCollect(t *testing.T) {
	heap := genheap.NewHeap(newConsShapes(), genheap.DefaultConfig(), zap.NewNop())
	t.Cleanup(func() { require.NoError(t, heap.Release()) })

	hl, err := heap.NewHeaplet()
	require.NoError(t, err)
	t.Cleanup(func() { heap.DestroyHeaplet(hl) })

	cell := allocCons(t, hl, fixnum(5))
	root := []genheap.Tagged{cell}
	handle := hl.RegisterGlobalRoot(root)
	t.Cleanup(func() { hl.DeregisterGlobalRoot(handle) })

	require.NoError(t, hl.Collect(genheap.ActionForceMinor))
	require.Equal(t, fixnum(5), carOf(root[0]))

	snap := heap.Stats()
	require.GreaterOrEqual(t, snap.Collections["minor"], uint64(1))
}

func TestHeapletAllocatesWhileCollectionDisabled(t *testing.T) {
	heap := genheap.NewHeap(newConsShapes(), genheap.DefaultConfig(), zap.NewNop())
	t.Cleanup(func() { require.NoError(t, heap.Release()) })

	hl, err := heap.NewHeaplet()
	require.NoError(t, err)
	t.Cleanup(func() { heap.DestroyHeaplet(hl) })

	hl.DisableCollection()
	defer hl.EnableCollection()

	cell := allocCons(t, hl, fixnum(11))
	require.Equal(t, fixnum(11), carOf(cell))
}
