package gc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/jitgen/genheap/internal/block"
	"github.com/jitgen/genheap/internal/shape"
)

// TestShareBarrierClosure is spec.md §8's S6: object S already lives in
// the shared generation, object Y in the nursery; storing S.f = Y must
// run the write barrier's share branch, promoting Y (and its transitive
// closure) into the shared generation before the store is visible to
// another thread, preserving P2 (no shared-generation field ever refers
// to a non-shared, non-immortal object).
func TestShareBarrierClosure(t *testing.T) {
	_, hl := newTestHeap(t)

	s := allocCons(t, hl, fixnum(1), fixnum(0))
	root := []shape.Tagged{s}
	hl.RegisterGlobalRoot(root)

	shared := hl.Share(root[0])
	root[0] = shared

	sb := block.Lookup(uintptr(shared)&^0xF, hl.config.BlockSize)
	require.NotNil(t, sb)
	require.Equal(t, block.GenShared, sb.Generation, "Share must place S in the shared generation")

	y := allocCons(t, hl, fixnum(2), fixnum(0))
	yb := block.Lookup(uintptr(y)&^0xF, hl.config.BlockSize)
	require.NotNil(t, yb)
	require.Equal(t, block.GenYoung, yb.Generation, "Y starts in the nursery")

	sRaw := uintptr(shared) &^ 0xF
	field := (*shape.Tagged)(unsafe.Pointer(sRaw + block.WordSize))
	*field = y
	hl.WriteBarrier(shared, field)

	fb := block.Lookup(uintptr(*field)&^0xF, hl.config.BlockSize)
	require.NotNil(t, fb)
	require.Equal(t, block.GenShared, fb.Generation, "share barrier must promote Y into the shared generation")
	require.Equal(t, fixnum(2), carOf(*field))
}
