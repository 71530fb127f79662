package gc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jitgen/genheap/internal/block"
	"github.com/jitgen/genheap/internal/gclog"
	"github.com/jitgen/genheap/internal/gcstats"
	"github.com/jitgen/genheap/internal/shape"
)

// Two headered, two-word shapes ({type-code, payload}) exercise §4.9's two
// finalisation flavours: fdbox simulates a quick finaliser over a
// file-descriptor-shaped resource, linkbox a complete-object finaliser
// that needs its (trivial, in this test) transitive closure resurrected
// before it runs.
const (
	fdBoxTag      = shape.Tagged(2)
	fdBoxTypeCode = uintptr(0xF00D)

	linkBoxTag      = shape.Tagged(3)
	linkBoxTypeCode = uintptr(0xF00E)
)

func newFinalizeTable(fdCounter *int, linkRunCount *int, linkResurrected *shape.Tagged) *shape.Table {
	t := shape.NewTable(fixnum(0), fixnum(0), brokenHeartTC, isUnboxed)

	headeredCopy := func(tag shape.Tagged) func(shape.Scanner, *shape.Tagged, shape.Raw, shape.Raw) uintptr {
		return func(s shape.Scanner, dest *shape.Tagged, fromRaw, toRaw shape.Raw) uintptr {
			from := block.Words(uintptr(fromRaw), 2)
			to := block.Words(uintptr(toRaw), 2)
			copy(to, from)
			*dest = shape.Tagged(uintptr(toRaw) | uintptr(tag))
			return 2 * block.WordSize
		}
	}
	noFields := func(shape.Scanner, shape.Raw) uintptr { return 2 * block.WordSize }

	t.AddHeaderedQuicklyFinalisable("fdbox",
		func(tg shape.Tagged) bool { return uintptr(tg)&0xF == uintptr(fdBoxTag) },
		func(raw shape.Raw) shape.Tagged { return shape.Tagged(uintptr(raw) | uintptr(fdBoxTag)) },
		func(shape.Tagged) uintptr { return 2 * block.WordSize },
		func(word uintptr) bool { return word == fdBoxTypeCode },
		headeredCopy(fdBoxTag),
		noFields,
		func(shape.Raw) {
			if fdCounter != nil {
				*fdCounter--
			}
		},
	)

	t.AddHeaderedCompleteObjectFinalisable("linkbox",
		func(tg shape.Tagged) bool { return uintptr(tg)&0xF == uintptr(linkBoxTag) },
		func(raw shape.Raw) shape.Tagged { return shape.Tagged(uintptr(raw) | uintptr(linkBoxTag)) },
		func(shape.Tagged) uintptr { return 2 * block.WordSize },
		func(word uintptr) bool { return word == linkBoxTypeCode },
		headeredCopy(linkBoxTag),
		noFields,
		func(raw shape.Raw) {
			if linkRunCount != nil {
				*linkRunCount++
			}
			if linkResurrected != nil {
				*linkResurrected = shape.Tagged(uintptr(raw) | uintptr(linkBoxTag))
			}
		},
	)

	return t
}

func newFinalizeTestHeap(t *testing.T, table *shape.Table) (*Heap, *Heaplet) {
	t.Helper()
	heap := NewHeap(table, DefaultConfig(), gclog.Nop(), gcstats.New())
	hl, err := heap.NewHeaplet()
	require.NoError(t, err)
	t.Cleanup(func() {
		heap.DestroyHeaplet(hl)
		require.NoError(t, heap.Release())
	})
	return heap, hl
}

func allocFdBox(t *testing.T, hl *Heaplet) shape.Tagged {
	t.Helper()
	raw, err := hl.Allocate(2*block.WordSize, "fdbox")
	require.NoError(t, err)
	block.WriteWord(uintptr(raw), fdBoxTypeCode)
	block.WriteWord(uintptr(raw)+block.WordSize, 0)
	tagged := shape.Tagged(uintptr(raw) | uintptr(fdBoxTag))
	hl.RegisterFinalisable(tagged)
	return tagged
}

func allocLinkBox(t *testing.T, hl *Heaplet) shape.Tagged {
	t.Helper()
	raw, err := hl.Allocate(2*block.WordSize, "linkbox")
	require.NoError(t, err)
	block.WriteWord(uintptr(raw), linkBoxTypeCode)
	block.WriteWord(uintptr(raw)+block.WordSize, 0)
	tagged := shape.Tagged(uintptr(raw) | uintptr(linkBoxTag))
	hl.RegisterFinalisable(tagged)
	return tagged
}

// TestQuickFinalizer is spec.md §8's S3: 100 quick-finalisable objects,
// all dropped without ever being rooted, must each run their finaliser
// exactly once during the major collection that reclaims them.
func TestQuickFinalizer(t *testing.T) {
	const n = 100
	fdCounter := n

	table := newFinalizeTable(&fdCounter, nil, nil)
	_, hl := newFinalizeTestHeap(t, table)

	for i := 0; i < n; i++ {
		allocFdBox(t, hl)
	}

	require.NoError(t, hl.Collect(ActionForceMajor))
	require.Equal(t, 0, fdCounter, "quick finaliser must run exactly once per unreachable object")
}

// TestCompleteObjectFinalizerResurrection is spec.md §8's S4: a
// complete-object-finalisable object dropped without any root must still
// be resurrected (its closure copied to tospace) so its finaliser
// observes a live object; the finaliser runs exactly once, and a second
// major collection (with nothing re-rooting it) must not run it again.
func TestCompleteObjectFinalizerResurrection(t *testing.T) {
	runCount := 0
	var resurrected shape.Tagged

	table := newFinalizeTable(nil, &runCount, &resurrected)
	_, hl := newFinalizeTestHeap(t, table)

	allocLinkBox(t, hl)

	require.NoError(t, hl.Collect(ActionForceMajor))
	require.Equal(t, 1, runCount, "finaliser must run exactly once")
	require.NotZero(t, resurrected, "finaliser must observe a resurrected, live object")

	b := block.Lookup(uintptr(resurrected)&^0xF, hl.config.BlockSize)
	require.NotNil(t, b)
	require.Equal(t, block.GenOld, b.Generation, "X survives into old space")

	require.NoError(t, hl.Collect(ActionForceMajor))
	require.Equal(t, 1, runCount, "second major must not re-run the finaliser without need_to_run_finalizer being reset")
}
