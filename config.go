package genheap

import "github.com/jitgen/genheap/internal/gc"

// Config carries the tunables of the block allocator and the
// generational sizing policy. There is no config-file format: tune
// genheap the way the corpus tunes a Go runtime, via a struct literal or
// by calling the setters an embedder's own policy loop needs.
type Config = gc.Config

// DefaultConfig returns conservative defaults: a 128 KiB block, one
// ageing step, and sizing bounds suitable for an embedded interpreter
// rather than a large server process.
func DefaultConfig() Config { return gc.DefaultConfig() }

// CollectionKind selects which flavour of collection Heaplet.Collect
// runs.
type CollectionKind = gc.CollectionKind

const (
	// ActionDefault runs a minor collection, like ActionForceMinor, but is
	// recorded in the statistics as not forced.
	ActionDefault = gc.ActionDefault
	// ActionForceMinor forces a minor collection regardless of the
	// trigger policy.
	ActionForceMinor = gc.ActionForceMinor
	// ActionForceMajor forces a major (full old-generation compaction)
	// collection.
	ActionForceMajor = gc.ActionForceMajor
	// ActionForceEither forces a collection, letting genheap pick minor
	// or major.
	ActionForceEither = gc.ActionForceEither
	// ActionForceGlobal forces a coordinated collection across every
	// heaplet registered with the Heap.
	ActionForceGlobal = gc.ActionForceGlobal
	// ActionShare names a share collection in statistics and logs.
	// Heaplet.Share runs no hooks; Collect(ActionShare) runs a minor
	// collection.
	ActionShare = gc.ActionShare
	// ActionBlockChange makes Collect swap in a fresh nursery block
	// without running a collection; hooks see it. The allocation slow
	// path's own block changes run no hooks.
	ActionBlockChange = gc.ActionBlockChange
)
