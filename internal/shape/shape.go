// Package shape implements §4.3's shape registry: per-object-shape
// descriptors (recognise, encode, size, copy, scan, finalize) consulted by
// the scavenger to treat boxed references generically.
package shape

import "fmt"

// Tagged is a machine word: either unboxed data, or a boxed reference with
// low tag bits identifying its shape (§3).
type Tagged uintptr

// Raw is an untagged address: a tagged reference with its tag bits masked
// off, always aligned to the object grain (§3).
type Raw uintptr

// FinalizeKind names a shape's finalisation flavour (§3).
type FinalizeKind int

const (
	FinalizeNone FinalizeKind = iota
	FinalizeQuick
	FinalizeCompleteObject
)

func (k FinalizeKind) String() string {
	switch k {
	case FinalizeNone:
		return "none"
	case FinalizeQuick:
		return "quick"
	case FinalizeCompleteObject:
		return "complete-object"
	default:
		return "finalize(?)"
	}
}

// Scanner is implemented by the active collection (internal/gc's
// scavenger) and passed to a shape's Copy/Scan callbacks so they
// can report tagged fields without the shape package depending on
// internal/gc (dependency order: shape registry sits below heaplet).
type Scanner interface {
	// HandleWord processes one tagged field during a scan, forwarding it
	// if it refers into a from-space (§4.7's handle_word).
	HandleWord(word *Tagged)
}

// Shape is a registered object-shape descriptor (§4.3).
type Shape struct {
	Name       string
	Headerless bool
	Finalize   FinalizeKind

	Recognise  func(t Tagged) bool
	Encode     func(raw Raw) Tagged
	Size       func(t Tagged) uintptr
	IsTypeCode func(word uintptr) bool // nil for headerless shapes

	CopyFn     func(s Scanner, dest *Tagged, fromRaw, toRaw Raw) uintptr
	ScanFn     func(s Scanner, raw Raw) uintptr // nil for headerless shapes
	FinalizeFn func(raw Raw)                    // nil unless Finalize != FinalizeNone
}

// Table is an append-only (until Seal) ordered collection of shapes,
// consulted in registration order by Recognise (§4.3: "the user is
// responsible for registering shapes in an order that gives unambiguous
// recognition").
type Table struct {
	invalid       Tagged
	uninitialised Tagged
	brokenHeart   uintptr
	isUnboxed     func(Tagged) bool

	sealed bool

	all                 []*Shape
	headered            []*Shape
	finalisable         []*Shape
	quickFinalisable    []*Shape
	completeFinalisable []*Shape
}

// NewTable constructs a shape table. invalid and uninitialised are
// distinguished unboxed sentinels; brokenHeartTypeCode is the header word
// written into a from-space object once copied (must not collide with any
// real shape's type code nor any valid unboxed encoding); isUnboxed
// recognises unboxed values.
func NewTable(invalid, uninitialised Tagged, brokenHeartTypeCode uintptr, isUnboxed func(Tagged) bool) *Table {
	return &Table{
		invalid:       invalid,
		uninitialised: uninitialised,
		brokenHeart:   brokenHeartTypeCode,
		isUnboxed:     isUnboxed,
	}
}

// Invalid, Uninitialised, BrokenHeartTypeCode, IsUnboxed expose the
// table-level sentinels.
func (t *Table) Invalid() Tagged                { return t.invalid }
func (t *Table) Uninitialised() Tagged           { return t.uninitialised }
func (t *Table) BrokenHeartTypeCode() uintptr    { return t.brokenHeart }
func (t *Table) IsUnboxed(tagged Tagged) bool    { return t.isUnboxed(tagged) }

// Seal forbids further registration. Called when the first heaplet is
// created (§4.3's "treat the shape table as an append-only ordered
// collection; forbid mutation after the first heaplet is created").
func (t *Table) Seal() { t.sealed = true }

func (t *Table) mustNotBeSealed() {
	if t.sealed {
		panic("shape: table registration after heap use (MisuseAtMutator)")
	}
}

func (t *Table) add(s *Shape) *Shape {
	t.mustNotBeSealed()
	if s.Recognise == nil || s.Encode == nil || s.Size == nil {
		panic(fmt.Sprintf("shape: %q missing a required callback", s.Name))
	}
	t.all = append(t.all, s)
	if !s.Headerless {
		t.headered = append(t.headered, s)
	}
	switch s.Finalize {
	case FinalizeQuick:
		t.finalisable = append(t.finalisable, s)
		t.quickFinalisable = append(t.quickFinalisable, s)
	case FinalizeCompleteObject:
		t.finalisable = append(t.finalisable, s)
		t.completeFinalisable = append(t.completeFinalisable, s)
	}
	return s
}

// AddHeaderless registers a shape with no type-code word: every word of
// the object is a tagged field when scanning.
func (t *Table) AddHeaderless(name string, recognise func(Tagged) bool, encode func(Raw) Tagged, size func(Tagged) uintptr, cp func(Scanner, *Tagged, Raw, Raw) uintptr) *Shape {
	return t.add(&Shape{
		Name:       name,
		Headerless: true,
		Recognise:  recognise,
		Encode:     encode,
		Size:       size,
		CopyFn:     cp,
	})
}

// AddHeaderedNonFinalisable registers a headered, non-finalisable shape.
func (t *Table) AddHeaderedNonFinalisable(name string, recognise func(Tagged) bool, encode func(Raw) Tagged, size func(Tagged) uintptr, isTypeCode func(uintptr) bool, cp func(Scanner, *Tagged, Raw, Raw) uintptr, scan func(Scanner, Raw) uintptr) *Shape {
	return t.add(&Shape{
		Name:       name,
		Recognise:  recognise,
		Encode:     encode,
		Size:       size,
		IsTypeCode: isTypeCode,
		CopyFn:     cp,
		ScanFn:     scan,
	})
}

// AddHeaderedQuicklyFinalisable registers a headered shape whose finaliser
// may run directly on the from-space object (fields may be stale).
func (t *Table) AddHeaderedQuicklyFinalisable(name string, recognise func(Tagged) bool, encode func(Raw) Tagged, size func(Tagged) uintptr, isTypeCode func(uintptr) bool, cp func(Scanner, *Tagged, Raw, Raw) uintptr, scan func(Scanner, Raw) uintptr, finalizer func(Raw)) *Shape {
	s := t.add(&Shape{
		Name:       name,
		Finalize:   FinalizeQuick,
		Recognise:  recognise,
		Encode:     encode,
		Size:       size,
		IsTypeCode: isTypeCode,
		CopyFn:     cp,
		ScanFn:     scan,
		FinalizeFn: finalizer,
	})
	return s
}

// AddHeaderedCompleteObjectFinalisable registers a headered shape whose
// finaliser requires the whole transitive closure to be resurrected first.
func (t *Table) AddHeaderedCompleteObjectFinalisable(name string, recognise func(Tagged) bool, encode func(Raw) Tagged, size func(Tagged) uintptr, isTypeCode func(uintptr) bool, cp func(Scanner, *Tagged, Raw, Raw) uintptr, scan func(Scanner, Raw) uintptr, finalizer func(Raw)) *Shape {
	return t.add(&Shape{
		Name:       name,
		Finalize:   FinalizeCompleteObject,
		Recognise:  recognise,
		Encode:     encode,
		Size:       size,
		IsTypeCode: isTypeCode,
		CopyFn:     cp,
		ScanFn:     scan,
		FinalizeFn: finalizer,
	})
}

// Recognise probes every registered shape in registration order and
// returns the first match, or nil (UserShapeBug territory: an
// unrecognised tagged word reaching the scavenger is a registration bug).
func (t *Table) Recognise(tagged Tagged) *Shape {
	for _, s := range t.all {
		if s.Recognise(tagged) {
			return s
		}
	}
	return nil
}

// Headered returns the subset of shapes that carry a type-code header
// word, in registration order.
func (t *Table) Headered() []*Shape { return t.headered }

// Finalisable, QuickFinalisable, CompleteObjectFinalisable return the
// corresponding shape subsets, in registration order.
func (t *Table) Finalisable() []*Shape               { return t.finalisable }
func (t *Table) QuickFinalisable() []*Shape           { return t.quickFinalisable }
func (t *Table) CompleteObjectFinalisable() []*Shape { return t.completeFinalisable }
