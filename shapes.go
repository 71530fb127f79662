package genheap

import "github.com/jitgen/genheap/internal/shape"

// Tagged is a machine word: either unboxed data, or a boxed reference
// whose low tag bits identify its shape.
type Tagged = shape.Tagged

// Raw is an untagged address: a Tagged with its tag bits masked off,
// always aligned to the heap's configured allocation grain.
type Raw = shape.Raw

// Scanner is implemented by whatever genheap passes to a shape's Copy and
// Scan callbacks; call HandleWord once per tagged field a shape's Copy or
// Scan callback discovers.
type Scanner = shape.Scanner

// ShapeTable is the append-only (until the first Heap.NewHeaplet call)
// registry of object shapes a program allocates, described once at
// startup.
type ShapeTable struct {
	t *shape.Table
}

// NewShapeTable constructs an empty shape table. invalid and
// uninitialised are distinguished unboxed sentinel values (e.g. a
// language's nil/undefined); brokenHeartTypeCode is a header word value
// that must not collide with any shape's real type code nor any valid
// unboxed encoding, used internally to mark a from-space object that has
// already been forwarded; isUnboxed reports whether a Tagged value is
// unboxed data rather than a boxed reference.
func NewShapeTable(invalid, uninitialised Tagged, brokenHeartTypeCode uintptr, isUnboxed func(Tagged) bool) *ShapeTable {
	return &ShapeTable{t: shape.NewTable(invalid, uninitialised, brokenHeartTypeCode, isUnboxed)}
}

// AddHeaderless registers a shape with no type-code header word: every
// word of the object is treated as a tagged field when scanning. Suitable
// for small, fixed-shape objects (e.g. a cons cell) where the tag bits of
// a reference to the object fully determine its layout.
func (s *ShapeTable) AddHeaderless(name string, recognise func(Tagged) bool, encode func(Raw) Tagged, size func(Tagged) uintptr, cp func(Scanner, *Tagged, Raw, Raw) uintptr) {
	s.t.AddHeaderless(name, recognise, encode, size, cp)
}

// AddHeadered registers a shape whose first word is a type code, never
// finalised.
func (s *ShapeTable) AddHeadered(name string, recognise func(Tagged) bool, encode func(Raw) Tagged, size func(Tagged) uintptr, isTypeCode func(uintptr) bool, cp func(Scanner, *Tagged, Raw, Raw) uintptr, scan func(Scanner, Raw) uintptr) {
	s.t.AddHeaderedNonFinalisable(name, recognise, encode, size, isTypeCode, cp, scan)
}

// AddHeaderedQuickFinalisable registers a headered shape whose finaliser
// may run directly on the from-space object: its fields may already be
// stale (other parts of the object graph may have moved), suited to
// finalisers that only touch C-level resources (closing a file
// descriptor, freeing off-heap memory) rather than other managed objects.
func (s *ShapeTable) AddHeaderedQuickFinalisable(name string, recognise func(Tagged) bool, encode func(Raw) Tagged, size func(Tagged) uintptr, isTypeCode func(uintptr) bool, cp func(Scanner, *Tagged, Raw, Raw) uintptr, scan func(Scanner, Raw) uintptr, finalize func(Raw)) {
	s.t.AddHeaderedQuicklyFinalisable(name, recognise, encode, size, isTypeCode, cp, scan, finalize)
}

// AddHeaderedCompleteObjectFinalisable registers a headered shape whose
// finaliser needs the whole object, and everything reachable from it, to
// be fully live first: genheap resurrects the object's transitive closure
// on the collection that finds it unreachable, runs the finaliser once
// against the live copy, and keeps its entry marked as finalised, so a
// later collection that finds it unreachable again drops it without
// running the finaliser a second time.
func (s *ShapeTable) AddHeaderedCompleteObjectFinalisable(name string, recognise func(Tagged) bool, encode func(Raw) Tagged, size func(Tagged) uintptr, isTypeCode func(uintptr) bool, cp func(Scanner, *Tagged, Raw, Raw) uintptr, scan func(Scanner, Raw) uintptr, finalize func(Raw)) {
	s.t.AddHeaderedCompleteObjectFinalisable(name, recognise, encode, size, isTypeCode, cp, scan, finalize)
}
