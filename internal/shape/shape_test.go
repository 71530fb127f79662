package shape

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	tagMask = 0x7
	tagPair = 1
	tagInt  = 2
)

func pairShape(tbl *Table) *Shape {
	return tbl.AddHeaderedNonFinalisable(
		"pair",
		func(t Tagged) bool { return uintptr(t)&tagMask == tagPair },
		func(r Raw) Tagged { return Tagged(uintptr(r) | tagPair) },
		func(Tagged) uintptr { return 3 * 8 }, // type code + 2 fields
		func(word uintptr) bool { return word == 0x1001 },
		nil,
		nil,
	)
}

func TestRoundTrip(t *testing.T) {
	tbl := NewTable(Tagged(0), Tagged(1), 0xFFFFFFFF, func(Tagged) bool { return false })
	s := pairShape(tbl)

	raw := Raw(0x1000)
	tagged := s.Encode(raw)
	require.True(t, s.Recognise(tagged))
	require.Equal(t, raw, Raw(uintptr(tagged)&^tagMask))
}

func TestRecogniseConsultsRegistrationOrder(t *testing.T) {
	tbl := NewTable(Tagged(0), Tagged(1), 0xFFFFFFFF, func(Tagged) bool { return false })
	pairShape(tbl)
	intShape := tbl.AddHeaderless(
		"smallint",
		func(t Tagged) bool { return uintptr(t)&tagMask == tagInt },
		func(r Raw) Tagged { return Tagged(uintptr(r) | tagInt) },
		func(Tagged) uintptr { return 8 },
		nil,
	)
	// A later shape recognising the same tag must never be chosen.
	tbl.AddHeaderless(
		"shadowed",
		func(t Tagged) bool { return uintptr(t)&tagMask == tagInt },
		func(r Raw) Tagged { return Tagged(uintptr(r) | tagInt) },
		func(Tagged) uintptr { return 8 },
		nil,
	)

	got := tbl.Recognise(Tagged(0x2000 | tagInt))
	require.Same(t, intShape, got)

	require.Nil(t, tbl.Recognise(Tagged(0x2000|0x7)))
}

func TestSealForbidsFurtherRegistration(t *testing.T) {
	tbl := NewTable(Tagged(0), Tagged(1), 0xFFFFFFFF, func(Tagged) bool { return false })
	tbl.Seal()
	require.Panics(t, func() { pairShape(tbl) })
}

func TestFinalisableSubsets(t *testing.T) {
	tbl := NewTable(Tagged(0), Tagged(1), 0xFFFFFFFF, func(Tagged) bool { return false })
	quick := tbl.AddHeaderedQuicklyFinalisable("fd", stubRecognise, stubEncode, stubSize, stubIsTypeCode, nil, nil, func(Raw) {})
	complete := tbl.AddHeaderedCompleteObjectFinalisable("resource", stubRecognise, stubEncode, stubSize, stubIsTypeCode, nil, nil, func(Raw) {})

	require.Len(t, tbl.Finalisable(), 2)
	require.Equal(t, []*Shape{quick}, tbl.QuickFinalisable())
	require.Equal(t, []*Shape{complete}, tbl.CompleteObjectFinalisable())
}

func stubRecognise(Tagged) bool       { return false }
func stubEncode(Raw) Tagged           { return 0 }
func stubSize(Tagged) uintptr         { return 0 }
func stubIsTypeCode(word uintptr) bool { return false }
