package dlist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushAndRemove(t *testing.T) {
	l := New[int]()
	e1 := l.PushBack(1)
	e2 := l.PushBack(2)
	e3 := l.PushFront(0)
	require.Equal(t, 3, l.Len())

	var got []int
	l.Each(func(v int) { got = append(got, v) })
	require.Equal(t, []int{0, 1, 2}, got)

	l.Remove(e2)
	require.Equal(t, 2, l.Len())
	got = nil
	l.Each(func(v int) { got = append(got, v) })
	require.Equal(t, []int{0, 1}, got)

	require.Equal(t, 0, e3.Value)
	require.Equal(t, 1, e1.Value)
}

func TestPushBackListSplicesAndEmptiesSource(t *testing.T) {
	a := New[string]()
	a.PushBack("a1")
	a.PushBack("a2")

	b := New[string]()
	b.PushBack("b1")

	a.PushBackList(b)
	require.Equal(t, 3, a.Len())
	require.Equal(t, 0, b.Len())

	var got []string
	a.Each(func(v string) { got = append(got, v) })
	require.Equal(t, []string{"a1", "a2", "b1"}, got)
}

func TestPushBackListEmptySource(t *testing.T) {
	a := New[int]()
	a.PushBack(1)
	b := New[int]()
	a.PushBackList(b)
	require.Equal(t, 1, a.Len())
}
