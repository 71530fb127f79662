package block

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocBlockIsAligned(t *testing.T) {
	a := NewAllocator(64 * 1024)
	b, err := a.AllocBlock()
	require.NoError(t, err)
	require.Equal(t, b.Base(), a.BaseOf(b.Base()))
	require.Equal(t, b.Base(), a.BaseOf(b.Base()+123))
	require.Equal(t, uintptr(64*1024), b.Size())
}

func TestLookupRecoversBlockFromInteriorAddress(t *testing.T) {
	a := NewAllocator(64 * 1024)
	b, err := a.AllocBlock()
	require.NoError(t, err)

	interior := b.Base() + 512
	got := Lookup(interior, a.BlockSize())
	require.Same(t, b, got)

	require.Nil(t, Lookup(b.Base()+a.BlockSize()+1, a.BlockSize()))
}

func TestReadWriteWord(t *testing.T) {
	a := NewAllocator(64 * 1024)
	b, err := a.AllocBlock()
	require.NoError(t, err)

	WriteWord(b.Base(), 0xdeadbeef)
	require.Equal(t, uintptr(0xdeadbeef), ReadWord(b.Base()))
}

func TestFreeBlockIsReused(t *testing.T) {
	a := NewAllocator(64 * 1024)
	b1, err := a.AllocBlock()
	require.NoError(t, err)
	base := b1.Base()
	a.FreeBlock(b1)

	b2, err := a.AllocBlock()
	require.NoError(t, err)
	require.Equal(t, base, b2.Base(), "freed block should be reused before mapping new memory")
}

func TestFillWritesPattern(t *testing.T) {
	a := NewAllocator(64 * 1024)
	b, err := a.AllocBlock()
	require.NoError(t, err)

	Fill(b.Base(), 4, 0x5a5a5a5a)
	words := Words(b.Base(), 4)
	for _, w := range words {
		require.Equal(t, uintptr(0x5a5a5a5a), w)
	}
}
