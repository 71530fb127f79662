// Package block implements §4.1's block allocator: aligned, fixed-size
// power-of-two buffers obtained from the OS, with a cached free list so
// draining a space doesn't immediately give memory back to the kernel.
//
// The allocator is patterned after the teacher's comment at the top of
// runtime/malloc.go ("aligned_alloc; mmap + trim") and on golang-debug's
// and fmstephe-memorymanager's use of golang.org/x/sys for raw process
// memory: genheap mmaps 2×blockSize, then trims the misaligned head and
// tail, giving a blockSize-aligned region whose base address satisfies
// `addr & BlockBitMask(blockSize) == addr` for every address it hands out.
package block

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// WordSize is the machine word size genheap bumps allocations by.
const WordSize = unsafe.Sizeof(uintptr(0))

// Generation names the generation a block's owning space belongs to
// (§3: "young → immortal").
type Generation int32

const (
	GenYoung Generation = iota
	GenOld
	GenShared
	GenUnused
	GenImmortal
)

func (g Generation) String() string {
	switch g {
	case GenYoung:
		return "young"
	case GenOld:
		return "old"
	case GenShared:
		return "shared"
	case GenUnused:
		return "unused"
	case GenImmortal:
		return "immortal"
	default:
		return "generation(?)"
	}
}

// Block is an aligned, fixed-size buffer: a small header (this struct,
// kept in ordinary Go memory since Go forbids stashing live Go pointers
// inside unmanaged mmap'd memory) plus a payload of raw machine words
// obtained from the OS and addressed by plain uintptr arithmetic.
type Block struct {
	base  uintptr  // block-aligned start of the mmap'd payload region
	words []uintptr // Go view over the mmap'd payload, len == blockWords

	Generation Generation
	UsedLimit  uintptr // byte offset into the payload where this block stopped being the allocation block
	Owner      unsafe.Pointer // back-pointer to the owning space (an *internal/gc.Space)

	next, prev *Block // intrusive links in the owning space's block list
}

// Base returns the block's aligned starting address.
func (b *Block) Base() uintptr { return b.base }

// Size returns the block's total payload size in bytes.
func (b *Block) Size() uintptr { return uintptr(len(b.words)) * WordSize }

// End returns the address one past the end of the payload.
func (b *Block) End() uintptr { return b.base + b.Size() }

// Next and Prev expose the owning space's intrusive block list links.
func (b *Block) Next() *Block { return b.next }
func (b *Block) Prev() *Block { return b.prev }

// SetLinks lets internal/gc's Space manage list membership without a
// second, parallel linked-list type.
func (b *Block) SetLinks(next, prev *Block) { b.next, b.prev = next, prev }

// ReadWord reads the machine word at addr.
func ReadWord(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr)) //nolint:govet
}

// WriteWord writes v to the machine word at addr.
func WriteWord(addr uintptr, v uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = v //nolint:govet
}

// Words returns a Go slice view over n words starting at addr, for bulk
// copy (shape.Copy) or bulk scan (shape.Scan) without a read/write per
// word.
func Words(addr uintptr, n int) []uintptr {
	return unsafe.Slice((*uintptr)(unsafe.Pointer(addr)), n) //nolint:govet
}

// Fill writes pattern into every word of [addr, addr+n*WordSize).
func Fill(addr uintptr, n int, pattern uintptr) {
	words := Words(addr, n)
	for i := range words {
		words[i] = pattern
	}
}

// Allocator obtains block-aligned memory from the OS and caches freed
// blocks instead of immediately unmapping them.
type Allocator struct {
	blockSize uintptr

	mu   sync.Mutex
	free []*Block
}

// NewAllocator returns an allocator handing out blocks of the given size,
// which must be a power of two.
func NewAllocator(blockSize uintptr) *Allocator {
	if blockSize == 0 || blockSize&(blockSize-1) != 0 {
		panic("block: blockSize must be a power of two")
	}
	return &Allocator{blockSize: blockSize}
}

// BlockSize returns the configured block size in bytes.
func (a *Allocator) BlockSize() uintptr { return a.blockSize }

// BlockBitMask returns BLOCK_BIT_MASK = ~(BLOCK_SIZE-1): masking any
// interior address with it yields the address of the owning block.
func (a *Allocator) BlockBitMask() uintptr { return ^(a.blockSize - 1) }

// BaseOf masks addr down to its owning block's base address.
func (a *Allocator) BaseOf(addr uintptr) uintptr { return addr & a.BlockBitMask() }

// AllocBlock returns a fresh block, reusing a cached free block when one
// is available, otherwise mapping new memory from the OS.
func (a *Allocator) AllocBlock() (*Block, error) {
	a.mu.Lock()
	if n := len(a.free); n > 0 {
		b := a.free[n-1]
		a.free = a.free[:n-1]
		a.mu.Unlock()
		b.next, b.prev = nil, nil
		b.UsedLimit = 0
		b.Owner = nil
		return b, nil
	}
	a.mu.Unlock()

	return a.mapBlock()
}

// FreeBlock releases b back to the allocator's free cache for reuse. The
// caller is responsible for having already unlinked b from
// any space's block list.
func (a *Allocator) FreeBlock(b *Block) {
	b.next, b.prev = nil, nil
	b.Owner = nil
	b.Generation = GenUnused

	a.mu.Lock()
	a.free = append(a.free, b)
	a.mu.Unlock()
}

// Release actually unmaps cached free blocks back to the OS, used when a
// heap is released (§4.1: "Releases
// to the OS, or caches, when spaces are drained").
func (a *Allocator) Release() error {
	a.mu.Lock()
	free := a.free
	a.free = nil
	a.mu.Unlock()

	var firstErr error
	for _, b := range free {
		registryDelete(b.base)
		if err := unix.Munmap(rawBytes(b.base, len(b.words)*int(WordSize))); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("block: munmap: %w", err)
		}
	}
	return firstErr
}

func (a *Allocator) mapBlock() (*Block, error) {
	size := a.blockSize
	raw, err := unix.Mmap(-1, 0, int(2*size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("block: mmap: %w", err)
	}

	start := uintptr(unsafe.Pointer(&raw[0]))
	aligned := (start + size - 1) &^ (size - 1)

	if head := aligned - start; head > 0 {
		_ = unix.Munmap(raw[:head])
	}
	tailOff := (aligned - start) + size
	if tail := uintptr(len(raw)) - tailOff; tail > 0 {
		_ = unix.Munmap(raw[tailOff:])
	}

	words := unsafe.Slice((*uintptr)(unsafe.Pointer(aligned)), int(size/WordSize))
	b := &Block{base: aligned, words: words, Generation: GenUnused}
	registryStore(aligned, b)
	return b, nil
}

func rawBytes(addr uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}

// registry maps a block's base address to its header, so that Lookup can
// recover a *Block from a masked interior address in O(1) without storing
// the header inside the (unmanaged) payload memory itself.
var registry sync.Map // uintptr -> *Block

func registryStore(base uintptr, b *Block) { registry.Store(base, b) }
func registryDelete(base uintptr)          { registry.Delete(base) }

// Lookup returns the block owning addr, or nil if addr does not belong to
// any block allocated by any Allocator (P1's "live block" check).
func Lookup(addr uintptr, blockSize uintptr) *Block {
	base := addr &^ (blockSize - 1)
	v, ok := registry.Load(base)
	if !ok {
		return nil
	}
	return v.(*Block)
}
