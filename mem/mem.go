// Package mem owns all physical RAM and hands out 4 KiB frames (component A,
// §4.1). It stores a single bitmap, one bit per physical page, and must be
// usable before any heap allocator exists, so the bitmap itself lives at a
// physical location chosen from the boot memory map rather than being
// heap-allocated.
package mem

import (
	"fmt"
	"sync"

	"kora/kerr"
	"kora/util"
)

/// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = 0xfff

/// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^(PGOFFSET)

/// PTE_P marks a page-table entry as present.
const PTE_P Pa_t = 1 << 0

/// PTE_W marks a page-table entry writable.
const PTE_W Pa_t = 1 << 1

/// PTE_U marks a page-table entry user-accessible.
const PTE_U Pa_t = 1 << 2

/// PTE_G marks a global page-table entry.
const PTE_G Pa_t = 1 << 8

/// PTE_PCD disables caching for the page.
const PTE_PCD Pa_t = 1 << 4

/// PTE_PS indicates a large page.
const PTE_PS Pa_t = 1 << 7

/// PTE_ADDR extracts the address bits of a PTE.
const PTE_ADDR Pa_t = PGMASK

/// Pa_t represents a physical address.
type Pa_t uintptr

/// Bytepg_t is a byte-addressed page.
type Bytepg_t [PGSIZE]uint8

// Region describes one entry of the boot-time memory map (§6 boot contract).
type Region struct {
	Base   Pa_t
	Length uint64
	Usable bool
}

const wordBits = 64

// Allocator is the single, kernel-global bitmap frame allocator (§4.1).
// All mutation is expected to happen with interrupts disabled (§5); the
// embedded mutex exists only so tests exercising the allocator from more
// than one goroutine don't race, it is not a substitute for the real
// interrupts-off discipline.
type Allocator struct {
	mu sync.Mutex

	bitmap    []uint64 // one bit per frame, 1 == used
	base      Pa_t     // physical address of frame index 0
	numFrames uint64

	floor  uint64 // frames below floor are never touched by FreeFrame
	cursor uint64 // next candidate free index

	freeCount uint64
}

// Init picks the first usable region large enough to hold a bitmap covering
// every physical page described by regions, zeroes it, marks the bitmap's
// own frames and every non-usable region as reserved, and sets the cursor
// just past the bitmap (§4.1 init).
func (a *Allocator) Init(regions []Region, physOffset uintptr) error {
	if len(regions) == 0 {
		return kerr.EINITFAIL
	}

	var lowest, highest Pa_t
	lowest = ^Pa_t(0)
	for _, r := range regions {
		if r.Base < lowest {
			lowest = r.Base
		}
		end := r.Base + Pa_t(r.Length)
		if end > highest {
			highest = end
		}
	}
	a.base = Pa_t(util.Rounddown(int(lowest), PGSIZE))
	numFrames := uint64(util.Roundup(int(highest-a.base), PGSIZE)) / uint64(PGSIZE)
	if numFrames == 0 {
		return kerr.EINITFAIL
	}
	a.numFrames = numFrames

	words := (numFrames + wordBits - 1) / wordBits
	bitmapBytes := words * 8
	bitmapFrames := (bitmapBytes + uint64(PGSIZE) - 1) / uint64(PGSIZE)

	bitmapAt, err := a.pickBitmapHome(regions, bitmapFrames)
	if err != nil {
		return err
	}

	a.bitmap = make([]uint64, words)

	// Mark every frame in a non-usable region reserved.
	for _, r := range regions {
		if r.Usable {
			continue
		}
		a.markRange(r.Base, r.Length)
	}
	// Reserve the bitmap's own backing frames.
	a.markRange(bitmapAt, bitmapFrames*uint64(PGSIZE))

	a.cursor = a.frameIndex(bitmapAt) + bitmapFrames
	a.floor = 0

	var used uint64
	for i := uint64(0); i < a.numFrames; i++ {
		if a.isSet(i) {
			used++
		}
	}
	a.freeCount = a.numFrames - used
	return nil
}

// pickBitmapHome finds the first usable region with enough contiguous space
// for the bitmap itself.
func (a *Allocator) pickBitmapHome(regions []Region, neededFrames uint64) (Pa_t, error) {
	for _, r := range regions {
		if !r.Usable {
			continue
		}
		if uint64(r.Length)/uint64(PGSIZE) >= neededFrames {
			return Pa_t(util.Roundup(int(r.Base), PGSIZE)), nil
		}
	}
	return 0, kerr.EINITFAIL
}

func (a *Allocator) frameIndex(p Pa_t) uint64 {
	return uint64(p-a.base) / uint64(PGSIZE)
}

func (a *Allocator) frameAt(idx uint64) Pa_t {
	return a.base + Pa_t(idx)*Pa_t(PGSIZE)
}

func (a *Allocator) markRange(base Pa_t, length uint64) {
	start := a.frameIndex(Pa_t(util.Rounddown(int(base), PGSIZE)))
	end := a.frameIndex(Pa_t(util.Roundup(int(base)+int(length), PGSIZE)))
	for i := start; i < end && i < a.numFrames; i++ {
		a.setBit(i)
	}
}

func (a *Allocator) setBit(idx uint64) {
	a.bitmap[idx/wordBits] |= 1 << (idx % wordBits)
}

func (a *Allocator) clearBit(idx uint64) {
	a.bitmap[idx/wordBits] &^= 1 << (idx % wordBits)
}

func (a *Allocator) isSet(idx uint64) bool {
	return a.bitmap[idx/wordBits]&(1<<(idx%wordBits)) != 0
}

// AllocateFrame returns the cursor's frame, marks it used, and advances the
// cursor to the next free bit, wrapping to the floor if it runs past the
// end (§4.1 allocate_frame).
func (a *Allocator) AllocateFrame() (Pa_t, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.cursor
	for i := uint64(0); i < a.numFrames; i++ {
		idx := (start + i) % a.numFrames
		if idx < a.floor {
			continue
		}
		if !a.isSet(idx) {
			a.setBit(idx)
			a.freeCount--
			next := idx + 1
			if next >= a.numFrames {
				next = a.floor
			}
			a.cursor = next
			return a.frameAt(idx), nil
		}
	}
	return 0, kerr.ENOSPACE
}

// FreeFrame clears the bit for p. It is a no-op if p is below the floor or
// already free; if p's index precedes the cursor, the cursor is rewound to
// it so the next allocation reuses it (§4.1 free_frame).
func (a *Allocator) FreeFrame(p Pa_t) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx := a.frameIndex(p)
	if idx < a.floor || idx >= a.numFrames {
		return
	}
	if !a.isSet(idx) {
		return
	}
	a.clearBit(idx)
	a.freeCount++
	if idx < a.cursor {
		a.cursor = idx
	}
}

// LockAll advances the floor to the current cursor, used once after the
// heap allocator comes up to protect the frames it has already claimed from
// being freed by mistake (§4.1 lock_all).
func (a *Allocator) LockAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.floor = a.cursor
}

// FreeCount reports the number of currently-free frames.
func (a *Allocator) FreeCount() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.freeCount
}

// String renders a short diagnostic summary, following the teacher's own
// convention of a plain fmt.Stringer for kernel structures printed to the
// console (component J, collaborator).
func (a *Allocator) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fmt.Sprintf("mem.Allocator{frames=%d free=%d floor=%d cursor=%d}",
		a.numFrames, a.freeCount, a.floor, a.cursor)
}
