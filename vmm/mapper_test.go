package vmm

import (
	"testing"

	"kora/mem"
)

func newTestMapper(t *testing.T, frames uint64) *Mapper {
	t.Helper()
	a := &mem.Allocator{}
	if err := a.Init([]mem.Region{{Base: 0, Length: frames * uint64(mem.PGSIZE), Usable: true}}, 0); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return NewMapper(a)
}

func TestMapTranslateRoundTrip(t *testing.T) {
	m := newTestMapper(t, 256)
	top, err := m.NewTop()
	if err != nil {
		t.Fatalf("NewTop: %v", err)
	}
	phys, err := m.alloc.AllocateFrame()
	if err != nil {
		t.Fatalf("AllocateFrame: %v", err)
	}
	if err := m.Map(top, 0x1000, phys, mem.PTE_U|mem.PTE_W); err != nil {
		t.Fatalf("Map: %v", err)
	}
	got, ok := m.Translate(top, 0x1000)
	if !ok || got != phys {
		t.Fatalf("Translate = %v, %v; want %v, true", got, ok, phys)
	}
}

func TestMapOverPresentEntryRetainsOriginalAddress(t *testing.T) {
	m := newTestMapper(t, 256)
	top, _ := m.NewTop()
	first, _ := m.alloc.AllocateFrame()
	second, _ := m.alloc.AllocateFrame()

	if err := m.Map(top, 0x2000, first, mem.PTE_U|mem.PTE_W); err != nil {
		t.Fatalf("first Map: %v", err)
	}
	if err := m.Map(top, 0x2000, second, mem.PTE_U|mem.PTE_W); err != nil {
		t.Fatalf("second Map: %v", err)
	}
	got, ok := m.Translate(top, 0x2000)
	if !ok || got != first {
		t.Fatalf("re-map replaced existing mapping: got %v, want %v", got, first)
	}
}

func TestUnmapClearsTranslation(t *testing.T) {
	m := newTestMapper(t, 256)
	top, _ := m.NewTop()
	phys, _ := m.alloc.AllocateFrame()
	m.Map(top, 0x3000, phys, mem.PTE_U|mem.PTE_W)
	m.Unmap(top, 0x3000)
	if _, ok := m.Translate(top, 0x3000); ok {
		t.Fatalf("translation still present after Unmap")
	}
}

func TestTranslateMissingMappingFails(t *testing.T) {
	m := newTestMapper(t, 256)
	top, _ := m.NewTop()
	if _, ok := m.Translate(top, 0x9000); ok {
		t.Fatalf("Translate succeeded for an unmapped address")
	}
}

func TestSetFlagsOnlyTouchesPresentLeaves(t *testing.T) {
	m := newTestMapper(t, 256)
	top, _ := m.NewTop()
	phys, _ := m.alloc.AllocateFrame()
	m.Map(top, 0x4000, phys, mem.PTE_U)
	m.SetFlags(top, 0x4000, 2, mem.PTE_W)

	leaf, ok := m.walk(top, 0x4000)
	if !ok || leaf&mem.PTE_W == 0 {
		t.Fatalf("SetFlags did not OR the writable bit onto the present leaf")
	}
	if _, ok := m.Translate(top, 0x5000); ok {
		t.Fatalf("SetFlags created a mapping at an absent leaf")
	}
}

func TestCloneKernelHalfSharesHighHalfAndPdptZero(t *testing.T) {
	m := newTestMapper(t, 256)
	kernelTop, _ := m.NewTop()
	kPhys, _ := m.alloc.AllocateFrame()
	// A high-half kernel mapping (PML4 index 256 spans 0xffff800000000000-ish
	// in real x86_64; here any address whose pml4 index is >= 256 suffices).
	highVA := uintptr(256) << 39
	if err := m.Map(kernelTop, highVA, kPhys, mem.PTE_W); err != nil {
		t.Fatalf("Map high half: %v", err)
	}
	// A shared low-half mapping under PDPT index 0, e.g. a fixed kernel
	// data structure reachable from every address space.
	sharedVA := uintptr(0x10000)
	sharedPhys, _ := m.alloc.AllocateFrame()
	if err := m.Map(kernelTop, sharedVA, sharedPhys, mem.PTE_W); err != nil {
		t.Fatalf("Map shared low half: %v", err)
	}

	userTop, err := m.CloneKernelHalf(kernelTop)
	if err != nil {
		t.Fatalf("CloneKernelHalf: %v", err)
	}

	if got, ok := m.Translate(userTop, highVA); !ok || got != kPhys {
		t.Fatalf("high-half mapping not shared: got %v, %v", got, ok)
	}
	if got, ok := m.Translate(userTop, sharedVA); !ok || got != sharedPhys {
		t.Fatalf("shared low-half subtree not visible from clone: got %v, %v", got, ok)
	}
}

func TestFreeUserspaceReturnsPrivateFramesButKeepsSharedSubtree(t *testing.T) {
	m := newTestMapper(t, 256)
	kernelTop, _ := m.NewTop()
	sharedPhys, _ := m.alloc.AllocateFrame()
	m.Map(kernelTop, 0x10000, sharedPhys, mem.PTE_W)

	userTop, err := m.CloneKernelHalf(kernelTop)
	if err != nil {
		t.Fatalf("CloneKernelHalf: %v", err)
	}
	// pdpt index 0 within PML4[0] is the subtree CloneKernelHalf shares
	// with the kernel; anything at pdpt index >= 1 (virtual addresses at
	// or past 1 GiB) is private to this address space.
	privateVA := uintptr(1) << 30
	privatePhys, _ := m.alloc.AllocateFrame()
	if err := m.Map(userTop, privateVA, privatePhys, mem.PTE_U|mem.PTE_W); err != nil {
		t.Fatalf("Map private: %v", err)
	}

	before := m.alloc.FreeCount()
	if err := m.FreeUserspace(userTop); err != nil {
		t.Fatalf("FreeUserspace: %v", err)
	}
	after := m.alloc.FreeCount()
	if after <= before {
		t.Fatalf("FreeUserspace did not return any frames: before=%d after=%d", before, after)
	}

	if _, ok := m.Translate(kernelTop, 0x10000); !ok {
		t.Fatalf("shared subtree was freed out from under the kernel's own top")
	}
}
