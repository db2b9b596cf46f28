package vmm

import (
	"bytes"
	"testing"

	"kora/config"
	"kora/elf"
)

type memFile struct{ *bytes.Reader }

func (m memFile) Size() (int64, error) { return m.Reader.Size(), nil }

func TestExecUserMapsLoadSectionContent(t *testing.T) {
	m := newTestMapper(t, 4096)
	kernelTop, _ := m.NewTop()

	payload := []byte("hello from userspace\x00")
	img := elf.ExecutableInfo{
		File:       memFile{bytes.NewReader(payload)},
		EntryPoint: 0x400010,
		Sections: []elf.Section{{
			Kind:         elf.Load,
			FileOffset:   0,
			SizeInFile:   uint64(len(payload)),
			VirtAddress:  0x400000,
			SizeInMemory: uint64(len(payload)),
		}},
	}

	pi, err := m.ExecUser(img, kernelTop)
	if err != nil {
		t.Fatalf("ExecUser: %v", err)
	}
	if pi.EntryRIP != 0x400010 {
		t.Fatalf("EntryRIP = %#x, want 0x400010", pi.EntryRIP)
	}
	if !pi.User {
		t.Fatalf("ExecUser produced a non-user image")
	}
	if pi.StackTop-pi.StackBase != uintptr(config.StackSize) {
		t.Fatalf("stack span = %d, want %d", pi.StackTop-pi.StackBase, config.StackSize)
	}

	phys, ok := m.Translate(pi.Top, 0x400000)
	if !ok {
		t.Fatalf("Load section not mapped at its vaddr")
	}
	got := m.Bytes(phys)
	if string(got[:len(payload)]) != string(payload) {
		t.Fatalf("section content mismatch: got %q", got[:len(payload)])
	}
}

func TestExecUserRejectsNonLoadSection(t *testing.T) {
	m := newTestMapper(t, 4096)
	kernelTop, _ := m.NewTop()

	img := elf.ExecutableInfo{
		File:       memFile{bytes.NewReader(nil)},
		EntryPoint: 0x400000,
		Sections:   []elf.Section{{Kind: elf.Dynamic, VirtAddress: 0x500000}},
	}
	if _, err := m.ExecUser(img, kernelTop); err == nil {
		t.Fatalf("ExecUser accepted a non-Load section")
	}
}

func TestExecUserPrivateMappingDoesNotLeakIntoKernelTop(t *testing.T) {
	m := newTestMapper(t, 4096)
	kernelTop, _ := m.NewTop()

	payload := []byte{0x90, 0x90, 0xc3}
	img := elf.ExecutableInfo{
		File:       memFile{bytes.NewReader(payload)},
		EntryPoint: 0x400000,
		Sections: []elf.Section{{
			Kind:         elf.Load,
			SizeInFile:   uint64(len(payload)),
			VirtAddress:  0x400000,
			SizeInMemory: uint64(len(payload)),
		}},
	}
	pi, err := m.ExecUser(img, kernelTop)
	if err != nil {
		t.Fatalf("ExecUser: %v", err)
	}
	if _, ok := m.Translate(kernelTop, 0x400000); ok {
		t.Fatalf("user mapping visible from the kernel's own top")
	}
	if _, ok := m.Translate(pi.Top, 0x400000); !ok {
		t.Fatalf("user mapping missing from its own top")
	}
}

func TestExecKernelSharesKernelTopAndReservesStack(t *testing.T) {
	m := newTestMapper(t, 4096)
	kernelTop, _ := m.NewTop()

	pi, err := m.ExecKernel(0xffff800000001000, kernelTop)
	if err != nil {
		t.Fatalf("ExecKernel: %v", err)
	}
	if pi.Top != kernelTop {
		t.Fatalf("ExecKernel allocated a private top instead of sharing kernelTop")
	}
	if pi.User {
		t.Fatalf("ExecKernel produced a user image")
	}
	if _, ok := m.Translate(kernelTop, pi.StackBase); !ok {
		t.Fatalf("kernel stack not mapped under kernelTop")
	}
}

func TestExecUserTwiceInIndependentAddressSpaces(t *testing.T) {
	m := newTestMapper(t, 8192)
	kernelTop, _ := m.NewTop()
	payload := []byte{0xc3}
	sec := elf.Section{Kind: elf.Load, SizeInFile: 1, VirtAddress: 0x400000, SizeInMemory: 1}

	img1 := elf.ExecutableInfo{File: memFile{bytes.NewReader(payload)}, EntryPoint: 0x400000, Sections: []elf.Section{sec}}
	img2 := elf.ExecutableInfo{File: memFile{bytes.NewReader(payload)}, EntryPoint: 0x400000, Sections: []elf.Section{sec}}

	pi1, err := m.ExecUser(img1, kernelTop)
	if err != nil {
		t.Fatalf("ExecUser #1: %v", err)
	}
	pi2, err := m.ExecUser(img2, kernelTop)
	if err != nil {
		t.Fatalf("ExecUser #2: %v", err)
	}
	if pi1.StackBase != pi2.StackBase {
		t.Fatalf("independent address spaces produced different stack bases (%#x vs %#x); each should start its scan from the same empty range", pi1.StackBase, pi2.StackBase)
	}
}

func TestProcessDieFreesExecUserAddressSpace(t *testing.T) {
	m := newTestMapper(t, 4096)
	kernelTop, _ := m.NewTop()
	payload := []byte{0xc3}
	img := elf.ExecutableInfo{
		File:       memFile{bytes.NewReader(payload)},
		EntryPoint: 0x400000,
		Sections: []elf.Section{{
			Kind: elf.Load, SizeInFile: 1, VirtAddress: 0x400000, SizeInMemory: 1,
		}},
	}
	pi, err := m.ExecUser(img, kernelTop)
	if err != nil {
		t.Fatalf("ExecUser: %v", err)
	}

	leafFrame, ok := m.Translate(pi.Top, 0x400000)
	if !ok {
		t.Fatalf("Load section not mapped at its vaddr")
	}

	before := m.alloc.FreeCount()
	if err := m.ProcessDie(pi.Top); err != nil {
		t.Fatalf("ProcessDie: %v", err)
	}
	if after := m.alloc.FreeCount(); after <= before {
		t.Fatalf("ProcessDie returned no frames: before=%d after=%d", before, after)
	}
	if _, ok := m.Translate(kernelTop, 0x400000); ok {
		t.Fatalf("kernel top corrupted by a dead user address space")
	}

	// The leaf data frame backing the Load section must itself come back
	// to the allocator, not just the intermediate page tables: allocate
	// until leafFrame reappears, proving it was actually freed.
	reclaimed := false
	for i := uint64(0); i < before+1; i++ {
		phys, err := m.alloc.AllocateFrame()
		if err != nil {
			t.Fatalf("AllocateFrame: %v", err)
		}
		if phys == leafFrame {
			reclaimed = true
			break
		}
	}
	if !reclaimed {
		t.Fatalf("leaf data frame %#x was never returned to the allocator (leaked)", leafFrame)
	}
}
