package vmm

import (
	"bytes"
	"testing"

	"kora/mem"
)

func mapUserRange(t *testing.T, m *Mapper, top mem.Pa_t, va uintptr, npages int) {
	t.Helper()
	for i := 0; i < npages; i++ {
		phys, err := m.alloc.AllocateFrame()
		if err != nil {
			t.Fatalf("AllocateFrame: %v", err)
		}
		if err := m.Map(top, va+uintptr(i*mem.PGSIZE), phys, mem.PTE_U|mem.PTE_W); err != nil {
			t.Fatalf("Map: %v", err)
		}
	}
}

func TestUserBufCopyInOutRoundTripsAcrossPageBoundary(t *testing.T) {
	m := newTestMapper(t, 256)
	top, _ := m.NewTop()
	const va = uintptr(0x40000000)
	mapUserRange(t, m, top, va, 2)

	want := bytes.Repeat([]byte("x"), mem.PGSIZE+32)
	in := m.NewUserBuf(top, va, len(want))
	n, err := in.CopyIn(want)
	if err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
	if n != len(want) {
		t.Fatalf("CopyIn copied %d bytes, want %d", n, len(want))
	}

	out := make([]byte, len(want))
	ob := m.NewUserBuf(top, va, len(want))
	n, err = ob.CopyOut(out)
	if err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	if n != len(want) || !bytes.Equal(out, want) {
		t.Fatalf("CopyOut round trip mismatch")
	}
}

func TestUserBufCopyStopsAtUnmappedPage(t *testing.T) {
	m := newTestMapper(t, 256)
	top, _ := m.NewTop()
	const va = uintptr(0x40000000)
	mapUserRange(t, m, top, va, 1) // only one page mapped

	want := bytes.Repeat([]byte("y"), mem.PGSIZE+16)
	ub := m.NewUserBuf(top, va, len(want))
	n, err := ub.CopyIn(want)
	if err == nil {
		t.Fatalf("CopyIn succeeded past an unmapped page")
	}
	if n != mem.PGSIZE {
		t.Fatalf("CopyIn copied %d bytes before failing, want %d", n, mem.PGSIZE)
	}
}

func TestReadCStringStopsAtNUL(t *testing.T) {
	m := newTestMapper(t, 256)
	top, _ := m.NewTop()
	const va = uintptr(0x40000000)
	mapUserRange(t, m, top, va, 1)

	raw := append([]byte("hello"), 0, 'X', 'X')
	ub := m.NewUserBuf(top, va, len(raw))
	if _, err := ub.CopyIn(raw); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}

	got, err := m.ReadCString(top, va, 64)
	if err != nil {
		t.Fatalf("ReadCString: %v", err)
	}
	if got != "hello" {
		t.Fatalf("ReadCString = %q, want %q", got, "hello")
	}
}

func TestReadCStringFailsWithoutNULWithinMaxLen(t *testing.T) {
	m := newTestMapper(t, 256)
	top, _ := m.NewTop()
	const va = uintptr(0x40000000)
	mapUserRange(t, m, top, va, 1)

	raw := bytes.Repeat([]byte("a"), 10)
	ub := m.NewUserBuf(top, va, len(raw))
	if _, err := ub.CopyIn(raw); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}

	if _, err := m.ReadCString(top, va, 4); err == nil {
		t.Fatalf("ReadCString succeeded without a NUL terminator in range")
	}
}
