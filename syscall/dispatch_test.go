package syscall

import (
	"testing"

	"kora/mem"
	"kora/ns"
	"kora/proc"
	"kora/trap"
	"kora/vmm"
)

const testUserVA = 0x60000000

func newTestDispatcher(t *testing.T) (*Dispatcher, *vmm.Mapper, mem.Pa_t, uint32) {
	t.Helper()
	a := &mem.Allocator{}
	if err := a.Init([]mem.Region{{Base: 0, Length: 4096 * uint64(mem.PGSIZE), Usable: true}}, 0); err != nil {
		t.Fatalf("Init: %v", err)
	}
	m := vmm.NewMapper(a)
	s := proc.NewScheduler(m)

	top, err := m.NewTop()
	if err != nil {
		t.Fatalf("NewTop: %v", err)
	}
	phys, err := a.AllocateFrame()
	if err != nil {
		t.Fatalf("AllocateFrame: %v", err)
	}
	if err := m.Map(top, testUserVA, phys, mem.PTE_U|mem.PTE_W); err != nil {
		t.Fatalf("Map: %v", err)
	}

	pid := s.AddProcess(vmm.ProcessImage{Top: top})
	tid, err := s.AddThread(pid, trap.Context{})
	if err != nil {
		t.Fatalf("AddThread: %v", err)
	}

	tree := ns.NewTree()
	handles := ns.NewHandleTable(tree)
	return NewDispatcher(s, handles, tree, m), m, top, tid
}

func writeUserString(t *testing.T, m *vmm.Mapper, top mem.Pa_t, va uintptr, s string) {
	t.Helper()
	ub := m.NewUserBuf(top, va, len(s)+1)
	buf := append([]byte(s), 0)
	if _, err := ub.CopyIn(buf); err != nil {
		t.Fatalf("CopyIn: %v", err)
	}
}

func TestCreateMessageQueueThenWriteRead(t *testing.T) {
	d, m, top, tid := newTestDispatcher(t)

	nameVA := uintptr(testUserVA)
	writeUserString(t, m, top, nameVA, "inbox")

	id := d.Dispatch(tid, top, CREATE_MESSAGE_QUEUE, uint64(nameVA), 0, 0, 0, 0) // endpoint 0 = Any
	if id < 0 {
		t.Fatalf("CREATE_MESSAGE_QUEUE failed: %d", id)
	}

	payloadVA := uintptr(testUserVA + 0x100)
	writeUserString(t, m, top, payloadVA, "hello")

	n := d.Dispatch(tid, top, WRITE, uint64(id), uint64(payloadVA), 5, 0, 0)
	if n != 5 {
		t.Fatalf("WRITE = %d, want 5", n)
	}

	avail := d.Dispatch(tid, top, AVAILABLE_MESSAGES, uint64(id), 0, 0, 0, 0)
	if avail != 1 {
		t.Fatalf("AVAILABLE_MESSAGES = %d, want 1", avail)
	}

	size := d.Dispatch(tid, top, AVAILABLE_MESSAGE_SIZE, uint64(id), 0, 0, 0, 0)
	if size != 5 {
		t.Fatalf("AVAILABLE_MESSAGE_SIZE = %d, want 5", size)
	}

	readVA := uintptr(testUserVA + 0x200)
	got := d.Dispatch(tid, top, READ, uint64(id), uint64(readVA), 16, 0, 0)
	if got != 5 {
		t.Fatalf("READ = %d, want 5", got)
	}

	ub := m.NewUserBuf(top, readVA, 5)
	buf := make([]byte, 5)
	if _, err := ub.CopyOut(buf); err != nil {
		t.Fatalf("CopyOut: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("round-tripped payload = %q", buf)
	}
}

func TestAcquireReleaseDeviceHandle(t *testing.T) {
	d, m, top, tid := newTestDispatcher(t)
	_ = m

	path := []string{"Devices", "Character", "Uart16550"}
	d.Tree.Insert(path, &ns.Resource{Kind: ns.KindDevice, Path: path, Payload: ns.NewDevice("uart")})

	pathVA := uintptr(testUserVA)
	writeUserString(t, m, top, pathVA, "Devices/Character/Uart16550")

	id := d.Dispatch(tid, top, ACQUIRE_HANDLE, uint64(pathVA), 0, 0, 0, 0)
	if id < 0 {
		t.Fatalf("ACQUIRE_HANDLE failed: %d", id)
	}

	second := d.Dispatch(tid, top, ACQUIRE_HANDLE, uint64(pathVA), 0, 0, 0, 0)
	if second >= 0 {
		t.Fatalf("second ACQUIRE_HANDLE unexpectedly succeeded")
	}

	rc := d.Dispatch(tid, top, RELEASE_HANDLE, uint64(id), 0, 0, 0, 0)
	if rc != 0 {
		t.Fatalf("RELEASE_HANDLE = %d, want 0", rc)
	}
}

func TestGetProcessIdReturnsCallerTid(t *testing.T) {
	d, _, top, tid := newTestDispatcher(t)
	got := d.Dispatch(tid, top, GET_PROCESS_ID, 0, 0, 0, 0, 0)
	if got != int64(tid) {
		t.Fatalf("GET_PROCESS_ID = %d, want %d", got, tid)
	}
}

func TestExitTerminatesCallingThread(t *testing.T) {
	d, _, top, tid := newTestDispatcher(t)
	rc := d.Dispatch(tid, top, EXIT, 0, 0, 0, 0, 0)
	if rc != 0 {
		t.Fatalf("EXIT = %d, want 0", rc)
	}
}

func TestReadOnUnknownHandleFailsInvalidHandle(t *testing.T) {
	d, _, top, tid := newTestDispatcher(t)
	got := d.Dispatch(tid, top, READ, 999, uint64(testUserVA), 8, 0, 0)
	if got >= 0 {
		t.Fatalf("READ on unknown handle unexpectedly succeeded")
	}
}
