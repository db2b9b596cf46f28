package syscall

import (
	"sync"

	"kora/config"
	"kora/ipc"
	"kora/kerr"
	"kora/mem"
	"kora/ns"
	"kora/proc"
	"kora/ustr"
	"kora/vmm"
)

// queueReadWriter is the subset of *ipc.MessageQueue the dispatcher needs.
// It is asserted out of ns.MessageChannel's narrower Payload.Queue field
// (itself typed as just {Available() int} so package ns never imports
// ipc), rather than imported as a static field type, keeping the two
// packages' coupling one-directional.
type queueReadWriter interface {
	Read(caller uint32, buf []byte) (int, error)
	Write(caller uint32, buf []byte) (int, error)
	PeekLen(caller uint32) (int, error)
	Available() int
}

// Dispatcher wires the fixed syscall table to the core's services. One
// Dispatcher serves every trap; its only private state is the per-handle
// seek offset table, since every other service keeps its own locking.
type Dispatcher struct {
	Scheduler *proc.Scheduler
	Handles   *ns.HandleTable
	Tree      *ns.Tree
	Mapper    *vmm.Mapper

	mu      sync.Mutex
	offsets map[uint32]int64
}

// NewDispatcher returns a Dispatcher over the given services.
func NewDispatcher(s *proc.Scheduler, h *ns.HandleTable, t *ns.Tree, m *vmm.Mapper) *Dispatcher {
	return &Dispatcher{Scheduler: s, Handles: h, Tree: t, Mapper: m, offsets: make(map[uint32]int64)}
}

func (d *Dispatcher) offsetOf(handle uint32) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.offsets[handle]
}

func (d *Dispatcher) setOffset(handle uint32, off int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offsets[handle] = off
}

func errCode(err error) int64 {
	if err == nil {
		return 0
	}
	return kerr.AsErrt(err).Code()
}

// Dispatch executes syscall num on behalf of tid, whose address space root
// is top, with argument registers mirroring the sysret ABI (rdi, rsi, rdx,
// r10, r8). It never dereferences a user pointer with any scheduler lock
// held: every string argument is copied into kernel memory by a UserBuf or
// ReadCString call before being interpreted (§4.9).
func (d *Dispatcher) Dispatch(tid uint32, top mem.Pa_t, num int64, rdi, rsi, rdx, r10, r8 uint64) int64 {
	switch num {
	case READ:
		return d.sysRead(tid, top, uint32(rdi), uintptr(rsi), int(rdx))
	case WRITE:
		return d.sysWrite(tid, top, uint32(rdi), uintptr(rsi), int(rdx))
	case SEEK:
		return d.sysSeek(uint32(rdi), int64(rsi), rdx != 0)
	case reserved3:
		return 0
	case EXIT:
		return errCode(d.Scheduler.Terminate(tid))
	case GET_PROCESS_ID:
		return int64(tid)
	case CREATE_MESSAGE_QUEUE:
		return d.sysCreateMessageQueue(tid, top, uintptr(rdi), uint32(rsi))
	case ACQUIRE_HANDLE:
		return d.sysAcquireHandle(tid, top, uintptr(rdi))
	case RELEASE_HANDLE:
		return errCode(d.Handles.Release(uint32(rdi)))
	case AVAILABLE_MESSAGES:
		return d.sysAvailableMessages(uint32(rdi))
	case AVAILABLE_MESSAGE_SIZE:
		return d.sysAvailableMessageSize(tid, uint32(rdi))
	default:
		return kerr.EINVDATA.Code()
	}
}

func (d *Dispatcher) sysRead(tid uint32, top mem.Pa_t, handle uint32, va uintptr, count int) int64 {
	res, err := d.Handles.Resource(handle)
	if err != nil {
		return errCode(err)
	}
	buf := make([]byte, count)
	var n int
	switch p := res.Payload.(type) {
	case *ns.File:
		if p.Read == nil {
			return kerr.EIO.Code()
		}
		off := d.offsetOf(handle)
		n, err = p.Read(buf, off)
		if err == nil {
			d.setOffset(handle, off+int64(n))
		}
	case *ns.MessageChannel:
		qrw, ok := p.Queue.(queueReadWriter)
		if !ok {
			return kerr.EIO.Code()
		}
		n, err = qrw.Read(tid, buf)
	default:
		return kerr.EIO.Code()
	}
	if err != nil {
		return errCode(err)
	}
	ub := d.Mapper.NewUserBuf(top, va, n)
	written, err := ub.CopyIn(buf[:n])
	if err != nil {
		return errCode(err)
	}
	return int64(written)
}

func (d *Dispatcher) sysWrite(tid uint32, top mem.Pa_t, handle uint32, va uintptr, count int) int64 {
	res, err := d.Handles.Resource(handle)
	if err != nil {
		return errCode(err)
	}
	buf := make([]byte, count)
	ub := d.Mapper.NewUserBuf(top, va, count)
	got, err := ub.CopyOut(buf)
	if err != nil {
		return errCode(err)
	}
	buf = buf[:got]

	switch p := res.Payload.(type) {
	case *ns.MessageChannel:
		qrw, ok := p.Queue.(queueReadWriter)
		if !ok {
			return kerr.EIO.Code()
		}
		n, err := qrw.Write(tid, buf)
		if err != nil {
			return errCode(err)
		}
		return int64(n)
	default:
		return kerr.EIO.Code()
	}
}

func (d *Dispatcher) sysSeek(handle uint32, offset int64, relative bool) int64 {
	cur := d.offsetOf(handle)
	next := offset
	if relative {
		next = cur + offset
	}
	if next < 0 {
		return kerr.EINVSEEK.Code()
	}
	d.setOffset(handle, next)
	return 0
}

// sysCreateMessageQueue mirrors the source kernel's _create_message_queue:
// the calling thread id doubles as both the queue's owner and the pid
// segment of its namespace path (endpoint 0 means Any, any other value is
// the single pid allowed to send), then immediately acquires a handle to
// it for the caller.
func (d *Dispatcher) sysCreateMessageQueue(tid uint32, top mem.Pa_t, nameVA uintptr, endpoint uint32) int64 {
	name, err := d.Mapper.ReadCString(top, nameVA, maxNameLen)
	if err != nil {
		return errCode(err)
	}

	var ep ipc.Endpoint
	if endpoint == 0 {
		ep = ipc.Endpoint{Kind: ipc.Any}
	} else {
		ep = ipc.Endpoint{Kind: ipc.Process, Pid: endpoint}
	}
	q := ipc.NewMessageQueue(tid, ep, config.DefaultQueueCapacity)

	path := ustr.Ustr("Processes/" + itoa(tid) + "/MessageChannels/" + name).Segments()
	d.Tree.Insert(path, &ns.Resource{Kind: ns.KindMessageChannel, Path: path, Payload: ns.NewMessageChannel(q)})

	id, err := d.Handles.Acquire(path, tid)
	if err != nil {
		return errCode(err)
	}
	return int64(id)
}

func (d *Dispatcher) sysAcquireHandle(tid uint32, top mem.Pa_t, pathVA uintptr) int64 {
	raw, err := d.Mapper.ReadCString(top, pathVA, maxPathLen)
	if err != nil {
		return errCode(err)
	}
	path := ustr.Ustr(raw).Segments()
	id, err := d.Handles.Acquire(path, tid)
	if err != nil {
		return errCode(err)
	}
	return int64(id)
}

func (d *Dispatcher) sysAvailableMessages(handle uint32) int64 {
	res, err := d.Handles.Resource(handle)
	if err != nil {
		return errCode(err)
	}
	mc, ok := res.Payload.(*ns.MessageChannel)
	if !ok {
		return kerr.EIO.Code()
	}
	return int64(mc.Queue.Available())
}

func (d *Dispatcher) sysAvailableMessageSize(tid uint32, handle uint32) int64 {
	res, err := d.Handles.Resource(handle)
	if err != nil {
		return errCode(err)
	}
	mc, ok := res.Payload.(*ns.MessageChannel)
	if !ok {
		return kerr.EIO.Code()
	}
	qrw, ok := mc.Queue.(queueReadWriter)
	if !ok {
		return kerr.EIO.Code()
	}
	n, err := qrw.PeekLen(tid)
	if err != nil {
		return errCode(err)
	}
	return int64(n)
}

func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
