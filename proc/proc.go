// Package proc implements the thread/process tables and the round-robin
// scheduler (components D/E, §4.4/§4.5): process and thread bookkeeping,
// the running/suspended/delta queues, and the context-switch hot path
// dispatched from the timer ISR via trap.TimerTick.
package proc

import (
	"sync"

	"kora/accnt"
	"kora/config"
	"kora/kerr"
	"kora/ns"
	"kora/trap"
	"kora/vmm"
)

// Process is identified by a non-zero 32-bit id (§3).
type Process struct {
	Pid     uint32
	Top     vmm.ProcessImage // retained for CR3/teardown (Top field) plus bookkeeping
	Threads []uint32
	Accnt   accnt.Accnt_t
}

// Thread is identified by a 32-bit id unique across all processes (§3).
type Thread struct {
	Tid       uint32
	Pid       uint32
	Ctx       trap.Context
	Zombie    bool
	Suspended bool
	Joiner    uint32 // 0 means no joiner; tid 0 is never assigned

	// RanSince is the nanosecond timestamp at which this thread was last
	// dispatched (§12 per-process CPU-time accounting); zero means it has
	// never run yet.
	RanSince int64
}

type deltaEntry struct {
	Tid   uint32
	Ticks uint64
}

// Scheduler holds every process/thread table and queue (§4.4 State). The
// zero value is not ready for use; call NewScheduler.
type Scheduler struct {
	mu sync.Mutex

	mapper *vmm.Mapper

	processes map[uint32]*Process
	threads   map[uint32]*Thread
	freeTids  []uint32
	nextTid   uint32

	runningQueue   []uint32
	suspendedQueue []uint32
	deltaQueue     []deltaEntry

	currentIndex    int
	nextPid         uint32
	inContextSwitch bool

	// Trigger is called after any operation that needs the scheduler to
	// reschedule soon (§4.4: suspend/terminate "trigger a context
	// switch"). In the real kernel this posts a self-IPI; here it is a
	// caller-supplied hook so tests can drive ContextSwitch explicitly.
	// A nil Trigger is a valid no-op.
	Trigger func()

	// Tree, if set, receives a Processes/<pid>/Accounting resource for
	// every process AddProcess creates (§12 per-process CPU-time
	// accounting). A nil Tree is a valid no-op, e.g. in tests that never
	// touch the namespace.
	Tree *ns.Tree
}

// NewScheduler returns an empty Scheduler drawing address spaces from m.
func NewScheduler(m *vmm.Mapper) *Scheduler {
	return &Scheduler{
		mapper:    m,
		processes: make(map[uint32]*Process),
		threads:   make(map[uint32]*Thread),
		nextTid:   1,
		nextPid:   1,
	}
}

func (s *Scheduler) trigger() {
	if s.Trigger != nil {
		s.Trigger()
	}
}

// AddProcess allocates the next free pid and inserts proc (§4.4 add_process),
// then registers its Processes/<pid>/Accounting resource if a Tree is set
// (§12).
func (s *Scheduler) AddProcess(top vmm.ProcessImage) uint32 {
	s.mu.Lock()
	pid := s.nextFreePidLocked()
	p := &Process{Pid: pid, Top: top}
	s.processes[pid] = p
	tree := s.Tree
	s.mu.Unlock()

	if tree != nil {
		ns.RegisterAccounting(tree, []string{"Processes", itoa(pid), "Accounting"}, p.Accnt.Fetch)
	}
	return pid
}

func (s *Scheduler) nextFreePidLocked() uint32 {
	for {
		if _, ok := s.processes[s.nextPid]; !ok {
			return s.nextPid
		}
		s.nextPid++
	}
}

// AddThread creates a thread owned by pid, suspended, queued for an
// explicit resume (§4.4 add_thread).
func (s *Scheduler) AddThread(pid uint32, ctx trap.Context) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.processes[pid]
	if !ok {
		return 0, kerr.ENOENT
	}
	tid := s.allocTidLocked()
	th := &Thread{Tid: tid, Pid: pid, Ctx: ctx, Suspended: true}
	s.threads[tid] = th
	p.Threads = append(p.Threads, tid)
	s.suspendedQueue = append(s.suspendedQueue, tid)
	return tid, nil
}

func (s *Scheduler) allocTidLocked() uint32 {
	if n := len(s.freeTids); n > 0 {
		tid := s.freeTids[n-1]
		s.freeTids = s.freeTids[:n-1]
		return tid
	}
	tid := s.nextTid
	s.nextTid++
	return tid
}

// Resume moves tid from the suspended queue to the running queue (§4.4
// resume). It fails if tid is not currently suspended.
func (s *Scheduler) Resume(tid uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeLocked(tid)
}

func (s *Scheduler) resumeLocked(tid uint32) error {
	idx := -1
	for i, t := range s.suspendedQueue {
		if t == tid {
			idx = i
			break
		}
	}
	if idx < 0 {
		return kerr.ENOENT
	}
	s.suspendedQueue = append(s.suspendedQueue[:idx], s.suspendedQueue[idx+1:]...)
	s.runningQueue = append(s.runningQueue, tid)
	if th, ok := s.threads[tid]; ok {
		th.Suspended = false
	}
	return nil
}

// Suspend marks tid suspended and triggers a reschedule; the thread
// actually leaves the running queue at its next dispatch (§4.4 suspend).
func (s *Scheduler) Suspend(tid uint32) error {
	s.mu.Lock()
	th, ok := s.threads[tid]
	if !ok {
		s.mu.Unlock()
		return kerr.ENOENT
	}
	th.Suspended = true
	s.mu.Unlock()
	s.trigger()
	return nil
}

// Delay converts ms to ticks, inserts tid into the delta queue at its
// residual position, and suspends it (§4.4 delay).
func (s *Scheduler) Delay(tid uint32, ms uint64) error {
	s.mu.Lock()
	if _, ok := s.threads[tid]; !ok {
		s.mu.Unlock()
		return kerr.ENOENT
	}
	delta := ms * uint64(config.TicksPerMs)
	i := 0
	for i < len(s.deltaQueue) {
		if delta >= s.deltaQueue[i].Ticks {
			delta -= s.deltaQueue[i].Ticks
			i++
		} else {
			s.deltaQueue[i].Ticks -= delta
			break
		}
	}
	entry := deltaEntry{Tid: tid, Ticks: delta}
	s.deltaQueue = append(s.deltaQueue, deltaEntry{})
	copy(s.deltaQueue[i+1:], s.deltaQueue[i:])
	s.deltaQueue[i] = entry
	s.mu.Unlock()
	return s.Suspend(tid)
}

// Join records joiner in joinee's Joiner field and suspends joiner (§4.4 join).
func (s *Scheduler) Join(joiner, joinee uint32) error {
	s.mu.Lock()
	if _, ok := s.threads[joiner]; !ok {
		s.mu.Unlock()
		return kerr.ENOENT
	}
	jee, ok := s.threads[joinee]
	if !ok {
		s.mu.Unlock()
		return kerr.ENOENT
	}
	jee.Joiner = joiner
	s.mu.Unlock()
	return s.Suspend(joiner)
}

// Terminate marks tid zombie, resumes its joiner if any, and triggers a
// reschedule (§4.4 terminate).
func (s *Scheduler) Terminate(tid uint32) error {
	s.mu.Lock()
	th, ok := s.threads[tid]
	if !ok {
		s.mu.Unlock()
		return kerr.ENOENT
	}
	th.Zombie = true
	if joiner := th.Joiner; joiner != 0 {
		if err := s.resumeLocked(joiner); err != nil {
			// A joiner flagged suspended but not yet moved off the running
			// queue by a context switch is woken by clearing its flag.
			jt, ok := s.threads[joiner]
			if !ok {
				s.mu.Unlock()
				return err
			}
			jt.Suspended = false
		}
	}
	s.mu.Unlock()
	s.trigger()
	return nil
}

// TerminateProcess marks every thread owned by pid zombie and triggers a
// reschedule (§4.4 terminate_process).
func (s *Scheduler) TerminateProcess(pid uint32) error {
	s.mu.Lock()
	p, ok := s.processes[pid]
	if !ok {
		s.mu.Unlock()
		return kerr.ENOENT
	}
	for _, tid := range p.Threads {
		if th, ok := s.threads[tid]; ok {
			th.Zombie = true
		}
	}
	s.mu.Unlock()
	s.trigger()
	return nil
}

// CurrentTid returns the tid at the running queue's current index, or
// false if nothing is running.
func (s *Scheduler) CurrentTid() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentIndex >= len(s.runningQueue) {
		return 0, false
	}
	return s.runningQueue[s.currentIndex], true
}

// ProcessOf returns the pid owning tid, or false if tid is unknown.
func (s *Scheduler) ProcessOf(tid uint32) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	th, ok := s.threads[tid]
	if !ok {
		return 0, false
	}
	return th.Pid, true
}

// InContextSwitch reports whether a context switch is currently executing.
func (s *Scheduler) InContextSwitch() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inContextSwitch
}

// ContextSwitch is the timer-tick hot path (§4.4 context_switch). It holds
// the scheduler's lock for its whole duration and only calls the private
// *Locked helpers above, so no public entry point can ever be re-entered
// from within a switch — the "no double-switch" invariant (§5) is
// structural rather than flag-checked.
func (s *Scheduler) ContextSwitch(cur *trap.Context) (*trap.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inContextSwitch = true
	defer func() { s.inContextSwitch = false }()

	s.advanceDeltaQueueLocked()

	if cur != nil {
		if err := s.retireCurrentLocked(cur); err != nil {
			return nil, err
		}
	}

	if len(s.runningQueue) == 0 {
		return nil, nil
	}
	tid := s.runningQueue[s.currentIndex]
	th := s.threads[tid]
	th.RanSince = accnt.Now()
	return &th.Ctx, nil
}

func (s *Scheduler) advanceDeltaQueueLocked() {
	if len(s.deltaQueue) == 0 {
		return
	}
	front := &s.deltaQueue[0]
	if front.Ticks == 0 {
		tid := front.Tid
		s.deltaQueue = s.deltaQueue[1:]
		s.resumeLocked(tid)
		return
	}
	front.Ticks--
}

func (s *Scheduler) retireCurrentLocked(cur *trap.Context) error {
	if s.currentIndex >= len(s.runningQueue) {
		return nil
	}
	tid := s.runningQueue[s.currentIndex]
	th, ok := s.threads[tid]
	if !ok {
		return nil
	}

	if th.RanSince != 0 {
		if p, ok := s.processes[th.Pid]; ok {
			p.Accnt.Finish(th.RanSince)
		}
	}

	switch {
	case th.Zombie:
		pid := th.Pid
		delete(s.threads, tid)
		s.freeTids = append(s.freeTids, tid)
		s.removeFromRunningLocked(s.currentIndex)
		if p, ok := s.processes[pid]; ok {
			p.Threads = removeTid(p.Threads, tid)
			if len(p.Threads) == 0 {
				if s.mapper != nil {
					s.mapper.ProcessDie(p.Top.Top)
				}
				delete(s.processes, pid)
			}
		}
	case th.Suspended:
		th.Ctx = *cur
		s.suspendedQueue = append(s.suspendedQueue, tid)
		s.removeFromRunningLocked(s.currentIndex)
	default:
		th.Ctx = *cur
		s.advanceCurrentLocked()
	}
	return nil
}

func (s *Scheduler) removeFromRunningLocked(idx int) {
	s.runningQueue = append(s.runningQueue[:idx], s.runningQueue[idx+1:]...)
	if s.currentIndex >= len(s.runningQueue) {
		s.currentIndex = 0
	}
}

func (s *Scheduler) advanceCurrentLocked() {
	s.currentIndex++
	if s.currentIndex >= len(s.runningQueue) {
		s.currentIndex = 0
	}
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

func removeTid(list []uint32, tid uint32) []uint32 {
	for i, t := range list {
		if t == tid {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
