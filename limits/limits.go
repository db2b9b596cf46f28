// Package limits holds system-wide resource ceilings (processes, threads,
// handles, message queues, frames) as atomically taken and given budgets.
// No creation path in the core currently takes from these budgets, so the
// ceilings are not enforced.
package limits

import "sync/atomic"

// Sysatomic_t is a numeric limit that can be atomically taken from and
// given back to.
type Sysatomic_t int64

func (s *Sysatomic_t) aptr() *int64 {
	return (*int64)(s)
}

/// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(_n uint) {
	n := int64(_n)
	atomic.AddInt64(s.aptr(), n)
}

/// Taken tries to decrement the limit by the provided amount.
/// It returns true on success; the limit is left unchanged on failure.
func (s *Sysatomic_t) Taken(_n uint) bool {
	n := int64(_n)
	g := atomic.AddInt64(s.aptr(), -n)
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s.aptr(), n)
	return false
}

/// Take decrements the limit and reports whether it succeeded.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}

/// Remaining reports the current budget. Diagnostic only: it may be stale
/// the instant it is read.
func (s *Sysatomic_t) Remaining() int64 {
	return atomic.LoadInt64(s.aptr())
}

/// Syslimit_t groups one budget per system-wide ceiling.
type Syslimit_t struct {
	Processes     Sysatomic_t
	Threads       Sysatomic_t
	Handles       Sysatomic_t
	MessageQueues Sysatomic_t
	Frames        Sysatomic_t
}

/// Syslimit holds the process-wide configured ceilings.
var Syslimit = MkSysLimit(4096, 16384, 65536, 4096, 1<<20)

/// MkSysLimit builds a fresh set of ceilings. Tests construct their own
/// instance rather than mutate the shared Syslimit.
func MkSysLimit(processes, threads, handles, queues, frames uint) *Syslimit_t {
	s := &Syslimit_t{}
	s.Processes.Given(processes)
	s.Threads.Given(threads)
	s.Handles.Given(handles)
	s.MessageQueues.Given(queues)
	s.Frames.Given(frames)
	return s
}
