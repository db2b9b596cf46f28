// Package accnt tracks per-process CPU-time accounting: nanoseconds of
// thread execution a process has consumed, updated as the scheduler
// switches threads in and out of Running. Exposed read-only as the text
// file Processes/<pid>/Accounting that ns.RegisterAccounting installs, a
// supplemented feature (see SPEC_FULL.md §12); it is purely observational
// and no core invariant depends on it.
package accnt

import "sync"
import "sync/atomic"
import "time"

// Accnt_t accumulates per-process accounting information.
//
// Both Userns and Sysns store runtime in nanoseconds. The embedded mutex
// lets callers take a consistent snapshot of both fields together.
type Accnt_t struct {
	/// Userns counts nanoseconds of user-mode time consumed.
	Userns int64
	/// Sysns counts nanoseconds of kernel-mode time consumed.
	Sysns int64
	/// mu protects consistent snapshotting of the two fields together.
	mu sync.Mutex
}

/// Utadd adds delta nanoseconds to the user-time counter.
func (a *Accnt_t) Utadd(delta int64) {
	atomic.AddInt64(&a.Userns, delta)
}

/// Systadd adds delta nanoseconds to the system-time counter.
func (a *Accnt_t) Systadd(delta int64) {
	atomic.AddInt64(&a.Sysns, delta)
}

/// Now returns the current time in nanoseconds since the Unix epoch.
func Now() int64 {
	return time.Now().UnixNano()
}

/// Now returns the current time in nanoseconds since the Unix epoch.
func (a *Accnt_t) Now() int64 {
	return Now()
}

/// Finish finalizes accounting by adding the time elapsed since since to
/// system time. Called by the scheduler each time it retires a thread that
/// has been dispatched at least once.
func (a *Accnt_t) Finish(since int64) {
	a.Systadd(Now() - since)
}

/// Add merges another accounting record into this one.
func (a *Accnt_t) Add(n *Accnt_t) {
	n.mu.Lock()
	u, s := n.Userns, n.Sysns
	n.mu.Unlock()

	a.mu.Lock()
	a.Userns += u
	a.Sysns += s
	a.mu.Unlock()
}

// Snapshot is a consistent, immutable view of an Accnt_t at one instant,
// the value ns.RegisterAccounting renders into its file's text.
type Snapshot struct {
	UserNanos int64
	SysNanos  int64
}

/// Fetch returns a consistent snapshot of the accounting information.
func (a *Accnt_t) Fetch() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Snapshot{UserNanos: a.Userns, SysNanos: a.Sysns}
}
