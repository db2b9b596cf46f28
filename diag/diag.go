// Package diag exposes kernel-wide activity counters as a pprof profile,
// so the same tooling that inspects a CPU profile can inspect scheduler
// and frame-allocator activity (component J's diagnostic surface).
package diag

import (
	"sync/atomic"
	"time"

	"github.com/google/pprof/profile"
)

// Counter is an always-on statistical counter: the generalization of the
// teacher's Counter_t/Inc, minus the teacher's global Stats/Timing enable
// flags that compiled counting out of the binary entirely. A hosted
// simulation has no boot-time cost to save by disabling counters, so they
// are unconditionally live.
type Counter struct{ v int64 }

// Inc increments the counter by one.
func (c *Counter) Inc() { atomic.AddInt64(&c.v, 1) }

// Add adds n to the counter.
func (c *Counter) Add(n int64) { atomic.AddInt64(&c.v, n) }

// Load returns the counter's current value.
func (c *Counter) Load() int64 { return atomic.LoadInt64(&c.v) }

// Stats is the fixed set of kernel-wide counters the core increments as it
// runs, one field per component the teacher's reflection-based
// Stats2String would have walked.
type Stats struct {
	ContextSwitches Counter
	SyscallCount    Counter
	PageFaults      Counter
	TimerTicks      Counter
	FramesAllocated Counter
	FramesFreed     Counter
}

// Snapshot renders st, plus the frame allocator's current free count, as a
// pprof profile with one sample per counter.
func Snapshot(st *Stats, freeFrames uint64) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "count", Unit: "count"}},
		TimeNanos:  time.Now().UnixNano(),
	}

	named := []struct {
		name string
		val  int64
	}{
		{"context_switches", st.ContextSwitches.Load()},
		{"syscalls", st.SyscallCount.Load()},
		{"page_faults", st.PageFaults.Load()},
		{"timer_ticks", st.TimerTicks.Load()},
		{"frames_allocated", st.FramesAllocated.Load()},
		{"frames_freed", st.FramesFreed.Load()},
		{"frames_free", int64(freeFrames)},
	}

	for i, n := range named {
		id := uint64(i + 1)
		fn := &profile.Function{ID: id, Name: n.name}
		loc := &profile.Location{ID: id, Line: []profile.Line{{Function: fn}}}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{n.val},
		})
	}
	return p
}
