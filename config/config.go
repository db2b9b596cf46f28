// Package config collects the kernel's compile-time tunables.
//
// A kernel core has no process environment to read a config file or flags
// from, so every knob here is a typed constant rather than a parsed value.
package config

import "time"

const (
	// PageSize is the size in bytes of one physical frame / page-table leaf.
	PageSize = 1 << PageShift
	// PageShift is log2(PageSize).
	PageShift = 12

	// TickInterval is the wall-clock duration represented by one timer tick.
	TickInterval = time.Millisecond
	// TicksPerMs converts a millisecond delay into ticks.
	TicksPerMs = time.Millisecond / TickInterval

	// StackSize is the size in bytes given to every user and kernel thread stack.
	StackSize = 8 * PageSize

	// UserStackScanBase is the virtual address exec_user starts scanning upward
	// from when choosing a free stack hole.
	UserStackScanBase = 0x60000000

	// DefaultQueueCapacity is the capacity assigned to a MessageQueue when the
	// caller does not request a specific one.
	DefaultQueueCapacity = 32
)

// The ceilings below match limits.Syslimit's defaults; no code path reads
// these constants, so they document the values rather than enforce them.
const (
	// MaxProcesses bounds live processes system-wide.
	MaxProcesses = 4096
	// MaxThreads bounds live threads system-wide.
	MaxThreads = 16384
	// MaxHandles bounds live handles system-wide.
	MaxHandles = 65536
	// MaxMessageQueues bounds live message queues system-wide.
	MaxMessageQueues = 4096
	// MaxFrames is a soft ceiling on physical frames.
	MaxFrames = 1 << 20
)
