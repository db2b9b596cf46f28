// Package trap holds the saved-register context layout and the timer/fault
// glue that the rest of the core plugs into (component F, §4.6). It sits
// below proc in the import graph: it knows the shape
// of a saved context and how to decode a faulting instruction, but nothing
// about processes or scheduling, so that proc can depend on trap without
// trap ever depending back on proc.
package trap

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"kora/caller"
)

// Context is one thread's saved register image, in the order the ISR
// prologue pushes it and the epilogue pops it (§4.6): general registers
// first, then the iretq frame the CPU itself pushes on entry.
type Context struct {
	Rbp, Rax, Rbx, Rcx, Rdx, Rsi, Rdi uint64
	R8, R9, R10, R11                 uint64
	R12, R13, R14, R15               uint64

	RIP    uint64
	CS     uint64
	RFLAGS uint64
	RSP    uint64
	SS     uint64
}

// Switcher is the scheduling half of a context switch. proc.Scheduler
// implements it; trap never imports proc, it only calls through this
// interface, keeping the dependency edge one-directional.
type Switcher interface {
	ContextSwitch(cur *Context) (*Context, error)
}

// TimerTick is the timer ISR's call into the scheduler: it hands the
// interrupted thread's context to sw and returns the context to restore,
// or nil if no thread is runnable (§4.4 step 4, §4.6 "pass the stack
// pointer ... to the scheduler's part-2").
func TimerTick(sw Switcher, cur *Context) (*Context, error) {
	return sw.ContextSwitch(cur)
}

// DecodeFault disassembles the single instruction at code (as captured
// from the faulting RIP) for inclusion in the panic rendered by the
// console collaborator (§7: CPU faults are fatal for the current thread in
// the current design). It returns a best-effort string; a decode failure
// is not itself fatal; it degrades to a hex dump.
func DecodeFault(code []byte, rip uint64) string {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return fmt.Sprintf("rip=%#x <undecodable: % x>", rip, code)
	}
	return fmt.Sprintf("rip=%#x %s", rip, x86asm.GNUSyntax(inst, rip, nil))
}

// FatalFault renders the full panic report for a terminal CPU fault (§7):
// the faulting instruction from DecodeFault followed by the Go call stack
// that led to the fault being detected, for the console to print before the
// current thread is torn down.
func FatalFault(code []byte, rip uint64) string {
	return fmt.Sprintf("fatal fault: %s\n%s", DecodeFault(code, rip), caller.Stack(1))
}
