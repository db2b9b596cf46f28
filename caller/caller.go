// Package caller captures Go call stacks for inclusion in kernel panic
// reports. CPU faults (double fault, page fault, GP) are terminal for the
// current thread and rendered as a kernel panic (§7); the trap package asks
// this package for the stack text that goes into that report.
package caller

import (
	"fmt"
	"runtime"
)

// Stack renders the call stack starting start frames above its own caller,
// one line per frame, innermost first.
func Stack(start int) string {
	i := start + 1
	s := ""
	for {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		i++
		if s == "" {
			s = fmt.Sprintf("%s:%d\n", f, l)
		} else {
			s += fmt.Sprintf("\t<-%s:%d\n", f, l)
		}
	}
	return s
}
