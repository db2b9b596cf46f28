// Package syscall implements the system-call dispatcher (component I,
// §4.9): the fixed numeric table, ABI marshalling, and the single entry
// point a trap handler calls into after copying argument registers out of
// the faulted context.
package syscall

// Fixed syscall numbers. The ABI is stable: renumbering any of these is a
// breaking change to every userspace binary.
const (
	READ                   = 0
	WRITE                  = 1
	SEEK                   = 2
	reserved3              = 3
	EXIT                   = 4
	GET_PROCESS_ID         = 5
	CREATE_MESSAGE_QUEUE   = 6
	ACQUIRE_HANDLE         = 7
	RELEASE_HANDLE         = 8
	AVAILABLE_MESSAGES     = 9
	AVAILABLE_MESSAGE_SIZE = 10
)

// maxPathLen and maxNameLen bound how far the dispatcher will scan user
// memory for a NUL terminator before giving up (§4.9 argument copying).
const (
	maxPathLen = 256
	maxNameLen = 64
)
