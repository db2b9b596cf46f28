// Package ustr handles the NUL-terminated byte strings the syscall
// dispatcher copies out of user memory before it may safely parse them
// (names for CREATE_MESSAGE_QUEUE, paths for ACQUIRE_HANDLE — §4.9 requires
// the dispatcher not dereference user pointers with the scheduler lock
// held, so by the time a Ustr exists the bytes are already in kernel
// memory).
package ustr

import "strings"

/// Ustr represents an immutable string copied out of user memory.
type Ustr []uint8

/// Eq compares two Ustr values for equality.
func (us Ustr) Eq(s Ustr) bool {
	if len(us) != len(s) {
		return false
	}
	for i, v := range us {
		if v != s[i] {
			return false
		}
	}
	return true
}

/// MkUstr creates an empty Ustr value.
func MkUstr() Ustr {
	return Ustr{}
}

/// MkUstrSlice converts a NUL-terminated byte slice to a Ustr, truncating at
/// the first NUL byte. If buf contains no NUL, the whole slice is used.
func MkUstrSlice(buf []uint8) Ustr {
	for i := 0; i < len(buf); i++ {
		if buf[i] == 0 {
			return buf[:i]
		}
	}
	return buf
}

/// IndexByte returns the index of b in the string, or -1 if not present.
func (us Ustr) IndexByte(b uint8) int {
	for i, v := range us {
		if v == b {
			return i
		}
	}
	return -1
}

/// String converts the Ustr to a Go string.
func (us Ustr) String() string {
	return string(us)
}

/// Segments splits a namespace path of the form "Processes/5/MessageChannels/q"
/// into its ordered, non-empty name components. Leading, trailing, and
/// repeated '/' separators are ignored rather than rejected, matching how
/// the namespace tree itself only ever stores non-empty segments.
func (us Ustr) Segments() []string {
	parts := strings.Split(string(us), "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
