// Package kerr defines the one error type shared by every core component.
//
// The kernel's system-call ABI returns a single negative integer on failure
// (§6 of the kernel's interface contract); Err_t is that integer given a Go
// error interface, so internal code can return ordinary errors right up
// until the syscall dispatcher converts them to the wire value.
package kerr

import "fmt"

// Err_t is a negative error code drawn from the fixed taxonomy below.
type Err_t int32

// The fixed, stable error codes. Negative by convention; zero means success
// and is never represented by an Err_t (callers use a nil error instead).
const (
	EUNKNOWN    Err_t = -1
	EINITFAIL   Err_t = -2
	EDEINITFAIL Err_t = -3
	EINVDEVICE  Err_t = -4
	ENODRIVER   Err_t = -5
	EIO         Err_t = -6
	EINVDATA    Err_t = -7
	EINVSEEK    Err_t = -8
	EINVHANDLE  Err_t = -9
	ENOSPACE    Err_t = -10
	ESMALLBUF   Err_t = -11
	EREADFAIL   Err_t = -12
	EWRITEFAIL  Err_t = -13
	ENOENT      Err_t = -14
	EEOF        Err_t = -15
	EPERM       Err_t = -16
	EALREADYOPE Err_t = -17
	EINVEXEC    Err_t = -18
	ENODATA     Err_t = -19
)

var names = map[Err_t]string{
	EUNKNOWN:    "UnknownError",
	EINITFAIL:   "InitFailure",
	EDEINITFAIL: "DeinitFailure",
	EINVDEVICE:  "InvalidDevice",
	ENODRIVER:   "DriverNotFound",
	EIO:         "IOFailure",
	EINVDATA:    "InvalidData",
	EINVSEEK:    "InvalidSeek",
	EINVHANDLE:  "InvalidHandle",
	ENOSPACE:    "OutOfSpace",
	ESMALLBUF:   "BufferTooSmall",
	EREADFAIL:   "ReadFailure",
	EWRITEFAIL:  "WriteFailure",
	ENOENT:      "EntryNotFound",
	EEOF:        "EndOfFile",
	EPERM:       "Permissions",
	EALREADYOPE: "AlreadyOpen",
	EINVEXEC:    "InvalidExecutable",
	ENODATA:     "NoData",
}

// Error implements the error interface.
func (e Err_t) Error() string {
	if n, ok := names[e]; ok {
		return n
	}
	return fmt.Sprintf("kerr(%d)", int32(e))
}

// Code returns the stable negative integer the syscall ABI returns to
// userspace. It panics if e is not one of the fixed codes, since a random
// integer escaping to the ABI boundary is itself a bug in the caller.
func (e Err_t) Code() int64 {
	if _, ok := names[e]; !ok {
		panic(fmt.Sprintf("kerr: %d is not a valid error code", int32(e)))
	}
	return int64(e)
}

// FromCode recovers an Err_t from a raw negative return value, e.g. when a
// collaborator hands the core an integer status instead of an error value.
func FromCode(code int64) Err_t {
	e := Err_t(code)
	if _, ok := names[e]; !ok {
		return EUNKNOWN
	}
	return e
}

// AsErrt narrows a generic error into an Err_t, mapping anything foreign to
// EUNKNOWN. nil maps to 0, the zero value, which callers must treat as
// "no error" and never pass to Code().
func AsErrt(err error) Err_t {
	if err == nil {
		return 0
	}
	if e, ok := err.(Err_t); ok {
		return e
	}
	return EUNKNOWN
}
