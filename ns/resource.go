// Package ns implements the hierarchical resource namespace and the handle
// table built on top of it (component G, §4.7). Resource is modeled as a
// sum type over the four variants the data model fixes (§3: Device,
// FileSystem, File, MessageChannel); each variant carries its own
// open/one-shot bookkeeping behind the Payload interface, the namespace
// and handle table themselves stay variant-agnostic.
package ns

import "fmt"

// Kind tags which of the four Resource variants a node holds.
type Kind int

const (
	KindDevice Kind = iota
	KindFileSystem
	KindFile
	KindMessageChannel
)

func (k Kind) String() string {
	switch k {
	case KindDevice:
		return "Device"
	case KindFileSystem:
		return "FileSystem"
	case KindFile:
		return "File"
	case KindMessageChannel:
		return "MessageChannel"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Payload is the per-variant method table a Resource's open/one-shot
// behavior dispatches through (§9: "tagged Resource variants with dynamic
// dispatch ... sum type plus per-variant method tables").
type Payload interface {
	IsOpen() bool
	SetOpen(open bool)
	// OneShot reports whether the resource should be removed from the
	// namespace the moment its owner releases it (§4.7 release).
	OneShot() bool
}

// Resource is one node's addressable value (§3). Path is the resource's
// location in the tree, kept alongside the node for handles, which
// reference resources by path rather than by pointer so the tree can be
// restructured underneath them.
type Resource struct {
	Kind    Kind
	Path    []string
	Payload Payload
}

// Device is the collaborator-owned variant for driver-managed resources
// (UART, block devices, ...); the driver itself decides single-open
// semantics through IsOpen/SetOpen.
type Device struct {
	Name string
	open bool
}

func NewDevice(name string) *Device          { return &Device{Name: name} }
func (d *Device) IsOpen() bool               { return d.open }
func (d *Device) SetOpen(open bool)          { d.open = open }
func (d *Device) OneShot() bool              { return false }

// FileSystem is the collaborator-owned mount-point variant; mounts are
// long-lived and never single-open.
type FileSystem struct {
	Volume string
}

func NewFileSystem(volume string) *FileSystem { return &FileSystem{Volume: volume} }
func (f *FileSystem) IsOpen() bool            { return false }
func (f *FileSystem) SetOpen(bool)            {}
func (f *FileSystem) OneShot() bool           { return false }

// File is a filesystem-collaborator-backed open file (single-open).
type File struct {
	Path []string
	open bool
	// Read is filled in by the filesystem collaborator, or by
	// RegisterAccounting for the core's own accounting pseudo-file (§12);
	// nil means this File node is a placeholder with no backing content.
	Read func(buf []byte, offset int64) (int, error)
}

func NewFile(path []string) *File  { return &File{Path: path} }
func (f *File) IsOpen() bool       { return f.open }
func (f *File) SetOpen(open bool)  { f.open = open }
func (f *File) OneShot() bool      { return false }

// MessageChannel wraps one owner-private message queue (§4.8); it is
// single-open and one-shot, since a released channel handle has no other
// purpose and the namespace entry under Processes/<pid>/MessageChannels
// should not outlive its one acquirer.
type MessageChannel struct {
	Queue interface {
		Available() int
	}
	open bool
}

func NewMessageChannel(q interface{ Available() int }) *MessageChannel {
	return &MessageChannel{Queue: q}
}
func (m *MessageChannel) IsOpen() bool      { return m.open }
func (m *MessageChannel) SetOpen(open bool) { m.open = open }
func (m *MessageChannel) OneShot() bool     { return true }
