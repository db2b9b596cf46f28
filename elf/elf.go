// Package elf is the thin, collaborator-grade executable loader the
// address-space lifecycle consumes (§6): "Executable loader: given a file
// handle, returns an ExecutableInfo". The spec marks the ELF parser's
// internals out of scope (§1); this package goes only as deep as producing
// the section list the lifecycle needs, reusing the standard library's own
// ELF reader rather than hand-rolling header parsing — the same standard
// library package the kernel's own ELF entry-point patcher (cmd/chentry)
// already depends on.
package elf

import (
	stdelf "debug/elf"
	"io"

	"kora/kerr"
)

// File is the collaborator interface the filesystem exposes for an open
// executable image (§6: seek, read, size).
type File interface {
	io.ReaderAt
	io.Seeker
	Size() (int64, error)
}

// Kind classifies one program header entry.
type Kind int

const (
	Load Kind = iota
	Dynamic
	Interpreter
)

// Section describes one loadable (or not) program header.
type Section struct {
	Kind         Kind
	FileOffset   uint64
	SizeInFile   uint64
	VirtAddress  uintptr
	SizeInMemory uint64
}

// ExecutableInfo is the collaborator's output (§6).
type ExecutableInfo struct {
	File       File
	EntryPoint uintptr
	Sections   []Section
}

// Parse reads the ELF headers of f and produces an ExecutableInfo. It
// accepts only little-endian 64-bit x86_64 executables, the same checks
// cmd/chentry performs on the images it patches.
func Parse(f File) (ExecutableInfo, error) {
	ef, err := stdelf.NewFile(f)
	if err != nil {
		return ExecutableInfo{}, kerr.EINVEXEC
	}
	if ef.Class != stdelf.ELFCLASS64 || ef.Data != stdelf.ELFDATA2LSB {
		return ExecutableInfo{}, kerr.EINVEXEC
	}
	if ef.Machine != stdelf.EM_X86_64 {
		return ExecutableInfo{}, kerr.EINVEXEC
	}
	if ef.Type != stdelf.ET_EXEC {
		return ExecutableInfo{}, kerr.EINVEXEC
	}

	info := ExecutableInfo{
		File:       f,
		EntryPoint: uintptr(ef.Entry),
	}
	for _, prog := range ef.Progs {
		var kind Kind
		switch prog.Type {
		case stdelf.PT_LOAD:
			kind = Load
		case stdelf.PT_DYNAMIC:
			kind = Dynamic
		case stdelf.PT_INTERP:
			kind = Interpreter
		default:
			continue
		}
		info.Sections = append(info.Sections, Section{
			Kind:         kind,
			FileOffset:   prog.Off,
			SizeInFile:   prog.Filesz,
			VirtAddress:  uintptr(prog.Vaddr),
			SizeInMemory: prog.Memsz,
		})
	}
	return info, nil
}
