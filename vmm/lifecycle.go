package vmm

import (
	"kora/config"
	"kora/elf"
	"kora/kerr"
	"kora/mem"
)

// ProcessImage is everything the scheduler needs to seed a new process's
// main thread after the address-space lifecycle has finished building it
// (§4.3, §4.4 add_process/add_thread).
type ProcessImage struct {
	Top       mem.Pa_t
	EntryRIP  uintptr
	StackBase uintptr
	StackTop  uintptr
	User      bool
}

// ExecUser builds a fresh address space for a userspace executable: a
// private top cloned from the kernel half, every Load section mapped
// user-writable and populated from the image file, and a freshly chosen
// user stack (§4.3 exec_user).
func (m *Mapper) ExecUser(img elf.ExecutableInfo, kernelTop mem.Pa_t) (ProcessImage, error) {
	top, err := m.CloneKernelHalf(kernelTop)
	if err != nil {
		return ProcessImage{}, err
	}

	for _, sec := range img.Sections {
		if sec.Kind != elf.Load {
			return ProcessImage{}, kerr.EINVEXEC
		}
		if err := m.loadSection(top, img.File, sec); err != nil {
			return ProcessImage{}, err
		}
	}

	stackBase, err := m.reserveStack(top, config.UserStackScanBase, mem.PTE_U|mem.PTE_W)
	if err != nil {
		return ProcessImage{}, err
	}

	return ProcessImage{
		Top:       top,
		EntryRIP:  img.EntryPoint,
		StackBase: stackBase,
		StackTop:  stackBase + config.StackSize,
		User:      true,
	}, nil
}

// ExecKernel builds the image for a kernel thread: it runs in the kernel's
// own top-level table (kernel threads share the kernel half implicitly, so
// no private address space exists), with a kernel-private stack and no
// user-accessible mappings (§4.3 exec_kernel).
func (m *Mapper) ExecKernel(entry uintptr, kernelTop mem.Pa_t) (ProcessImage, error) {
	stackBase, err := m.reserveStack(kernelTop, config.UserStackScanBase, mem.PTE_W)
	if err != nil {
		return ProcessImage{}, err
	}
	return ProcessImage{
		Top:       kernelTop,
		EntryRIP:  entry,
		StackBase: stackBase,
		StackTop:  stackBase + config.StackSize,
		User:      false,
	}, nil
}

func (m *Mapper) loadSection(top mem.Pa_t, f elf.File, sec elf.Section) error {
	pages := (sec.SizeInMemory + uint64(mem.PGSIZE) - 1) / uint64(mem.PGSIZE)
	remaining := sec.SizeInFile
	fileOff := int64(sec.FileOffset)

	for i := uint64(0); i < pages; i++ {
		phys, err := m.alloc.AllocateFrame()
		if err != nil {
			return err
		}
		va := sec.VirtAddress + uintptr(i)*uintptr(mem.PGSIZE)
		if err := m.Map(top, va, phys, mem.PTE_U|mem.PTE_W); err != nil {
			return err
		}

		pg := m.Bytes(phys)
		if remaining == 0 {
			continue
		}
		n := uint64(mem.PGSIZE)
		if remaining < n {
			n = remaining
		}
		if _, err := f.ReadAt(pg[:n], fileOff); err != nil {
			return kerr.EREADFAIL
		}
		fileOff += int64(n)
		remaining -= n
	}
	return nil
}

// reserveStack scans virtual addresses upward from base in StackSize
// strides until it finds a hole unmapped across the whole stride, then
// maps StackSize/PGSIZE frames there with the given leaf flags (§4.3 step
// 3, shared by exec_user and exec_kernel).
func (m *Mapper) reserveStack(top mem.Pa_t, base uintptr, flags mem.Pa_t) (uintptr, error) {
	pages := config.StackSize / mem.PGSIZE

	for candidate := base; ; candidate += config.StackSize {
		free := true
		for i := 0; i < pages; i++ {
			if _, ok := m.Translate(top, candidate+uintptr(i*mem.PGSIZE)); ok {
				free = false
				break
			}
		}
		if !free {
			continue
		}
		for i := 0; i < pages; i++ {
			phys, err := m.alloc.AllocateFrame()
			if err != nil {
				return 0, err
			}
			if err := m.Map(top, candidate+uintptr(i*mem.PGSIZE), phys, flags); err != nil {
				return 0, err
			}
		}
		return candidate, nil
	}
}

// ProcessDie returns a dying process's private page tables and frames to
// the allocator (§4.3
// process_die). Switching CR3 itself is the caller's responsibility (it is
// a trap-glue concern, §4.6); this only tears down the page tables.
func (m *Mapper) ProcessDie(top mem.Pa_t) error {
	return m.FreeUserspace(top)
}
