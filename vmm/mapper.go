// Package vmm implements the page mapper (component B, §4.2) and the
// per-process address-space lifecycle (component C, §4.3) on top of the
// physical frame allocator in package mem.
//
// There is no real CPU here to walk page tables in hardware, so a Mapper
// keeps every table and data frame it owns as ordinary Go values, indexed
// by the physical address the frame allocator handed out for them. This is
// the direct analogue of the teacher's Dmap-style "every physical frame is
// always addressable" trick, expressed without an unsafe direct-map window.
package vmm

import (
	"sync"

	"kora/kerr"
	"kora/mem"
)

const entriesPerTable = 512

// table is the in-memory content of one physical frame used as a page
// table: 512 64-bit entries, each either 0 (not present) or
// phys-address|flags.
type table [entriesPerTable]mem.Pa_t

// Mapper owns every page-table and data frame frame in the system, keyed
// by the physical address the frame allocator assigned them.
type Mapper struct {
	mu     sync.Mutex
	alloc  *mem.Allocator
	tables map[mem.Pa_t]*table
	frames map[mem.Pa_t]*mem.Bytepg_t
}

// NewMapper returns a Mapper drawing frames from alloc.
func NewMapper(alloc *mem.Allocator) *Mapper {
	return &Mapper{
		alloc:  alloc,
		tables: make(map[mem.Pa_t]*table),
		frames: make(map[mem.Pa_t]*mem.Bytepg_t),
	}
}

// NewTop allocates a fresh, zeroed top-level (PML4) table and returns its
// physical address.
func (m *Mapper) NewTop() (mem.Pa_t, error) {
	return m.newTable()
}

func (m *Mapper) newTable() (mem.Pa_t, error) {
	p, err := m.alloc.AllocateFrame()
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.tables[p] = &table{}
	m.mu.Unlock()
	return p, nil
}

// Bytes returns the byte content of the data frame at phys, allocating a
// zeroed backing page the first time it is referenced. It is the stand-in
// for a direct-mapped view of physical memory.
func (m *Mapper) Bytes(phys mem.Pa_t) *mem.Bytepg_t {
	m.mu.Lock()
	defer m.mu.Unlock()
	pg, ok := m.frames[phys]
	if !ok {
		pg = &mem.Bytepg_t{}
		m.frames[phys] = pg
	}
	return pg
}

func indices(virt uintptr) (pml4, pdpt, pd, pt int) {
	pml4 = int((virt >> 39) & 0x1ff)
	pdpt = int((virt >> 30) & 0x1ff)
	pd = int((virt >> 21) & 0x1ff)
	pt = int((virt >> 12) & 0x1ff)
	return
}

// walkCreate returns the leaf entry slot for virt under top, allocating
// zeroed intermediate tables as it descends.
func (m *Mapper) walkCreate(top mem.Pa_t, virt uintptr) (*mem.Pa_t, error) {
	i4, i3, i2, i1 := indices(virt)

	next := func(cur mem.Pa_t, idx int) (mem.Pa_t, error) {
		m.mu.Lock()
		t, ok := m.tables[cur]
		m.mu.Unlock()
		if !ok {
			return 0, kerr.EINVDATA
		}
		entry := t[idx]
		if entry&mem.PTE_P != 0 {
			return entry & mem.PTE_ADDR, nil
		}
		child, err := m.newTable()
		if err != nil {
			return 0, err
		}
		m.mu.Lock()
		t[idx] = child | mem.PTE_P | mem.PTE_W | mem.PTE_U
		m.mu.Unlock()
		return child, nil
	}

	pdpt, err := next(top, i4)
	if err != nil {
		return nil, err
	}
	pd, err := next(pdpt, i3)
	if err != nil {
		return nil, err
	}
	pt, err := next(pd, i2)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	leaf := m.tables[pt]
	return &leaf[i1], nil
}

// walk returns the leaf entry slot for virt under top without creating
// anything, reporting false the moment any intermediate entry is absent.
func (m *Mapper) walk(top mem.Pa_t, virt uintptr) (mem.Pa_t, bool) {
	i4, i3, i2, i1 := indices(virt)

	descend := func(cur mem.Pa_t, idx int) (mem.Pa_t, bool) {
		m.mu.Lock()
		t, ok := m.tables[cur]
		m.mu.Unlock()
		if !ok {
			return 0, false
		}
		entry := t[idx]
		if entry&mem.PTE_P == 0 {
			return 0, false
		}
		return entry & mem.PTE_ADDR, true
	}

	pdpt, ok := descend(top, i4)
	if !ok {
		return 0, false
	}
	pd, ok := descend(pdpt, i3)
	if !ok {
		return 0, false
	}
	pt, ok := descend(pd, i2)
	if !ok {
		return 0, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	leaf := m.tables[pt][i1]
	if leaf&mem.PTE_P == 0 {
		return 0, false
	}
	return leaf, true
}

// Map ensures intermediate tables exist for virt, then sets the leaf entry
// to phys|flags|PTE_P. If a mapping is already present at virt, it is left
// untouched: the mapper never silently replaces a mapping (§4.2 edge-case
// policy); callers wanting replacement must Unmap first.
func (m *Mapper) Map(top mem.Pa_t, virt uintptr, phys mem.Pa_t, flags mem.Pa_t) error {
	slot, err := m.walkCreate(top, virt)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if *slot&mem.PTE_P != 0 {
		return nil
	}
	*slot = (phys & mem.PTE_ADDR) | flags | mem.PTE_P
	return nil
}

// Unmap clears the leaf entry for virt if present. It does not prune now-
// empty intermediate tables (§4.2).
func (m *Mapper) Unmap(top mem.Pa_t, virt uintptr) {
	i4, i3, i2, _ := indices(virt)
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := top
	for _, idx := range []int{i4, i3, i2} {
		t, ok := m.tables[cur]
		if !ok {
			return
		}
		entry := t[idx]
		if entry&mem.PTE_P == 0 {
			return
		}
		cur = entry & mem.PTE_ADDR
	}
	pt, ok := m.tables[cur]
	if !ok {
		return
	}
	_, _, _, i1 := indices(virt)
	pt[i1] = 0
}

// Translate walks top's tables for virt and reports its mapped physical
// frame, or false if any level along the path is unused.
func (m *Mapper) Translate(top mem.Pa_t, virt uintptr) (mem.Pa_t, bool) {
	leaf, ok := m.walk(top, virt)
	if !ok {
		return 0, false
	}
	return leaf & mem.PTE_ADDR, true
}

// SetFlags ORs addFlags onto every present leaf in [virt, virt+npages*PGSIZE).
func (m *Mapper) SetFlags(top mem.Pa_t, virt uintptr, npages int, addFlags mem.Pa_t) {
	for i := 0; i < npages; i++ {
		va := virt + uintptr(i*mem.PGSIZE)
		i4, i3, i2, i1 := indices(va)
		m.mu.Lock()
		t4, ok := m.tables[top]
		if !ok {
			m.mu.Unlock()
			continue
		}
		e3 := t4[i4]
		if e3&mem.PTE_P == 0 {
			m.mu.Unlock()
			continue
		}
		t3 := m.tables[e3&mem.PTE_ADDR]
		e2 := t3[i3]
		if e2&mem.PTE_P == 0 {
			m.mu.Unlock()
			continue
		}
		t2 := m.tables[e2&mem.PTE_ADDR]
		e1 := t2[i2]
		if e1&mem.PTE_P == 0 {
			m.mu.Unlock()
			continue
		}
		t1 := m.tables[e1&mem.PTE_ADDR]
		if t1[i1]&mem.PTE_P != 0 {
			t1[i1] |= addFlags
		}
		m.mu.Unlock()
	}
}

// CloneKernelHalf allocates a new top-level table, copies every high-half
// entry (PML4[256:512]) from kernelTop by reference, and gives index 0 (the
// low-half root, since every user address in this design falls under
// PML4[0]'s 512 GiB span) a new, private second-level table whose only
// populated entry is index 0 — shared with the kernel's own second-level
// index-0 subtree, so user mappings inserted later outside that shared
// first GiB never reach the kernel's own page tables (§4.2).
func (m *Mapper) CloneKernelHalf(kernelTop mem.Pa_t) (mem.Pa_t, error) {
	newTop, err := m.newTable()
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	kt, ok := m.tables[kernelTop]
	if !ok {
		m.mu.Unlock()
		return 0, kerr.EINVDATA
	}
	nt := m.tables[newTop]
	for i := 256; i < entriesPerTable; i++ {
		nt[i] = kt[i]
	}
	kernelLow := kt[0]
	m.mu.Unlock()

	if kernelLow&mem.PTE_P == 0 {
		return newTop, nil
	}

	newPdpt, err := m.newTable()
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	kPdpt := m.tables[kernelLow&mem.PTE_ADDR]
	m.tables[newPdpt][0] = kPdpt[0]
	m.tables[newTop][0] = (newPdpt & mem.PTE_ADDR) | (kernelLow &^ mem.PTE_ADDR)
	m.mu.Unlock()

	return newTop, nil
}

// FreeUserspace walks the low-half subtree of top (PML4[0], and within it
// every PDPT entry; index 0 is skipped when its PD is also referenced from
// another table's index 0, i.e. when clone_kernel_half shared it with the
// kernel), returns every present leaf frame and every private intermediate
// table to the allocator, then frees the top-level table itself (§4.2).
func (m *Mapper) FreeUserspace(top mem.Pa_t) error {
	m.mu.Lock()
	t4, ok := m.tables[top]
	if !ok {
		m.mu.Unlock()
		return kerr.EINVDATA
	}
	low := t4[0]
	m.mu.Unlock()

	if low&mem.PTE_P != 0 {
		pdptAddr := low & mem.PTE_ADDR
		m.mu.Lock()
		pdpt := m.tables[pdptAddr]
		first := 0
		if e0 := pdpt[0]; e0&mem.PTE_P != 0 {
			for addr, t := range m.tables {
				if addr != pdptAddr && t[0]&mem.PTE_P != 0 && t[0]&mem.PTE_ADDR == e0&mem.PTE_ADDR {
					first = 1
					break
				}
			}
		}
		m.mu.Unlock()
		for i := first; i < entriesPerTable; i++ {
			m.mu.Lock()
			e3 := pdpt[i]
			m.mu.Unlock()
			if e3&mem.PTE_P == 0 {
				continue
			}
			m.freeSubtree(e3&mem.PTE_ADDR, 1)
		}
		m.mu.Lock()
		delete(m.tables, pdptAddr)
		m.mu.Unlock()
		m.alloc.FreeFrame(pdptAddr)
	}

	m.mu.Lock()
	delete(m.tables, top)
	m.mu.Unlock()
	m.alloc.FreeFrame(top)
	return nil
}

// freeSubtree frees every present leaf under the table at addr and the
// table itself. depth counts remaining table levels below addr: 1 for a
// PD (its entries are PT addresses, recursed into at depth 0), 0 for a
// PT (its entries are themselves leaf data frames, freed directly).
func (m *Mapper) freeSubtree(addr mem.Pa_t, depth int) {
	m.mu.Lock()
	t, ok := m.tables[addr]
	m.mu.Unlock()
	if !ok {
		return
	}
	for i := 0; i < entriesPerTable; i++ {
		m.mu.Lock()
		e := t[i]
		m.mu.Unlock()
		if e&mem.PTE_P == 0 {
			continue
		}
		child := e & mem.PTE_ADDR
		if depth == 0 {
			m.alloc.FreeFrame(child)
			m.mu.Lock()
			delete(m.frames, child)
			m.mu.Unlock()
			continue
		}
		m.freeSubtree(child, depth-1)
	}
	m.mu.Lock()
	delete(m.tables, addr)
	m.mu.Unlock()
	m.alloc.FreeFrame(addr)
}
