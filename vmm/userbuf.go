package vmm

import (
	"kora/kerr"
	"kora/mem"
)

// UserBuf copies bytes to or from one contiguous range of a process's
// virtual address space, one mapped page at a time. It generalizes the
// teacher's page-at-a-time user-copy loop without the runtime's direct-map
// window: each page is resolved through the same Mapper.Translate/Bytes
// pair the rest of vmm uses.
type UserBuf struct {
	m      *Mapper
	top    mem.Pa_t
	userva uintptr
	length int
	off    int
}

// NewUserBuf returns a UserBuf over [va, va+length) in the address space
// rooted at top.
func (m *Mapper) NewUserBuf(top mem.Pa_t, va uintptr, length int) *UserBuf {
	return &UserBuf{m: m, top: top, userva: va, length: length}
}

// Remain reports the number of bytes not yet transferred.
func (ub *UserBuf) Remain() int {
	return ub.length - ub.off
}

func (ub *UserBuf) pageAt(off int) ([]byte, error) {
	va := ub.userva + uintptr(off)
	pageVA := va &^ uintptr(mem.PGOFFSET)
	voff := int(va & uintptr(mem.PGOFFSET))
	phys, ok := ub.m.Translate(ub.top, pageVA)
	if !ok {
		return nil, kerr.EINVDATA
	}
	pg := ub.m.Bytes(phys)
	return pg[voff:], nil
}

// CopyOut copies from user memory into dst, stopping early if the buffer's
// range is exhausted first. It returns the number of bytes copied.
func (ub *UserBuf) CopyOut(dst []byte) (int, error) {
	done := 0
	for done < len(dst) && ub.Remain() > 0 {
		src, err := ub.pageAt(ub.off)
		if err != nil {
			return done, err
		}
		n := copy(dst[done:], src)
		if rem := ub.Remain(); n > rem {
			n = rem
		}
		done += n
		ub.off += n
	}
	return done, nil
}

// CopyIn copies src into user memory, stopping early if the buffer's range
// is exhausted first. It returns the number of bytes copied.
func (ub *UserBuf) CopyIn(src []byte) (int, error) {
	done := 0
	for done < len(src) && ub.Remain() > 0 {
		dst, err := ub.pageAt(ub.off)
		if err != nil {
			return done, err
		}
		n := copy(dst, src[done:])
		if rem := ub.Remain(); n > rem {
			n = rem
		}
		done += n
		ub.off += n
	}
	return done, nil
}

// ReadCString copies a NUL-terminated string out of the address space
// rooted at top starting at va, up to maxLen bytes. It fails with
// InvalidData if no NUL byte appears within maxLen bytes, mirroring the
// dispatcher's requirement to copy argument strings into kernel memory
// before acting on them (§4.9).
func (m *Mapper) ReadCString(top mem.Pa_t, va uintptr, maxLen int) (string, error) {
	out := make([]byte, 0, 64)
	off := 0
	for off < maxLen {
		pageVA := (va + uintptr(off)) &^ uintptr(mem.PGOFFSET)
		voff := int((va + uintptr(off)) & uintptr(mem.PGOFFSET))
		phys, ok := m.Translate(top, pageVA)
		if !ok {
			return "", kerr.EINVDATA
		}
		pg := m.Bytes(phys)
		chunk := pg[voff:]
		for _, c := range chunk {
			if c == 0 {
				return string(out), nil
			}
			out = append(out, c)
			off++
			if off >= maxLen {
				return "", kerr.EINVDATA
			}
		}
	}
	return "", kerr.EINVDATA
}
