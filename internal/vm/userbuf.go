package vm

import (
	"envkernel/internal/defs"
	"envkernel/internal/mem"
)

/// Userbuf_t copies bytes to or from a span of user virtual memory,
/// crossing page boundaries one frame at a time against the
/// Lookup/Page2KVA pair instead of a direct-mapped kernel window.
type Userbuf_t struct {
	as     *AddrSpace_t
	phys   *mem.Physmem_t
	userva int
	len    int
	off    int
}

/// Init readies ub to copy len bytes starting at uva in as.
func (ub *Userbuf_t) Init(as *AddrSpace_t, phys *mem.Physmem_t, uva, length int) {
	if length < 0 {
		panic("vm: negative userbuf length")
	}
	ub.as = as
	ub.phys = phys
	ub.userva = uva
	ub.len = length
	ub.off = 0
}

/// Remain reports how many bytes are left uncopied.
func (ub *Userbuf_t) Remain() int {
	return ub.len - ub.off
}

// frameSlice returns the portion of the current page's frame starting
// at the buffer's current offset, requiring the write permission bit
// when write is true.
func (ub *Userbuf_t) frameSlice(write bool) ([]byte, defs.Err_t) {
	va := ub.userva + ub.off
	pa, perm, ok := ub.as.Lookup(defs.Pgrounddown(va))
	if !ok {
		return nil, defs.ENOTMAPPED
	}
	if write && perm&defs.PTE_R == 0 {
		return nil, defs.EINVAL
	}
	pageoff := va & defs.PGOFFSET
	return ub.phys.Page2KVA(pa)[pageoff:], 0
}

/// Uioread copies from user memory into dst, stopping at the shorter
/// of len(dst) and the buffer's remaining length.
func (ub *Userbuf_t) Uioread(dst []byte) (int, defs.Err_t) {
	return ub.tx(dst, false)
}

/// Uiowrite copies from src into user memory, stopping at the shorter
/// of len(src) and the buffer's remaining length.
func (ub *Userbuf_t) Uiowrite(src []byte) (int, defs.Err_t) {
	return ub.tx(src, true)
}

func (ub *Userbuf_t) tx(buf []byte, write bool) (int, defs.Err_t) {
	ret := 0
	for len(buf) != 0 && ub.off != ub.len {
		frame, err := ub.frameSlice(write)
		if err != 0 {
			return ret, err
		}
		if left := ub.len - ub.off; len(frame) > left {
			frame = frame[:left]
		}
		var c int
		if write {
			c = copy(frame, buf)
		} else {
			c = copy(buf, frame)
		}
		buf = buf[c:]
		ub.off += c
		ret += c
		if c == 0 {
			// frameSlice returned a non-empty region but copy moved
			// nothing: the caller's buf is exhausted, not an error.
			break
		}
	}
	return ret, 0
}
