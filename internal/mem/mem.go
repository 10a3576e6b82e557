// Package mem implements the physical frame table (C1): a
// reference-counted array of physical frames backed by a real
// anonymous mmap, so frame indices correspond to genuine host memory
// rather than a plain Go slice.
package mem

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"envkernel/internal/defs"
)

/// Pa_t is a physical address: a byte offset from the start of the
/// simulated physical memory arena, always a multiple of PGSIZE when
/// it names a frame.
type Pa_t uintptr

/// Pg_t is the content of one physical frame.
type Pg_t = [defs.PGSIZE]byte

// framePg_t is the per-frame bookkeeping record: one entry per frame,
// tracking only what a single-CPU, no-swap kernel needs.
type framePg_t struct {
	refcnt int32
	// index into frames of the next page on the free list, or
	// noNext if this is the list's tail.
	nexti uint32
}

const noNext = ^uint32(0)

/// Physmem_t owns the array of physical frames. There are no locks:
/// at most one kernel execution context is ever meant to touch it,
/// and the syscall dispatcher (package syscall) makes that invariant
/// testable by guarding entry with a weighted semaphore of size 1.
type Physmem_t struct {
	arena   []byte
	frames  []framePg_t
	nframes int
	freei   uint32
	freelen int
}

/// NewPhysmem allocates nframes physical frames backed by a real
/// anonymous mapping and returns the table with all frames free.
func NewPhysmem(nframes int) (*Physmem_t, error) {
	if nframes <= 0 {
		return nil, fmt.Errorf("mem: nframes must be positive, got %d", nframes)
	}
	size := nframes * defs.PGSIZE
	arena, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mem: mmap %d bytes: %w", size, err)
	}
	phys := &Physmem_t{
		arena:   arena,
		frames:  make([]framePg_t, nframes),
		nframes: nframes,
	}
	for i := 0; i < nframes; i++ {
		phys.frames[i].nexti = uint32(i + 1)
	}
	phys.frames[nframes-1].nexti = noNext
	phys.freei = 0
	phys.freelen = nframes
	return phys, nil
}

/// Close releases the backing mapping. Call once at kernel shutdown.
func (phys *Physmem_t) Close() error {
	if phys.arena == nil {
		return nil
	}
	err := unix.Munmap(phys.arena)
	phys.arena = nil
	return err
}

func (phys *Physmem_t) idx(pa Pa_t) uint32 {
	i := uint32(uintptr(pa) / uintptr(defs.PGSIZE))
	if uintptr(pa)%uintptr(defs.PGSIZE) != 0 || int(i) >= phys.nframes {
		panic("mem: bad frame address")
	}
	return i
}

/// Nframes reports the total number of frames in the table.
func (phys *Physmem_t) Nframes() int {
	return phys.nframes
}

/// Freecount reports how many frames are currently on the free list.
func (phys *Physmem_t) Freecount() int {
	return phys.freelen
}

/// Alloc removes a frame from the free list and returns it with
/// ref_count == 0 and unspecified contents; callers that need a
/// zeroed frame must zero it themselves.
func (phys *Physmem_t) Alloc() (Pa_t, defs.Err_t) {
	if phys.freelen == 0 {
		return 0, defs.ENOMEM
	}
	i := phys.freei
	phys.freei = phys.frames[i].nexti
	phys.freelen--
	phys.frames[i].refcnt = 0
	phys.frames[i].nexti = 0
	return Pa_t(i) * Pa_t(defs.PGSIZE), 0
}

/// AllocZeroed is like Alloc but zeroes the frame's contents, the way
/// sys_mem_alloc's "allocate a zeroed frame" contract requires.
func (phys *Physmem_t) AllocZeroed() (Pa_t, defs.Err_t) {
	pa, err := phys.Alloc()
	if err != 0 {
		return 0, err
	}
	clear(phys.Page2KVA(pa))
	return pa, 0
}

/// Refcnt returns the current reference count of the frame at pa.
func (phys *Physmem_t) Refcnt(pa Pa_t) int {
	return int(atomic.LoadInt32(&phys.frames[phys.idx(pa)].refcnt))
}

/// Incref increments the reference count of the frame at pa. Per the
/// address-space invariant, this must only be called when installing
/// a new page-table entry that references the frame.
func (phys *Physmem_t) Incref(pa Pa_t) {
	c := atomic.AddInt32(&phys.frames[phys.idx(pa)].refcnt, 1)
	if c <= 0 {
		panic("mem: refcount went non-positive on incref")
	}
}

/// Decref decrements the reference count of the frame at pa and
/// returns the frame to the free list once it reaches zero. It
/// reports whether the frame was freed.
func (phys *Physmem_t) Decref(pa Pa_t) bool {
	i := phys.idx(pa)
	c := atomic.AddInt32(&phys.frames[i].refcnt, -1)
	if c < 0 {
		panic("mem: refcount went negative on decref")
	}
	if c != 0 {
		return false
	}
	phys.frames[i].nexti = phys.freei
	phys.freei = i
	phys.freelen++
	return true
}

/// Page2KVA returns the kernel-visible byte slice backing the frame
/// at pa. Writes through this slice are visible to every mapping that
/// references the frame -- exactly the semantics COW depends on.
func (phys *Physmem_t) Page2KVA(pa Pa_t) []byte {
	i := phys.idx(pa)
	off := int(i) * defs.PGSIZE
	return phys.arena[off : off+defs.PGSIZE : off+defs.PGSIZE]
}

/// TotalRefs sums the reference counts of every frame. Paired with
/// the valid-PTE count the address-space map can report, this gives
/// a quantified "frame conservation" check: total refs should equal
/// the sum of valid PTEs across every live address space plus one
/// directory reference per address space.
func (phys *Physmem_t) TotalRefs() int {
	total := 0
	for i := range phys.frames {
		total += int(atomic.LoadInt32(&phys.frames[i].refcnt))
	}
	return total
}
