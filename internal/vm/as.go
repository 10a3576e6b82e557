// Package vm implements the per-environment address-space map (C2):
// a two-level page table over the flat user/kernel virtual layout
// defined in package defs. There is no lazy vm-region abstraction and
// no TLB shootdown -- a single-CPU teaching kernel has no demand
// paging and no other CPUs to notify.
package vm

import (
	"sync"
	"unsafe"

	"envkernel/internal/defs"
	"envkernel/internal/mem"
)

// Directory and leaf tables each occupy exactly one physical frame
// and hold NPTENTRIES 32-bit words, the MIPS-teaching-kernel word
// size: a frame index packed with permission bits, not a full host
// pointer.
const (
	/// NPDENTRIES is the number of directory entries; each names a
	/// leaf table.
	NPDENTRIES = 1024
	/// NPTENTRIES is the number of entries in a leaf table; each
	/// names a user page.
	NPTENTRIES = 1024

	dirShift  = defs.PGSHIFT + 10
	entryFlag = 0xf
)

func dirIndex(va int) int  { return (va >> dirShift) & (NPDENTRIES - 1) }
func leafIndex(va int) int { return (va >> defs.PGSHIFT) & (NPTENTRIES - 1) }

/// Ptable_t is the raw on-frame representation of a directory or leaf
/// table: NPTENTRIES machine words, each a packed (frame index, perm)
/// pair or zero if absent.
type Ptable_t [NPTENTRIES]uint32

func ptableAt(phys *mem.Physmem_t, pa mem.Pa_t) *Ptable_t {
	kva := phys.Page2KVA(pa)
	return (*Ptable_t)(unsafe.Pointer(&kva[0]))
}

func packEntry(pa mem.Pa_t, perm defs.Pte_t) uint32 {
	frameidx := uint32(uintptr(pa) / uintptr(defs.PGSIZE))
	return frameidx<<4 | uint32(perm&entryFlag)
}

func unpackEntry(raw uint32) (mem.Pa_t, defs.Pte_t) {
	if raw == 0 {
		return 0, 0
	}
	pa := mem.Pa_t(raw>>4) * mem.Pa_t(defs.PGSIZE)
	return pa, defs.Pte_t(raw & entryFlag)
}

/// AddrSpace_t is a process address space: a directory frame plus the
/// physical frame table it allocates from. It belongs to exactly one
/// environment for its lifetime.
type AddrSpace_t struct {
	sync.Mutex
	phys  *mem.Physmem_t
	dirpa mem.Pa_t
}

/// New allocates a fresh, empty address space: a zeroed directory
/// frame with a self-reference so Free can release it uniformly with
/// every other table frame.
func New(phys *mem.Physmem_t) (*AddrSpace_t, defs.Err_t) {
	dirpa, err := phys.AllocZeroed()
	if err != 0 {
		return nil, err
	}
	phys.Incref(dirpa)
	return &AddrSpace_t{phys: phys, dirpa: dirpa}, 0
}

/// Dirpa returns the physical frame backing this address space's
/// directory, the MMU-equivalent "page table root".
func (as *AddrSpace_t) Dirpa() mem.Pa_t {
	return as.dirpa
}

// entryAt returns a pointer to the raw leaf-table word for va,
// allocating a leaf table (and bumping its refcount) if create is
// true and none exists yet.
func (as *AddrSpace_t) entryAt(va int, create bool) (*uint32, defs.Err_t) {
	dir := ptableAt(as.phys, as.dirpa)
	di := dirIndex(va)
	var leafpa mem.Pa_t
	if dir[di] == 0 {
		if !create {
			return nil, 0
		}
		var err defs.Err_t
		leafpa, err = as.phys.AllocZeroed()
		if err != 0 {
			return nil, err
		}
		as.phys.Incref(leafpa)
		dir[di] = packEntry(leafpa, defs.PTE_V)
	} else {
		leafpa, _ = unpackEntry(dir[di])
	}
	leaf := ptableAt(as.phys, leafpa)
	return &leaf[leafIndex(va)], 0
}

/// Walk returns a pointer to the leaf entry for va, the primitive
/// every other address-space operation is built from. If create is
/// true and no leaf table is present yet, one is allocated.
func (as *AddrSpace_t) Walk(va int, create bool) (*uint32, defs.Err_t) {
	return as.entryAt(va, create)
}

/// Lookup returns the frame and permission bits mapped at va, or
/// reports that nothing is mapped there.
func (as *AddrSpace_t) Lookup(va int) (mem.Pa_t, defs.Pte_t, bool) {
	pte, err := as.entryAt(va, false)
	if err != 0 || pte == nil || *pte == 0 {
		return 0, 0, false
	}
	pa, perm := unpackEntry(*pte)
	return pa, perm | defs.PTE_V, true
}

/// Insert maps frame pa at va with perm: any existing
/// mapping at va is removed as a side effect, pa's refcount is
/// incremented, and the entry is set to pa|perm|V. Re-inserting the
/// same frame at the same va does not net-change the refcount.
func (as *AddrSpace_t) Insert(pa mem.Pa_t, va int, perm defs.Pte_t) defs.Err_t {
	pte, err := as.entryAt(va, true)
	if err != 0 {
		return err
	}
	if pte == nil {
		return defs.ENOMEM
	}
	hadOld := *pte != 0
	oldpa, _ := unpackEntry(*pte)
	sameFrame := hadOld && oldpa == pa
	as.phys.Incref(pa)
	if hadOld && !sameFrame {
		as.phys.Decref(oldpa)
	}
	if sameFrame {
		// net effect of the incref above and the decref that would
		// otherwise fire: refcount is unchanged.
		as.phys.Decref(pa)
	}
	*pte = packEntry(pa, perm|defs.PTE_V)
	return 0
}

/// Remove unmaps va, decrementing the backing frame's refcount. It is
/// a silent no-op if nothing is mapped there.
func (as *AddrSpace_t) Remove(va int) {
	pte, err := as.entryAt(va, false)
	if err != 0 || pte == nil || *pte == 0 {
		return
	}
	pa, _ := unpackEntry(*pte)
	as.phys.Decref(pa)
	*pte = 0
}

/// ValidPTEs counts every present entry reachable from this address
/// space: one per leaf table the directory references -- the leaf-table
/// "self-references" a frame-conservation check needs to count too --
/// plus one per user mapping. The directory frame's own reference
/// (taken by New) is not counted.
func (as *AddrSpace_t) ValidPTEs() int {
	count := 0
	dir := ptableAt(as.phys, as.dirpa)
	for _, draw := range dir {
		if draw == 0 {
			continue
		}
		leafpa, _ := unpackEntry(draw)
		count++ // the directory's reference to the leaf table
		leaf := ptableAt(as.phys, leafpa)
		for _, lraw := range leaf {
			if lraw != 0 {
				count++
			}
		}
	}
	return count
}

/// Free releases every user mapping and every table frame belonging
/// to this address space, including the directory frame itself --
/// env_destroy's job when an environment is torn down.
func (as *AddrSpace_t) Free() {
	dir := ptableAt(as.phys, as.dirpa)
	for di, draw := range dir {
		if draw == 0 {
			continue
		}
		leafpa, _ := unpackEntry(draw)
		leaf := ptableAt(as.phys, leafpa)
		for li, lraw := range leaf {
			if lraw == 0 {
				continue
			}
			pa, _ := unpackEntry(lraw)
			as.phys.Decref(pa)
			leaf[li] = 0
		}
		as.phys.Decref(leafpa)
		dir[di] = 0
	}
	as.phys.Decref(as.dirpa)
}
