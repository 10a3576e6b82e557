// Package spawn implements the user-space spawn/ELF loader (C8): it
// allocates a child, loads a 32-bit little-endian ELF image's
// PT_LOAD segments, builds the initial argc/argv stack, and marks the
// child runnable.
package spawn

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"envkernel/internal/defs"
	"envkernel/internal/fsimg"
	"envkernel/internal/proc"
	"envkernel/internal/syscall"
)

const rw = defs.PTE_V | defs.PTE_R

// loadPage fills one PGSIZE scratch buffer with the file content for
// program-header-relative offset pgoff, zero-padding anything past
// filesz (a pure-bss tail page or the tail of a partial page).
func loadPage(f *fsimg.File_t, fileoff, pgoff, filesz int, dst []byte) defs.Err_t {
	if pgoff >= filesz {
		return 0 // entirely bss; dst is already zeroed by AllocZeroed
	}
	n := defs.PGSIZE
	if rem := filesz - pgoff; rem < n {
		n = rem
	}
	off := fileoff + pgoff
	if n == defs.PGSIZE {
		if chunk, ok := f.ReadMap(off); ok {
			copy(dst, chunk)
			return 0
		}
	}
	chunk, err := f.Readn(off, n)
	if err != nil {
		return defs.EINVAL
	}
	copy(dst, chunk)
	return 0
}

// loadSegment copies one PT_LOAD segment into the child, one page at
// a time, via a scratch page mapped into the loader's own address
// space. This frame table has no file-backed page cache to map
// directly, so every page -- aligned or not -- goes
// through the scratch-copy path. loadPage takes full aligned pages
// from fsimg.ReadMap and the rest from Readn; both return slices of
// the image, so each page is copied once, into the scratch page.
func loadSegment(d *syscall.Dispatcher_t, loader *proc.Env_t, childId defs.EnvId_t, f *fsimg.File_t, seg elf.ProgHeader) defs.Err_t {
	va := int(seg.Vaddr)
	fileoff := int(seg.Off)
	filesz := int(seg.Filesz)
	memsz := int(seg.Memsz)

	for pgoff := 0; pgoff < memsz; pgoff += defs.PGSIZE {
		pageva := defs.Pgrounddown(va) + pgoff
		if _, err := d.Dispatch(loader, defs.SysMemAlloc, syscall.Args{
			A0: 0, A1: defs.UTEMP, A2: int(rw),
		}); err != 0 {
			return err
		}
		scratchpa, _, _ := loader.As.Lookup(defs.UTEMP)
		dst := d.Phys.Page2KVA(scratchpa)
		if err := loadPage(f, fileoff, pgoff, filesz, dst); err != 0 {
			d.Dispatch(loader, defs.SysMemUnmap, syscall.Args{A0: 0, A1: defs.UTEMP})
			return err
		}
		if _, err := d.Dispatch(loader, defs.SysMemMap, syscall.Args{
			A0: 0, A1: defs.UTEMP, A2: int(childId), A3: pageva, A4: int(rw),
		}); err != 0 {
			return err
		}
		if _, err := d.Dispatch(loader, defs.SysMemUnmap, syscall.Args{
			A0: 0, A1: defs.UTEMP,
		}); err != 0 {
			return err
		}
	}
	return 0
}

// buildStack lays out argc, an argv pointer array, and the argv
// strings themselves in one scratch page, then maps it into the
// child at USTACKTOP-PGSIZE. It returns the stack pointer the child
// should resume with.
func buildStack(d *syscall.Dispatcher_t, loader *proc.Env_t, childId defs.EnvId_t, argv []string) (int, defs.Err_t) {
	if _, err := d.Dispatch(loader, defs.SysMemAlloc, syscall.Args{
		A0: 0, A1: defs.UTEMP, A2: int(rw),
	}); err != 0 {
		return 0, err
	}
	scratchpa, _, _ := loader.As.Lookup(defs.UTEMP)
	buf := d.Phys.Page2KVA(scratchpa)

	base := defs.USTACKTOP - defs.PGSIZE
	strOff := make([]int, len(argv))
	off := 0
	for i, s := range argv {
		b := append([]byte(s), 0)
		if off+len(b) > defs.PGSIZE {
			d.Dispatch(loader, defs.SysMemUnmap, syscall.Args{A0: 0, A1: defs.UTEMP})
			return 0, defs.ENOMEM
		}
		copy(buf[off:], b)
		strOff[i] = off
		off += len(b)
	}
	ptrArrOff := (off + 3) &^ 3
	argcWordOff := ptrArrOff + 4*len(argv)
	argvWordOff := argcWordOff + 4
	total := argvWordOff + 4
	if total > defs.PGSIZE {
		d.Dispatch(loader, defs.SysMemUnmap, syscall.Args{A0: 0, A1: defs.UTEMP})
		return 0, defs.ENOMEM
	}

	for i, so := range strOff {
		binary.LittleEndian.PutUint32(buf[ptrArrOff+4*i:], uint32(base+so))
	}
	binary.LittleEndian.PutUint32(buf[argcWordOff:], uint32(len(argv)))
	binary.LittleEndian.PutUint32(buf[argvWordOff:], uint32(base+ptrArrOff))

	if _, err := d.Dispatch(loader, defs.SysMemMap, syscall.Args{
		A0: 0, A1: defs.UTEMP, A2: int(childId), A3: base, A4: int(rw),
	}); err != 0 {
		return 0, err
	}
	if _, err := d.Dispatch(loader, defs.SysMemUnmap, syscall.Args{
		A0: 0, A1: defs.UTEMP,
	}); err != 0 {
		return 0, err
	}
	return base + argcWordOff, 0
}

/// Spawn loads the named program image into a freshly allocated
/// child and marks it runnable. loader is the calling environment
/// whose LIBRARY-marked pages (the shared user runtime) are mapped
/// into the child alongside the freshly loaded segments.
func Spawn(d *syscall.Dispatcher_t, loader *proc.Env_t, prog string, argv []string) (defs.EnvId_t, defs.Err_t) {
	f, ferr := fsimg.Open(prog)
	if ferr != nil {
		return 0, defs.EINVAL
	}
	defer f.Close()

	ef, eerr := elf.NewFile(bytes.NewReader(f.Bytes()))
	if eerr != nil {
		return 0, defs.EINVAL
	}
	if ef.Class != elf.ELFCLASS32 || ef.Data != elf.ELFDATA2LSB {
		return 0, defs.EINVAL
	}
	if int(ef.Entry) >= defs.UTOP {
		return 0, defs.EINVAL
	}

	rv, err := d.Dispatch(loader, defs.SysEnvAlloc, syscall.Args{})
	if err != 0 {
		return 0, err
	}
	childId := defs.EnvId_t(rv)
	child, err := d.Table.EnvidToEnv(childId, false, loader)
	if err != 0 {
		return 0, err
	}

	for _, prog := range ef.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if err := loadSegment(d, loader, childId, f, prog.ProgHeader); err != 0 {
			return 0, err
		}
	}

	sp, err := buildStack(d, loader, childId, argv)
	if err != 0 {
		return 0, err
	}

	// sys_set_trapframe is omitted from the syscall set since nothing
	// here needs to seed a trap frame across a process boundary; the
	// loader already has a handle on the child's control block from
	// env_alloc, so it seeds the saved PC/SP directly.
	child.Tf.PC = int(ef.Entry)
	child.Tf.SP = sp

	for va := 0; va < defs.USTACKTOP-defs.PGSIZE; va += defs.PGSIZE {
		_, perm, ok := loader.As.Lookup(va)
		if !ok || perm&defs.PTE_LIBRARY == 0 {
			continue
		}
		if _, err := d.Dispatch(loader, defs.SysMemMap, syscall.Args{
			A0: 0, A1: va, A2: int(childId), A3: va, A4: int(perm),
		}); err != 0 {
			return 0, err
		}
	}

	if _, err := d.Dispatch(loader, defs.SysSetEnvStatus, syscall.Args{
		A0: int(childId), A1: int(defs.EnvRunnable),
	}); err != 0 {
		return 0, err
	}
	return childId, 0
}
