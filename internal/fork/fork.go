// Package fork implements the user-space fork/COW handler (C7): it is
// built entirely out of the syscall surface in package syscall,
// rather than reaching into kernel packages directly -- exactly as a
// real user-mode fork implementation would.
package fork

import (
	"envkernel/internal/defs"
	"envkernel/internal/proc"
	"envkernel/internal/syscall"
)

/// Trampoline is the shared user-mode page-fault entry point recorded
/// in every forked child's pgfault_handler_entry. Its value is
/// opaque to the kernel -- only user-mode trap-entry assembly (an
/// external collaborator this core never implements) would ever
/// resume execution there.
const Trampoline = 0x7f000000

/// Fork duplicates parent's address space into a freshly allocated
/// child, applying the duppage rule to every mapped page below
/// USTACKTOP-PGSIZE. It returns the child's envid; the "child sees 0"
/// half of the fork convention is realized by env_alloc itself and is
/// not something this simulation's caller observes directly, since
/// there is no second goroutine resuming the child's trap frame.
func Fork(d *syscall.Dispatcher_t, parent *proc.Env_t) (defs.EnvId_t, defs.Err_t) {
	if _, err := d.Dispatch(parent, defs.SysSetPgfaultHandler, syscall.Args{A0: 0, A1: Trampoline}); err != 0 {
		return 0, err
	}

	rv, err := d.Dispatch(parent, defs.SysEnvAlloc, syscall.Args{})
	if err != 0 {
		return 0, err
	}
	childId := defs.EnvId_t(rv)
	if _, err := d.Table.EnvidToEnv(childId, false, parent); err != 0 {
		return 0, err
	}

	for va := 0; va < defs.USTACKTOP-defs.PGSIZE; va += defs.PGSIZE {
		_, perm, ok := parent.As.Lookup(va)
		if !ok {
			continue
		}
		if err := duppage(d, parent, childId, va, perm); err != 0 {
			return 0, err
		}
	}

	xstk := defs.UXSTACKTOP - defs.PGSIZE
	if _, err := d.Dispatch(parent, defs.SysMemAlloc, syscall.Args{
		A0: int(childId), A1: xstk, A2: int(defs.PTE_V | defs.PTE_R),
	}); err != 0 {
		return 0, err
	}

	if _, err := d.Dispatch(parent, defs.SysSetPgfaultHandler, syscall.Args{
		A0: int(childId), A1: Trampoline, A2: defs.UXSTACKTOP,
	}); err != 0 {
		return 0, err
	}

	if _, err := d.Dispatch(parent, defs.SysSetEnvStatus, syscall.Args{
		A0: int(childId), A1: int(defs.EnvRunnable),
	}); err != 0 {
		return 0, err
	}
	return childId, 0
}

// duppage applies the three-way LIBRARY/COW/plain rule to one mapped
// parent page.
func duppage(d *syscall.Dispatcher_t, parent *proc.Env_t, childId defs.EnvId_t, va int, perm defs.Pte_t) defs.Err_t {
	if perm&defs.PTE_LIBRARY != 0 {
		_, err := d.Dispatch(parent, defs.SysMemMap, syscall.Args{
			A0: 0, A1: va, A2: int(childId), A3: va, A4: int(perm),
		})
		return err
	}
	if perm&defs.PTE_R != 0 || perm&defs.PTE_COW != 0 {
		cowperm := defs.PTE_V | defs.PTE_R | defs.PTE_COW
		if _, err := d.Dispatch(parent, defs.SysMemMap, syscall.Args{
			A0: 0, A1: va, A2: int(childId), A3: va, A4: int(cowperm),
		}); err != 0 {
			return err
		}
		_, err := d.Dispatch(parent, defs.SysMemMap, syscall.Args{
			A0: 0, A1: va, A2: 0, A3: va, A4: int(cowperm),
		})
		return err
	}
	_, err := d.Dispatch(parent, defs.SysMemMap, syscall.Args{
		A0: 0, A1: va, A2: int(childId), A3: va, A4: int(perm),
	})
	return err
}

/// PageFault runs the COW page-fault handler for env at the faulting
/// address va. It panics if va is not backed by a COW entry, exactly
/// as a kernel trap handler would treat a fault to a non-COW page --
/// that situation is a bug in the surrounding fork logic, not a user
/// error.
func PageFault(d *syscall.Dispatcher_t, env *proc.Env_t, va int) defs.Err_t {
	va = defs.Pgrounddown(va)
	_, perm, ok := env.As.Lookup(va)
	if !ok || perm&defs.PTE_COW == 0 {
		panic("fork: page fault on non-COW page")
	}

	if _, err := d.Dispatch(env, defs.SysMemAlloc, syscall.Args{
		A0: 0, A1: defs.PFTEMP, A2: int(defs.PTE_V | defs.PTE_R),
	}); err != 0 {
		return err
	}

	oldpa, _, _ := env.As.Lookup(va)
	scratchpa, _, _ := env.As.Lookup(defs.PFTEMP)
	copy(d.Phys.Page2KVA(scratchpa), d.Phys.Page2KVA(oldpa))

	if _, err := d.Dispatch(env, defs.SysMemMap, syscall.Args{
		A0: 0, A1: defs.PFTEMP, A2: 0, A3: va, A4: int(defs.PTE_V | defs.PTE_R),
	}); err != 0 {
		return err
	}

	if _, err := d.Dispatch(env, defs.SysMemUnmap, syscall.Args{
		A0: 0, A1: defs.PFTEMP,
	}); err != 0 {
		return err
	}
	return 0
}

/// Write performs a user-mode store of b at va in env's address
/// space, transparently resolving a COW fault first if needed. It is
/// the harness's stand-in for the trap-entry assembly that would
/// normally dispatch a hardware store fault into PageFault.
func Write(d *syscall.Dispatcher_t, env *proc.Env_t, va int, b byte) defs.Err_t {
	pa, perm, ok := env.As.Lookup(defs.Pgrounddown(va))
	if !ok {
		return defs.ENOTMAPPED
	}
	if perm&defs.PTE_COW != 0 {
		if err := PageFault(d, env, va); err != 0 {
			return err
		}
		pa, _, _ = env.As.Lookup(defs.Pgrounddown(va))
	} else if perm&defs.PTE_R == 0 {
		return defs.EINVAL
	}
	d.Phys.Page2KVA(pa)[va&defs.PGOFFSET] = b
	return 0
}

/// Read returns the byte at va in env's address space.
func Read(d *syscall.Dispatcher_t, env *proc.Env_t, va int) (byte, defs.Err_t) {
	pa, _, ok := env.As.Lookup(defs.Pgrounddown(va))
	if !ok {
		return 0, defs.ENOTMAPPED
	}
	return d.Phys.Page2KVA(pa)[va&defs.PGOFFSET], 0
}
