// Package syscall implements the system-call dispatcher (C5):
// argument and rights validation ahead of any state change, then
// routing to the frame table, address-space map, environment table,
// scheduler, and IPC channel.
package syscall

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"envkernel/internal/accnt"
	"envkernel/internal/console"
	"envkernel/internal/defs"
	"envkernel/internal/ipc"
	"envkernel/internal/mem"
	"envkernel/internal/proc"
	"envkernel/internal/sched"
	"envkernel/internal/stats"
	"envkernel/internal/vm"
)

/// Args holds the trap frame's first five argument registers, in the
/// order each dispatched operation expects them.
type Args struct {
	A0, A1, A2, A3, A4 int
}

/// Counters tallies how many times each operation has been
/// dispatched; stats.Stats2String can render it.
type Counters struct {
	Putchar           stats.Counter_t
	Getenvid          stats.Counter_t
	Yield             stats.Counter_t
	EnvDestroy        stats.Counter_t
	SetPgfaultHandler stats.Counter_t
	MemAlloc          stats.Counter_t
	MemMap            stats.Counter_t
	MemUnmap          stats.Counter_t
	EnvAlloc          stats.Counter_t
	SetEnvStatus      stats.Counter_t
	IpcRecv           stats.Counter_t
	IpcTrySend        stats.Counter_t
	Panic             stats.Counter_t
}

/// Dispatcher_t is the kernel's syscall entry point. The single
/// kernel-execution-context invariant is given an explicit, testable
/// handle: every Dispatch holds a weighted
/// semaphore of size 1 for its duration, so a concurrent caller's
/// TryAcquire observably fails while one syscall is in flight.
type Dispatcher_t struct {
	Table   *proc.Table_t
	Phys    *mem.Physmem_t
	Sched   *sched.Sched_t
	Console *console.Console_t
	Stats   Counters

	Guard *semaphore.Weighted
}

/// New returns a dispatcher over the given kernel state.
func New(table *proc.Table_t, phys *mem.Physmem_t, sc *sched.Sched_t, con *console.Console_t) *Dispatcher_t {
	return &Dispatcher_t{
		Table:   table,
		Phys:    phys,
		Sched:   sc,
		Console: con,
		Guard:   semaphore.NewWeighted(1),
	}
}

func checkUva(va int, needAligned bool) defs.Err_t {
	if va < 0 || va >= defs.UTOP {
		return defs.EINVAL
	}
	if needAligned && !defs.Pgaligned(va) {
		return defs.EINVAL
	}
	return 0
}

/// Dispatch validates and routes one system call issued by caller.
/// Validation happens before any state change. Yield and ipc_recv do
/// not return control to caller in a real kernel; this
/// simulation instead updates Table.Current to whichever environment
/// the scheduler or rendezvous hands control to next, so tests can
/// observe the effect by reading Table.Current() after Dispatch
/// returns.
func (d *Dispatcher_t) Dispatch(caller *proc.Env_t, sysno defs.Sysno_t, args Args) (int, defs.Err_t) {
	if err := d.Guard.Acquire(context.Background(), 1); err != nil {
		panic("syscall: guard acquire failed: " + err.Error())
	}
	defer d.Guard.Release(1)

	start := accntNow()
	defer func() {
		if caller != nil {
			caller.Acc.Systadd(accntNow() - start)
		}
	}()

	switch sysno {
	case defs.SysPutchar:
		return d.sysPutchar(args)
	case defs.SysGetEnvId:
		return d.sysGetEnvId(caller)
	case defs.SysYield:
		return d.sysYield(caller)
	case defs.SysEnvDestroy:
		return d.sysEnvDestroy(caller, args)
	case defs.SysSetPgfaultHandler:
		return d.sysSetPgfaultHandler(caller, args)
	case defs.SysMemAlloc:
		return d.sysMemAlloc(caller, args)
	case defs.SysMemMap:
		return d.sysMemMap(caller, args)
	case defs.SysMemUnmap:
		return d.sysMemUnmap(caller, args)
	case defs.SysEnvAlloc:
		return d.sysEnvAlloc(caller)
	case defs.SysSetEnvStatus:
		return d.sysSetEnvStatus(caller, args)
	case defs.SysIpcRecv:
		return d.sysIpcRecv(caller, args)
	case defs.SysIpcTrySend:
		return d.sysIpcTrySend(caller, args)
	case defs.SysPanic:
		return d.sysPanic(caller, args)
	default:
		return defs.Rc(defs.EINVAL), defs.EINVAL
	}
}

func accntNow() int64 {
	var a accnt.Accnt_t
	return a.Now()
}

func (d *Dispatcher_t) sysPutchar(args Args) (int, defs.Err_t) {
	d.Stats.Putchar.Inc()
	d.Console.Putchar(byte(args.A0))
	return 0, 0
}

func (d *Dispatcher_t) sysGetEnvId(caller *proc.Env_t) (int, defs.Err_t) {
	d.Stats.Getenvid.Inc()
	return int(caller.Id()), 0
}

func (d *Dispatcher_t) sysYield(caller *proc.Env_t) (int, defs.Err_t) {
	d.Stats.Yield.Inc()
	next := d.Sched.Next()
	d.Table.SetCurrent(next)
	return 0, 0
}

func (d *Dispatcher_t) sysEnvDestroy(caller *proc.Env_t, args Args) (int, defs.Err_t) {
	d.Stats.EnvDestroy.Inc()
	target, err := d.Table.EnvidToEnv(defs.EnvId_t(args.A0), true, caller)
	if err != 0 {
		return defs.Rc(err), err
	}
	wasCurrent := target == d.Table.Current()
	d.Table.Destroy(caller, target)
	if wasCurrent {
		d.Table.SetCurrent(d.Sched.Next())
	}
	return 0, 0
}

func (d *Dispatcher_t) sysSetPgfaultHandler(caller *proc.Env_t, args Args) (int, defs.Err_t) {
	d.Stats.SetPgfaultHandler.Inc()
	target, err := d.Table.EnvidToEnv(defs.EnvId_t(args.A0), true, caller)
	if err != 0 {
		return defs.Rc(err), err
	}
	target.PgfaultEntry = args.A1
	target.XstackTop = args.A2
	return 0, 0
}

func (d *Dispatcher_t) sysMemAlloc(caller *proc.Env_t, args Args) (int, defs.Err_t) {
	d.Stats.MemAlloc.Inc()
	target, err := d.Table.EnvidToEnv(defs.EnvId_t(args.A0), true, caller)
	if err != 0 {
		return defs.Rc(err), err
	}
	va := args.A1
	perm := defs.Pte_t(args.A2)
	if err := checkUva(va, true); err != 0 {
		return defs.Rc(err), err
	}
	if err := defs.CheckPerm(perm); err != 0 {
		return defs.Rc(err), err
	}
	perm |= defs.PTE_R | defs.PTE_V
	pa, merr := d.Phys.AllocZeroed()
	if merr != 0 {
		return defs.Rc(merr), merr
	}
	// Insert itself increfs pa for the mapping it installs; there is
	// nothing left to release here once it succeeds.
	if ierr := target.As.Insert(pa, va, perm); ierr != 0 {
		return defs.Rc(ierr), ierr
	}
	return 0, 0
}

func (d *Dispatcher_t) sysMemMap(caller *proc.Env_t, args Args) (int, defs.Err_t) {
	d.Stats.MemMap.Inc()
	srcId, srcVa := defs.EnvId_t(args.A0), args.A1
	dstId, dstVa := defs.EnvId_t(args.A2), args.A3
	perm := defs.Pte_t(args.A4)

	src, err := d.Table.EnvidToEnv(srcId, false, caller)
	if err != 0 {
		return defs.Rc(err), err
	}
	dst, err := d.Table.EnvidToEnv(dstId, true, caller)
	if err != 0 {
		return defs.Rc(err), err
	}
	if err := checkUva(srcVa, true); err != 0 {
		return defs.Rc(err), err
	}
	if err := checkUva(dstVa, true); err != 0 {
		return defs.Rc(err), err
	}
	// No CheckPerm here: unlike sys_mem_alloc, sys_mem_map transfers an
	// already-real page and must pass PTE_COW through unmolested for
	// fork's duppage to share a copy-on-write mapping between parent
	// and child.
	pa, _, ok := src.As.Lookup(srcVa)
	if !ok {
		return defs.Rc(defs.ENOTMAPPED), defs.ENOTMAPPED
	}
	if ierr := dst.As.Insert(pa, dstVa, perm); ierr != 0 {
		return defs.Rc(ierr), ierr
	}
	return 0, 0
}

func (d *Dispatcher_t) sysMemUnmap(caller *proc.Env_t, args Args) (int, defs.Err_t) {
	d.Stats.MemUnmap.Inc()
	target, err := d.Table.EnvidToEnv(defs.EnvId_t(args.A0), true, caller)
	if err != 0 {
		return defs.Rc(err), err
	}
	va := args.A1
	if err := checkUva(va, true); err != 0 {
		return defs.Rc(err), err
	}
	target.As.Remove(va)
	return 0, 0
}

func (d *Dispatcher_t) sysEnvAlloc(caller *proc.Env_t) (int, defs.Err_t) {
	d.Stats.EnvAlloc.Inc()
	child, err := d.Table.Alloc(caller)
	if err != 0 {
		return defs.Rc(err), err
	}
	return int(child.Id()), 0
}

func (d *Dispatcher_t) sysSetEnvStatus(caller *proc.Env_t, args Args) (int, defs.Err_t) {
	d.Stats.SetEnvStatus.Inc()
	target, err := d.Table.EnvidToEnv(defs.EnvId_t(args.A0), true, caller)
	if err != 0 {
		return defs.Rc(err), err
	}
	if serr := d.Table.SetStatus(target, defs.Status_t(args.A1)); serr != 0 {
		return defs.Rc(serr), serr
	}
	return 0, 0
}

func (d *Dispatcher_t) sysIpcRecv(caller *proc.Env_t, args Args) (int, defs.Err_t) {
	d.Stats.IpcRecv.Inc()
	if err := ipc.Recv(d.Table, caller, args.A0); err != 0 {
		return defs.Rc(err), err
	}
	d.Table.SetCurrent(d.Sched.Next())
	return 0, 0
}

func (d *Dispatcher_t) sysIpcTrySend(caller *proc.Env_t, args Args) (int, defs.Err_t) {
	d.Stats.IpcTrySend.Inc()
	target, err := d.Table.EnvidToEnv(defs.EnvId_t(args.A0), false, caller)
	if err != 0 {
		return defs.Rc(err), err
	}
	perm := defs.Pte_t(args.A3)
	if serr := ipc.TrySend(d.Table, caller, target, args.A1, args.A2, perm); serr != 0 {
		return defs.Rc(serr), serr
	}
	return 0, 0
}

// readCString reads a NUL-terminated string out of caller's address
// space starting at va, the only way sys_panic's "user string"
// argument can cross the kernel/user boundary. It reads through a
// Userbuf_t so a string straddling a page boundary is handled by the
// same page-crossing logic every other user-memory copy uses.
func readCString(caller *proc.Env_t, phys *mem.Physmem_t, va int) string {
	const maxlen = 256
	var ub vm.Userbuf_t
	ub.Init(caller.As, phys, va, maxlen)
	buf := make([]byte, 0, maxlen)
	var b [1]byte
	for ub.Remain() > 0 {
		n, err := ub.Uioread(b[:])
		if err != 0 || n == 0 || b[0] == 0 {
			break
		}
		buf = append(buf, b[0])
	}
	return string(buf)
}

func (d *Dispatcher_t) sysPanic(caller *proc.Env_t, args Args) (int, defs.Err_t) {
	d.Stats.Panic.Inc()
	msg := readCString(caller, d.Phys, args.A0)
	panic(fmt.Sprintf("user panic: %s", msg))
}
