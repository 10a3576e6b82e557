// Package kernel wires the frame table, address-space map,
// environment table, scheduler, IPC channel, and syscall dispatcher
// into one bootable unit.
package kernel

import (
	"fmt"
	"io"

	"envkernel/internal/console"
	"envkernel/internal/defs"
	"envkernel/internal/mem"
	"envkernel/internal/proc"
	"envkernel/internal/sched"
	"envkernel/internal/syscall"
)

/// Kernel_t owns every piece of shared kernel state: what would
/// otherwise be process-wide singletons are threaded explicitly
/// through this struct instead.
type Kernel_t struct {
	Phys    *mem.Physmem_t
	Table   *proc.Table_t
	Sched   *sched.Sched_t
	Console *console.Console_t
	Dis     *syscall.Dispatcher_t
}

/// Boot brings up a kernel with nframes physical frames and a console
/// writing to out. It validates the ABI version string it was built
/// against before anything else runs.
func Boot(nframes int, out io.Writer) (*Kernel_t, error) {
	if !defs.ValidABIVersion(defs.ABIVersion) {
		return nil, fmt.Errorf("kernel: invalid ABI version %q", defs.ABIVersion)
	}
	phys, err := mem.NewPhysmem(nframes)
	if err != nil {
		return nil, err
	}
	table := proc.NewTable(phys)
	sc := sched.New(table)
	con := console.New(out, 4096)
	dis := syscall.New(table, phys, sc, con)

	return &Kernel_t{
		Phys:    phys,
		Table:   table,
		Sched:   sc,
		Console: con,
		Dis:     dis,
	}, nil
}

/// Shutdown releases the kernel's backing mmap. Call once, after every
/// environment has been destroyed.
func (k *Kernel_t) Shutdown() error {
	return k.Phys.Close()
}

/// SpawnInit allocates the first environment directly, bypassing the
/// user-level fork/spawn routines that would otherwise need an
/// already-running parent to call them. Every subsequent environment
/// is created by that first one calling fork or spawn.
func (k *Kernel_t) SpawnInit() (*proc.Env_t, defs.Err_t) {
	e, err := k.Table.Alloc(nil)
	if err != 0 {
		return nil, err
	}
	if serr := k.Table.SetStatus(e, defs.EnvRunnable); serr != 0 {
		return nil, serr
	}
	k.Table.SetCurrent(e)
	return e, 0
}

/// RunSteps advances the scheduler steps times, recording the envid
/// selected on each step (or 0 if none was runnable). A real kernel
/// with no idle task spins indefinitely once nothing is runnable; a
/// bounded step count is what a harness without a second goroutine
/// for each environment can actually observe.
func (k *Kernel_t) RunSteps(steps int) []defs.EnvId_t {
	out := make([]defs.EnvId_t, steps)
	for i := 0; i < steps; i++ {
		e := k.Sched.Next()
		if e == nil {
			continue
		}
		k.Table.SetCurrent(e)
		out[i] = e.Id()
	}
	return out
}
