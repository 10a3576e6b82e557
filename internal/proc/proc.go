// Package proc implements the environment table (C3): a fixed-size
// array of environment control blocks with a free list, envid
// encoding, and parent tracking.
package proc

import (
	"fmt"

	"envkernel/internal/accnt"
	"envkernel/internal/defs"
	"envkernel/internal/limits"
	"envkernel/internal/mem"
	"envkernel/internal/vm"
)

/// TrapFrame_t is the saved register file an environment resumes from.
/// Only the fields the core actually reads or writes are modeled: the
/// shell, line editor, and trap-entry assembly that would otherwise
/// populate the rest are external collaborators this core never
/// implements.
type TrapFrame_t struct {
	/// PC is the saved program counter.
	PC int
	/// SP is the saved stack pointer.
	SP int
	/// V0 is the syscall return-value register.
	V0 int
}

/// Env_t is one environment control block.
type Env_t struct {
	id       defs.EnvId_t
	parentId defs.EnvId_t
	status   defs.Status_t

	As *vm.AddrSpace_t
	Tf TrapFrame_t

	PgfaultEntry int
	XstackTop    int

	// IPC rendezvous slot (C6).
	Recving bool
	DstVa   int
	IpcVal  int
	FromId  defs.EnvId_t
	IpcPerm defs.Pte_t

	Acc accnt.Accnt_t
}

/// Id returns the environment's envid.
func (e *Env_t) Id() defs.EnvId_t { return e.id }

/// ParentId returns the envid of the environment that created e.
func (e *Env_t) ParentId() defs.EnvId_t { return e.parentId }

/// Status returns e's current scheduling status.
func (e *Env_t) Status() defs.Status_t { return e.status }

/// Table_t is the environment table: NENV slots, a free list, and a
/// single "current environment" handle.
type Table_t struct {
	phys  *mem.Physmem_t
	slots []Env_t
	// generation[i] is the generation that will be assigned to the
	// next env_alloc landing in slot i; it is incremented on destroy,
	// never on alloc, so a destroyed slot's old envid is never valid
	// again once reissued.
	generation []uint32
	free       []int
	curIdx     int
}

/// NewTable allocates an environment table backed by phys for every
/// address space its environments create.
func NewTable(phys *mem.Physmem_t) *Table_t {
	t := &Table_t{
		phys:       phys,
		slots:      make([]Env_t, defs.NENV),
		generation: make([]uint32, defs.NENV),
		curIdx:     -1,
	}
	t.free = make([]int, defs.NENV)
	for i := range t.free {
		t.free[i] = defs.NENV - 1 - i
	}
	// Slot 0's first-ever envid would otherwise be MkEnvId(0, 0) == 0,
	// the reserved "0 means caller" sentinel EnvidToEnv treats
	// specially. Start its generation at 1 so no real environment is
	// ever issued envid 0.
	t.generation[0] = 1
	return t
}

/// Current returns the environment presently executing in user mode,
/// or nil if none is.
func (t *Table_t) Current() *Env_t {
	if t.curIdx < 0 {
		return nil
	}
	return &t.slots[t.curIdx]
}

/// SetCurrent installs e as the current environment. Passing nil
/// clears it.
func (t *Table_t) SetCurrent(e *Env_t) {
	if e == nil {
		t.curIdx = -1
		return
	}
	t.curIdx = e.id.Index()
}

/// Alloc pulls a FREE slot, issues an envid from the slot's current
/// generation (which Destroy bumped when the slot was last freed), and
/// initializes a fresh address space for the new environment. When parent is
/// non-nil its top-of-stack page is deep-copied into the child and
/// the child's trap frame is seeded from the parent's, ahead of the
/// per-page duppage pass fork itself performs afterward.
func (t *Table_t) Alloc(parent *Env_t) (*Env_t, defs.Err_t) {
	if len(t.free) == 0 {
		return nil, defs.ENOFREEENV
	}
	if !limits.Syslimit.Envs.Take() {
		return nil, defs.ENOFREEENV
	}
	idx := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]

	as, err := vm.New(t.phys)
	if err != 0 {
		t.free = append(t.free, idx)
		limits.Syslimit.Envs.Give()
		return nil, err
	}

	gen := t.generation[idx]
	e := &t.slots[idx]
	*e = Env_t{
		id:     defs.MkEnvId(gen, idx),
		status: defs.EnvNotRunnable,
		As:     as,
	}
	if parent != nil {
		e.parentId = parent.id
		e.Tf.PC = parent.Tf.PC
		e.Tf.SP = parent.Tf.SP
		e.Tf.V0 = 0 // child sees 0 from env_alloc's fork convention

		stackva := defs.USTACKTOP - defs.PGSIZE
		if pa, perm, ok := parent.As.Lookup(stackva); ok {
			childpa, aerr := t.phys.AllocZeroed()
			if aerr != 0 {
				t.destroyLocked(e)
				return nil, aerr
			}
			copy(t.phys.Page2KVA(childpa), t.phys.Page2KVA(pa))
			// Insert itself increfs childpa for the mapping it installs;
			// there is nothing left to release here once it succeeds.
			if ierr := e.As.Insert(childpa, stackva, perm&^defs.PTE_COW); ierr != 0 {
				t.destroyLocked(e)
				return nil, ierr
			}
		}
	}
	return e, 0
}

/// EnvidToEnv resolves id to its environment. A reserved id of 0
/// names caller. When checkPerm is true, the target
/// must be the caller itself or an immediate child.
func (t *Table_t) EnvidToEnv(id defs.EnvId_t, checkPerm bool, caller *Env_t) (*Env_t, defs.Err_t) {
	if id == 0 {
		if caller == nil {
			return nil, defs.EBADENV
		}
		return caller, 0
	}
	idx := id.Index()
	if idx < 0 || idx >= len(t.slots) {
		return nil, defs.EBADENV
	}
	e := &t.slots[idx]
	if e.status == defs.EnvFree || e.id != id {
		return nil, defs.EBADENV
	}
	if checkPerm {
		if caller == nil || (e != caller && e.parentId != caller.id) {
			return nil, defs.EBADENV
		}
	}
	return e, 0
}

/// SetStatus moves e between the three allowed statuses.
func (t *Table_t) SetStatus(e *Env_t, s defs.Status_t) defs.Err_t {
	if !defs.ValidStatus(s) {
		return defs.EINVAL
	}
	e.status = s
	return 0
}

/// Destroy releases every frame e's address space references and
/// returns its slot to FREE, bumping the slot's generation so any
/// copy of e's old envid is permanently stale. If e is current, the
/// caller is responsible for invoking the scheduler afterward.
func (t *Table_t) Destroy(destroyer *Env_t, e *Env_t) {
	destroyerId := e.id
	if destroyer != nil {
		destroyerId = destroyer.id
	}
	fmt.Printf("[%08x] destroying %08x\n", destroyerId, e.id)
	t.destroyLocked(e)
	if t.curIdx == e.id.Index() {
		t.curIdx = -1
	}
}

func (t *Table_t) destroyLocked(e *Env_t) {
	idx := e.id.Index()
	if e.As != nil {
		e.As.Free()
	}
	t.generation[idx]++
	*e = Env_t{status: defs.EnvFree}
	t.free = append(t.free, idx)
	limits.Syslimit.Envs.Give()
}

/// ForEach calls fn for every non-FREE slot, in slot order. The
/// scheduler does not use it; its cursor walk goes through SlotAt.
func (t *Table_t) ForEach(fn func(*Env_t)) {
	for i := range t.slots {
		if t.slots[i].status != defs.EnvFree {
			fn(&t.slots[i])
		}
	}
}

/// Nslots returns the table's fixed slot count (NENV).
func (t *Table_t) Nslots() int { return len(t.slots) }

/// SlotAt returns the slot at index i regardless of status, the
/// primitive the scheduler's cursor walk needs.
func (t *Table_t) SlotAt(i int) *Env_t { return &t.slots[i] }
