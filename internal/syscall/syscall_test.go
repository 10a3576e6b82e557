package syscall

import (
	"bytes"
	"testing"

	"envkernel/internal/console"
	"envkernel/internal/defs"
	"envkernel/internal/mem"
	"envkernel/internal/proc"
	"envkernel/internal/sched"
)

func newTestDispatcher(t *testing.T, nframes int) (*Dispatcher_t, *proc.Table_t) {
	t.Helper()
	phys, err := mem.NewPhysmem(nframes)
	if err != nil {
		t.Fatalf("NewPhysmem: %v", err)
	}
	t.Cleanup(func() { phys.Close() })
	table := proc.NewTable(phys)
	sc := sched.New(table)
	con := console.New(&bytes.Buffer{}, 64)
	return New(table, phys, sc, con), table
}

func TestDispatchPutcharWritesToConsole(t *testing.T) {
	var out bytes.Buffer
	phys, _ := mem.NewPhysmem(4)
	defer phys.Close()
	table := proc.NewTable(phys)
	sc := sched.New(table)
	con := console.New(&out, 64)
	d := New(table, phys, sc, con)

	e, _ := table.Alloc(nil)
	if _, err := d.Dispatch(e, defs.SysPutchar, Args{A0: int('Q')}); err != 0 {
		t.Fatalf("Dispatch putchar: %v", err)
	}
	if out.String() != "Q" {
		t.Fatalf("want console to see 'Q', got %q", out.String())
	}
}

func TestDispatchGetEnvId(t *testing.T) {
	d, table := newTestDispatcher(t, 8)
	e, _ := table.Alloc(nil)
	rv, err := d.Dispatch(e, defs.SysGetEnvId, Args{})
	if err != 0 {
		t.Fatalf("Dispatch: %v", err)
	}
	if defs.EnvId_t(rv) != e.Id() {
		t.Fatalf("want own envid returned, got %08x want %08x", rv, e.Id())
	}
}

func TestDispatchMemAllocThenLookup(t *testing.T) {
	d, table := newTestDispatcher(t, 8)
	e, _ := table.Alloc(nil)
	_, err := d.Dispatch(e, defs.SysMemAlloc, Args{
		A0: 0, A1: defs.UTEXT, A2: int(defs.PTE_V),
	})
	if err != 0 {
		t.Fatalf("Dispatch mem_alloc: %v", err)
	}
	if _, _, ok := e.As.Lookup(defs.UTEXT); !ok {
		t.Fatalf("want page mapped after mem_alloc")
	}
}

func TestDispatchMemAllocRejectsUnalignedVa(t *testing.T) {
	d, table := newTestDispatcher(t, 8)
	e, _ := table.Alloc(nil)
	_, err := d.Dispatch(e, defs.SysMemAlloc, Args{A0: 0, A1: defs.UTEXT + 1, A2: int(defs.PTE_V)})
	if err != defs.EINVAL {
		t.Fatalf("want EINVAL for unaligned va, got %v", err)
	}
}

func TestDispatchMemMapTransfersFrame(t *testing.T) {
	d, table := newTestDispatcher(t, 8)
	src, _ := table.Alloc(nil)
	dst, _ := table.Alloc(src)
	d.Dispatch(src, defs.SysMemAlloc, Args{A0: 0, A1: defs.UTEXT, A2: int(defs.PTE_V | defs.PTE_R)})

	_, err := d.Dispatch(src, defs.SysMemMap, Args{
		A0: 0, A1: defs.UTEXT, A2: int(dst.Id()), A3: defs.UTEXT, A4: int(defs.PTE_V | defs.PTE_R),
	})
	if err != 0 {
		t.Fatalf("Dispatch mem_map: %v", err)
	}
	srcpa, _, _ := src.As.Lookup(defs.UTEXT)
	dstpa, _, ok := dst.As.Lookup(defs.UTEXT)
	if !ok || dstpa != srcpa {
		t.Fatalf("want dst to map the same frame as src")
	}
}

func TestDispatchMemUnmap(t *testing.T) {
	d, table := newTestDispatcher(t, 8)
	e, _ := table.Alloc(nil)
	d.Dispatch(e, defs.SysMemAlloc, Args{A0: 0, A1: defs.UTEXT, A2: int(defs.PTE_V)})
	if _, err := d.Dispatch(e, defs.SysMemUnmap, Args{A0: 0, A1: defs.UTEXT}); err != 0 {
		t.Fatalf("Dispatch mem_unmap: %v", err)
	}
	if _, _, ok := e.As.Lookup(defs.UTEXT); ok {
		t.Fatalf("want page unmapped")
	}
}

func TestDispatchEnvAllocSetsParent(t *testing.T) {
	d, table := newTestDispatcher(t, 8)
	parent, _ := table.Alloc(nil)
	rv, err := d.Dispatch(parent, defs.SysEnvAlloc, Args{})
	if err != 0 {
		t.Fatalf("Dispatch env_alloc: %v", err)
	}
	child, _ := table.EnvidToEnv(defs.EnvId_t(rv), false, nil)
	if child.ParentId() != parent.Id() {
		t.Fatalf("want child's parent set")
	}
}

func TestDispatchEnvDestroySelf(t *testing.T) {
	d, table := newTestDispatcher(t, 8)
	e, _ := table.Alloc(nil)
	table.SetCurrent(e)
	if _, err := d.Dispatch(e, defs.SysEnvDestroy, Args{A0: 0}); err != 0 {
		t.Fatalf("Dispatch env_destroy: %v", err)
	}
	if table.Current() != nil {
		t.Fatalf("want current cleared after self-destroy with nothing else runnable")
	}
}

func TestDispatchSetEnvStatusRejectsBadEnvid(t *testing.T) {
	d, table := newTestDispatcher(t, 8)
	e, _ := table.Alloc(nil)
	_, err := d.Dispatch(e, defs.SysSetEnvStatus, Args{A0: int(defs.EnvId_t(1 << 20)), A1: int(defs.EnvRunnable)})
	if err != defs.EBADENV {
		t.Fatalf("want EBADENV, got %v", err)
	}
}

func TestDispatchIpcRecvThenTrySend(t *testing.T) {
	d, table := newTestDispatcher(t, 8)
	receiver, _ := table.Alloc(nil)
	sender, _ := table.Alloc(nil)

	if _, err := d.Dispatch(receiver, defs.SysIpcRecv, Args{A0: 0}); err != 0 {
		t.Fatalf("Dispatch ipc_recv: %v", err)
	}
	if receiver.Status() != defs.EnvNotRunnable {
		t.Fatalf("want receiver NOT_RUNNABLE after ipc_recv")
	}

	if _, err := d.Dispatch(sender, defs.SysIpcTrySend, Args{A0: int(receiver.Id()), A1: 123}); err != 0 {
		t.Fatalf("Dispatch ipc_try_send: %v", err)
	}
	if receiver.IpcVal != 123 {
		t.Fatalf("want receiver.IpcVal 123, got %d", receiver.IpcVal)
	}
	if receiver.Status() != defs.EnvRunnable {
		t.Fatalf("want receiver RUNNABLE after delivery")
	}
}

func TestDispatchPanicDecodesUserString(t *testing.T) {
	d, table := newTestDispatcher(t, 8)
	e, _ := table.Alloc(nil)
	d.Dispatch(e, defs.SysMemAlloc, Args{A0: 0, A1: defs.UTEXT, A2: int(defs.PTE_V | defs.PTE_R)})
	pa, _, _ := e.As.Lookup(defs.UTEXT)
	msg := "boom"
	copy(d.Phys.Page2KVA(pa), append([]byte(msg), 0))

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("want sys_panic to panic")
		}
		s, ok := r.(string)
		if !ok || s != "user panic: boom" {
			t.Fatalf("want panic message to include decoded string, got %v", r)
		}
	}()
	d.Dispatch(e, defs.SysPanic, Args{A0: defs.UTEXT})
}

func TestDispatchUnknownSysnoIsEinval(t *testing.T) {
	d, table := newTestDispatcher(t, 8)
	e, _ := table.Alloc(nil)
	_, err := d.Dispatch(e, defs.Sysno_t(defs.SysnoCount()+1), Args{})
	if err != defs.EINVAL {
		t.Fatalf("want EINVAL for unknown sysno, got %v", err)
	}
}
