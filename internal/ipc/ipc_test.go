package ipc

import (
	"testing"

	"envkernel/internal/defs"
	"envkernel/internal/mem"
	"envkernel/internal/proc"
)

func newTestTable(t *testing.T, nframes int) (*proc.Table_t, *mem.Physmem_t) {
	t.Helper()
	phys, err := mem.NewPhysmem(nframes)
	if err != nil {
		t.Fatalf("NewPhysmem: %v", err)
	}
	t.Cleanup(func() { phys.Close() })
	return proc.NewTable(phys), phys
}

func TestRecvMarksNotRunnable(t *testing.T) {
	table, _ := newTestTable(t, 8)
	e, _ := table.Alloc(nil)
	table.SetStatus(e, defs.EnvRunnable)

	if err := Recv(table, e, 0); err != 0 {
		t.Fatalf("Recv: %v", err)
	}
	if e.Status() != defs.EnvNotRunnable {
		t.Fatalf("want NOT_RUNNABLE after Recv, got %v", e.Status())
	}
	if !e.Recving {
		t.Fatalf("want Recving set")
	}
}

func TestRecvRejectsUnalignedDstVa(t *testing.T) {
	table, _ := newTestTable(t, 8)
	e, _ := table.Alloc(nil)
	if err := Recv(table, e, defs.UTEXT+1); err != defs.EINVAL {
		t.Fatalf("want EINVAL for unaligned dst_va, got %v", err)
	}
}

func TestTrySendFailsWhenTargetNotReceiving(t *testing.T) {
	table, _ := newTestTable(t, 8)
	sender, _ := table.Alloc(nil)
	target, _ := table.Alloc(nil)
	if err := TrySend(table, sender, target, 42, 0, 0); err != defs.EIPCNOTRECV {
		t.Fatalf("want EIPCNOTRECV, got %v", err)
	}
}

func TestTrySendDeliversScalarOnly(t *testing.T) {
	table, _ := newTestTable(t, 8)
	sender, _ := table.Alloc(nil)
	target, _ := table.Alloc(nil)
	Recv(table, target, 0)

	if err := TrySend(table, sender, target, 99, 0, 0); err != 0 {
		t.Fatalf("TrySend: %v", err)
	}
	if target.IpcVal != 99 {
		t.Fatalf("want IpcVal 99, got %d", target.IpcVal)
	}
	if target.FromId != sender.Id() {
		t.Fatalf("want FromId set to sender")
	}
	if target.Recving {
		t.Fatalf("want Recving cleared after delivery")
	}
	if target.Status() != defs.EnvRunnable {
		t.Fatalf("want target RUNNABLE after delivery, got %v", target.Status())
	}
}

func TestTrySendTransfersPageWhenBothSidesWantIt(t *testing.T) {
	table, phys := newTestTable(t, 8)
	sender, _ := table.Alloc(nil)
	target, _ := table.Alloc(nil)

	pa, err := phys.AllocZeroed()
	if err != 0 {
		t.Fatalf("AllocZeroed: %v", err)
	}
	phys.Page2KVA(pa)[0] = 0x55
	if ierr := sender.As.Insert(pa, defs.UTEXT, defs.PTE_V|defs.PTE_R); ierr != 0 {
		t.Fatalf("Insert: %v", ierr)
	}

	dstVa := defs.UTEXT
	Recv(table, target, dstVa)

	if serr := TrySend(table, sender, target, 0, defs.UTEXT, defs.PTE_V|defs.PTE_R); serr != 0 {
		t.Fatalf("TrySend: %v", serr)
	}
	gotpa, _, ok := target.As.Lookup(dstVa)
	if !ok {
		t.Fatalf("want page mapped into target")
	}
	if gotpa != pa {
		t.Fatalf("want target to map the same frame as sender")
	}
	if phys.Page2KVA(gotpa)[0] != 0x55 {
		t.Fatalf("want target to observe sender's page content")
	}
}

func TestTrySendNoPageWhenDstVaZero(t *testing.T) {
	table, phys := newTestTable(t, 8)
	sender, _ := table.Alloc(nil)
	target, _ := table.Alloc(nil)
	pa, _ := phys.AllocZeroed()
	sender.As.Insert(pa, defs.UTEXT, defs.PTE_V|defs.PTE_R)

	Recv(table, target, 0) // dst_va 0: no page wanted
	if err := TrySend(table, sender, target, 7, defs.UTEXT, defs.PTE_V|defs.PTE_R); err != 0 {
		t.Fatalf("TrySend: %v", err)
	}
	if _, _, ok := target.As.Lookup(defs.UTEXT); ok {
		t.Fatalf("want no page mapped into target when dst_va is 0")
	}
}
