// Package ipc implements the cross-environment rendezvous channel
// (C6): a receiver parks waiting for a scalar value plus an optional
// page, and a non-blocking sender either delivers to a waiting
// receiver or fails immediately.
package ipc

import (
	"envkernel/internal/defs"
	"envkernel/internal/proc"
)

/// Recv parks e to receive an IPC message at dst_va (0 means no page
/// transfer is wanted). It marks e NOT_RUNNABLE and records its
/// rendezvous state; the caller (package syscall) invokes the
/// scheduler immediately afterward, since ipc_recv never returns
/// directly.
func Recv(table *proc.Table_t, e *proc.Env_t, dstVa int) defs.Err_t {
	if dstVa != 0 && (dstVa >= defs.UTOP || !defs.Pgaligned(dstVa)) {
		return defs.EINVAL
	}
	e.Recving = true
	e.DstVa = dstVa
	return table.SetStatus(e, defs.EnvNotRunnable)
}

/// TrySend attempts to deliver val (and, if both src_va and the
/// target's dst_va are non-zero, the frame backing src_va in sender's
/// address space) to target. It never blocks: if target is not
/// currently receiving, it fails with IPC_NOT_RECV.
func TrySend(table *proc.Table_t, sender, target *proc.Env_t, val, srcVa int, perm defs.Pte_t) defs.Err_t {
	if !target.Recving {
		return defs.EIPCNOTRECV
	}
	if srcVa != 0 && target.DstVa != 0 {
		if srcVa >= defs.UTOP || !defs.Pgaligned(srcVa) {
			return defs.EINVAL
		}
		if err := defs.CheckPerm(perm); err != 0 {
			return err
		}
		pa, _, ok := sender.As.Lookup(srcVa)
		if !ok {
			return defs.ENOTMAPPED
		}
		if err := target.As.Insert(pa, target.DstVa, perm); err != 0 {
			return err
		}
		target.IpcPerm = perm
	}
	target.IpcVal = val
	target.FromId = sender.Id()
	target.Recving = false
	return table.SetStatus(target, defs.EnvRunnable)
}
