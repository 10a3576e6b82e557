// Package accnt tracks per-environment CPU usage, the bookkeeping the
// syscall dispatcher (C5) updates on every dispatched call.
package accnt

import (
	"sync"
	"sync/atomic"
	"time"
)

/// Accnt_t accumulates one environment's runtime. Userns and Sysns are
/// nanoseconds; the embedded mutex lets Fetch take a consistent
/// snapshot while Utadd/Systadd keep updating concurrently off the
/// hot scheduling path.
type Accnt_t struct {
	Userns int64
	Sysns  int64
	sync.Mutex
}

/// Utadd adds delta nanoseconds to the user-time counter: time spent
/// actually running the environment's code.
func (a *Accnt_t) Utadd(delta int64) {
	atomic.AddInt64(&a.Userns, delta)
}

/// Systadd adds delta nanoseconds to the system-time counter: time
/// spent inside the syscall dispatcher on this environment's behalf.
func (a *Accnt_t) Systadd(delta int64) {
	atomic.AddInt64(&a.Sysns, delta)
}

/// Now returns the current time in nanoseconds since the Unix epoch.
func (a *Accnt_t) Now() int64 {
	return time.Now().UnixNano()
}

/// Add merges another accounting record into this one, e.g. folding a
/// destroyed child's usage into its parent.
func (a *Accnt_t) Add(n *Accnt_t) {
	n.Lock()
	un, sn := n.Userns, n.Sysns
	n.Unlock()
	a.Lock()
	a.Userns += un
	a.Sysns += sn
	a.Unlock()
}

/// Fetch returns a consistent (Userns, Sysns) snapshot.
func (a *Accnt_t) Fetch() (int64, int64) {
	a.Lock()
	defer a.Unlock()
	return a.Userns, a.Sysns
}
