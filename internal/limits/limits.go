// Package limits tracks system-wide resource limits that are cheaper
// to check atomically than to discover by scanning a table.
package limits

import (
	"sync/atomic"
	"unsafe"

	"envkernel/internal/defs"
)

/// Sysatomic_t is a numeric limit that can be atomically given back or
/// taken from.
type Sysatomic_t int64

/// Syslimit_t holds the kernel's system-wide resource limits.
type Syslimit_t struct {
	// Envs is the number of environment-table slots still available
	// for env_alloc; it mirrors NENV and lets allocation fail fast
	// without a linear scan once the table is full.
	Envs Sysatomic_t
}

/// Syslimit describes the configured system-wide limits.
var Syslimit = MkSysLimit()

/// MkSysLimit returns the default set of limits, sized from the
/// environment-table capacity in package defs.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{Envs: Sysatomic_t(defs.NENV)}
}

func (s *Sysatomic_t) aptr() *int64 {
	return (*int64)(unsafe.Pointer(s))
}

/// Given increases the limit by n.
func (s *Sysatomic_t) Given(n uint) {
	atomic.AddInt64(s.aptr(), int64(n))
}

/// Taken tries to decrement the limit by n, reporting whether the
/// limit had that much to give.
func (s *Sysatomic_t) Taken(n uint) bool {
	g := atomic.AddInt64(s.aptr(), -int64(n))
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s.aptr(), int64(n))
	return false
}

/// Take decrements the limit by one.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}
