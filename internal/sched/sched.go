// Package sched implements the round-robin scheduler (C4): a
// persistent cursor over the environment table, advanced by one slot
// on every entry and scanned forward for the next RUNNABLE slot.
package sched

import (
	"envkernel/internal/defs"
	"envkernel/internal/proc"
)

/// Sched_t holds the scheduler's persistent cursor.
type Sched_t struct {
	table  *proc.Table_t
	cursor int
}

/// New returns a scheduler over table, with the cursor positioned so
/// the first Next call begins scanning from slot 0.
func New(table *proc.Table_t) *Sched_t {
	return &Sched_t{table: table, cursor: -1}
}

/// Next advances the cursor by one slot modulo the table size and
/// scans forward until a RUNNABLE environment is found, returning it.
/// It returns nil if no environment in the table is RUNNABLE -- there
/// is no idle task to fall back to, and Next itself does one full lap
/// and stops; callers handle nil (kernel.RunSteps records 0 for that
/// step, the dispatcher clears the current environment).
func (s *Sched_t) Next() *proc.Env_t {
	n := s.table.Nslots()
	for i := 0; i < n; i++ {
		s.cursor = (s.cursor + 1) % n
		e := s.table.SlotAt(s.cursor)
		if e.Status() == defs.EnvRunnable {
			return e
		}
	}
	return nil
}
