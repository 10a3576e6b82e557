// Package diag renders kernel-state snapshots for operators: a pprof
// profile of frame/environment occupancy (loadable with the standard
// pprof tool) and a decimal-grouped text summary.
package diag

import (
	"fmt"
	"io"

	"github.com/google/pprof/profile"
	"golang.org/x/text/message"

	"envkernel/internal/caller"
	"envkernel/internal/defs"
	"envkernel/internal/mem"
	"envkernel/internal/proc"
)

// frameFunction and envFunction name the two sample "call stacks" the
// snapshot reports under -- there is no real call stack here, just a
// location per frame/environment so pprof's tree view groups samples
// sensibly by kind.
const (
	frameFunction = "frame"
	envFunction   = "environment"
)

func mkFunction(id uint64, name string) *profile.Function {
	return &profile.Function{ID: id, Name: name}
}

func mkLocation(id uint64, fn *profile.Function) *profile.Location {
	return &profile.Location{
		ID:   id,
		Line: []profile.Line{{Function: fn}},
	}
}

/// Snapshot captures frame refcounts and environment statuses into a
/// *profile.Profile: one sample per frame with a nonzero refcount
/// (value = refcount; unreferenced frames are skipped) and one
/// per non-FREE environment (value = status), operationalizing the
/// "frame conservation" testable property as something loadable into
/// pprof's flame/tree views.
func Snapshot(phys *mem.Physmem_t, table *proc.Table_t) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "refcount", Unit: "count"},
		},
	}

	frameFn := mkFunction(1, frameFunction)
	envFn := mkFunction(2, envFunction)
	p.Function = []*profile.Function{frameFn, envFn}

	var locID uint64 = 1
	for i := 0; i < phys.Nframes(); i++ {
		pa := mem.Pa_t(i * defs.PGSIZE)
		rc := phys.Refcnt(pa)
		if rc == 0 {
			continue
		}
		loc := mkLocation(locID, frameFn)
		locID++
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{int64(rc)},
			Label:    map[string][]string{"frame": {fmt.Sprintf("%d", i)}},
		})
	}

	table.ForEach(func(e *proc.Env_t) {
		loc := mkLocation(locID, envFn)
		locID++
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{int64(e.Status())},
			Label:    map[string][]string{"envid": {fmt.Sprintf("%08x", uint32(e.Id()))}},
		})
	})

	return p
}

/// Report writes a decimal-grouped occupancy summary to w.
func Report(w io.Writer, phys *mem.Physmem_t, table *proc.Table_t) {
	pr := message.NewPrinter(message.MatchLanguage("en"))
	used := phys.Nframes() - phys.Freecount()
	pr.Fprintf(w, "frames: %d used / %d total (refs=%d)\n",
		used, phys.Nframes(), phys.TotalRefs())

	nenv := 0
	table.ForEach(func(*proc.Env_t) { nenv++ })
	pr.Fprintf(w, "environments: %d in use / %d slots\n", nenv, table.Nslots())
}

/// PanicTrace formats the current call stack, the diagnostic a fatal
/// internal-inconsistency panic can log before the process
/// actually unwinds.
func PanicTrace() string {
	return caller.Dump(2)
}
