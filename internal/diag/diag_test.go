package diag

import (
	"bytes"
	"strings"
	"testing"

	"envkernel/internal/mem"
	"envkernel/internal/proc"
)

func TestSnapshotIncludesOnlyReferencedFrames(t *testing.T) {
	phys, err := mem.NewPhysmem(8)
	if err != nil {
		t.Fatalf("NewPhysmem: %v", err)
	}
	defer phys.Close()
	table := proc.NewTable(phys)
	table.Alloc(nil) // allocates and increfs its own directory frame

	pa, _ := phys.Alloc()
	phys.Incref(pa)

	p := Snapshot(phys, table)
	frameSamples := 0
	envSamples := 0
	for _, s := range p.Sample {
		if _, ok := s.Label["frame"]; ok {
			frameSamples++
		}
		if _, ok := s.Label["envid"]; ok {
			envSamples++
		}
	}
	// the environment's page-table directory frame plus the frame
	// explicitly increffed above.
	if frameSamples != 2 {
		t.Fatalf("want exactly two referenced frames sampled, got %d", frameSamples)
	}
	if envSamples != 1 {
		t.Fatalf("want exactly one environment sampled, got %d", envSamples)
	}
}

func TestReportMentionsFrameAndEnvironmentCounts(t *testing.T) {
	phys, err := mem.NewPhysmem(4)
	if err != nil {
		t.Fatalf("NewPhysmem: %v", err)
	}
	defer phys.Close()
	table := proc.NewTable(phys)
	table.Alloc(nil)
	phys.Alloc()

	var out bytes.Buffer
	Report(&out, phys, table)
	got := out.String()
	if !strings.Contains(got, "frames:") || !strings.Contains(got, "environments:") {
		t.Fatalf("want a frame and environment summary line, got %q", got)
	}
}

func TestPanicTraceIsNonEmpty(t *testing.T) {
	if PanicTrace() == "" {
		t.Fatalf("want a non-empty caller trace")
	}
}
