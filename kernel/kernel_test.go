package kernel

import (
	"bytes"
	"testing"

	"envkernel/internal/defs"
	"envkernel/internal/fork"
)

func TestBootWiresLiveDispatcher(t *testing.T) {
	var out bytes.Buffer
	k, err := Boot(64, &out)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	defer k.Shutdown()

	if k.Phys == nil || k.Table == nil || k.Sched == nil || k.Console == nil || k.Dis == nil {
		t.Fatalf("want every kernel field wired")
	}
}

func TestSpawnInitMakesCurrentRunnable(t *testing.T) {
	var out bytes.Buffer
	k, err := Boot(32, &out)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	defer k.Shutdown()

	init, serr := k.SpawnInit()
	if serr != 0 {
		t.Fatalf("SpawnInit: %v", serr)
	}
	if init.Status() != defs.EnvRunnable {
		t.Fatalf("want init RUNNABLE")
	}
	if k.Table.Current() != init {
		t.Fatalf("want init to be the current environment")
	}
}

func TestRunStepsRoundRobinsForkedChildren(t *testing.T) {
	var out bytes.Buffer
	k, err := Boot(128, &out)
	if err != nil {
		t.Fatalf("Boot: %v", err)
	}
	defer k.Shutdown()

	init, _ := k.SpawnInit()
	childId, ferr := fork.Fork(k.Dis, init)
	if ferr != 0 {
		t.Fatalf("Fork: %v", ferr)
	}

	picks := k.RunSteps(4)
	sawInit, sawChild := false, false
	for _, id := range picks {
		if id == init.Id() {
			sawInit = true
		}
		if id == childId {
			sawChild = true
		}
	}
	if !sawInit || !sawChild {
		t.Fatalf("want both parent and child scheduled across steps, got %v", picks)
	}
}

func TestBootRejectsInvalidABIVersion(t *testing.T) {
	// ValidABIVersion is exercised directly here since Boot always uses
	// the package's own (valid) ABIVersion constant.
	if !defs.ValidABIVersion(defs.ABIVersion) {
		t.Fatalf("want the package's own ABI version to be considered valid")
	}
	if defs.ValidABIVersion("not-a-semver") {
		t.Fatalf("want a malformed version string rejected")
	}
	if defs.ValidABIVersion("v99.0.0") {
		t.Fatalf("want a future version rejected as incompatible")
	}
}
