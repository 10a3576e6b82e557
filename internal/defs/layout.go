package defs

// Virtual-address layout constants. These are deliberately plain
// typed constants: no config file, no runtime override.
const (
	/// PGSHIFT is the base-2 exponent of the page size.
	PGSHIFT uint = 12
	/// PGSIZE is the size of a single page in bytes.
	PGSIZE int = 1 << PGSHIFT
	/// PGOFFSET masks the in-page offset of a virtual address.
	PGOFFSET int = PGSIZE - 1

	/// UTOP is the top of user-accessible virtual memory; everything
	/// at or above it is kernel-only.
	UTOP int = 0x80000000
	/// USTACKTOP is the top of the user stack region; the page
	/// directly below it is the initial stack page.
	USTACKTOP int = UTOP - PGSIZE
	/// UXSTACKTOP is the top of the user exception-stack region; the
	/// page directly below it is the exception stack.
	UXSTACKTOP int = USTACKTOP - PGSIZE
	/// UTEXT is the lowest address of the user text/data region.
	UTEXT int = 0x00800000

	/// PFTEMP is the scratch virtual address the COW page-fault
	/// handler maps its freshly allocated page at before installing it
	/// at the faulting address.
	PFTEMP int = UXSTACKTOP - 2*PGSIZE
	/// UTEMP is the scratch virtual address spawn uses while building
	/// the child's initial stack page before mapping it in.
	UTEMP int = PFTEMP - PGSIZE

	/// NENV is the number of environment-table slots.
	NENV int = 1024
	/// LOGNENV is the number of bits needed to index NENV slots.
	LOGNENV uint = 10
)

// Round down/up to a page boundary.

/// Pgrounddown rounds va down to the nearest page boundary.
func Pgrounddown(va int) int {
	return va &^ PGOFFSET
}

/// Pgroundup rounds va up to the nearest page boundary.
func Pgroundup(va int) int {
	return Pgrounddown(va + PGSIZE - 1)
}

/// Pgaligned reports whether va is page aligned.
func Pgaligned(va int) bool {
	return va&PGOFFSET == 0
}
