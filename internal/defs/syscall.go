package defs

import "golang.org/x/mod/semver"

/// Sysno_t is a stable system-call number. Arguments pass through the
/// trap frame's first five argument registers in the order each
/// operation lists them.
type Sysno_t int

const (
	SysPutchar Sysno_t = iota
	SysGetEnvId
	SysYield
	SysEnvDestroy
	SysSetPgfaultHandler
	SysMemAlloc
	SysMemMap
	SysMemUnmap
	SysEnvAlloc
	SysSetEnvStatus
	SysIpcRecv
	SysIpcTrySend
	SysPanic

	/// sysnoCount is the number of syscall numbers currently assigned;
	/// scripts/checksyscalls verifies the constant block above is dense
	/// (0..sysnoCount-1, no gaps, no duplicates).
	sysnoCount
)

/// SysnoCount reports how many syscall numbers are currently assigned.
func SysnoCount() int {
	return int(sysnoCount)
}

// ABIVersion names the syscall ABI described by this package. It is a
// plain semver string, validated at boot (see kernel.Boot), so that a
// future incompatible change to argument order or error-kind numbering
// has a documented, checkable home instead of an implicit "whatever
// the source says today".
const ABIVersion = "v1.0.0"

/// ValidABIVersion reports whether v is a well-formed semver string
/// that is not newer than the ABI this package implements.
func ValidABIVersion(v string) bool {
	if !semver.IsValid(v) {
		return false
	}
	return semver.Compare(v, ABIVersion) <= 0
}
