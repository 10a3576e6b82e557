package defs

/// EnvId_t is an opaque environment identifier: index in the low
/// LOGNENV bits, generation in the rest. The reserved value 0 means
/// "the caller" wherever an EnvId_t is accepted as a syscall argument.
type EnvId_t uint32

/// MkEnvId packs a slot index and generation counter into an EnvId_t.
func MkEnvId(generation uint32, index int) EnvId_t {
	return EnvId_t(generation<<LOGNENV) | EnvId_t(index)&(1<<LOGNENV-1)
}

/// Index returns the slot index encoded in id.
func (id EnvId_t) Index() int {
	return int(id) & (1<<LOGNENV - 1)
}

/// Generation returns the generation counter encoded in id.
func (id EnvId_t) Generation() uint32 {
	return uint32(id) >> LOGNENV
}

/// Status_t is an environment's scheduling state.
type Status_t int

const (
	/// EnvFree marks a slot available for env_alloc.
	EnvFree Status_t = iota
	/// EnvRunnable marks an environment eligible for the scheduler.
	EnvRunnable
	/// EnvNotRunnable marks an environment that exists but cannot be
	/// scheduled (e.g. blocked in ipc_recv, or freshly allocated).
	EnvNotRunnable
)

/// ValidStatus reports whether s is one of the three allowed values;
/// set_env_status rejects anything else with EINVAL.
func ValidStatus(s Status_t) bool {
	switch s {
	case EnvFree, EnvRunnable, EnvNotRunnable:
		return true
	default:
		return false
	}
}

func (s Status_t) String() string {
	switch s {
	case EnvFree:
		return "FREE"
	case EnvRunnable:
		return "RUNNABLE"
	case EnvNotRunnable:
		return "NOT_RUNNABLE"
	default:
		return "UNKNOWN"
	}
}
