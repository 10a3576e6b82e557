// Package stats provides lightweight named counters for diagnostics,
// such as the syscall dispatcher's per-operation tallies.
package stats

import (
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"unsafe"
)

/// Enabled gates counter updates; set it to false to stop collecting
/// and skip the atomic adds.
const Enabled = true

/// Counter_t is a statistical counter, meant to be embedded as a named
/// field in a caller's stats struct and reported with Stats2String.
type Counter_t int64

/// Inc increments the counter by one.
func (c *Counter_t) Inc() {
	if Enabled {
		atomic.AddInt64((*int64)(unsafe.Pointer(c)), 1)
	}
}

/// Add adds delta to the counter.
func (c *Counter_t) Add(delta int64) {
	if Enabled {
		atomic.AddInt64((*int64)(unsafe.Pointer(c)), delta)
	}
}

/// Get reads the counter's current value.
func (c *Counter_t) Get() int64 {
	return atomic.LoadInt64((*int64)(unsafe.Pointer(c)))
}

/// Stats2String renders every Counter_t field of st as "name: value"
/// lines via reflection, so a new counter struct needs no matching
/// hand-written printer.
func Stats2String(st interface{}) string {
	v := reflect.ValueOf(st)
	s := ""
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		if strings.HasSuffix(t, "Counter_t") {
			n := v.Field(i).Interface().(Counter_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}
	}
	return s + "\n"
}
