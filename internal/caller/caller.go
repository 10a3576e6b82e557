// Package caller formats a Go call stack for the kernel's panic-path
// diagnostics: internal inconsistencies that panic rather than return
// an error code get a readable stack alongside the panic message.
package caller

import (
	"fmt"
	"runtime"
)

/// Dump returns the call stack starting at the given depth, one frame
/// per line, innermost frame first and each outer caller after it.
func Dump(start int) string {
	i := start
	s := ""
	for {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		i++
		if s == "" {
			s = fmt.Sprintf("%s:%d\n", f, l)
		} else {
			s += fmt.Sprintf("\t<-%s:%d\n", f, l)
		}
	}
	return s
}
