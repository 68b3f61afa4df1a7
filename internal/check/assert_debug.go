//go:build debug

// Package check holds invariant assertions that are compiled in only with
// the debug build tag.
package check

import (
	"fmt"
	"runtime"
)

// Assert panics with msg and the caller's location if cond is false.
func Assert(cond bool, msg string) {
	if !cond {
		panic(fmt.Sprintf("assertion failed at %s: %s", caller(), msg))
	}
}

// Assertf is Assert with a formatted message.
func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("assertion failed at %s: %s", caller(), fmt.Sprintf(format, args...)))
	}
}

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}
