//go:build !debug

// Package check holds invariant assertions that are compiled in only with
// the debug build tag.
package check

func Assert(bool, string) {}

func Assertf(bool, string, ...any) {}
