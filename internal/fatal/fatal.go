// Package fatal gives the daemon's invariant-violation error class (§7) a
// single call site: log at error level, then panic. Partial teardown that
// silently leaks privileged kernel state is worse than a loud crash.
package fatal

import (
	"fmt"
	"log/slog"
)

// Panic logs msg/err at error level and then panics. Callers use this when
// a kernel command or container-daemon call fails after the daemon has
// already committed to a state change it cannot safely unwind.
func Panic(msg string, err error) {
	slog.Error(msg, "err", err)
	panic(fmt.Sprintf("%s: %v", msg, err))
}

// Assert panics with msg if cond is false, logging first. Used for
// invariants with no associated error value (e.g. a handle dropped in the
// wrong state).
func Assert(cond bool, msg string) {
	if cond {
		return
	}
	slog.Error(msg)
	panic(msg)
}
