package pea

import (
	"fmt"

	"github.com/pkg/errors"
)

// IROops is the one panic this pass ever raises (§7's "Invariant
// violation" row, §4.9 "no attempt at recovery"). It wraps its cause with
// github.com/pkg/errors so a recover() at a process boundary (cmd/peacheck)
// can print a stack trace pointing at the call site, not just the message.
type IROops struct {
	cause error
}

func (e *IROops) Error() string { return e.cause.Error() }
func (e *IROops) Unwrap() error { return e.cause }

func newIROops(format string, args ...interface{}) *IROops {
	return &IROops{cause: errors.WithStack(fmt.Errorf(format, args...))}
}

// invariant panics with IROops if cond is false. Every call site names the
// specific invariant from §3/§6/§7 it is guarding, matching the host's
// MVM_oops/MVM_panic-on-invariant-violation discipline.
func invariant(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(newIROops(format, args...))
	}
}
