package route

import (
	"errors"
	"fmt"
)

// sweepFailure is one failed per-route step of a sweep.
type sweepFailure struct {
	op  string
	id  string
	err error
}

func (f sweepFailure) Error() string {
	return fmt.Sprintf("%s route %s: %v", f.op, f.id, f.err)
}

func (f sweepFailure) Unwrap() error {
	return f.err
}

// sweep runs a step for each route in turn and collects failures instead of
// stopping at the first one.
type sweep struct {
	name     string
	failures []sweepFailure
}

func newSweep(name string) *sweep {
	return &sweep{name: name}
}

// try runs fn as the op step for route id. It reports whether fn succeeded.
func (s *sweep) try(op, id string, fn func() error) bool {
	if err := fn(); err != nil {
		s.failures = append(s.failures, sweepFailure{op: op, id: id, err: err})
		return false
	}
	return true
}

// err joins every collected failure, or returns nil.
func (s *sweep) err() error {
	errs := make([]error, len(s.failures))
	for i, f := range s.failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}
