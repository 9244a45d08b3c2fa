package history

import "fmt"

// PersistenceError reports a storage read or write failure. History loss is a
// degraded mode, never a reason to fail the scan that triggered it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("history %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
