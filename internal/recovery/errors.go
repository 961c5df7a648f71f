package recovery

import (
	"errors"
	"fmt"
)

// Store operations reported in StoreError.Op.
const (
	OpRead   = "read"
	OpAppend = "append"
	OpClear  = "clear"
	OpWrite  = "write"
)

// StoreError reports a failed operation on a named store.
type StoreError struct {
	Op    string
	Store string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Store, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsReadFailure reports whether err is a failed store read.
func IsReadFailure(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Op == OpRead
}

// IsWriteFailure reports whether err is a failed append, clear or rewrite.
func IsWriteFailure(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Op != OpRead
}
