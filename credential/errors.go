package credential

import (
	"errors"
	"fmt"
)

// ErrStorage matches every *StorageError via errors.Is.
var ErrStorage = errors.New("credential storage error")

// StorageError indicates the backing store could not be read or written.
// Callers treat it as "no credential" rather than surfacing it to users.
type StorageError struct {
	Op        string // "load", "save", "clear"
	Namespace string
	Record    string
	Err       error
}

func (e *StorageError) Error() string {
	msg := e.Op + " credentials"
	if e.Namespace != "" {
		msg += " for " + e.Namespace
	}
	if e.Record != "" {
		msg += fmt.Sprintf(" (%s)", e.Record)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
