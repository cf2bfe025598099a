package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrClosed is returned by operations submitted after Close.
var ErrClosed = errors.New("store: closed")

// NotFoundError reports an operation addressed to a record id that does not
// exist. Callers usually treat it as "absent" rather than a failure.
type NotFoundError struct {
	ID    string
	Table string
}

func (e *NotFoundError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("record %q not found in %s", e.ID, e.Table)
	}
	return fmt.Sprintf("record %q not found", e.ID)
}

// StorageError wraps a fault of the storage engine (I/O, corruption,
// constraint violations the store did not anticipate).
//
// Storage errors are logged when created and never retried by the store;
// retry policy belongs to the caller.
type StorageError struct {
	Op    string
	Table string
	Err   error
}

func (e *StorageError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("storage %s on %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a NotFoundError.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsStorageError reports whether err is a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// storageErr wraps err as a StorageError and logs it. Context errors pass
// through unchanged: they are the caller giving up, not the engine failing.
func storageErr(op, table string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	slog.Error("storage fault", "op", op, "table", table, "error", err)
	return &StorageError{Op: op, Table: table, Err: err}
}
