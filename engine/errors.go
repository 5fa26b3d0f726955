package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceNotFound marks an enumeration that failed because the
	// source directory does not exist.
	ErrSourceNotFound = errors.New("error parsing files in the directory")

	// ErrTransfersFailed is returned by Run when at least one transfer failed.
	ErrTransfersFailed = errors.New("one or more transfers failed")

	// ErrInterrupted marks a run whose submission was stopped by
	// context cancellation.
	ErrInterrupted = errors.New("run interrupted")
)

// EnumerationError reports a source that could not be listed. No
// transfer is submitted after it.
type EnumerationError struct {
	Path string
	Err  error
}

func (e *EnumerationError) Error() string {
	return fmt.Sprintf("enumerating %s: %v", e.Path, e.Err)
}

func (e *EnumerationError) Unwrap() error { return e.Err }

// TransferError reports the failed upload of a single item.
type TransferError struct {
	Item WorkItem
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer of %s failed: %v", e.Item.Name, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// FatalError aborts submission of the remaining items.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// CleanupError reports a failed teardown step. It never replaces the
// error of the run itself.
type CleanupError struct {
	Step string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup step %q failed: %v", e.Step, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }
