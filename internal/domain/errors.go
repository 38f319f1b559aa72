package domain

import (
	"errors"
	"fmt"
)

// Errors that fetchers report for a single resource transfer.
// ErrSourceUnavailable is terminal for this pass; ErrTransferFailed is
// transient and eligible for a bounded immediate retry.
var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrTransferFailed    = errors.New("transfer failed")
)

// ErrAborted is returned by a sync pass stopped between resource kinds.
var ErrAborted = errors.New("sync aborted")

// ErrMarkerTooNew is returned when reading a folder marker written by an
// incompatible future release.
var ErrMarkerTooNew = errors.New("folder marker written by a future release")

// ParseError describes one malformed directive token. It is localized to a
// single key and never aborts the rest of the parse.
type ParseError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("invalid meta tag %q: %s", e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid value for meta tag %q: %q: %s", e.Key, e.Value, e.Reason)
}

// StoreError wraps a transaction failure. The whole song pass it belongs to
// is rolled back, never partially applied.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// MigrationError is fatal at startup; the application must not run against a
// schema it cannot reconcile.
type MigrationError struct {
	Version int
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("schema migration to version %d: %v", e.Version, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }
