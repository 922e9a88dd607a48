package rewind

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// SnapshotExpiredError is returned when a Snapshot is restored into a Store
// other than the one it was captured from
type SnapshotExpiredError struct {
	Version  Version
	Captured uuid.UUID
	Current  uuid.UUID
}

var (
	// ErrTransactionAlreadyActive is returned by Begin while a transaction
	// is active. Transactions do not nest
	ErrTransactionAlreadyActive = errors.New("transaction already active")

	// ErrNoActiveTransaction is returned by Execute, Commit, and Rollback
	// when no transaction is active
	ErrNoActiveTransaction = errors.New("no active transaction")

	// ErrTransactionActive is returned by Undo and Redo while a
	// transaction is active
	ErrTransactionActive = errors.New("transaction is active")

	// ErrEmptyHistory is returned by Undo or Redo when there is nothing to
	// undo or redo
	ErrEmptyHistory = errors.New("history is empty")

	// ErrSnapshotExpired matches any SnapshotExpiredError
	ErrSnapshotExpired = errors.New("snapshot expired")

	// ErrNotFound is returned when a key is not present in the State
	ErrNotFound = errors.New("key not found")

	// ErrNilCommand is returned when a nil Command is executed or recorded
	ErrNilCommand = errors.New("nil command")

	// ErrUnknownCommand is returned when decoding a command type that has
	// no registered Decoder
	ErrUnknownCommand = errors.New("unknown command type")

	// ErrSnapshotNotRetained is returned by RevertTo when the requested
	// snapshot version is no longer retained
	ErrSnapshotNotRetained = errors.New("snapshot not retained")

	// ErrJournalStopped is returned when handing events to a stopped
	// JournalWorker
	ErrJournalStopped = errors.New("journal worker stopped")

	// ErrJournalQueueFull is returned when a JournalWorker's queue has no
	// room for another Event
	ErrJournalQueueFull = errors.New("journal queue full")

	// ErrInvalidConfig wraps configuration validation failures
	ErrInvalidConfig = errors.New("invalid configuration")
)

func (e *SnapshotExpiredError) Error() string {
	return fmt.Sprintf(
		"snapshot expired: version %d captured from store %s, current store %s",
		e.Version, e.Captured, e.Current,
	)
}

// Is allows errors.Is(err, ErrSnapshotExpired) to match
func (e *SnapshotExpiredError) Is(target error) bool {
	return target == ErrSnapshotExpired
}
