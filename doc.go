// Package rewind implements an in-memory transactional state engine with
// checkpoints, rollback, and undo/redo. It couples a key/value Store, a
// Checkpoints manager that captures immutable Snapshots, a History of
// committed Commands, and a Coordinator that gives all-or-nothing
// transactions over them.
//
// Typical usage looks like:
//   - Create a Coordinator with New or NewCoordinator
//   - Begin a transaction, Execute Set and Delete commands, then Commit or
//     Rollback (or let Run do it for you)
//   - Undo and Redo committed commands while no transaction is active
//   - Subscribe to the Hub, or AttachJournal, to observe committed changes
//
// The engine is not durable on its own. The journal package provides
// Journal implementations for Redis, bbolt, Postgres, and etcd that record
// committed changes, and Replay rebuilds State from them.
package rewind
