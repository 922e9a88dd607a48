package rewind

import (
	"time"

	"github.com/google/uuid"
)

type (
	// Status is the lifecycle state of a Transaction
	Status string

	// Transaction buffers the Commands applied between Begin and Commit. It
	// is owned by the Coordinator and is not safe for concurrent use
	Transaction[V comparable] struct {
		started time.Time
		pre     *Snapshot[V]
		id      TxID
		status  Status
		applied []Command[V]
	}

	// Flusher receives a transaction's applied Commands in order and returns
	// an error if they could not be accepted
	Flusher[V comparable] func(TxID, []Command[V]) error

	// Executor is the view of the Coordinator handed to Run callbacks
	Executor[V comparable] interface {
		Execute(Command[V]) error
		Get(Key) (V, error)
	}
)

const (
	StatusActive     Status = "active"
	StatusCommitted  Status = "committed"
	StatusRolledBack Status = "rolled-back"
)

func newTransaction[V comparable](pre *Snapshot[V]) *Transaction[V] {
	return &Transaction[V]{
		id:      TxID(uuid.NewString()),
		started: time.Now(),
		status:  StatusActive,
		pre:     pre,
		applied: []Command[V]{},
	}
}

// ID returns the transaction's identifier
func (t *Transaction[_]) ID() TxID {
	return t.id
}

// Status returns the transaction's lifecycle state
func (t *Transaction[_]) Status() Status {
	return t.status
}

// Started returns the time Begin was called
func (t *Transaction[_]) Started() time.Time {
	return t.started
}

// Applied returns the Commands applied so far, in order
func (t *Transaction[V]) Applied() []Command[V] {
	return append([]Command[V](nil), t.applied...)
}

func (t *Transaction[V]) append(cmd Command[V]) {
	t.applied = append(t.applied, cmd)
}

// flush hands the applied Commands to the Flusher and marks the
// transaction committed on success
func (t *Transaction[V]) flush(f Flusher[V]) (int, error) {
	count := len(t.applied)
	if err := f(t.id, t.applied); err != nil {
		return count, err
	}
	t.status = StatusCommitted
	t.pre = nil
	return count, nil
}

func (t *Transaction[V]) discard() {
	t.status = StatusRolledBack
	t.applied = nil
	t.pre = nil
}
