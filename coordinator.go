package rewind

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Coordinator composes a Store, its Checkpoints, and a History into a
// transactional engine with undo and redo. All public methods are safe for
// concurrent use, but only one transaction may be active at a time
type Coordinator[V comparable] struct {
	store       *Store[V]
	history     *History[V]
	checkpoints *Checkpoints[V]
	hub         *Hub
	logger      *zap.Logger
	metrics     *metrics
	active      *Transaction[V]
	config      Config
	version     Version
	mu          sync.Mutex
}

// New creates a Coordinator over a fresh Store and History
func New[V comparable](cfg Config) (*Coordinator[V], error) {
	return NewCoordinator(NewStore[V](nil), NewHistory[V](cfg.HistoryLimit), cfg)
}

// NewCoordinator creates a Coordinator that owns the provided Store and
// History. Neither should be used directly once handed over
func NewCoordinator[V comparable](
	store *Store[V], history *History[V], cfg Config,
) (*Coordinator[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var m *metrics
	if cfg.EnableMetrics {
		var err error
		if m, err = newMetrics(cfg.MeterProvider); err != nil {
			return nil, fmt.Errorf("creating metrics: %w", err)
		}
	}

	logger := cfg.logger()
	hub := NewHub(logger)
	hub.onDrop = func(typ EventType) {
		m.recordDrop(context.Background(), typ)
	}

	return &Coordinator[V]{
		store:       store,
		history:     history,
		checkpoints: NewCheckpoints(store, cfg.RetainSnapshots),
		hub:         hub,
		logger:      logger,
		metrics:     m,
		config:      cfg,
	}, nil
}

// Begin starts a transaction and captures a pre-image of the State
func (c *Coordinator[V]) Begin() (TxID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.begin()
}

// Execute applies a Command within the active transaction. The change is
// visible to Get immediately
func (c *Coordinator[V]) Execute(cmd Command[V]) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.execute(cmd)
}

// Commit records the active transaction's Commands in the History and
// publishes an EventCommitted. The Commands are always encoded, whether or
// not anything subscribes. If they cannot be recorded or encoded, nothing is
// recorded and the transaction remains active
func (c *Coordinator[V]) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commit()
}

// Rollback restores the State captured by Begin and discards the active
// transaction's Commands
func (c *Coordinator[V]) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollback()
}

// Undo reverses the most recently committed Command
func (c *Coordinator[V]) Undo() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.step(EventUndone, false)
	return err
}

// Redo re-applies the most recently undone Command
func (c *Coordinator[V]) Redo() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.step(EventRedone, false)
	return err
}

// UndoTransaction reverses every remaining Command of the most recently
// committed transaction and returns how many were undone
func (c *Coordinator[V]) UndoTransaction() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step(EventUndone, true)
}

// RedoTransaction re-applies every undone Command of the most recently
// undone transaction and returns how many were redone
func (c *Coordinator[V]) RedoTransaction() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step(EventRedone, true)
}

// Get returns the current value for key, including uncommitted changes
// made by the active transaction
func (c *Coordinator[V]) Get(key Key) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Get(key)
}

// Run executes fn inside a transaction. The transaction commits if fn
// returns nil, and rolls back if fn returns an error or panics. A panic is
// re-raised after the rollback
func (c *Coordinator[V]) Run(fn func(Executor[V]) error) error {
	if _, err := c.Begin(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = c.Rollback()
			panic(r)
		}
	}()

	if err := fn(c); err != nil {
		if rbErr := c.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}

	if err := c.Commit(); err != nil {
		if rbErr := c.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return nil
}

// Checkpoint saves a retained Snapshot of the current State
func (c *Coordinator[V]) Checkpoint() (*Snapshot[V], error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return nil, ErrTransactionActive
	}
	return c.checkpoints.Save(), nil
}

// RevertTo returns the State to a retained Snapshot by committing the
// difference as an ordinary transaction, which can itself be undone
func (c *Coordinator[V]) RevertTo(v Version) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return ErrTransactionActive
	}
	snap, ok := c.checkpoints.Lookup(v)
	if !ok {
		return fmt.Errorf("%w: version %d", ErrSnapshotNotRetained, v)
	}
	if snap.StoreID() != c.store.ID() {
		return &SnapshotExpiredError{
			Version:  v,
			Captured: snap.StoreID(),
			Current:  c.store.ID(),
		}
	}

	cmds := snap.diff(c.store.state(), c.store.copy)
	if len(cmds) == 0 {
		return nil
	}

	if _, err := c.begin(); err != nil {
		return err
	}
	for _, cmd := range cmds {
		if err := c.execute(cmd); err != nil {
			return errors.Join(err, c.rollback())
		}
	}
	if err := c.commit(); err != nil {
		return errors.Join(err, c.rollback())
	}
	return nil
}

// Version returns the number of commits, undos, and redos applied
func (c *Coordinator[V]) Version() Version {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// InTransaction reports whether a transaction is active
func (c *Coordinator[V]) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Active returns the active transaction's identifier, if any
func (c *Coordinator[V]) Active() (TxID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return "", false
	}
	return c.active.ID(), true
}

func (c *Coordinator[V]) CanUndo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active == nil && c.history.CanUndo()
}

func (c *Coordinator[V]) CanRedo() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active == nil && c.history.CanRedo()
}

// Keys returns the current keys in sorted order
func (c *Coordinator[V]) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Keys()
}

// Contents returns a deep copy of the current State
func (c *Coordinator[V]) Contents() State[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Contents()
}

// Hub returns the Hub that Coordinator events are published on
func (c *Coordinator[V]) Hub() *Hub {
	return c.hub
}

// Subscribe registers a Handler for Coordinator events. See Hub.Subscribe
func (c *Coordinator[V]) Subscribe(fn Handler, types ...EventType) func() {
	return c.hub.Subscribe(fn, types...)
}

// NewConsumer creates a channel Consumer using the configured buffer size
func (c *Coordinator[V]) NewConsumer(types ...EventType) *Consumer {
	return c.hub.NewConsumer(c.config.ConsumerBuffer, types...)
}

// AttachJournal starts a JournalWorker that appends every State-changing
// Event to the Journal. Stopping the worker detaches it
func (c *Coordinator[V]) AttachJournal(j Journal) *JournalWorker {
	w := newJournalWorker(j, c.config.Journal, c.logger, c.metrics)
	w.detach = c.hub.Subscribe(w.Handle, StateEvents...)
	return w
}

func (c *Coordinator[V]) begin() (TxID, error) {
	ctx := context.Background()
	if c.active != nil {
		c.metrics.recordBegin(ctx, false)
		return "", ErrTransactionAlreadyActive
	}

	c.active = newTransaction(c.checkpoints.Capture())
	c.metrics.recordBegin(ctx, true)
	c.logger.Debug("Transaction started",
		zap.String("tx_id", string(c.active.id)),
		zap.Int64("version", int64(c.version)),
	)
	return c.active.id, nil
}

func (c *Coordinator[V]) execute(cmd Command[V]) error {
	if c.active == nil {
		return ErrNoActiveTransaction
	}
	if cmd == nil {
		return ErrNilCommand
	}

	if b, ok := cmd.(Binder[V]); ok {
		cmd = b.Bind(c.store.state())
	}
	c.store.Apply(cmd)
	c.active.append(cmd)
	return nil
}

func (c *Coordinator[V]) commit() error {
	tx := c.active
	if tx == nil {
		return ErrNoActiveTransaction
	}

	var data []byte
	if len(tx.applied) > 0 {
		var err error
		if data, err = EncodeCommands(tx.applied); err != nil {
			c.logger.Error("Failed to encode transaction",
				zap.String("tx_id", string(tx.id)),
				zap.Error(err),
			)
			return fmt.Errorf("encoding transaction %s: %w", tx.id, err)
		}
	}

	count, err := tx.flush(c.history.RecordAll)
	if err != nil {
		return fmt.Errorf("recording transaction %s: %w", tx.id, err)
	}

	c.active = nil
	c.metrics.recordCommit(
		context.Background(), count, time.Since(tx.started),
	)
	if count == 0 {
		c.logger.Debug("Empty transaction committed",
			zap.String("tx_id", string(tx.id)),
		)
		return nil
	}

	c.version++
	c.logger.Debug("Transaction committed",
		zap.String("tx_id", string(tx.id)),
		zap.Int("commands", count),
		zap.Int64("version", int64(c.version)),
	)
	if c.hub.HasSubscribers(EventCommitted) {
		c.publish(EventCommitted, tx.id, data)
	}
	return nil
}

func (c *Coordinator[V]) rollback() error {
	tx := c.active
	if tx == nil {
		return ErrNoActiveTransaction
	}

	if err := c.checkpoints.Restore(tx.pre); err != nil {
		return err
	}
	count := len(tx.applied)
	tx.discard()
	c.active = nil

	c.metrics.recordRollback(context.Background(), time.Since(tx.started))
	c.logger.Debug("Transaction rolled back",
		zap.String("tx_id", string(tx.id)),
		zap.Int("commands", count),
	)
	if c.hub.HasSubscribers(EventRolledBack) {
		c.publish(EventRolledBack, tx.id, []byte("[]"))
	}
	return nil
}

// step moves Commands between the History's stacks and applies them. When
// whole is set, it continues while the next Command belongs to the same
// transaction as the first
func (c *Coordinator[V]) step(typ EventType, whole bool) (int, error) {
	ctx := context.Background()
	record := c.metrics.recordUndo
	move, back, peek := c.history.Undo, c.history.Redo, c.history.peekUndo
	if typ == EventRedone {
		record = c.metrics.recordRedo
		move, back, peek = c.history.Redo, c.history.Undo, c.history.peekRedo
	}

	if c.active != nil {
		record(ctx, false)
		return 0, ErrTransactionActive
	}

	txID, ok := peek()
	if !ok {
		record(ctx, false)
		return 0, ErrEmptyHistory
	}

	var cmds []Command[V]
	for {
		cmd, err := move()
		if err != nil {
			return 0, err
		}
		cmds = append(cmds, cmd)
		if next, ok := peek(); !whole || !ok || next != txID {
			break
		}
	}

	var data []byte
	publish := c.hub.HasSubscribers(typ)
	if publish {
		var err error
		if data, err = EncodeCommands(cmds); err != nil {
			for range cmds {
				_, _ = back()
			}
			record(ctx, false)
			return 0, fmt.Errorf("encoding %s commands: %w", typ, err)
		}
	}

	for _, cmd := range cmds {
		c.store.Apply(cmd)
	}
	c.version++
	record(ctx, true)
	c.logger.Debug("History step applied",
		zap.String("event_type", string(typ)),
		zap.String("tx_id", string(txID)),
		zap.Int("commands", len(cmds)),
		zap.Int64("version", int64(c.version)),
	)
	if publish {
		c.publish(typ, txID, data)
	}
	return len(cmds), nil
}

func (c *Coordinator[V]) publish(typ EventType, tx TxID, data []byte) {
	c.hub.publish(&Event{
		Timestamp: time.Now(),
		Type:      typ,
		TxID:      tx,
		Version:   c.version,
		Data:      data,
	})
}
