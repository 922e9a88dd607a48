package rewind

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type (
	// Journal durably records Events outside the engine. Implementations
	// live in the journal package
	Journal interface {
		Append(context.Context, *Event) error
		Read(ctx context.Context, from Version) ([]*Event, error)
		Close() error
	}

	// JournalWorker forwards Events to a Journal from a bounded queue on a
	// single goroutine, preserving publication order
	JournalWorker struct {
		journal Journal
		logger  *zap.Logger
		metrics *metrics
		queue   chan *Event
		detach  func()
		config  JournalConfig
		wg      sync.WaitGroup
		mu      sync.RWMutex
		stopped bool
	}
)

// NewJournalWorker starts a worker that appends Events to the Journal. Its
// Handle method is a Handler suitable for Hub.Subscribe
func NewJournalWorker(
	j Journal, cfg JournalConfig, logger *zap.Logger,
) *JournalWorker {
	return newJournalWorker(j, cfg, logger, nil)
}

func newJournalWorker(
	j Journal, cfg JournalConfig, logger *zap.Logger, m *metrics,
) *JournalWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultJournalQueueSize
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = DefaultJournalSaveTimeout
	}

	w := &JournalWorker{
		journal: j,
		logger:  logger,
		metrics: m,
		queue:   make(chan *Event, cfg.QueueSize),
		config:  cfg,
	}

	w.wg.Add(1)
	go w.run()
	return w
}

// Handle enqueues the Event for writing. It never blocks: if the queue is
// full the Event is dropped and ErrJournalQueueFull is returned
func (w *JournalWorker) Handle(ev *Event) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return ErrJournalStopped
	}

	select {
	case w.queue <- ev:
		return nil
	default:
		w.logger.Warn("Journal queue full, dropping event",
			zap.String("event_type", string(ev.Type)),
			zap.Int64("version", int64(ev.Version)),
			zap.Int("queue_size", len(w.queue)),
		)
		w.metrics.recordJournal(context.Background(), ErrJournalQueueFull)
		return ErrJournalQueueFull
	}
}

// Stop stops accepting Events, writes everything already queued, and waits
// for the worker to exit. It does not close the Journal
func (w *JournalWorker) Stop() {
	if w.detach != nil {
		w.detach()
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *JournalWorker) run() {
	defer w.wg.Done()
	for ev := range w.queue {
		w.write(ev)
	}
}

func (w *JournalWorker) write(ev *Event) {
	ctx, cancel := context.WithTimeout(
		context.Background(), w.config.SaveTimeout,
	)
	defer cancel()

	start := time.Now()
	err := w.journal.Append(ctx, ev)
	duration := time.Since(start)
	w.metrics.recordJournal(ctx, err)

	if err != nil {
		w.logger.Error("Failed to append event to journal",
			zap.String("event_type", string(ev.Type)),
			zap.Int64("version", int64(ev.Version)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}

	w.logger.Debug("Event journaled",
		zap.String("event_type", string(ev.Type)),
		zap.Int64("version", int64(ev.Version)),
		zap.Duration("duration", duration),
	)
}
