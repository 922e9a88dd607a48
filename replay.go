package rewind

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// ApplyEvents applies the Commands carried by State-changing Events to the
// Store in order and returns the version of the last Event applied. Events
// of other types are skipped. Every Event is decoded before any is applied,
// so a decoding error leaves the Store untouched
func ApplyEvents[V comparable](
	store *Store[V], dec Decoders[V], evs []*Event,
) (Version, error) {
	var last Version
	var cmds []Command[V]
	for _, ev := range evs {
		if !isStateEvent(ev.Type) {
			continue
		}
		dc, err := dec.Decode(ev.Data)
		if err != nil {
			return 0, fmt.Errorf("decoding event %d: %w", ev.Version, err)
		}
		cmds = append(cmds, dc...)
		last = ev.Version
	}

	for _, cmd := range cmds {
		store.Apply(cmd)
	}
	return last, nil
}

// Replay reads every Event newer than the Coordinator's version from the
// Journal and applies it. Replayed changes are not undoable, so the History
// is cleared. Replayed Events are not published again. If any Event cannot
// be decoded, nothing is applied
func (c *Coordinator[V]) Replay(
	ctx context.Context, j Journal, dec Decoders[V],
) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return 0, ErrTransactionActive
	}

	evs, err := j.Read(ctx, c.version+1)
	if err != nil {
		return 0, fmt.Errorf("reading journal: %w", err)
	}
	if len(evs) == 0 {
		return 0, nil
	}

	last, err := ApplyEvents(c.store, dec, evs)
	if err != nil {
		return 0, err
	}
	if last > c.version {
		c.version = last
	}
	c.history.Clear()

	c.logger.Info("Journal replayed",
		zap.Int("events", len(evs)),
		zap.Int64("version", int64(c.version)),
	)
	return len(evs), nil
}

func isStateEvent(typ EventType) bool {
	return slices.Contains(StateEvents, typ)
}
