package rewind

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the instruments for a single Coordinator. A nil *metrics
// records nothing
type metrics struct {
	beginTotal      metric.Int64Counter
	commitTotal     metric.Int64Counter
	rollbackTotal   metric.Int64Counter
	undoTotal       metric.Int64Counter
	redoTotal       metric.Int64Counter
	commandsPerTx   metric.Int64Histogram
	txDuration      metric.Float64Histogram
	activeGauge     metric.Int64UpDownCounter
	journalWrites   metric.Int64Counter
	journalFailures metric.Int64Counter
	droppedEvents   metric.Int64Counter
}

const meterName = "github.com/kode4food/rewind"

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	m := &metrics{}

	var err error
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.beginTotal, "rewind_begin_total", "Transactions begun"},
		{&m.commitTotal, "rewind_commit_total", "Transactions committed"},
		{&m.rollbackTotal, "rewind_rollback_total", "Transactions rolled back"},
		{&m.undoTotal, "rewind_undo_total", "Commands undone"},
		{&m.redoTotal, "rewind_redo_total", "Commands redone"},
		{&m.journalWrites, "rewind_journal_writes_total", "Events written to a journal"},
		{&m.journalFailures, "rewind_journal_failures_total", "Journal writes that failed or were dropped"},
		{&m.droppedEvents, "rewind_dropped_events_total", "Events dropped by full consumers"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}

	m.commandsPerTx, err = meter.Int64Histogram(
		"rewind_commands_per_transaction",
		metric.WithDescription("Commands applied per committed transaction"),
	)
	if err != nil {
		return nil, err
	}

	m.txDuration, err = meter.Float64Histogram(
		"rewind_transaction_duration_seconds",
		metric.WithDescription("Time between Begin and Commit or Rollback"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.activeGauge, err = meter.Int64UpDownCounter(
		"rewind_transaction_active",
		metric.WithDescription("Whether a transaction is active"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metrics) recordBegin(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	m.beginTotal.Add(ctx, 1, statusAttr(ok))
	if ok {
		m.activeGauge.Add(ctx, 1)
	}
}

func (m *metrics) recordCommit(
	ctx context.Context, commands int, dur time.Duration,
) {
	if m == nil {
		return
	}
	m.commitTotal.Add(ctx, 1)
	m.commandsPerTx.Record(ctx, int64(commands))
	m.txDuration.Record(ctx, dur.Seconds(), metric.WithAttributes(
		attribute.String("outcome", string(StatusCommitted)),
	))
	m.activeGauge.Add(ctx, -1)
}

func (m *metrics) recordRollback(ctx context.Context, dur time.Duration) {
	if m == nil {
		return
	}
	m.rollbackTotal.Add(ctx, 1)
	m.txDuration.Record(ctx, dur.Seconds(), metric.WithAttributes(
		attribute.String("outcome", string(StatusRolledBack)),
	))
	m.activeGauge.Add(ctx, -1)
}

func (m *metrics) recordUndo(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	m.undoTotal.Add(ctx, 1, statusAttr(ok))
}

func (m *metrics) recordRedo(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	m.redoTotal.Add(ctx, 1, statusAttr(ok))
}

func (m *metrics) recordJournal(ctx context.Context, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.journalFailures.Add(ctx, 1)
		return
	}
	m.journalWrites.Add(ctx, 1)
}

func (m *metrics) recordDrop(ctx context.Context, typ EventType) {
	if m == nil {
		return
	}
	m.droppedEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", string(typ)),
	))
}

func statusAttr(ok bool) metric.AddOption {
	status := "success"
	if !ok {
		status = "error"
	}
	return metric.WithAttributes(attribute.String("status", status))
}
