package rewind_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kode4food/rewind"
)

func testConfig(t *testing.T) rewind.Config {
	cfg := rewind.DefaultConfig()
	cfg.Logger = zaptest.NewLogger(t)
	cfg.EnableMetrics = false
	return cfg
}

func newCoordinator(t *testing.T) *rewind.Coordinator[int] {
	t.Helper()
	c, err := rewind.New[int](testConfig(t))
	require.NoError(t, err)
	return c
}

func commit(t *testing.T, c *rewind.Coordinator[int], cmds ...rewind.Command[int]) {
	t.Helper()
	_, err := c.Begin()
	require.NoError(t, err)
	for _, cmd := range cmds {
		require.NoError(t, c.Execute(cmd))
	}
	require.NoError(t, c.Commit())
}

func TestWorkedScenario(t *testing.T) {
	c := newCoordinator(t)

	_, err := c.Begin()
	assert.NoError(t, err)
	assert.NoError(t, c.Execute(rewind.Set[int]("x", 1)))
	assert.NoError(t, c.Execute(rewind.Set[int]("x", 2)))
	assert.NoError(t, c.Commit())

	x, err := c.Get("x")
	assert.NoError(t, err)
	assert.Equal(t, 2, x)

	assert.NoError(t, c.Undo())
	x, err = c.Get("x")
	assert.NoError(t, err)
	assert.Equal(t, 1, x)

	assert.NoError(t, c.Undo())
	_, err = c.Get("x")
	assert.ErrorIs(t, err, rewind.ErrNotFound)

	assert.NoError(t, c.Redo())
	assert.NoError(t, c.Redo())
	x, err = c.Get("x")
	assert.NoError(t, err)
	assert.Equal(t, 2, x)
}

func TestReadYourWrites(t *testing.T) {
	c := newCoordinator(t)

	_, err := c.Begin()
	require.NoError(t, err)
	require.NoError(t, c.Execute(rewind.Set[int]("a", 7)))

	a, err := c.Get("a")
	assert.NoError(t, err)
	assert.Equal(t, 7, a)
	assert.Equal(t, rewind.Version(0), c.Version())
}

func TestUndoRedoRoundTrip(t *testing.T) {
	c := newCoordinator(t)
	commit(t, c, rewind.Set[int]("a", 1), rewind.Set[int]("b", 2))

	cmds := []rewind.Command[int]{
		rewind.Set[int]("a", 10),
		rewind.Delete[int]("b"),
		rewind.Set[int]("c", 3),
		rewind.Delete[int]("missing"),
		rewind.Set[int]("c", 4),
		rewind.Set[int]("b", 5),
	}
	commit(t, c, cmds...)
	after := c.Contents()

	for range cmds {
		assert.NoError(t, c.Undo())
	}
	assert.Equal(t, rewind.State[int]{"a": 1, "b": 2}, c.Contents())

	for range cmds {
		assert.NoError(t, c.Redo())
	}
	assert.Equal(t, after, c.Contents())
	assert.Equal(t, rewind.State[int]{"a": 10, "b": 5, "c": 4}, after)
}

func TestRollbackExactness(t *testing.T) {
	cmds := map[string]rewind.Command[int]{
		"set new":        rewind.Set[int]("z", 9),
		"set existing":   rewind.Set[int]("a", 9),
		"delete":         rewind.Delete[int]("a"),
		"delete missing": rewind.Delete[int]("z"),
	}

	for name, cmd := range cmds {
		t.Run(name, func(t *testing.T) {
			c := newCoordinator(t)
			commit(t, c, rewind.Set[int]("a", 1), rewind.Set[int]("b", 2))
			before := c.Contents()
			version := c.Version()

			_, err := c.Begin()
			require.NoError(t, err)
			require.NoError(t, c.Execute(cmd))
			require.NoError(t, c.Rollback())

			assert.Equal(t, before, c.Contents())
			assert.Equal(t, version, c.Version())
			assert.False(t, c.InTransaction())
			assert.False(t, c.CanRedo())
		})
	}
}

func TestRollbackDoesNotTouchHistory(t *testing.T) {
	c := newCoordinator(t)
	commit(t, c, rewind.Set[int]("a", 1))
	require.NoError(t, c.Undo())

	_, err := c.Begin()
	require.NoError(t, err)
	require.NoError(t, c.Execute(rewind.Set[int]("a", 2)))
	require.NoError(t, c.Rollback())

	assert.True(t, c.CanRedo())
	assert.NoError(t, c.Redo())
	a, err := c.Get("a")
	assert.NoError(t, err)
	assert.Equal(t, 1, a)
}

func TestRedoInvalidation(t *testing.T) {
	c := newCoordinator(t)
	commit(t, c, rewind.Set[int]("a", 1))
	require.NoError(t, c.Undo())
	assert.True(t, c.CanRedo())

	commit(t, c, rewind.Set[int]("b", 2))
	assert.False(t, c.CanRedo())
	assert.ErrorIs(t, c.Redo(), rewind.ErrEmptyHistory)
}

func TestNoNesting(t *testing.T) {
	c := newCoordinator(t)

	id, err := c.Begin()
	require.NoError(t, err)
	require.NoError(t, c.Execute(rewind.Set[int]("a", 1)))

	_, err = c.Begin()
	assert.ErrorIs(t, err, rewind.ErrTransactionAlreadyActive)

	active, ok := c.Active()
	assert.True(t, ok)
	assert.Equal(t, id, active)

	require.NoError(t, c.Commit())
	a, err := c.Get("a")
	assert.NoError(t, err)
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, undoAll(c))
}

func undoAll(c *rewind.Coordinator[int]) int {
	n := 0
	for c.Undo() == nil {
		n++
	}
	return n
}

func TestStateErrors(t *testing.T) {
	c := newCoordinator(t)

	assert.ErrorIs(t, c.Execute(rewind.Set[int]("a", 1)), rewind.ErrNoActiveTransaction)
	assert.ErrorIs(t, c.Commit(), rewind.ErrNoActiveTransaction)
	assert.ErrorIs(t, c.Rollback(), rewind.ErrNoActiveTransaction)
	assert.ErrorIs(t, c.Undo(), rewind.ErrEmptyHistory)
	assert.ErrorIs(t, c.Redo(), rewind.ErrEmptyHistory)

	_, err := c.UndoTransaction()
	assert.ErrorIs(t, err, rewind.ErrEmptyHistory)

	commit(t, c, rewind.Set[int]("a", 1))
	_, err = c.Begin()
	require.NoError(t, err)

	assert.ErrorIs(t, c.Undo(), rewind.ErrTransactionActive)
	assert.ErrorIs(t, c.Redo(), rewind.ErrTransactionActive)
	assert.ErrorIs(t, c.Execute(nil), rewind.ErrNilCommand)
	assert.False(t, c.CanUndo())

	_, err = c.Checkpoint()
	assert.ErrorIs(t, err, rewind.ErrTransactionActive)
	assert.ErrorIs(t, c.RevertTo(1), rewind.ErrTransactionActive)

	require.NoError(t, c.Rollback())
	assert.True(t, c.CanUndo())
}

func TestEmptyCommit(t *testing.T) {
	c := newCoordinator(t)
	events := c.NewConsumer()
	defer func() { _ = events.Close() }()

	_, err := c.Begin()
	require.NoError(t, err)
	require.NoError(t, c.Commit())

	assert.Equal(t, rewind.Version(0), c.Version())
	assert.False(t, c.CanUndo())
	assert.Empty(t, events.Receive())
}

func TestVersion(t *testing.T) {
	c := newCoordinator(t)
	assert.Equal(t, rewind.Version(0), c.Version())

	commit(t, c, rewind.Set[int]("a", 1))
	assert.Equal(t, rewind.Version(1), c.Version())

	require.NoError(t, c.Undo())
	assert.Equal(t, rewind.Version(2), c.Version())

	require.NoError(t, c.Redo())
	assert.Equal(t, rewind.Version(3), c.Version())

	_, err := c.Begin()
	require.NoError(t, err)
	require.NoError(t, c.Rollback())
	assert.Equal(t, rewind.Version(3), c.Version())
}

func TestUndoTransaction(t *testing.T) {
	c := newCoordinator(t)
	commit(t, c, rewind.Set[int]("a", 1))
	commit(t, c,
		rewind.Set[int]("a", 2),
		rewind.Set[int]("b", 3),
		rewind.Delete[int]("a"),
	)

	n, err := c.UndoTransaction()
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, rewind.State[int]{"a": 1}, c.Contents())

	n, err = c.RedoTransaction()
	assert.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, rewind.State[int]{"b": 3}, c.Contents())

	// partially undone transactions finish with UndoTransaction
	require.NoError(t, c.Undo())
	n, err = c.UndoTransaction()
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, rewind.State[int]{"a": 1}, c.Contents())

	n, err = c.UndoTransaction()
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, c.Contents())
}

func TestRun(t *testing.T) {
	t.Run("commits", func(t *testing.T) {
		c := newCoordinator(t)
		err := c.Run(func(ex rewind.Executor[int]) error {
			if err := ex.Execute(rewind.Set[int]("a", 1)); err != nil {
				return err
			}
			a, err := ex.Get("a")
			if err != nil {
				return err
			}
			return ex.Execute(rewind.Set[int]("b", a+1))
		})
		assert.NoError(t, err)
		assert.Equal(t, rewind.State[int]{"a": 1, "b": 2}, c.Contents())
		assert.False(t, c.InTransaction())
		assert.Equal(t, rewind.Version(1), c.Version())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		c := newCoordinator(t)
		commit(t, c, rewind.Set[int]("a", 1))
		failure := errors.New("boom")

		err := c.Run(func(ex rewind.Executor[int]) error {
			_ = ex.Execute(rewind.Set[int]("a", 2))
			return failure
		})
		assert.ErrorIs(t, err, failure)
		assert.Equal(t, rewind.State[int]{"a": 1}, c.Contents())
		assert.False(t, c.InTransaction())
	})

	t.Run("rolls back on panic", func(t *testing.T) {
		c := newCoordinator(t)
		commit(t, c, rewind.Set[int]("a", 1))

		assert.PanicsWithValue(t, "boom", func() {
			_ = c.Run(func(ex rewind.Executor[int]) error {
				_ = ex.Execute(rewind.Delete[int]("a"))
				panic("boom")
			})
		})
		assert.Equal(t, rewind.State[int]{"a": 1}, c.Contents())
		assert.False(t, c.InTransaction())
	})

	t.Run("refuses to nest", func(t *testing.T) {
		c := newCoordinator(t)
		_, err := c.Begin()
		require.NoError(t, err)

		called := false
		err = c.Run(func(rewind.Executor[int]) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, rewind.ErrTransactionAlreadyActive)
		assert.False(t, called)
		assert.True(t, c.InTransaction())
	})
}

func TestCheckpointRevert(t *testing.T) {
	c := newCoordinator(t)
	commit(t, c, rewind.Set[int]("a", 1), rewind.Set[int]("b", 2))

	snap, err := c.Checkpoint()
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())

	commit(t, c, rewind.Set[int]("a", 10), rewind.Delete[int]("b"))
	commit(t, c, rewind.Set[int]("c", 3))
	version := c.Version()

	require.NoError(t, c.RevertTo(snap.Version()))
	assert.Equal(t, rewind.State[int]{"a": 1, "b": 2}, c.Contents())
	assert.Equal(t, version+1, c.Version())

	// the revert is itself undoable
	_, err = c.UndoTransaction()
	assert.NoError(t, err)
	assert.Equal(t, rewind.State[int]{"a": 10, "c": 3}, c.Contents())

	// reverting to the current state records nothing
	require.NoError(t, c.Redo())
	require.NoError(t, c.Redo())
	require.NoError(t, c.Redo())
	version = c.Version()
	require.NoError(t, c.RevertTo(snap.Version()))
	assert.Equal(t, version, c.Version())

	err = c.RevertTo(snap.Version() + 100)
	assert.ErrorIs(t, err, rewind.ErrSnapshotNotRetained)
}

func TestCheckpointRetention(t *testing.T) {
	cfg := testConfig(t)
	cfg.RetainSnapshots = 2
	c, err := rewind.New[int](cfg)
	require.NoError(t, err)

	var snaps []*rewind.Snapshot[int]
	for i := range 3 {
		commit(t, c, rewind.Set[int]("a", i))
		snap, err := c.Checkpoint()
		require.NoError(t, err)
		snaps = append(snaps, snap)
	}

	assert.ErrorIs(t, c.RevertTo(snaps[0].Version()), rewind.ErrSnapshotNotRetained)
	assert.NoError(t, c.RevertTo(snaps[1].Version()))
	a, err := c.Get("a")
	assert.NoError(t, err)
	assert.Equal(t, 1, a)
}

func TestHistoryLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.HistoryLimit = 2
	c, err := rewind.New[int](cfg)
	require.NoError(t, err)

	commit(t, c, rewind.Set[int]("a", 1))
	commit(t, c, rewind.Set[int]("a", 2))
	commit(t, c, rewind.Set[int]("a", 3))

	assert.Equal(t, 2, undoAll(c))
	a, err := c.Get("a")
	assert.NoError(t, err)
	assert.Equal(t, 1, a)
}

func TestInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.HistoryLimit = -1
	_, err := rewind.New[int](cfg)
	assert.ErrorIs(t, err, rewind.ErrInvalidConfig)
}

func TestCoordinatorReads(t *testing.T) {
	c := newCoordinator(t)
	commit(t, c, rewind.Set[int]("b", 2), rewind.Set[int]("a", 1))

	assert.Equal(t, []rewind.Key{"a", "b"}, c.Keys())

	contents := c.Contents()
	contents["a"] = 100
	a, err := c.Get("a")
	assert.NoError(t, err)
	assert.Equal(t, 1, a)

	_, ok := c.Active()
	assert.False(t, ok)
	assert.NotNil(t, c.Hub())
}

func TestPointerValues(t *testing.T) {
	type box struct{ n int }
	cp := func(b *box) *box {
		res := *b
		return &res
	}

	store := rewind.NewStore[*box](cp)
	c, err := rewind.NewCoordinator(
		store, rewind.NewHistory[*box](0), testConfig(t),
	)
	require.NoError(t, err)

	orig := &box{n: 1}
	_, err = c.Begin()
	require.NoError(t, err)
	require.NoError(t, c.Execute(rewind.Set("a", orig)))
	require.NoError(t, c.Commit())

	_, err = c.Begin()
	require.NoError(t, err)
	require.NoError(t, c.Execute(rewind.Set("b", &box{n: 2})))
	orig.n = 50
	require.NoError(t, c.Rollback())

	// the pre-image was copied at Begin, so the rollback does not see the
	// caller's later change through the shared pointer
	a, err := c.Get("a")
	assert.NoError(t, err)
	assert.NotSame(t, orig, a)
	assert.Equal(t, 1, a.n)
}

func TestCommitUnencodable(t *testing.T) {
	c, err := rewind.New[float64](testConfig(t))
	require.NoError(t, err)
	require.False(t, c.Hub().HasSubscribers(rewind.EventCommitted))

	_, err = c.Begin()
	require.NoError(t, err)
	require.NoError(t, c.Execute(rewind.Set("a", math.NaN())))

	err = c.Commit()
	assert.Error(t, err)
	assert.False(t, c.CanUndo())
	assert.Equal(t, rewind.Version(0), c.Version())

	// the transaction is still open and can be rolled back
	require.NoError(t, c.Rollback())
	_, err = c.Get("a")
	assert.ErrorIs(t, err, rewind.ErrNotFound)
}
