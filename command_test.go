package rewind_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kode4food/rewind"
)

func TestSetCommand(t *testing.T) {
	st := rewind.State[int]{"a": 1}

	cmd := rewind.Set[int]("a", 2)
	assert.Equal(t, rewind.CommandSet, cmd.Type())
	assert.Equal(t, rewind.Key("a"), cmd.Key())
	assert.Equal(t, 2, cmd.Value())

	_, existed := cmd.Prior()
	assert.False(t, existed)

	bound := cmd.Bind(st).(rewind.SetCommand[int])
	prior, existed := bound.Prior()
	assert.True(t, existed)
	assert.Equal(t, 1, prior)

	// binding returns a new value
	_, existed = cmd.Prior()
	assert.False(t, existed)

	bound.Apply(st)
	assert.Equal(t, rewind.State[int]{"a": 2}, st)

	inv := bound.Invert()
	assert.Equal(t, rewind.CommandSet, inv.Type())
	inv.Apply(st)
	assert.Equal(t, rewind.State[int]{"a": 1}, st)

	assert.Equal(t, bound, inv.Invert())
}

func TestSetCommandNewKey(t *testing.T) {
	st := rewind.State[int]{}
	cmd := rewind.Set[int]("a", 5).Bind(st)
	cmd.Apply(st)

	inv := cmd.Invert()
	assert.Equal(t, rewind.CommandDelete, inv.Type())
	inv.Apply(st)
	assert.Empty(t, st)

	// undo followed by redo of the inverse restores the key
	inv.Invert().Apply(st)
	assert.Equal(t, rewind.State[int]{"a": 5}, st)
}

func TestDeleteCommand(t *testing.T) {
	st := rewind.State[string]{"a": "x", "b": "y"}

	cmd := rewind.Delete[string]("a").Bind(st)
	assert.Equal(t, rewind.CommandDelete, cmd.Type())
	assert.Equal(t, rewind.Key("a"), cmd.Key())

	prior, existed := cmd.(rewind.DeleteCommand[string]).Prior()
	assert.True(t, existed)
	assert.Equal(t, "x", prior)

	cmd.Apply(st)
	assert.Equal(t, rewind.State[string]{"b": "y"}, st)

	cmd.Invert().Apply(st)
	assert.Equal(t, rewind.State[string]{"a": "x", "b": "y"}, st)
}

func TestDeleteMissing(t *testing.T) {
	st := rewind.State[string]{"b": "y"}
	cmd := rewind.Delete[string]("a").Bind(st)

	cmd.Apply(st)
	inv := cmd.Invert()
	assert.Equal(t, cmd, inv)
	inv.Apply(st)
	assert.Equal(t, rewind.State[string]{"b": "y"}, st)
}

func TestCommandJSON(t *testing.T) {
	st := rewind.State[int]{"a": 1}

	data, err := json.Marshal(rewind.Set[int]("a", 2).Bind(st))
	assert.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"set","key":"a","value":2,"prior":1,"existed":true}`,
		string(data),
	)

	data, err = json.Marshal(rewind.Set[int]("b", 0))
	assert.NoError(t, err)
	assert.JSONEq(t, `{"type":"set","key":"b","value":0}`, string(data))

	data, err = json.Marshal(rewind.Delete[int]("a").Bind(st))
	assert.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"delete","key":"a","prior":1,"existed":true}`, string(data),
	)
}
