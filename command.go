package rewind

import "encoding/json"

type (
	// Command is a self-contained, invertible mutation of a State. Commands
	// are values: deriving a bound or inverted Command never changes the
	// original
	Command[V comparable] interface {
		Type() CommandType
		Key() Key
		Apply(State[V])
		Invert() Command[V]
	}

	// Binder is implemented by Commands that need to capture the State they
	// are about to modify in order to compute an exact inverse. The
	// Coordinator binds every Command against the live State before
	// applying it
	Binder[V comparable] interface {
		Bind(State[V]) Command[V]
	}

	// SetCommand stores a value under a key
	SetCommand[V comparable] struct {
		key     Key
		value   V
		prior   V
		existed bool
	}

	// DeleteCommand removes a key
	DeleteCommand[V comparable] struct {
		key     Key
		prior   V
		existed bool
	}

	commandRecord[V comparable] struct {
		Type    CommandType `json:"type"`
		Key     Key         `json:"key"`
		Value   *V          `json:"value,omitempty"`
		Prior   *V          `json:"prior,omitempty"`
		Existed bool        `json:"existed,omitempty"`
	}
)

const (
	CommandSet    CommandType = "set"
	CommandDelete CommandType = "delete"
)

// Set returns a Command that stores value under key
func Set[V comparable](key Key, value V) SetCommand[V] {
	return SetCommand[V]{key: key, value: value}
}

// Delete returns a Command that removes key
func Delete[V comparable](key Key) DeleteCommand[V] {
	return DeleteCommand[V]{key: key}
}

func (c SetCommand[V]) Type() CommandType {
	return CommandSet
}

func (c SetCommand[V]) Key() Key {
	return c.key
}

// Value returns the value this Command stores
func (c SetCommand[V]) Value() V {
	return c.value
}

// Prior returns the value the key held before the Command was bound, and
// whether the key existed at all
func (c SetCommand[V]) Prior() (V, bool) {
	return c.prior, c.existed
}

func (c SetCommand[V]) Apply(st State[V]) {
	st[c.key] = c.value
}

func (c SetCommand[V]) Bind(st State[V]) Command[V] {
	c.prior, c.existed = st[c.key]
	return c
}

func (c SetCommand[V]) Invert() Command[V] {
	if c.existed {
		return SetCommand[V]{
			key:     c.key,
			value:   c.prior,
			prior:   c.value,
			existed: true,
		}
	}
	return DeleteCommand[V]{
		key:     c.key,
		prior:   c.value,
		existed: true,
	}
}

func (c SetCommand[V]) MarshalJSON() ([]byte, error) {
	rec := commandRecord[V]{
		Type:    CommandSet,
		Key:     c.key,
		Value:   &c.value,
		Existed: c.existed,
	}
	if c.existed {
		rec.Prior = &c.prior
	}
	return json.Marshal(rec)
}

func (c DeleteCommand[V]) Type() CommandType {
	return CommandDelete
}

func (c DeleteCommand[V]) Key() Key {
	return c.key
}

// Prior returns the value the key held before the Command was bound, and
// whether the key existed at all
func (c DeleteCommand[V]) Prior() (V, bool) {
	return c.prior, c.existed
}

func (c DeleteCommand[V]) Apply(st State[V]) {
	delete(st, c.key)
}

func (c DeleteCommand[V]) Bind(st State[V]) Command[V] {
	c.prior, c.existed = st[c.key]
	return c
}

func (c DeleteCommand[V]) Invert() Command[V] {
	if !c.existed {
		return c
	}
	return SetCommand[V]{key: c.key, value: c.prior}
}

func (c DeleteCommand[V]) MarshalJSON() ([]byte, error) {
	rec := commandRecord[V]{
		Type:    CommandDelete,
		Key:     c.key,
		Existed: c.existed,
	}
	if c.existed {
		rec.Prior = &c.prior
	}
	return json.Marshal(rec)
}
