package rewind

import (
	"maps"
	"slices"

	"github.com/google/uuid"
)

type (
	// State maps keys to values. Commands mutate a State in place
	State[V comparable] map[Key]V

	// CopyFunc produces a deep copy of a value. Values that are not
	// pointers or do not contain pointers can use the identity
	CopyFunc[V comparable] func(V) V

	// Store owns the live State. Apply is the only way to mutate it. A Store
	// is not safe for concurrent use; the Coordinator serializes access
	Store[V comparable] struct {
		data State[V]
		copy CopyFunc[V]
		id   uuid.UUID
	}
)

// NewStore creates an empty Store with a fresh identity tag. If cp is
// nil, values are copied by assignment
func NewStore[V comparable](cp CopyFunc[V]) *Store[V] {
	if cp == nil {
		cp = identity[V]
	}
	return &Store[V]{
		data: State[V]{},
		copy: cp,
		id:   uuid.New(),
	}
}

// ID returns the Store's identity tag. Snapshots record it so they can
// only be restored into the Store they came from
func (s *Store[V]) ID() uuid.UUID {
	return s.id
}

// Get returns the value for key, or ErrNotFound
func (s *Store[V]) Get(key Key) (V, error) {
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	var zero V
	return zero, ErrNotFound
}

// Lookup returns the value for key and whether it was present
func (s *Store[V]) Lookup(key Key) (V, bool) {
	v, ok := s.data[key]
	return v, ok
}

// Apply mutates the State using the provided Command
func (s *Store[V]) Apply(cmd Command[V]) {
	cmd.Apply(s.data)
}

// Len returns the number of keys in the State
func (s *Store[V]) Len() int {
	return len(s.data)
}

// Keys returns the State's keys in sorted order
func (s *Store[V]) Keys() []Key {
	return slices.Sorted(maps.Keys(s.data))
}

// Contents returns a deep copy of the State
func (s *Store[V]) Contents() State[V] {
	return s.data.clone(s.copy)
}

func (s *Store[V]) state() State[V] {
	return s.data
}

func (s *Store[V]) replace(data State[V]) {
	s.data = data.clone(s.copy)
}

func (st State[V]) clone(cp CopyFunc[V]) State[V] {
	res := make(State[V], len(st))
	for k, v := range st {
		res[k] = cp(v)
	}
	return res
}

func identity[V comparable](v V) V {
	return v
}
