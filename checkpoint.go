package rewind

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

type (
	// Snapshot is an immutable, deep-copied image of a Store's State
	Snapshot[V comparable] struct {
		taken   time.Time
		data    State[V]
		version Version
		storeID uuid.UUID
	}

	// Checkpoints captures Snapshots of a Store and restores them. The most
	// recently saved Snapshots are retained and can be looked up by version.
	// Checkpoints is not safe for concurrent use
	Checkpoints[V comparable] struct {
		store    *Store[V]
		retained *lruCache[Version, *Snapshot[V]]
		next     Version
	}
)

// NewCheckpoints creates a Checkpoints manager for the Store that retains
// up to retain saved Snapshots
func NewCheckpoints[V comparable](store *Store[V], retain int) *Checkpoints[V] {
	return &Checkpoints[V]{
		store:    store,
		retained: newLRUCache[Version, *Snapshot[V]](retain),
		next:     1,
	}
}

// Capture deep-copies the Store's current State into a new Snapshot
func (c *Checkpoints[V]) Capture() *Snapshot[V] {
	snap := &Snapshot[V]{
		taken:   time.Now(),
		data:    c.store.Contents(),
		version: c.next,
		storeID: c.store.ID(),
	}
	c.next++
	return snap
}

// Save captures a Snapshot and retains it for Lookup
func (c *Checkpoints[V]) Save() *Snapshot[V] {
	snap := c.Capture()
	c.retained.Put(snap.version, snap)
	return snap
}

// Restore overwrites the Store's State with a deep copy of the Snapshot.
// Restoring the same Snapshot repeatedly yields the same State
func (c *Checkpoints[V]) Restore(snap *Snapshot[V]) error {
	if snap.storeID != c.store.ID() {
		return &SnapshotExpiredError{
			Version:  snap.version,
			Captured: snap.storeID,
			Current:  c.store.ID(),
		}
	}
	c.store.replace(snap.data)
	return nil
}

// Lookup returns a retained Snapshot by version. Only the most recently
// saved Snapshots are retained
func (c *Checkpoints[V]) Lookup(v Version) (*Snapshot[V], bool) {
	return c.retained.Get(v)
}

// Version returns the version of the most recently captured Snapshot, or
// zero if none has been captured
func (c *Checkpoints[V]) Version() Version {
	return c.next - 1
}

// Version returns the version assigned when the Snapshot was captured
func (s *Snapshot[V]) Version() Version {
	return s.version
}

// StoreID returns the identity tag of the Store the Snapshot came from
func (s *Snapshot[V]) StoreID() uuid.UUID {
	return s.storeID
}

// Taken returns the time the Snapshot was captured
func (s *Snapshot[V]) Taken() time.Time {
	return s.taken
}

// Get returns the captured value for key, or ErrNotFound
func (s *Snapshot[V]) Get(key Key) (V, error) {
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	var zero V
	return zero, ErrNotFound
}

// Len returns the number of keys captured
func (s *Snapshot[V]) Len() int {
	return len(s.data)
}

// Keys returns the captured keys in sorted order
func (s *Snapshot[V]) Keys() []Key {
	return slices.Sorted(maps.Keys(s.data))
}

// diff returns the bound Commands that turn cur into the Snapshot's State
func (s *Snapshot[V]) diff(cur State[V], cp CopyFunc[V]) []Command[V] {
	var res []Command[V]
	for _, k := range slices.Sorted(maps.Keys(cur)) {
		if _, ok := s.data[k]; !ok {
			res = append(res, Delete[V](k).Bind(cur))
		}
	}
	for _, k := range s.Keys() {
		want := s.data[k]
		if have, ok := cur[k]; !ok || have != want {
			res = append(res, Set(k, cp(want)).Bind(cur))
		}
	}
	return res
}
