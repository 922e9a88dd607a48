package journal

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/kode4food/rewind"
)

type (
	// BoltConfig configures a bbolt journal
	BoltConfig struct {
		Path    string        `toml:"path"`
		Bucket  string        `toml:"bucket"`
		Timeout time.Duration `toml:"timeout"`
	}

	// Bolt records events in a bbolt bucket keyed by big-endian version,
	// so cursor order is version order
	Bolt struct {
		db     *bolt.DB
		bucket []byte
	}
)

const DefaultBoltBucket = "journal"

var _ rewind.Journal = (*Bolt)(nil)

// OpenBolt opens or creates the database file and its bucket
func OpenBolt(cfg BoltConfig) (*Bolt, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = ConnectTimeout
	}
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("opening bolt journal %s: %w", cfg.Path, err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = DefaultBoltBucket
	}
	b := &Bolt{db: db, bucket: []byte(bucket)}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(b.bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bolt) Append(_ context.Context, ev *rewind.Event) error {
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(b.bucket)
		k, _ := bkt.Cursor().Last()

		var last rewind.Version
		if k != nil {
			last = versionFromKey(k)
		}
		ok, err := checkNext(last, ev.Version, k == nil)
		if err != nil || !ok {
			return err
		}
		return bkt.Put(versionKey(ev.Version), data)
	})
}

func (b *Bolt) Read(
	_ context.Context, from rewind.Version,
) ([]*rewind.Event, error) {
	if from < 0 {
		from = 0
	}

	var evs []*rewind.Event
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(b.bucket).Cursor()
		for k, v := c.Seek(versionKey(from)); k != nil; k, v = c.Next() {
			ev, err := decodeEvent(v)
			if err != nil {
				return err
			}
			evs = append(evs, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return evs, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

func versionKey(v rewind.Version) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(v))
	return k
}

func versionFromKey(k []byte) rewind.Version {
	return rewind.Version(binary.BigEndian.Uint64(k))
}
