// Package journal provides rewind.Journal implementations that record the
// events published by a rewind.Coordinator in Redis, bbolt, Postgres, or
// etcd. Every implementation accepts events in version order, ignores
// versions it has already recorded, and rejects gaps.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/kode4food/rewind"
)

type (
	// Config selects and configures journal backends. Every backend with a
	// non-empty address, path, or DSN is opened
	Config struct {
		Bolt     BoltConfig     `toml:"bolt"`
		Redis    RedisConfig    `toml:"redis"`
		Postgres PostgresConfig `toml:"postgres"`
		Etcd     EtcdConfig     `toml:"etcd"`
	}

	// VersionGapError is returned when an appended event does not directly
	// follow the last recorded version
	VersionGapError struct {
		Last rewind.Version
		Next rewind.Version
	}

	fileConfig struct {
		Journal Config `toml:"journal"`
	}
)

// ConnectTimeout bounds the initial connection check of network backends
const ConnectTimeout = 5 * time.Second

// ErrNoJournal is returned by Open when no backend is configured
var ErrNoJournal = errors.New("no journal backend configured")

func (e *VersionGapError) Error() string {
	return fmt.Sprintf(
		"version gap: last recorded version %d, but received %d",
		e.Last, e.Next,
	)
}

// LoadConfig decodes the [journal] table of a TOML file
func LoadConfig(path string) (Config, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return Config{}, fmt.Errorf("loading journal config %s: %w", path, err)
	}
	return fc.Journal, nil
}

// Open opens every configured backend. A single backend is returned as is;
// several are combined with Tee, the first one opened serving reads
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (rewind.Journal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var js []rewind.Journal
	closeAll := func() {
		for _, j := range js {
			_ = j.Close()
		}
	}

	if cfg.Bolt.Path != "" {
		j, err := OpenBolt(cfg.Bolt)
		if err != nil {
			return nil, err
		}
		js = append(js, j)
	}
	if cfg.Redis.Addr != "" {
		j, err := OpenRedis(ctx, cfg.Redis)
		if err != nil {
			closeAll()
			return nil, err
		}
		js = append(js, j)
	}
	if cfg.Postgres.DSN != "" {
		j, err := OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			closeAll()
			return nil, err
		}
		js = append(js, j)
	}
	if len(cfg.Etcd.Endpoints) > 0 {
		j, err := OpenEtcd(ctx, cfg.Etcd)
		if err != nil {
			closeAll()
			return nil, err
		}
		js = append(js, j)
	}

	logger.Debug("Journal backends opened", zap.Int("count", len(js)))
	switch len(js) {
	case 0:
		return nil, ErrNoJournal
	case 1:
		return js[0], nil
	default:
		return Tee(js...), nil
	}
}

// checkNext decides whether next may be appended after last. An empty
// journal accepts any version. Versions at or below last were already
// recorded and are skipped
func checkNext(last, next rewind.Version, empty bool) (bool, error) {
	switch {
	case empty:
		return true, nil
	case next <= last:
		return false, nil
	case next != last+1:
		return false, &VersionGapError{Last: last, Next: next}
	default:
		return true, nil
	}
}

func encodeEvent(ev *rewind.Event) ([]byte, error) {
	return json.Marshal(ev)
}

func decodeEvent(data []byte) (*rewind.Event, error) {
	ev := &rewind.Event{}
	if err := json.Unmarshal(data, ev); err != nil {
		return nil, err
	}
	return ev, nil
}
