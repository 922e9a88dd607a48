package journal

import (
	"context"
	"fmt"
	"strconv"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/kode4food/rewind"
)

type (
	// EtcdConfig configures an etcd journal
	EtcdConfig struct {
		Endpoints   []string      `toml:"endpoints"`
		Prefix      string        `toml:"prefix"`
		DialTimeout time.Duration `toml:"dial_timeout"`
	}

	// Etcd records one key per event under a prefix. Keys carry the version
	// zero-padded so a range read returns them in version order. Appends
	// are guarded by a transaction on the last version key
	Etcd struct {
		client *clientv3.Client
		events string
		last   string
	}
)

const DefaultEtcdPrefix = "/rewind"

var _ rewind.Journal = (*Etcd)(nil)

// OpenEtcd connects to the cluster and verifies the connection
func OpenEtcd(ctx context.Context, cfg EtcdConfig) (*Etcd, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, ErrNoJournal
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = ConnectTimeout
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to etcd: %w", err)
	}

	statusCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if _, err := client.Status(statusCtx, cfg.Endpoints[0]); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to etcd: %w", err)
	}
	return NewEtcd(client, cfg.Prefix), nil
}

// NewEtcd wraps an existing client. Keys are placed under prefix
func NewEtcd(client *clientv3.Client, prefix string) *Etcd {
	if prefix == "" {
		prefix = DefaultEtcdPrefix
	}
	return &Etcd{
		client: client,
		events: prefix + "/journal/events/",
		last:   prefix + "/journal/last",
	}
}

func (e *Etcd) Append(ctx context.Context, ev *rewind.Event) error {
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	next := strconv.FormatInt(int64(ev.Version), 10)

	for {
		resp, err := e.client.Get(ctx, e.last)
		if err != nil {
			return err
		}

		var (
			last  rewind.Version
			guard clientv3.Cmp
		)
		empty := len(resp.Kvs) == 0
		if empty {
			guard = clientv3.Compare(clientv3.CreateRevision(e.last), "=", 0)
		} else {
			cur := string(resp.Kvs[0].Value)
			n, err := strconv.ParseInt(cur, 10, 64)
			if err != nil {
				return fmt.Errorf("parsing last journal version: %w", err)
			}
			last = rewind.Version(n)
			guard = clientv3.Compare(clientv3.Value(e.last), "=", cur)
		}

		ok, err := checkNext(last, ev.Version, empty)
		if err != nil || !ok {
			return err
		}

		txn, err := e.client.Txn(ctx).
			If(guard).
			Then(
				clientv3.OpPut(e.eventKey(ev.Version), string(data)),
				clientv3.OpPut(e.last, next),
			).
			Commit()
		if err != nil {
			return err
		}
		if txn.Succeeded {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (e *Etcd) Read(
	ctx context.Context, from rewind.Version,
) ([]*rewind.Event, error) {
	if from < 0 {
		from = 0
	}
	resp, err := e.client.Get(ctx, e.eventKey(from),
		clientv3.WithRange(clientv3.GetPrefixRangeEnd(e.events)),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend),
	)
	if err != nil {
		return nil, err
	}

	evs := make([]*rewind.Event, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		ev, err := decodeEvent(kv.Value)
		if err != nil {
			return nil, err
		}
		evs = append(evs, ev)
	}
	return evs, nil
}

func (e *Etcd) Close() error {
	return e.client.Close()
}

func (e *Etcd) eventKey(v rewind.Version) string {
	return fmt.Sprintf("%s%020d", e.events, v)
}
