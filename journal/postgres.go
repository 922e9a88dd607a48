package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kode4food/rewind"
)

type (
	// PostgresConfig configures a Postgres journal
	PostgresConfig struct {
		DSN   string `toml:"dsn"`
		Table string `toml:"table"`
	}

	// Postgres records events as rows keyed by version
	Postgres struct {
		pool  *pgxpool.Pool
		table string
	}
)

const DefaultPostgresTable = "rewind_journal"

var _ rewind.Journal = (*Postgres)(nil)

// OpenPostgres connects to the database and creates the journal table if
// it does not exist
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	p, err := NewPostgres(ctx, pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres uses an existing pool, creating the journal table if needed
func NewPostgres(
	ctx context.Context, pool *pgxpool.Pool, table string,
) (*Postgres, error) {
	if table == "" {
		table = DefaultPostgresTable
	}
	p := &Postgres{
		pool:  pool,
		table: pgx.Identifier{table}.Sanitize(),
	}

	_, err := pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version    BIGINT PRIMARY KEY,
			tx_id      TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL,
			data       JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`, p.table),
	)
	if err != nil {
		return nil, fmt.Errorf("creating journal table: %w", err)
	}
	return p, nil
}

func (p *Postgres) Append(ctx context.Context, ev *rewind.Event) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var last *int64
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT MAX(version) FROM %s`, p.table),
	).Scan(&last)
	if err != nil {
		return err
	}

	var lastVersion rewind.Version
	if last != nil {
		lastVersion = rewind.Version(*last)
	}
	ok, err := checkNext(lastVersion, ev.Version, last == nil)
	if err != nil || !ok {
		return err
	}

	data := ev.Data
	if len(data) == 0 {
		data = []byte("null")
	}
	_, err = tx.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (version, tx_id, event_type, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (version) DO NOTHING`, p.table),
		int64(ev.Version), string(ev.TxID), string(ev.Type),
		string(data), ev.Timestamp,
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Read(
	ctx context.Context, from rewind.Version,
) ([]*rewind.Event, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
		SELECT version, tx_id, event_type, data::text, created_at
		FROM %s WHERE version >= $1 ORDER BY version`, p.table),
		int64(from),
	)
	if err != nil {
		return nil, err
	}

	evs, err := pgx.CollectRows(rows,
		func(row pgx.CollectableRow) (*rewind.Event, error) {
			var (
				version int64
				txID    string
				typ     string
				data    string
				ev      rewind.Event
			)
			err := row.Scan(&version, &txID, &typ, &data, &ev.Timestamp)
			if err != nil {
				return nil, err
			}
			ev.Version = rewind.Version(version)
			ev.TxID = rewind.TxID(txID)
			ev.Type = rewind.EventType(typ)
			ev.Data = []byte(data)
			return &ev, nil
		},
	)
	if err != nil {
		return nil, err
	}
	return evs, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
