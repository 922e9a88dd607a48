package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/kode4food/rewind"
)

type (
	// RedisConfig configures a Redis journal
	RedisConfig struct {
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
		Prefix   string `toml:"prefix"`
	}

	// Redis records events in a Redis list. Appends run as a Lua script so
	// the version check and the push are atomic
	Redis struct {
		client         *redis.Client
		appendEventLua *redis.Script
		readEventsLua  *redis.Script
		prefix         string
	}
)

const (
	DefaultRedisPrefix = "rewind"

	eventsSuffix = ":journal:events"
	baseSuffix   = ":journal:base"
	lastSuffix   = ":journal:last"
)

// ErrUnexpectedLuaResult is returned when a script replies with a shape the
// journal does not understand
var ErrUnexpectedLuaResult = errors.New("unexpected result from Lua script")

var _ rewind.Journal = (*Redis)(nil)

// OpenRedis connects to Redis and verifies the connection
func OpenRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", cfg.Addr, err)
	}
	return NewRedis(client, cfg.Prefix), nil
}

// NewRedis wraps an existing client. Keys are placed under prefix
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{
		client:         client,
		appendEventLua: redis.NewScript(luaAppendEvent),
		readEventsLua:  redis.NewScript(luaReadEvents),
		prefix:         prefix,
	}
}

func (r *Redis) Append(ctx context.Context, ev *rewind.Event) error {
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}

	keys := []string{
		r.prefix + eventsSuffix, r.prefix + baseSuffix, r.prefix + lastSuffix,
	}
	result, err := r.appendEventLua.Run(
		ctx, r.client, keys, int64(ev.Version), string(data),
	).Result()
	if err != nil {
		return err
	}

	res, ok := result.([]any)
	if !ok || len(res) != 2 {
		return ErrUnexpectedLuaResult
	}
	status, ok1 := res[0].(int64)
	last, ok2 := res[1].(int64)
	if !ok1 || !ok2 {
		return ErrUnexpectedLuaResult
	}

	if status < 0 {
		return &VersionGapError{
			Last: rewind.Version(last),
			Next: ev.Version,
		}
	}
	return nil
}

func (r *Redis) Read(
	ctx context.Context, from rewind.Version,
) ([]*rewind.Event, error) {
	keys := []string{r.prefix + eventsSuffix, r.prefix + baseSuffix}
	result, err := r.readEventsLua.Run(
		ctx, r.client, keys, int64(from),
	).Result()
	if err != nil {
		return nil, err
	}

	items, ok := result.([]any)
	if !ok {
		return nil, ErrUnexpectedLuaResult
	}

	evs := make([]*rewind.Event, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, ErrUnexpectedLuaResult
		}
		ev, err := decodeEvent([]byte(str))
		if err != nil {
			return nil, err
		}
		evs = append(evs, ev)
	}
	return evs, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
