package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/redisent/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
	perKey      bool
}

var _ pr.Store = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this provider exclusively owns the client
	// PerKey replaces MGET/MSET/DEL over several keys with a pipeline of
	// single-key commands. Needed on cluster deployments where a batch spans
	// hash slots.
	PerKey bool
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient, perKey: cfg.PerKey}, nil
}

// Dial parses a redis:// URL and returns a client bound to logical database db.
// A negative db keeps the database named in the URL.
func Dial(url string, db int) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis provider: parse url: %w", err)
	}
	if db >= 0 {
		opts.DB = db
	}
	return goredis.NewClient(opts), nil
}

func (p *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	s, err := p.rdb.Get(ctx, key).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

func (p *Redis) Set(ctx context.Context, key, value string) error {
	return p.rdb.Set(ctx, key, value, 0).Err()
}

func (p *Redis) MGet(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}
	if p.perKey {
		cmds := make([]*goredis.StringCmd, len(keys))
		_, err := p.rdb.Pipelined(ctx, func(pl goredis.Pipeliner) error {
			for i, k := range keys {
				cmds[i] = pl.Get(ctx, k)
			}
			return nil
		})
		if err != nil && err != goredis.Nil {
			return nil, err
		}
		out := make(map[string]string, len(keys))
		for i, c := range cmds {
			if s, err := c.Result(); err == nil {
				out[keys[i]] = s
			}
		}
		return out, nil
	}
	vals, err := p.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	return zipPresent(keys, vals), nil
}

func (p *Redis) MSet(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	if p.perKey {
		_, err := p.rdb.Pipelined(ctx, func(pl goredis.Pipeliner) error {
			for k, v := range values {
				pl.Set(ctx, k, v, 0)
			}
			return nil
		})
		return err
	}
	return p.rdb.MSet(ctx, values).Err()
}

func (p *Redis) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if p.perKey && len(keys) > 1 {
		_, err := p.rdb.Pipelined(ctx, func(pl goredis.Pipeliner) error {
			for _, k := range keys {
				pl.Del(ctx, k)
			}
			return nil
		})
		return err
	}
	return p.rdb.Del(ctx, keys...).Err()
}

func (p *Redis) HGet(ctx context.Context, key, field string) (string, bool, error) {
	s, err := p.rdb.HGet(ctx, key, field).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

func (p *Redis) HMGet(ctx context.Context, key string, fields []string) (map[string]string, error) {
	if len(fields) == 0 {
		return map[string]string{}, nil
	}
	vals, err := p.rdb.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, err
	}
	return zipPresent(fields, vals), nil
}

func (p *Redis) HSet(ctx context.Context, key string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	return p.rdb.HSet(ctx, key, values).Err()
}

func (p *Redis) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return p.rdb.HDel(ctx, key, fields...).Err()
}

func (p *Redis) HLen(ctx context.Context, key string) (int64, error) {
	return p.rdb.HLen(ctx, key).Result()
}

func (p *Redis) HKeys(ctx context.Context, key string) ([]string, error) {
	return p.rdb.HKeys(ctx, key).Result()
}

func (p *Redis) HScanFields(ctx context.Context, key string, cursor uint64, count int64) ([]string, uint64, error) {
	kv, next, err := p.rdb.HScan(ctx, key, cursor, "", count).Result()
	if err != nil {
		return nil, 0, err
	}
	// HSCAN replies with field,value pairs
	fields := make([]string, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		fields = append(fields, kv[i])
	}
	return fields, next, nil
}

func (p *Redis) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return p.rdb.Scan(ctx, cursor, match, count).Result()
}

func (p *Redis) MemoryUsage(ctx context.Context, key string) (int64, error) {
	n, err := p.rdb.MemoryUsage(ctx, key).Result()
	if err == goredis.Nil {
		return 0, nil
	}
	return n, err
}

func (p *Redis) DBSize(ctx context.Context) (int64, error) {
	return p.rdb.DBSize(ctx).Result()
}

func (p *Redis) Publish(ctx context.Context, channel, message string) error {
	return p.rdb.Publish(ctx, channel, message).Err()
}

// Subscribe blocks until the server confirms the subscription.
func (p *Redis) Subscribe(ctx context.Context, channel string) (pr.Subscription, error) {
	ps := p.rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	s := &subscription{ps: ps, out: make(chan string), done: make(chan struct{})}
	go s.forward()
	return s, nil
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close() error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

type subscription struct {
	ps   *goredis.PubSub
	out  chan string
	done chan struct{}
	once sync.Once
}

func (s *subscription) forward() {
	defer close(s.out)
	for m := range s.ps.Channel() {
		select {
		case s.out <- m.Payload:
		case <-s.done:
			return
		}
	}
}

func (s *subscription) Messages() <-chan string { return s.out }

func (s *subscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return s.ps.Close()
}

// zipPresent pairs names with MGET/HMGET replies, skipping nil (missing) slots.
func zipPresent(names []string, vals []any) map[string]string {
	out := make(map[string]string, len(vals))
	for i, v := range vals {
		if i >= len(names) {
			break
		}
		switch vv := v.(type) {
		case nil:
		case string:
			out[names[i]] = vv
		case []byte:
			out[names[i]] = string(vv)
		default:
			out[names[i]] = fmt.Sprint(vv)
		}
	}
	return out
}
