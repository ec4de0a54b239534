package redisent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/unkn0wn-root/redisent/internal/wire"
	pr "github.com/unkn0wn-root/redisent/provider"
)

// Context owns the store connections and the invalidation channel shared by
// a set of entities. Entities are declared with NewSingle, NewHash or
// NewPrefixed and bound with Register.
//
//	rc, _ := redisent.NewContext(redisent.Options{Writer: dial, Channel: "app:inval"})
//	users := redisent.NewHash[User]("Users", redisent.HashOptions[User]{})
//	_ = rc.Register(users)
//	go rc.Listen(ctx)
type Context struct {
	opts  Options
	log   Logger
	hooks Hooks
	pub   *publisher

	mu       sync.RWMutex
	writers  map[int]pr.Store
	readers  map[int]pr.Store
	entities map[string]Entity
	order    []Entity
	closed   bool

	done     chan struct{}
	doneOnce sync.Once
}

// NewContext validates opts and opens the channel connection, if any.
// opts is copied; later changes to the caller's value have no effect.
func NewContext(opts Options) (*Context, error) {
	if opts.Writer == nil {
		return nil, ErrNilStore
	}
	c := &Context{
		opts:     opts,
		log:      coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:    coalesce[Hooks](opts.Hooks, NopHooks{}),
		writers:  make(map[int]pr.Store),
		readers:  make(map[int]pr.Store),
		entities: make(map[string]Entity),
		done:     make(chan struct{}),
	}

	var chStore pr.Store
	if opts.Channel != "" {
		s, err := c.writer(opts.ChannelDB)
		if err != nil {
			return nil, err
		}
		chStore = s
	}
	c.pub = newPublisher(chStore, opts.Channel, opts.AsyncPublish, opts.PublishQueue, c.log, c.hooks)
	return c, nil
}

// KeyName resolves a declared entity name to its store key.
func (c *Context) KeyName(declared string) string {
	if c.opts.KeyName != nil {
		return c.opts.KeyName(declared)
	}
	return c.opts.KeyPrefix + declared
}

// Register binds entities to this Context. Names must be unique within the
// Context and must not contain '|'. Registration stops at the first error;
// entities registered before it stay registered.
func (c *Context) Register(entities ...Entity) error {
	for _, e := range entities {
		if err := c.register(e); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) register(e Entity) error {
	name := e.Name()
	if name == "" || strings.Contains(name, "|") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if _, dup := c.entities[name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateEntity, name)
	}
	w, err := c.writerLocked(e.DB())
	if err != nil {
		return err
	}
	r, err := c.readerLocked(e.DB())
	if err != nil {
		return err
	}

	all := wire.EncodeAll(name)
	if e.Kind() == KindSingle {
		all = wire.EncodeEntity(name)
	}
	b := Binding{
		Logger: c.log,
		Hooks:  c.hooks,
		Writer: w,
		Reader: r,
		PublishAll: func(ctx context.Context) {
			c.pub.publish(ctx, all)
		},
		PublishField: func(ctx context.Context, field string) {
			c.pub.publish(ctx, wire.EncodeField(name, field))
		},
		Key:          c.KeyName(name),
		CacheEnabled: !c.opts.DisableCache,
	}
	if err := e.Init(b); err != nil {
		return fmt.Errorf("redisent: init %q: %w", name, err)
	}
	c.entities[name] = e
	c.order = append(c.order, e)
	c.log.Debug("entity registered", Fields{"entity": name, "kind": e.Kind().String(), "db": e.DB(), "key": b.Key})
	return nil
}

// Entity returns the registered entity with the given name.
func (c *Context) Entity(name string) (Entity, bool) {
	c.mu.RLock()
	e, ok := c.entities[name]
	c.mu.RUnlock()
	return e, ok
}

// Entities lists registered entities in registration order.
func (c *Context) Entities() []Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Entity(nil), c.order...)
}

// DBSize reports the number of keys in logical database db.
func (c *Context) DBSize(ctx context.Context, db int) (int64, error) {
	s, err := c.reader(db)
	if err != nil {
		return 0, err
	}
	n, err := s.DBSize(ctx)
	if err != nil {
		c.log.Error("store operation failed", Fields{"op": "DBSIZE", "db": db, "err": err})
		return 0, &StoreError{Op: "DBSIZE", Err: err}
	}
	return n, nil
}

// HashFieldsPage returns up to pageSize field names of the hash at key,
// starting at cursor (page-1)*pageSize, together with the hash length.
// page is 1-based.
//
// The cursor is passed to HSCAN as is. Redis treats HSCAN cursors as opaque,
// so against a real server this is not offset paging: a small hash kept in
// listpack encoding returns all of its fields from cursor 0 and ignores other
// cursors, and larger hashes page in hash-table order. Use Hash.FieldNames when a
// complete, exact listing is needed.
func (c *Context) HashFieldsPage(ctx context.Context, db int, key string, page, pageSize int) ([]string, int64, error) {
	if page < 1 || pageSize < 1 {
		return nil, 0, ErrInvalidPage
	}
	s, err := c.reader(db)
	if err != nil {
		return nil, 0, err
	}
	cursor := uint64(page-1) * uint64(pageSize)
	names, _, err := s.HScanFields(ctx, key, cursor, int64(pageSize))
	if err != nil {
		c.log.Error("store operation failed", Fields{"op": "HSCAN", "key": key, "db": db, "err": err})
		return nil, 0, &StoreError{Op: "HSCAN", Key: key, Err: err}
	}
	if len(names) > pageSize {
		names = names[:pageSize]
	}
	total, err := s.HLen(ctx, key)
	if err != nil {
		c.log.Error("store operation failed", Fields{"op": "HLEN", "key": key, "db": db, "err": err})
		return nil, 0, &StoreError{Op: "HLEN", Key: key, Err: err}
	}
	return names, total, nil
}

// Listen subscribes to the invalidation channel and applies every message
// to the registered entities until ctx is done or the Context is closed.
// Messages this process published itself are applied too; that only drops
// entries the writer had just cached.
func (c *Context) Listen(ctx context.Context) error {
	if c.opts.Channel == "" {
		return ErrNoChannel
	}
	s, err := c.writer(c.opts.ChannelDB)
	if err != nil {
		return err
	}
	sub, err := s.Subscribe(ctx, c.opts.Channel)
	if err != nil {
		c.log.Error("subscribe failed", Fields{"channel": c.opts.Channel, "err": err})
		return &StoreError{Op: "SUBSCRIBE", Key: c.opts.Channel, Err: err}
	}
	defer sub.Close()
	c.log.Info("listening for invalidations", Fields{"channel": c.opts.Channel})

	msgs := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case payload, ok := <-msgs:
			if !ok {
				return nil
			}
			dispatch(payload, c.Entity, c.log)
		}
	}
}

// Close stops Listen, drains the async publisher and closes every store
// connection. Entities must not be used afterwards.
func (c *Context) Close() error {
	c.doneOnce.Do(func() { close(c.done) })
	c.pub.close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	seen := make(map[pr.Store]struct{})
	var errs []error
	for _, m := range []map[int]pr.Store{c.readers, c.writers} {
		for _, s := range m {
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Context) writer(db int) (pr.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writerLocked(db)
}

func (c *Context) reader(db int) (pr.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readerLocked(db)
}

func (c *Context) writerLocked(db int) (pr.Store, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if s, ok := c.writers[db]; ok {
		return s, nil
	}
	s, err := c.opts.Writer(db)
	if err != nil {
		return nil, fmt.Errorf("redisent: dial writer db %d: %w", db, err)
	}
	if s == nil {
		return nil, ErrNilStore
	}
	c.writers[db] = s
	return s, nil
}

// readerLocked returns the read connection for db. Without a Reader dialer
// reads share the writer connection; that is logged once per database.
func (c *Context) readerLocked(db int) (pr.Store, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if s, ok := c.readers[db]; ok {
		return s, nil
	}
	if c.opts.Reader == nil {
		w, err := c.writerLocked(db)
		if err != nil {
			return nil, err
		}
		c.log.Debug("no reader configured, reads use the writer connection", Fields{"db": db})
		c.readers[db] = w
		return w, nil
	}
	s, err := c.opts.Reader(db)
	if err != nil {
		return nil, fmt.Errorf("redisent: dial reader db %d: %w", db, err)
	}
	if s == nil {
		return nil, ErrNilStore
	}
	c.readers[db] = s
	return s, nil
}
