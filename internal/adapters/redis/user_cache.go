// Package redis provides Redis-backed adapters.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	domainauth "github.com/target/tokengate/internal/domain/auth"
	"github.com/target/tokengate/internal/domain/model"
	"github.com/target/tokengate/internal/ports"
	"golang.org/x/sync/singleflight"
)

var _ ports.UserStore = (*UserCache)(nil)

// DefaultKeyPrefix namespaces cache keys when no prefix is configured.
const DefaultKeyPrefix = "tokengate:user:"

// UserCache is a read-through cache in front of a UserStore.
//
// Every write goes to the backing store first, then bumps a per-email version and drops the
// cached entry in one transaction. A miss records the version before reading the store and
// only fills the cache if the version is unchanged, so a read that raced a logout or
// deactivation never puts the older record back.
//
// Redis failures on the read path degrade to direct store reads. Writes that change what the
// gate decides (logout, role, active, delete) return the invalidation error.
type UserCache struct {
	next   ports.UserStore
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	logger *slog.Logger
	group  singleflight.Group
}

// UserCacheOptions groups dependencies for NewUserCache.
type UserCacheOptions struct {
	Store  ports.UserStore
	Client redis.UniversalClient
	TTL    time.Duration
	Prefix string
	Logger *slog.Logger
}

// errConcurrentWrite aborts a cache fill whose version moved while the store was read.
var errConcurrentWrite = errors.New("user changed during cache fill")

// NewUserCache wraps opts.Store. A non-positive TTL is rejected.
func NewUserCache(opts UserCacheOptions) (*UserCache, error) {
	if opts.Store == nil {
		return nil, errors.New("backing user store is required")
	}
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("cache ttl must be positive")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &UserCache{
		next:   opts.Store,
		client: opts.Client,
		ttl:    opts.TTL,
		prefix: prefix,
		logger: logger.With("component", "user_cache"),
	}, nil
}

// The record and version keys share a hash tag so they can be watched together in a cluster.
func (c *UserCache) emailKey(email string) string   { return c.prefix + "email:{" + email + "}" }
func (c *UserCache) versionKey(email string) string { return c.prefix + "ver:{" + email + "}" }
func (c *UserCache) idKey(id int64) string          { return c.prefix + "id:" + strconv.FormatInt(id, 10) }

// versionTTL outlives every entry filled under the previous version.
func (c *UserCache) versionTTL() time.Duration { return 2 * c.ttl }

// Create writes through; nothing is cached until the first lookup.
func (c *UserCache) Create(ctx context.Context, params model.CreateUserParams) (*model.User, error) {
	u, err := c.next.Create(ctx, params)
	if err != nil {
		return nil, err
	}
	c.forget(ctx, u.Email)
	return u, nil
}

// GetByEmail serves from cache, falling back to the store on a miss.
func (c *UserCache) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	key := c.emailKey(email)
	if u, ok := c.load(ctx, key); ok {
		return u, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		version, verErr := c.version(ctx, email)
		u, err := c.next.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if verErr != nil {
			c.logger.WarnContext(ctx, "redis version read failed", "err", verErr)
			return u, nil
		}
		c.fill(ctx, u, version)
		return u, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneUser(v.(*model.User)), nil
}

// GetByID resolves the id to an email through the cache and then reads by email.
// An unmapped id is read from the store and only the id mapping is cached.
func (c *UserCache) GetByID(ctx context.Context, id int64) (*model.User, error) {
	email, err := c.client.Get(ctx, c.idKey(id)).Result()
	if err == nil && email != "" {
		return c.GetByEmail(ctx, email)
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "redis id lookup failed", "err", err, "user_id", id)
	}

	u, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mapID(ctx, u)
	return u, nil
}

func (c *UserCache) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	return c.writeByID(ctx, id, func() error { return c.next.RecordLogin(ctx, id, at) })
}

func (c *UserCache) RecordFailedLogin(ctx context.Context, id int64) error {
	return c.writeByID(ctx, id, func() error { return c.next.RecordFailedLogin(ctx, id) })
}

func (c *UserCache) MarkLoggedOut(ctx context.Context, email string, at time.Time) error {
	return c.writeByEmail(ctx, email, func() error { return c.next.MarkLoggedOut(ctx, email, at) })
}

func (c *UserCache) SetRole(ctx context.Context, email string, role domainauth.Role) error {
	return c.writeByEmail(ctx, email, func() error { return c.next.SetRole(ctx, email, role) })
}

func (c *UserCache) SetActive(ctx context.Context, email string, active bool) error {
	return c.writeByEmail(ctx, email, func() error { return c.next.SetActive(ctx, email, active) })
}

func (c *UserCache) Delete(ctx context.Context, email string) error {
	return c.writeByEmail(ctx, email, func() error { return c.next.Delete(ctx, email) })
}

// writeByEmail applies write and invalidates. The store keeps the change when invalidation
// fails; the caller gets the error and may retry, since every email write is idempotent.
func (c *UserCache) writeByEmail(ctx context.Context, email string, write func() error) error {
	if err := write(); err != nil {
		return err
	}
	if err := c.Invalidate(ctx, email); err != nil {
		c.logger.ErrorContext(ctx, "redis invalidate failed", "err", err, "email", email)
		return err
	}
	return nil
}

// writeByID covers login bookkeeping, which never changes an authentication decision,
// so invalidation failures are only logged.
func (c *UserCache) writeByID(ctx context.Context, id int64, write func() error) error {
	if err := write(); err != nil {
		return err
	}
	email, err := c.client.Get(ctx, c.idKey(id)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "redis id lookup failed", "err", err, "user_id", id)
		}
		u, getErr := c.next.GetByID(ctx, id)
		if getErr != nil {
			return nil
		}
		email = u.Email
	}
	c.forget(ctx, email)
	return nil
}

func (c *UserCache) version(ctx context.Context, email string) (int64, error) {
	return parseVersion(c.client.Get(ctx, c.versionKey(email)))
}

func parseVersion(cmd *redis.StringCmd) (int64, error) {
	v, err := cmd.Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *UserCache) load(ctx context.Context, key string) (*model.User, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "redis get failed", "err", err, "key", key)
		}
		return nil, false
	}
	var u model.User
	if err := json.Unmarshal(raw, &u); err != nil {
		c.logger.WarnContext(ctx, "discarding undecodable cache entry", "err", err, "key", key)
		c.client.Del(ctx, key)
		return nil, false
	}
	return &u, true
}

// fill caches u if no write has bumped its version since version was read.
func (c *UserCache) fill(ctx context.Context, u *model.User, version int64) {
	raw, err := json.Marshal(u)
	if err != nil {
		c.logger.WarnContext(ctx, "marshal user for cache", "err", err)
		return
	}
	verKey := c.versionKey(u.Email)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := parseVersion(tx.Get(ctx, verKey))
		if err != nil {
			return err
		}
		if current != version {
			return errConcurrentWrite
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, c.emailKey(u.Email), raw, c.ttl)
			return nil
		})
		return err
	}, verKey)
	switch {
	case err == nil:
	case errors.Is(err, errConcurrentWrite), errors.Is(err, redis.TxFailedErr):
		c.logger.DebugContext(ctx, "skipped cache fill after concurrent write", "user_id", u.ID)
		return
	default:
		c.logger.WarnContext(ctx, "redis set failed", "err", err, "user_id", u.ID)
		return
	}
	c.mapID(ctx, u)
}

// mapID caches the id to email mapping. Ids never change owner, so it needs no versioning.
func (c *UserCache) mapID(ctx context.Context, u *model.User) {
	if err := c.client.Set(ctx, c.idKey(u.ID), u.Email, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "redis set failed", "err", err, "user_id", u.ID)
	}
}

func (c *UserCache) forget(ctx context.Context, email string) {
	if err := c.Invalidate(ctx, email); err != nil {
		c.logger.ErrorContext(ctx, "redis invalidate failed", "err", err, "email", email)
	}
}

// Invalidate bumps the version for email and drops its cached entry. Lookups already in
// flight for email are detached so later callers read the store again.
func (c *UserCache) Invalidate(ctx context.Context, email string) error {
	c.group.Forget(c.emailKey(email))
	verKey := c.versionKey(email)
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, verKey)
		p.Expire(ctx, verKey, c.versionTTL())
		p.Del(ctx, c.emailKey(email))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}

func cloneUser(u *model.User) *model.User {
	c := *u
	if u.Phone != nil {
		p := *u.Phone
		c.Phone = &p
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	if u.LastLogout != nil {
		t := *u.LastLogout
		c.LastLogout = &t
	}
	return &c
}
