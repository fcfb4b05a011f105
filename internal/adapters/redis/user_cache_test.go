package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/tokengate/internal/adapters/memstore"
	domainauth "github.com/target/tokengate/internal/domain/auth"
	"github.com/target/tokengate/internal/domain/model"
	"github.com/target/tokengate/internal/testutil"
)

// countingStore records how often lookups reach the backing store.
type countingStore struct {
	*memstore.UserStore
	emailReads int
	idReads    int
}

func (s *countingStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	s.emailReads++
	return s.UserStore.GetByEmail(ctx, email)
}

func (s *countingStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	s.idReads++
	return s.UserStore.GetByID(ctx, id)
}

func setupCache(t *testing.T) (*UserCache, *countingStore) {
	t.Helper()
	client := testutil.SetupTestRedis(t)
	t.Cleanup(func() { _ = client.Close() })

	backing := &countingStore{UserStore: memstore.NewUserStore(nil)}
	cache, err := NewUserCache(UserCacheOptions{
		Store:  backing,
		Client: client,
		TTL:    time.Minute,
		Prefix: "test:user:",
	})
	require.NoError(t, err)
	return cache, backing
}

func TestNewUserCache_Validation(t *testing.T) {
	_, err := NewUserCache(UserCacheOptions{})
	require.Error(t, err)

	_, err = NewUserCache(UserCacheOptions{Store: memstore.NewUserStore(nil)})
	require.Error(t, err)
}

func TestUserCache_ReadThrough(t *testing.T) {
	cache, backing := setupCache(t)
	ctx := context.Background()

	_, err := cache.Create(ctx, testutil.NewUserParams("c@example.com").Build())
	require.NoError(t, err)

	first, err := cache.GetByEmail(ctx, "c@example.com")
	require.NoError(t, err)
	second, err := cache.GetByEmail(ctx, "c@example.com")
	require.NoError(t, err)

	assert.Equal(t, 1, backing.emailReads)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.PasswordHash, second.PasswordHash)
}

func TestUserCache_GetByIDUsesMapping(t *testing.T) {
	cache, backing := setupCache(t)
	ctx := context.Background()

	u, err := cache.Create(ctx, testutil.NewUserParams("id@example.com").Build())
	require.NoError(t, err)

	_, err = cache.GetByID(ctx, u.ID)
	require.NoError(t, err)
	for range 2 {
		got, err := cache.GetByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "id@example.com", got.Email)
	}

	assert.Equal(t, 1, backing.idReads)
	assert.Equal(t, 1, backing.emailReads)
}

func TestUserCache_LogoutInvalidates(t *testing.T) {
	cache, _ := setupCache(t)
	ctx := context.Background()

	_, err := cache.Create(ctx, testutil.NewUserParams("lo@example.com").Build())
	require.NoError(t, err)

	before, err := cache.GetByEmail(ctx, "lo@example.com")
	require.NoError(t, err)
	require.Nil(t, before.LastLogout)

	at := testutil.TestTime()
	require.NoError(t, cache.MarkLoggedOut(ctx, "lo@example.com", at))

	after, err := cache.GetByEmail(ctx, "lo@example.com")
	require.NoError(t, err)
	require.NotNil(t, after.LastLogout)
	assert.True(t, after.LastLogout.Equal(at))
}

func TestUserCache_RecordLoginInvalidates(t *testing.T) {
	cache, _ := setupCache(t)
	ctx := context.Background()

	u, err := cache.Create(ctx, testutil.NewUserParams("rl@example.com").Build())
	require.NoError(t, err)
	_, err = cache.GetByID(ctx, u.ID)
	require.NoError(t, err)

	require.NoError(t, cache.RecordFailedLogin(ctx, u.ID))
	got, err := cache.GetByEmail(ctx, "rl@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, got.LoginAttempts)
}

func TestUserCache_DeactivateInvalidates(t *testing.T) {
	cache, _ := setupCache(t)
	ctx := context.Background()

	_, err := cache.Create(ctx, testutil.NewUserParams("da@example.com").Build())
	require.NoError(t, err)
	_, err = cache.GetByEmail(ctx, "da@example.com")
	require.NoError(t, err)

	require.NoError(t, cache.SetActive(ctx, "da@example.com", false))
	got, err := cache.GetByEmail(ctx, "da@example.com")
	require.NoError(t, err)
	assert.False(t, got.Active)

	require.NoError(t, cache.SetRole(ctx, "da@example.com", domainauth.RoleModerator))
	got, err = cache.GetByEmail(ctx, "da@example.com")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleModerator, got.Role)
}

func TestUserCache_MissesAreNotCached(t *testing.T) {
	cache, backing := setupCache(t)
	ctx := context.Background()

	_, err := cache.GetByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, domainauth.ErrUserNotFound)

	_, err = cache.Create(ctx, testutil.NewUserParams("nobody@example.com").Build())
	require.NoError(t, err)
	_, err = cache.GetByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.emailReads)
}

// pausingStore holds its first GetByEmail after reading the record until release is closed.
type pausingStore struct {
	*memstore.UserStore
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func newPausingStore() *pausingStore {
	return &pausingStore{
		UserStore: memstore.NewUserStore(nil),
		read:      make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (s *pausingStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := s.UserStore.GetByEmail(ctx, email)
	s.once.Do(func() {
		close(s.read)
		<-s.release
	})
	return u, err
}

func TestUserCache_SlowFillDoesNotOutliveLogout(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	t.Cleanup(func() { _ = client.Close() })
	ctx := t.Context()

	backing := newPausingStore()
	_, err := backing.Create(ctx, testutil.NewUserParams("race@example.com").Build())
	require.NoError(t, err)
	cache, err := NewUserCache(UserCacheOptions{Store: backing, Client: client, TTL: time.Minute, Prefix: "test:user:"})
	require.NoError(t, err)

	type result struct {
		user *model.User
		err  error
	}
	slow := make(chan result, 1)
	go func() {
		u, err := cache.GetByEmail(ctx, "race@example.com")
		slow <- result{u, err}
	}()

	<-backing.read
	at := testutil.TestTime()
	require.NoError(t, cache.MarkLoggedOut(ctx, "race@example.com", at))
	close(backing.release)

	res := <-slow
	require.NoError(t, res.err)
	assert.Nil(t, res.user.LastLogout, "the slow read started before the logout")

	exists, err := client.Exists(ctx, cache.emailKey("race@example.com")).Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "record read before the logout must not be cached")

	got, err := cache.GetByEmail(ctx, "race@example.com")
	require.NoError(t, err)
	require.NotNil(t, got.LastLogout)
	assert.True(t, got.LastLogout.Equal(at))

	cached, err := cache.GetByEmail(ctx, "race@example.com")
	require.NoError(t, err)
	require.NotNil(t, cached.LastLogout)
	assert.True(t, cached.LastLogout.Equal(at))
}

func TestUserCache_WritesBumpVersion(t *testing.T) {
	cache, _ := setupCache(t)
	ctx := t.Context()

	_, err := cache.Create(ctx, testutil.NewUserParams("v@example.com").Build())
	require.NoError(t, err)
	before, err := cache.version(ctx, "v@example.com")
	require.NoError(t, err)

	require.NoError(t, cache.SetActive(ctx, "v@example.com", false))
	after, err := cache.version(ctx, "v@example.com")
	require.NoError(t, err)
	assert.Equal(t, before+1, after)

	ttl, err := cache.client.TTL(ctx, cache.versionKey("v@example.com")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Minute)
}

func TestUserCache_SecurityWritesFailWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	ctx := t.Context()

	backing := memstore.NewUserStore(nil)
	u, err := backing.Create(ctx, testutil.NewUserParams("down@example.com").Build())
	require.NoError(t, err)
	cache, err := NewUserCache(UserCacheOptions{Store: backing, Client: client, TTL: time.Minute})
	require.NoError(t, err)

	at := testutil.TestTime()
	require.Error(t, cache.MarkLoggedOut(ctx, "down@example.com", at))
	stored, err := backing.GetByEmail(ctx, "down@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogout, "the store keeps the logout so a retry is idempotent")

	assert.Error(t, cache.SetRole(ctx, "down@example.com", domainauth.RoleAdmin))
	assert.Error(t, cache.SetActive(ctx, "down@example.com", false))

	// reads and login bookkeeping degrade to the store
	got, err := cache.GetByEmail(ctx, "down@example.com")
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.NoError(t, cache.RecordFailedLogin(ctx, u.ID))

	assert.Error(t, cache.Delete(ctx, "down@example.com"))
}
