package cached

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"user-api/internal/adapter/cache"
	"user-api/internal/adapter/db/sqldb"
	domain "user-api/internal/domain/user"
	"user-api/internal/usecase/user"
	pkgerrors "user-api/pkg/errors"
)

type fixture struct {
	repo *UserRepository
	db   *gorm.DB
	mr   *miniredis.Miniredis
}

func setup(t *testing.T) fixture {
	log := zaptest.NewLogger(t)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, sqldb.AutoMigrate(db))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	repo := NewUserRepository(
		sqldb.NewUserRepoSQL(db, log),
		cache.NewRedisUserCache(client, time.Minute, log),
		log,
	)
	return fixture{repo: repo, db: db, mr: mr}
}

func TestUserRepository_GetByID_ReadThrough(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.repo.Create(ctx, &domain.User{Name: "Ann", Email: "ann@x.com", Age: 30})
	require.NoError(t, err)
	assert.False(t, f.mr.Exists("user-api:user:1"), "create does not populate the cache")

	got, err := f.repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.True(t, f.mr.Exists("user-api:user:1"))

	// Change the row behind the cache's back; the cached copy is served.
	require.NoError(t, f.db.Exec("UPDATE users SET name = ? WHERE id = ?", "Changed", created.ID).Error)

	got, err = f.repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)
}

func TestUserRepository_Update_Invalidates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.repo.Create(ctx, &domain.User{Name: "Ann", Email: "ann@x.com", Age: 30})
	require.NoError(t, err)
	_, err = f.repo.GetByID(ctx, created.ID)
	require.NoError(t, err)

	name := "Annie"
	updated, err := f.repo.Update(ctx, created.ID, domain.Changes{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Annie", updated.Name)
	assert.False(t, f.mr.Exists("user-api:user:1"))

	got, err := f.repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestUserRepository_Delete_Invalidates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.repo.Create(ctx, &domain.User{Name: "Ann", Email: "ann@x.com", Age: 30})
	require.NoError(t, err)
	_, err = f.repo.GetByID(ctx, created.ID)
	require.NoError(t, err)

	require.NoError(t, f.repo.Delete(ctx, created.ID))
	assert.False(t, f.mr.Exists("user-api:user:1"))

	_, err = f.repo.GetByID(ctx, created.ID)
	var notFound *pkgerrors.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestUserRepository_NotFoundIsNotCached(t *testing.T) {
	f := setup(t)

	_, err := f.repo.GetByID(context.Background(), 5)
	var notFound *pkgerrors.NotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Empty(t, f.mr.Keys())
}

func TestUserRepository_RedisDown(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.repo.Create(ctx, &domain.User{Name: "Ann", Email: "ann@x.com", Age: 30})
	require.NoError(t, err)

	f.mr.Close()

	got, err := f.repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	require.NoError(t, f.repo.Delete(ctx, created.ID))
}

func TestUserRepository_Passthrough(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	created, err := f.repo.Create(ctx, &domain.User{Name: "Ann", Email: "ann@x.com", Age: 30})
	require.NoError(t, err)

	byEmail, err := f.repo.GetByEmail(ctx, "ann@x.com")
	require.NoError(t, err)
	assert.Equal(t, created, byEmail)

	all, err := f.repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.User{*created}, all)
}

// slowRepo counts GetByID calls and holds each one until release is closed.
type slowRepo struct {
	user.Repository
	calls   atomic.Int32
	release chan struct{}
}

func (s *slowRepo) GetByID(_ context.Context, id int64) (*domain.User, error) {
	s.calls.Add(1)
	<-s.release
	return &domain.User{ID: id, Name: "Ann", Email: "ann@x.com", Age: 30}, nil
}

type missCache struct{}

func (missCache) Get(context.Context, int64) (*domain.User, bool, error) { return nil, false, nil }
func (missCache) Version(context.Context, int64) (int64, error)          { return 0, nil }
func (missCache) Set(context.Context, *domain.User, int64) (bool, error) { return true, nil }
func (missCache) Delete(context.Context, int64) error                    { return nil }

func TestUserRepository_ConcurrentMissesShareOneRead(t *testing.T) {
	backend := &slowRepo{release: make(chan struct{})}
	repo := NewUserRepository(backend, missCache{}, zaptest.NewLogger(t))

	const callers = 10
	var wg sync.WaitGroup
	results := make([]*domain.User, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := repo.GetByID(context.Background(), 1)
			assert.NoError(t, err)
			results[i] = u
		}(i)
	}

	require.Eventually(t, func() bool { return backend.calls.Load() == 1 }, time.Second, time.Millisecond)
	// Give the remaining callers time to join the in-flight read.
	time.Sleep(50 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	assert.Equal(t, int32(1), backend.calls.Load())
	for _, u := range results {
		require.NotNil(t, u)
		assert.Equal(t, int64(1), u.ID)
	}
	assert.NotSame(t, results[0], results[1])
}

// gateRepo holds the first GetByID after it has read the row, so a write can
// commit while that read is still in flight.
type gateRepo struct {
	user.Repository
	held    atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func newGateRepo(next user.Repository) *gateRepo {
	return &gateRepo{Repository: next, read: make(chan struct{}), release: make(chan struct{})}
}

func (g *gateRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	u, err := g.Repository.GetByID(ctx, id)
	if g.held.CompareAndSwap(false, true) {
		close(g.read)
		<-g.release
	}
	return u, err
}

func setupGated(t *testing.T) (*UserRepository, *gateRepo, *miniredis.Miniredis) {
	f := setup(t)
	log := zaptest.NewLogger(t)
	gate := newGateRepo(sqldb.NewUserRepoSQL(f.db, log))
	client := redis.NewClient(&redis.Options{Addr: f.mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	return NewUserRepository(gate, cache.NewRedisUserCache(client, time.Minute, log), log), gate, f.mr
}

func TestUserRepository_DeleteDuringLookupIsNotCached(t *testing.T) {
	repo, gate, mr := setupGated(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, &domain.User{Name: "Ann", Email: "ann@x.com", Age: 30})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := repo.GetByID(ctx, created.ID)
		done <- err
	}()

	<-gate.read
	require.NoError(t, repo.Delete(ctx, created.ID))

	// A lookup that starts after the delete must not join the stale read.
	_, err = repo.GetByID(ctx, created.ID)
	var notFound *pkgerrors.NotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)

	close(gate.release)
	require.NoError(t, <-done)
	assert.False(t, mr.Exists("user-api:user:1"))

	_, err = repo.GetByID(ctx, created.ID)
	assert.True(t, errors.As(err, &notFound), "got %v", err)
}

func TestUserRepository_UpdateDuringLookupIsNotCached(t *testing.T) {
	repo, gate, _ := setupGated(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, &domain.User{Name: "Ann", Email: "ann@x.com", Age: 30})
	require.NoError(t, err)

	done := make(chan *domain.User, 1)
	go func() {
		u, err := repo.GetByID(ctx, created.ID)
		assert.NoError(t, err)
		done <- u
	}()

	<-gate.read
	name := "Annie"
	_, err = repo.Update(ctx, created.ID, domain.Changes{Name: &name})
	require.NoError(t, err)

	close(gate.release)
	assert.Equal(t, "Ann", (<-done).Name)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Annie", got.Name)
}
