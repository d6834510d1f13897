package cached

import (
	"context"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"user-api/internal/adapter/cache"
	domain "user-api/internal/domain/user"
	"user-api/internal/usecase/user"
)

// UserRepository implements user.Repository with a read-through cache for lookups by id.
// Writes go to the wrapped repository first and then drop the cached entry.
type UserRepository struct {
	next  user.Repository
	cache cache.UserCache
	log   *zap.Logger
	group singleflight.Group
}

var _ user.Repository = (*UserRepository)(nil)

// NewUserRepository wraps next with c.
func NewUserRepository(next user.Repository, c cache.UserCache, log *zap.Logger) *UserRepository {
	return &UserRepository{
		next:  next,
		cache: c,
		log:   log,
	}
}

// Create delegates to the wrapped repository.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (*domain.User, error) {
	return r.next.Create(ctx, u)
}

// GetByID serves from cache when possible. Concurrent misses for the same id
// share one database read. A row read while a write to the same id was in
// progress is returned but not cached.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if u, ok := r.fromCache(ctx, id); ok {
		return u, nil
	}

	result, err, shared := r.group.Do(flightKey(id), func() (any, error) {
		if u, ok := r.fromCache(ctx, id); ok {
			return u, nil
		}

		version, verErr := r.cache.Version(ctx, id)
		if verErr != nil {
			r.log.Warn("cache version error, result will not be cached", zap.Int64("id", id), zap.Error(verErr))
		}

		u, err := r.next.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if verErr == nil {
			if _, err := r.cache.Set(ctx, u, version); err != nil {
				r.log.Warn("failed to cache user", zap.Int64("id", id), zap.Error(err))
			}
		}
		return u, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		r.log.Debug("user lookup shared with concurrent caller", zap.Int64("id", id))
	}

	// Callers may mutate the result; hand each its own copy.
	u := *result.(*domain.User)
	return &u, nil
}

// GetByEmail delegates to the wrapped repository.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.next.GetByEmail(ctx, email)
}

// Update writes through and invalidates the cached entry.
func (r *UserRepository) Update(ctx context.Context, id int64, ch domain.Changes) (*domain.User, error) {
	u, err := r.next.Update(ctx, id, ch)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, id)
	return u, nil
}

// Delete removes the row and invalidates the cached entry.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	if err := r.next.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

// List delegates to the wrapped repository.
func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	return r.next.List(ctx)
}

func (r *UserRepository) fromCache(ctx context.Context, id int64) (*domain.User, bool) {
	u, ok, err := r.cache.Get(ctx, id)
	if err != nil {
		r.log.Warn("cache get error, falling back to database", zap.Int64("id", id), zap.Error(err))
		return nil, false
	}
	return u, ok
}

func flightKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

// invalidate runs after a committed write. Lookups already in flight keep
// their result to themselves; later callers start a fresh read.
func (r *UserRepository) invalidate(ctx context.Context, id int64) {
	r.group.Forget(flightKey(id))
	if err := r.cache.Delete(ctx, id); err != nil {
		r.log.Warn("failed to invalidate cached user", zap.Int64("id", id), zap.Error(err))
	}
}
