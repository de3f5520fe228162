package alias

import (
	"context"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
	"go.uber.org/zap"
)

// Resolver combines the authoritative store with the lookup cache.
type Resolver struct {
	store  Store
	cache  Cache
	logger *zap.Logger
}

// NewResolver builds a Resolver. A nil cache falls back to MemoryCache.
func NewResolver(store Store, cache Cache, logger *zap.Logger) *Resolver {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{store: store, cache: cache, logger: logger}
}

// Reserve inserts hashes for userID, all or nothing.
func (r *Resolver) Reserve(ctx context.Context, app, userID string, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	rows := make([]Row, 0, len(hashes))
	for _, hash := range hashes {
		rows = append(rows, Row{App: app, Hash: hash, UserID: userID})
	}
	return r.store.InsertAliases(ctx, rows)
}

// Populate writes reserved hashes to the cache.
func (r *Resolver) Populate(ctx context.Context, app, userID string, hashes []string) error {
	for _, hash := range hashes {
		if err := r.cache.Set(ctx, app, hash, userID); err != nil {
			return err
		}
	}
	return nil
}

// Resolve returns the user id owning hash in app. A cache miss reads the
// store and refills the cache.
func (r *Resolver) Resolve(ctx context.Context, app, hash string) (string, error) {
	userID, ok, err := r.cache.Get(ctx, app, hash)
	if err != nil {
		r.logger.Warn("alias cache read failed", zap.String("app", app), zap.Error(err))
	}
	if ok {
		return userID, nil
	}
	userID, ok, err = r.store.LookupAlias(ctx, app, hash)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperrors.New(apperrors.CodeNotFound, "alias not found")
	}
	if err := r.cache.Set(ctx, app, hash, userID); err != nil {
		r.logger.Warn("alias cache fill failed", zap.String("app", app), zap.Error(err))
	}
	return userID, nil
}
