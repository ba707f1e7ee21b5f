package memory

import (
	"context"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"math-race-service/internal/domain"
)

// LevelLoader fetches catalog content from a backing store (e.g., Postgres).
type LevelLoader interface {
	LoadLevel(ctx context.Context, id int64) (domain.Level, error)
	LoadWorlds(ctx context.Context) ([]domain.World, error)
}

// LevelRepository caches levels and worlds with TTL to avoid repeated DB hits.
type LevelRepository struct {
	loader LevelLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu     sync.RWMutex
	levels map[int64]cachedLevel
	worlds *cachedWorlds
}

type cachedLevel struct {
	level     domain.Level
	expiresAt time.Time
}

type cachedWorlds struct {
	worlds    []domain.World
	expiresAt time.Time
}

func NewLevelRepository(loader LevelLoader, ttl time.Duration) *LevelRepository {
	return &LevelRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		levels: make(map[int64]cachedLevel),
	}
}

func (r *LevelRepository) GetLevel(ctx context.Context, id int64) (domain.Level, error) {
	if level, ok := r.cachedLevel(id); ok {
		return level, nil
	}

	result, err, _ := r.sf.Do("level:"+strconv.FormatInt(id, 10), func() (interface{}, error) {
		if level, ok := r.cachedLevel(id); ok {
			return level, nil
		}
		level, err := r.loader.LoadLevel(ctx, id)
		if err != nil {
			return domain.Level{}, err
		}
		r.mu.Lock()
		r.levels[id] = cachedLevel{level: level, expiresAt: r.clock().Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return level, nil
	})
	if err != nil {
		return domain.Level{}, err
	}
	return result.(domain.Level), nil
}

func (r *LevelRepository) ListWorlds(ctx context.Context) ([]domain.World, error) {
	if worlds, ok := r.cachedWorlds(); ok {
		return worlds, nil
	}

	result, err, _ := r.sf.Do("worlds", func() (interface{}, error) {
		if worlds, ok := r.cachedWorlds(); ok {
			return worlds, nil
		}
		worlds, err := r.loader.LoadWorlds(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.worlds = &cachedWorlds{worlds: worlds, expiresAt: r.clock().Add(r.ttlWithJitter())}
		r.mu.Unlock()
		return worlds, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.World), nil
}

func (r *LevelRepository) cachedLevel(id int64) (domain.Level, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.levels[id]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Level{}, false
	}
	return entry.level, true
}

func (r *LevelRepository) cachedWorlds() ([]domain.World, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.worlds == nil || !r.worlds.expiresAt.After(r.clock()) {
		return nil, false
	}
	return r.worlds.worlds, true
}

func (r *LevelRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int64N(jitterMax+1))
}

// StaticLevelLoader is a simple loader backed by in-memory slices (useful for tests/demos).
type StaticLevelLoader struct {
	levels map[int64]domain.Level
	worlds []domain.World
}

func NewStaticLevelLoader(levels []domain.Level, worlds []domain.World) *StaticLevelLoader {
	byID := make(map[int64]domain.Level, len(levels))
	for _, l := range levels {
		byID[l.ID] = l
	}
	return &StaticLevelLoader{levels: byID, worlds: worlds}
}

func (l *StaticLevelLoader) LoadLevel(_ context.Context, id int64) (domain.Level, error) {
	if level, ok := l.levels[id]; ok {
		return level, nil
	}
	return domain.Level{}, domain.ErrLevelNotFound
}

func (l *StaticLevelLoader) LoadWorlds(_ context.Context) ([]domain.World, error) {
	return append([]domain.World(nil), l.worlds...), nil
}
