package redis

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"math-race-service/internal/domain"
	"math-race-service/internal/infra/memory"
)

// LevelRepository caches catalog content in Redis and falls back to a loader on cache miss.
// Levels are stored as:  SET catalog:level:{id} <json>
// Worlds are stored as:  SET catalog:worlds <json array>
type LevelRepository struct {
	client *redis.Client
	loader memory.LevelLoader
	ttl    time.Duration
	sf     singleflight.Group
}

func NewLevelRepository(client *redis.Client, loader memory.LevelLoader, ttl time.Duration) *LevelRepository {
	return &LevelRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
	}
}

func (r *LevelRepository) GetLevel(ctx context.Context, id int64) (domain.Level, error) {
	key := r.levelKey(id)
	var level domain.Level
	if r.cached(ctx, key, &level) {
		return level, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		var level domain.Level
		if r.cached(ctx, key, &level) {
			return level, nil
		}
		level, err := r.loader.LoadLevel(ctx, id)
		if err != nil {
			return domain.Level{}, err
		}
		r.store(ctx, key, level)
		return level, nil
	})
	if err != nil {
		return domain.Level{}, err
	}
	return result.(domain.Level), nil
}

func (r *LevelRepository) ListWorlds(ctx context.Context) ([]domain.World, error) {
	key := r.worldsKey()
	var worlds []domain.World
	if r.cached(ctx, key, &worlds) {
		return worlds, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		var worlds []domain.World
		if r.cached(ctx, key, &worlds) {
			return worlds, nil
		}
		worlds, err := r.loader.LoadWorlds(ctx)
		if err != nil {
			return nil, err
		}
		r.store(ctx, key, worlds)
		return worlds, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.World), nil
}

// cached decodes key into dst; any Redis or decode failure counts as a miss.
func (r *LevelRepository) cached(ctx context.Context, key string, dst interface{}) bool {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

// store is best effort: the loader result is returned even when caching fails.
func (r *LevelRepository) store(ctx context.Context, key string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = r.client.Set(ctx, key, payload, r.ttlWithJitter()).Err()
}

func (r *LevelRepository) levelKey(id int64) string {
	return "catalog:level:" + strconv.FormatInt(id, 10)
}

func (r *LevelRepository) worldsKey() string {
	return "catalog:worlds"
}

func (r *LevelRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int64N(jitterMax+1))
}
