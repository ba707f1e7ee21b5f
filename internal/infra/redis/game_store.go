package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"math-race-service/internal/domain"
)

// GameStore keeps races as JSON documents in Redis so any instance can serve any race.
// Layout: SET race:game:{id} <json>, expiring ttl after the last write.
//
// Update is an optimistic compare-and-set on the Version field inside WATCH/MULTI.
type GameStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewGameStore(client *redis.Client, ttl time.Duration) *GameStore {
	return &GameStore{client: client, ttl: ttl}
}

func (s *GameStore) Get(ctx context.Context, id string) (domain.RaceGame, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.RaceGame{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.RaceGame{}, err
	}
	return decodeGame(data)
}

func (s *GameStore) Create(ctx context.Context, game *domain.RaceGame) error {
	next := *game
	next.Version = 1
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode race: %w", err)
	}
	created, err := s.client.SetNX(ctx, s.key(game.ID), payload, s.ttl).Result()
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("race %s already exists", game.ID)
	}
	game.Version = next.Version
	return nil
}

func (s *GameStore) Update(ctx context.Context, game *domain.RaceGame) error {
	key := s.key(game.ID)
	next := *game
	next.Version++
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode race: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrGameNotFound
		}
		if err != nil {
			return err
		}
		stored, err := decodeGame(data)
		if err != nil {
			return err
		}
		if stored.Version != game.Version {
			return domain.ErrConcurrentUpdate
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, key)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrConcurrentUpdate
	}
	if err != nil {
		return err
	}
	game.Version = next.Version
	return nil
}

func (s *GameStore) key(id string) string {
	return "race:game:" + id
}

func decodeGame(data []byte) (domain.RaceGame, error) {
	var game domain.RaceGame
	if err := json.Unmarshal(data, &game); err != nil {
		return domain.RaceGame{}, fmt.Errorf("decode race: %w", err)
	}
	return game, nil
}
