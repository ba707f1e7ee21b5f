package memory

import (
	"context"
	"fmt"
	"sync"

	"math-race-service/internal/domain"
)

// GameStore is an in-memory implementation of app.GameRepository.
type GameStore struct {
	mu    sync.RWMutex
	games map[string]domain.RaceGame
}

func NewGameStore() *GameStore {
	return &GameStore{
		games: make(map[string]domain.RaceGame),
	}
}

func (s *GameStore) Get(_ context.Context, id string) (domain.RaceGame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[id]
	if !ok {
		return domain.RaceGame{}, domain.ErrGameNotFound
	}
	return game.Clone(), nil
}

func (s *GameStore) Create(_ context.Context, game *domain.RaceGame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[game.ID]; ok {
		return fmt.Errorf("race %s already exists", game.ID)
	}
	game.Version = 1
	s.games[game.ID] = game.Clone()
	return nil
}

func (s *GameStore) Update(_ context.Context, game *domain.RaceGame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.games[game.ID]
	if !ok {
		return domain.ErrGameNotFound
	}
	if stored.Version != game.Version {
		return domain.ErrConcurrentUpdate
	}
	game.Version++
	s.games[game.ID] = game.Clone()
	return nil
}
