package memory

import (
	"context"
	"sync"

	"math-race-service/internal/domain"
)

// PlayerStore keeps player profiles and energy in memory. It implements app.PlayerRepository,
// app.EnergyService and app.RewardService.
type PlayerStore struct {
	mu      sync.RWMutex
	players map[string]*playerRecord
	byUID   map[string]string
}

type playerRecord struct {
	player domain.Player
	energy int
}

func NewPlayerStore(players []SeedPlayer) *PlayerStore {
	s := &PlayerStore{
		players: make(map[string]*playerRecord, len(players)),
		byUID:   make(map[string]string, len(players)),
	}
	for _, p := range players {
		s.players[p.ID] = &playerRecord{player: p.Player, energy: p.Energy}
		s.byUID[p.UID] = p.ID
	}
	return s
}

func (s *PlayerStore) GetByUID(_ context.Context, uid string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUID[uid]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return s.players[id].player, nil
}

func (s *PlayerStore) GetByID(_ context.Context, id string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.players[id]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return rec.player, nil
}

func (s *PlayerStore) HasEnergy(_ context.Context, playerID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.players[playerID]
	if !ok {
		return false, domain.ErrPlayerNotFound
	}
	return rec.energy > 0, nil
}

func (s *PlayerStore) Consume(_ context.Context, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	if rec.energy <= 0 {
		return domain.ErrNoEnergy
	}
	rec.energy--
	return nil
}

// GrantLevelReward adds the level coins and moves the progress marker forward.
func (s *PlayerStore) GrantLevelReward(_ context.Context, playerID string, level domain.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	rec.player.Coins += level.CoinReward
	if level.ID > rec.player.LastCompletedLevelID {
		rec.player.LastCompletedLevelID = level.ID
	}
	return nil
}

// Energy reports the remaining energy units of a player.
func (s *PlayerStore) Energy(playerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.players[playerID]; ok {
		return rec.energy
	}
	return 0
}
