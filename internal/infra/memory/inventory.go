package memory

import (
	"context"
	"math/rand/v2"
	"sync"

	"math-race-service/internal/domain"
)

// InventoryStore holds cosmetic products and power-ups. It implements app.ProductService and
// app.PowerUpInventory.
type InventoryStore struct {
	mu       sync.RWMutex
	products map[string][]string
	powerUps map[string]map[domain.PowerUpType]int
	machine  []string
}

func NewInventoryStore(players []SeedPlayer, machineProducts []string) *InventoryStore {
	s := &InventoryStore{
		products: make(map[string][]string, len(players)),
		powerUps: make(map[string]map[domain.PowerUpType]int, len(players)),
		machine:  append([]string(nil), machineProducts...),
	}
	for _, p := range players {
		s.products[p.ID] = append([]string(nil), p.Products...)
		quantities := make(map[domain.PowerUpType]int, len(p.PowerUps))
		for t, n := range p.PowerUps {
			quantities[t] = n
		}
		s.powerUps[p.ID] = quantities
	}
	return s
}

func (s *InventoryStore) ActiveProducts(_ context.Context, playerID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.products[playerID]...), nil
}

// DrawMachineProducts picks n distinct products from the machine pool, or all of them if fewer.
func (s *InventoryStore) DrawMachineProducts(_ context.Context, n int) ([]string, error) {
	s.mu.RLock()
	pool := append([]string(nil), s.machine...)
	s.mu.RUnlock()

	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n < len(pool) {
		pool = pool[:n]
	}
	return pool, nil
}

func (s *InventoryStore) Quantities(_ context.Context, playerID string) (map[domain.PowerUpType]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.PowerUpType]int, len(s.powerUps[playerID]))
	for t, n := range s.powerUps[playerID] {
		out[t] = n
	}
	return out, nil
}

func (s *InventoryStore) Available(_ context.Context, playerID string, t domain.PowerUpType) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.powerUps[playerID][t] > 0, nil
}

func (s *InventoryStore) Consume(_ context.Context, playerID string, t domain.PowerUpType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.powerUps[playerID][t] <= 0 {
		return domain.ErrPowerUpUnavailable
	}
	s.powerUps[playerID][t]--
	return nil
}
