package app

import (
	"context"

	"math-race-service/internal/domain"
)

// GameRepository persists races. Update must fail with domain.ErrConcurrentUpdate when the
// stored version differs from game.Version, and bump game.Version on success.
type GameRepository interface {
	Get(ctx context.Context, id string) (domain.RaceGame, error)
	Create(ctx context.Context, game *domain.RaceGame) error
	Update(ctx context.Context, game *domain.RaceGame) error
}

// PlayerRepository looks up player profiles.
type PlayerRepository interface {
	GetByUID(ctx context.Context, uid string) (domain.Player, error)
	GetByID(ctx context.Context, id string) (domain.Player, error)
}

// EnergyService checks and spends the player's energy.
type EnergyService interface {
	HasEnergy(ctx context.Context, playerID string) (bool, error)
	Consume(ctx context.Context, playerID string) error
}

// LevelCatalog loads levels and worlds (from cache/backing store).
type LevelCatalog interface {
	GetLevel(ctx context.Context, id int64) (domain.Level, error)
	ListWorlds(ctx context.Context) ([]domain.World, error)
}

// ProductService exposes the cosmetic products shown on both racers.
type ProductService interface {
	ActiveProducts(ctx context.Context, playerID string) ([]string, error)
	DrawMachineProducts(ctx context.Context, n int) ([]string, error)
}

// PowerUpInventory is the player's persistent power-up inventory.
type PowerUpInventory interface {
	Quantities(ctx context.Context, playerID string) (map[domain.PowerUpType]int, error)
	Available(ctx context.Context, playerID string, t domain.PowerUpType) (bool, error)
	Consume(ctx context.Context, playerID string, t domain.PowerUpType) error
}

// RewardService grants the level-completion reward and advances the progress marker.
type RewardService interface {
	GrantLevelReward(ctx context.Context, playerID string, level domain.Level) error
}

// EventPublisher fans race lifecycle events out to other services.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.RaceEvent) error
}

// Observer receives engine measurements (see internal/metrics).
type Observer interface {
	RaceStarted(levelID int64)
	AnswerSubmitted(correct, timedOut bool)
	PowerUpActivated(t domain.PowerUpType)
	RaceFinished(status domain.GameStatus)
}

type noopObserver struct{}

func (noopObserver) RaceStarted(int64)                  {}
func (noopObserver) AnswerSubmitted(bool, bool)         {}
func (noopObserver) PowerUpActivated(domain.PowerUpType) {}
func (noopObserver) RaceFinished(domain.GameStatus)     {}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.RaceEvent) error { return nil }
