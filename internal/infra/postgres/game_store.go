package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"math-race-service/internal/domain"
)

// raceGameRecord stores the full race as JSONB next to the columns used for lookups.
type raceGameRecord struct {
	bun.BaseModel `bun:"table:race_games"`

	ID        string          `bun:"id,pk"`
	PlayerID  string          `bun:"player_id"`
	PlayerUID string          `bun:"player_uid"`
	LevelID   int64           `bun:"level_id"`
	Status    string          `bun:"status"`
	Version   int64           `bun:"version"`
	State     domain.RaceGame `bun:"state,type:jsonb"`
	CreatedAt time.Time       `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt time.Time       `bun:"updated_at,nullzero,default:current_timestamp"`
}

func newRaceGameRecord(game domain.RaceGame) *raceGameRecord {
	return &raceGameRecord{
		ID:        game.ID,
		PlayerID:  game.PlayerID,
		PlayerUID: game.PlayerUID,
		LevelID:   game.LevelID,
		Status:    string(game.Status),
		Version:   game.Version,
		State:     game,
	}
}

// GameStore is a bun-backed app.GameRepository for deployments that keep races in Postgres.
type GameStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewGameStore(db *bun.DB) *GameStore {
	return &GameStore{db: db, now: time.Now}
}

func (s *GameStore) Get(ctx context.Context, id string) (domain.RaceGame, error) {
	rec := new(raceGameRecord)
	err := s.db.NewSelect().Model(rec).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RaceGame{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.RaceGame{}, fmt.Errorf("select race: %w", err)
	}
	game := rec.State
	game.Version = rec.Version
	return game, nil
}

func (s *GameStore) Create(ctx context.Context, game *domain.RaceGame) error {
	next := *game
	next.Version = 1
	rec := newRaceGameRecord(next)
	if _, err := s.db.NewInsert().Model(rec).Exec(ctx); err != nil {
		return fmt.Errorf("insert race: %w", err)
	}
	game.Version = next.Version
	return nil
}

// Update writes the race only if the stored version still matches game.Version.
func (s *GameStore) Update(ctx context.Context, game *domain.RaceGame) error {
	next := *game
	next.Version++
	rec := newRaceGameRecord(next)
	rec.UpdatedAt = s.now()

	res, err := s.db.NewUpdate().
		Model(rec).
		Column("status", "version", "state", "updated_at").
		Where("id = ?", game.ID).
		Where("version = ?", game.Version).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update race: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update race: %w", err)
	}
	if affected == 0 {
		exists, err := s.db.NewSelect().Model((*raceGameRecord)(nil)).Where("id = ?", game.ID).Exists(ctx)
		if err != nil {
			return fmt.Errorf("check race: %w", err)
		}
		if !exists {
			return domain.ErrGameNotFound
		}
		return domain.ErrConcurrentUpdate
	}
	game.Version = next.Version
	return nil
}
