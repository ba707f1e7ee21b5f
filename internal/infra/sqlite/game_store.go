// Package sqlite keeps races in a single SQLite file for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"math-race-service/internal/domain"
)

// GameStore is an app.GameRepository backed by SQLite.
type GameStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path. ":memory:" is accepted for tests.
func Open(path string) (*GameStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
	}
	return NewFromDB(db), nil
}

// NewFromDB wraps an existing sql.DB.
func NewFromDB(db *sql.DB) *GameStore {
	return &GameStore{db: db, now: time.Now}
}

// Migrate creates the race table.
func (s *GameStore) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS race_games (
			id TEXT PRIMARY KEY,
			player_id TEXT NOT NULL,
			status TEXT NOT NULL,
			version INTEGER NOT NULL,
			state TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_race_games_player ON race_games(player_id, status)`,
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	return nil
}

func (s *GameStore) Close() error {
	return s.db.Close()
}

func (s *GameStore) Get(ctx context.Context, id string) (domain.RaceGame, error) {
	var (
		state   string
		version int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT state, version FROM race_games WHERE id = ?`, id).Scan(&state, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RaceGame{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.RaceGame{}, fmt.Errorf("sqlite: select race: %w", err)
	}
	var game domain.RaceGame
	if err := json.Unmarshal([]byte(state), &game); err != nil {
		return domain.RaceGame{}, fmt.Errorf("sqlite: decode race: %w", err)
	}
	game.Version = version
	return game, nil
}

func (s *GameStore) Create(ctx context.Context, game *domain.RaceGame) error {
	next := *game
	next.Version = 1
	state, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("sqlite: encode race: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO race_games (id, player_id, status, version, state, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		next.ID, next.PlayerID, string(next.Status), next.Version, string(state), s.now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite: insert race: %w", err)
	}
	game.Version = next.Version
	return nil
}

func (s *GameStore) Update(ctx context.Context, game *domain.RaceGame) error {
	next := *game
	next.Version++
	state, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("sqlite: encode race: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE race_games SET status = ?, version = ?, state = ?, updated_at = ? WHERE id = ? AND version = ?`,
		string(next.Status), next.Version, string(state), s.now().UTC(), game.ID, game.Version)
	if err != nil {
		return fmt.Errorf("sqlite: update race: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: update race: %w", err)
	}
	if affected == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM race_games WHERE id = ?`, game.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("sqlite: check race: %w", err)
		}
		if exists == 0 {
			return domain.ErrGameNotFound
		}
		return domain.ErrConcurrentUpdate
	}
	game.Version = next.Version
	return nil
}
