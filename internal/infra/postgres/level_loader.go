package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"math-race-service/internal/domain"
)

// LevelLoader loads the level catalog from Postgres.
type LevelLoader struct {
	pool *pgxpool.Pool
}

func NewLevelLoader(pool *pgxpool.Pool) *LevelLoader {
	return &LevelLoader{pool: pool}
}

func (l *LevelLoader) LoadLevel(ctx context.Context, id int64) (domain.Level, error) {
	var (
		level      domain.Level
		resultType string
	)
	err := l.pool.QueryRow(ctx, `
		SELECT id, world_id, number, term_count, variable_count, result_type, time_per_question, coin_reward
		FROM levels WHERE id=$1`, id).
		Scan(&level.ID, &level.WorldID, &level.Number, &level.TermCount, &level.VariableCount,
			&resultType, &level.TimePerQuestion, &level.CoinReward)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Level{}, domain.ErrLevelNotFound
	}
	if err != nil {
		return domain.Level{}, fmt.Errorf("load level: %w", err)
	}
	level.ResultType = domain.ComparisonPolicy(resultType)
	return level, nil
}

func (l *LevelLoader) LoadWorlds(ctx context.Context) ([]domain.World, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, name, operators, option_count, option_min, option_max, constant_min, constant_max
		FROM worlds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load worlds: %w", err)
	}
	defer rows.Close()

	var worlds []domain.World
	for rows.Next() {
		var (
			world     domain.World
			operators []string
		)
		if err := rows.Scan(&world.ID, &world.Name, &operators, &world.OptionCount,
			&world.OptionMin, &world.OptionMax, &world.ConstantMin, &world.ConstantMax); err != nil {
			return nil, fmt.Errorf("scan world: %w", err)
		}
		world.Operators = make([]domain.Operator, 0, len(operators))
		for _, op := range operators {
			world.Operators = append(world.Operators, domain.Operator(op))
		}
		worlds = append(worlds, world)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load worlds: %w", err)
	}
	return worlds, nil
}
