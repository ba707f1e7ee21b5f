package postgres

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"math-race-service/internal/domain"
)

type worldRecord struct {
	bun.BaseModel `bun:"table:worlds"`

	ID          int64    `bun:"id,pk"`
	Name        string   `bun:"name"`
	Operators   []string `bun:"operators,array"`
	OptionCount int      `bun:"option_count"`
	OptionMin   int      `bun:"option_min"`
	OptionMax   int      `bun:"option_max"`
	ConstantMin int      `bun:"constant_min"`
	ConstantMax int      `bun:"constant_max"`
}

type levelRecord struct {
	bun.BaseModel `bun:"table:levels"`

	ID              int64  `bun:"id,pk"`
	WorldID         int64  `bun:"world_id"`
	Number          int    `bun:"number"`
	TermCount       int    `bun:"term_count"`
	VariableCount   int    `bun:"variable_count"`
	ResultType      string `bun:"result_type"`
	TimePerQuestion int    `bun:"time_per_question"`
	CoinReward      int    `bun:"coin_reward"`
}

// Seeder upserts catalog content so the level loader has something to serve.
type Seeder struct {
	db *bun.DB
}

func NewSeeder(db *bun.DB) *Seeder {
	return &Seeder{db: db}
}

// SeedCatalog upserts worlds first, then levels, in one transaction.
func (s *Seeder) SeedCatalog(ctx context.Context, worlds []domain.World, levels []domain.Level) error {
	if len(worlds) == 0 && len(levels) == 0 {
		return nil
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if len(worlds) > 0 {
			records := make([]worldRecord, 0, len(worlds))
			for _, w := range worlds {
				records = append(records, toWorldRecord(w))
			}
			_, err := tx.NewInsert().Model(&records).
				On("CONFLICT (id) DO UPDATE").
				Set("name = EXCLUDED.name").
				Set("operators = EXCLUDED.operators").
				Set("option_count = EXCLUDED.option_count").
				Set("option_min = EXCLUDED.option_min").
				Set("option_max = EXCLUDED.option_max").
				Set("constant_min = EXCLUDED.constant_min").
				Set("constant_max = EXCLUDED.constant_max").
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("upsert worlds: %w", err)
			}
		}
		if len(levels) > 0 {
			records := make([]levelRecord, 0, len(levels))
			for _, l := range levels {
				records = append(records, toLevelRecord(l))
			}
			_, err := tx.NewInsert().Model(&records).
				On("CONFLICT (id) DO UPDATE").
				Set("world_id = EXCLUDED.world_id").
				Set("number = EXCLUDED.number").
				Set("term_count = EXCLUDED.term_count").
				Set("variable_count = EXCLUDED.variable_count").
				Set("result_type = EXCLUDED.result_type").
				Set("time_per_question = EXCLUDED.time_per_question").
				Set("coin_reward = EXCLUDED.coin_reward").
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("upsert levels: %w", err)
			}
		}
		return nil
	})
}

func toWorldRecord(w domain.World) worldRecord {
	operators := make([]string, 0, len(w.Operators))
	for _, op := range w.Operators {
		operators = append(operators, string(op))
	}
	return worldRecord{
		ID:          w.ID,
		Name:        w.Name,
		Operators:   operators,
		OptionCount: w.OptionCount,
		OptionMin:   w.OptionMin,
		OptionMax:   w.OptionMax,
		ConstantMin: w.ConstantMin,
		ConstantMax: w.ConstantMax,
	}
}

func toLevelRecord(l domain.Level) levelRecord {
	return levelRecord{
		ID:              l.ID,
		WorldID:         l.WorldID,
		Number:          l.Number,
		TermCount:       l.TermCount,
		VariableCount:   l.VariableCount,
		ResultType:      string(l.ResultType),
		TimePerQuestion: l.TimePerQuestion,
		CoinReward:      l.CoinReward,
	}
}
