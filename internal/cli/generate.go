package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"math-race-service/internal/config"
	"math-race-service/internal/domain"
	"math-race-service/internal/equation"
)

// NewGenerateCmd prints sample questions for a level, useful when tuning the catalog.
func NewGenerateCmd(configPath *string) *cobra.Command {
	var (
		levelID int64
		count   int
		seed    uint64
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print generated questions for a catalog level",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				cfg = config.Config{}
			}
			catalog, err := loadSeed(cfg)
			if err != nil {
				return err
			}
			return printQuestions(cmd.OutOrStdout(), catalog.Levels, catalog.Worlds, levelID, count, seed)
		},
	}
	cmd.Flags().Int64Var(&levelID, "level", 1, "level id to generate for")
	cmd.Flags().IntVar(&count, "count", 5, "number of questions")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed; 0 picks a random one")
	return cmd
}

func printQuestions(w io.Writer, levels []domain.Level, worlds []domain.World, levelID int64, count int, seed uint64) error {
	var (
		level domain.Level
		found bool
	)
	for _, l := range levels {
		if l.ID == levelID {
			level, found = l, true
			break
		}
	}
	if !found {
		return domain.ErrLevelNotFound
	}
	world, ok := domain.FindWorld(worlds, level.WorldID)
	if !ok {
		return domain.ErrWorldNotFound
	}

	gen := equation.NewDefaultGenerator()
	if seed != 0 {
		gen = equation.NewSeededGenerator(seed)
	}
	params := equation.ParamsFor(level, world)
	fmt.Fprintf(w, "level %d (%s #%d) policy=%s\n", level.ID, world.Name, level.Number, level.ResultType)
	for i, q := range gen.GenerateMany(params, count) {
		fmt.Fprintf(w, "%2d. %-40s options=%v answer=%d\n", i+1, q.Text, q.Options, q.CorrectAnswer)
	}
	return nil
}
