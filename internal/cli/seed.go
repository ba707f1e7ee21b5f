package cli

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"math-race-service/internal/config"
	"math-race-service/internal/infra/memory"
	"math-race-service/internal/infra/postgres"
)

// NewSeedCmd upserts the catalog (worlds and levels) from the seed file into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load worlds and levels from the seed file into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath)
		},
	}
}

func runSeed(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}
	seed, err := loadSeed(cfg)
	if err != nil {
		return err
	}

	db, err := openBunDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.NewSeeder(db).SeedCatalog(ctx, seed.Worlds, seed.Levels); err != nil {
		return err
	}
	log.Printf("seeded %d worlds and %d levels", len(seed.Worlds), len(seed.Levels))
	return nil
}

// loadSeed reads catalog.seed, or falls back to the built-in sample catalog.
func loadSeed(cfg config.Config) (memory.Seed, error) {
	if cfg.Catalog.Seed == "" {
		return memory.SampleSeed(), nil
	}
	return memory.LoadSeed(cfg.Catalog.Seed)
}
