package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"math-race-service/internal/app"
	"math-race-service/internal/config"
	"math-race-service/internal/equation"
	"math-race-service/internal/infra/memory"
	"math-race-service/internal/infra/postgres"
	"math-race-service/internal/infra/rabbitmq"
	redisstore "math-race-service/internal/infra/redis"
	"math-race-service/internal/infra/sqlite"
	"math-race-service/internal/metrics"
	transport "math-race-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the race server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	seed, err := loadSeed(cfg)
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.LevelLoader = memory.NewStaticLevelLoader(seed.Levels, seed.Worlds)
	if pool != nil {
		loader = postgres.NewLevelLoader(pool)
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var catalog app.LevelCatalog
	if redisClient != nil {
		catalog = redisstore.NewLevelRepository(redisClient, loader, catalogTTL)
	} else {
		catalog = memory.NewLevelRepository(loader, catalogTTL)
	}

	games, closeGames, err := openGameStore(ctx, cfg, redisClient, redisTTL)
	if err != nil {
		return err
	}
	defer closeGames()

	var events app.EventPublisher = memory.NewEventLog()
	if cfg.RabbitMQ.URL != "" {
		publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
		events = publisher
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	players := memory.NewPlayerStore(seed.Players)
	inventory := memory.NewInventoryStore(seed.Players, seed.MachineProducts)
	raceCfg := app.DefaultConfig()
	if cfg.Race.Questions > 0 {
		raceCfg.TotalQuestions = cfg.Race.Questions
	}
	raceCfg.ReviewTime = config.TTLDuration(cfg.Race.ReviewTime, raceCfg.ReviewTime)
	raceCfg.TimePerQuestion = config.TTLDuration(cfg.Race.TimePerQuestion, raceCfg.TimePerQuestion)

	service := app.NewRaceService(app.Dependencies{
		Games:     games,
		Players:   players,
		Energy:    players,
		Catalog:   catalog,
		Products:  inventory,
		PowerUps:  inventory,
		Rewards:   players,
		Events:    events,
		Observer:  m,
		Generator: equation.NewDefaultGenerator(),
		Logger:    log.New(os.Stdout, "[race] ", log.LstdFlags),
	}, raceCfg)

	router := transport.NewRouter(service, transport.RouterOptions{
		Logger:   log.New(os.Stdout, "[http] ", log.LstdFlags),
		Requests: m,
		Gatherer: reg,
	})

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting race service on :%s (store=%s)", finalPort, storeName(cfg))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func storeName(cfg config.Config) string {
	if cfg.Race.Store == "" {
		return "memory"
	}
	return cfg.Race.Store
}

// openGameStore picks the race store named by race.store. The returned func releases it.
func openGameStore(ctx context.Context, cfg config.Config, client *redis.Client, ttl time.Duration) (app.GameRepository, func(), error) {
	noop := func() {}
	switch storeName(cfg) {
	case "memory":
		return memory.NewGameStore(), noop, nil
	case "redis":
		if client == nil {
			return nil, noop, fmt.Errorf("race.store=redis needs redis.addr")
		}
		return redisstore.NewGameStore(client, ttl), noop, nil
	case "postgres":
		db, err := openBunDB(cfg)
		if err != nil {
			return nil, noop, err
		}
		return postgres.NewGameStore(db), func() { db.Close() }, nil
	case "sqlite":
		path := cfg.SQLite.Path
		if path == "" {
			path = "race.db"
		}
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, noop, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, noop, err
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown race.store %q", cfg.Race.Store)
	}
}
