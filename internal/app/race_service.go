package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"math-race-service/internal/domain"
	"math-race-service/internal/equation"
)

// Config holds the race tuning that is not part of the level catalog.
type Config struct {
	TotalQuestions  int
	ReviewTime      time.Duration
	TimePerQuestion time.Duration // used when a level does not set its own
}

// DefaultConfig matches the production tuning: 10 questions, 3s review, 10s per question.
func DefaultConfig() Config {
	return Config{
		TotalQuestions:  10,
		ReviewTime:      3 * time.Second,
		TimePerQuestion: 10 * time.Second,
	}
}

// Dependencies wires the collaborators the engine reads from and writes to.
// Events, Observer, Generator and Logger are optional.
type Dependencies struct {
	Games     GameRepository
	Players   PlayerRepository
	Energy    EnergyService
	Catalog   LevelCatalog
	Products  ProductService
	PowerUps  PowerUpInventory
	Rewards   RewardService
	Events    EventPublisher
	Observer  Observer
	Generator *equation.Generator
	Logger    *log.Logger
}

// RaceService is the solo race engine: start, status polling, answers, power-ups and abandon.
type RaceService struct {
	games     GameRepository
	players   PlayerRepository
	energy    EnergyService
	catalog   LevelCatalog
	products  ProductService
	powerUps  PowerUpInventory
	rewards   RewardService
	events    EventPublisher
	observer  Observer
	generator *equation.Generator
	logger    *log.Logger

	cfg   Config
	now   func() time.Time
	locks *gameLocks
	feed  *raceFeed
}

func NewRaceService(deps Dependencies, cfg Config) *RaceService {
	return NewRaceServiceWithClock(deps, cfg, time.Now)
}

// NewRaceServiceWithClock is used by tests for deterministic timestamps.
func NewRaceServiceWithClock(deps Dependencies, cfg Config, now func() time.Time) *RaceService {
	def := DefaultConfig()
	if cfg.TotalQuestions <= 0 {
		cfg.TotalQuestions = def.TotalQuestions
	}
	if cfg.ReviewTime < 0 {
		cfg.ReviewTime = def.ReviewTime
	}
	if cfg.TimePerQuestion <= 0 {
		cfg.TimePerQuestion = def.TimePerQuestion
	}

	s := &RaceService{
		games:     deps.Games,
		players:   deps.Players,
		energy:    deps.Energy,
		catalog:   deps.Catalog,
		products:  deps.Products,
		powerUps:  deps.PowerUps,
		rewards:   deps.Rewards,
		events:    deps.Events,
		observer:  deps.Observer,
		generator: deps.Generator,
		logger:    deps.Logger,
		cfg:       cfg,
		now:       now,
		locks:     newGameLocks(),
		feed:      newRaceFeed(),
	}
	if s.events == nil {
		s.events = noopPublisher{}
	}
	if s.observer == nil {
		s.observer = noopObserver{}
	}
	if s.generator == nil {
		s.generator = equation.NewDefaultGenerator()
	}
	if s.logger == nil {
		s.logger = log.New(os.Stdout, "[race] ", log.LstdFlags)
	}
	return s
}

// Start validates the player and level, generates the question set and persists a new race.
func (s *RaceService) Start(ctx context.Context, uid string, levelID int64) (domain.RaceGame, error) {
	player, err := s.players.GetByUID(ctx, uid)
	if err != nil {
		return domain.RaceGame{}, err
	}

	hasEnergy, err := s.energy.HasEnergy(ctx, player.ID)
	if err != nil {
		return domain.RaceGame{}, fmt.Errorf("check energy: %w", err)
	}
	if !hasEnergy {
		return domain.RaceGame{}, domain.ErrNoEnergy
	}

	var (
		level      domain.Level
		worlds     []domain.World
		owned      []string
		machine    []string
		quantities map[domain.PowerUpType]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		level, err = s.catalog.GetLevel(gctx, levelID)
		return err
	})
	g.Go(func() (err error) {
		worlds, err = s.catalog.ListWorlds(gctx)
		return err
	})
	g.Go(func() (err error) {
		owned, err = s.products.ActiveProducts(gctx, player.ID)
		return err
	})
	g.Go(func() (err error) {
		machine, err = s.products.DrawMachineProducts(gctx, domain.RequiredProducts)
		return err
	})
	g.Go(func() (err error) {
		quantities, err = s.powerUps.Quantities(gctx, player.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.RaceGame{}, err
	}

	world, ok := domain.FindWorld(worlds, level.WorldID)
	if !ok {
		return domain.RaceGame{}, domain.ErrWorldNotFound
	}
	if len(owned) < domain.RequiredProducts || len(machine) < domain.RequiredProducts {
		return domain.RaceGame{}, domain.ErrNotEnoughProducts
	}

	timePerQuestion := level.TimePerQuestion
	if timePerQuestion <= 0 {
		timePerQuestion = wholeSeconds(s.cfg.TimePerQuestion)
	}

	powerUps := make([]domain.PowerUpSlot, 0, len(domain.PowerUpTypes))
	for _, t := range domain.PowerUpTypes {
		powerUps = append(powerUps, domain.PowerUpSlot{Type: t, Quantity: quantities[t]})
	}

	game := domain.RaceGame{
		ID:                uuid.NewString(),
		PlayerID:          player.ID,
		PlayerUID:         player.UID,
		LevelID:           level.ID,
		WorldID:           world.ID,
		Status:            domain.StatusInProgress,
		LivesRemaining:    domain.MaxLives,
		Questions:         s.generator.GenerateMany(equation.ParamsFor(level, world), s.cfg.TotalQuestions),
		TimePerQuestion:   timePerQuestion,
		ReviewTimeSeconds: wholeSeconds(s.cfg.ReviewTime),
		GameStartedAt:     s.now(),
		PowerUps:          powerUps,
		UsedPowerUps:      []domain.PowerUpType{},
		PlayerProducts:    append([]string(nil), owned[:domain.RequiredProducts]...),
		MachineProducts:   append([]string(nil), machine[:domain.RequiredProducts]...),
	}
	if err := s.games.Create(ctx, &game); err != nil {
		return domain.RaceGame{}, fmt.Errorf("create race: %w", err)
	}

	s.logger.Printf("race %s started: player=%s level=%d", game.ID, game.PlayerID, game.LevelID)
	s.observer.RaceStarted(game.LevelID)
	s.publish(ctx, domain.EventRaceStarted, game)
	return game, nil
}

// Status refreshes the opponent position of a running race. Terminal races are returned as stored.
func (s *RaceService) Status(ctx context.Context, gameID, uid string) (domain.StatusResult, error) {
	unlock := s.locks.lock(gameID)
	defer unlock()

	game, err := s.load(ctx, gameID, uid)
	if err != nil {
		return domain.StatusResult{}, err
	}
	now := s.now()
	if game.Status.Terminal() {
		return domain.StatusResult{Game: game, ElapsedSeconds: elapsedSeconds(&game, now)}, nil
	}

	if remaining := cooldownRemaining(&game, now); remaining > 0 {
		return domain.StatusResult{}, domain.CooldownError(remaining)
	}

	game.MachinePosition = machinePosition(&game, now)
	if err := s.games.Update(ctx, &game); err != nil {
		return domain.StatusResult{}, fmt.Errorf("update race: %w", err)
	}
	s.feed.broadcast(game)
	return domain.StatusResult{Game: game, ElapsedSeconds: elapsedSeconds(&game, now)}, nil
}

// SubmitAnswer scores the current question and resolves the race outcome.
func (s *RaceService) SubmitAnswer(ctx context.Context, gameID, uid string, value int) (domain.AnswerResult, error) {
	unlock := s.locks.lock(gameID)
	defer unlock()

	game, err := s.loadInProgress(ctx, gameID, uid)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	question, ok := game.CurrentQuestion()
	if !ok {
		return domain.AnswerResult{}, domain.ErrNoMoreQuestions
	}

	now := s.now()
	total := game.TotalQuestions()
	timedOut := answerTimedOut(&game, now)
	correct := !timedOut && value == question.CorrectAnswer

	if correct {
		step := 1
		if game.HasDoubleProgressActive {
			step = 2
		}
		game.PlayerPosition = min(total, game.PlayerPosition+step)
		game.HasDoubleProgressActive = false
		game.CorrectAnswers++
	} else {
		game.LivesRemaining = max(0, game.LivesRemaining-1)
	}
	game.CurrentQuestionIndex++
	answeredAt := now
	game.LastAnswerTime = &answeredAt
	game.ModifiedOptions = nil
	game.MachinePosition = machinePosition(&game, now)

	result := domain.AnswerResult{
		IsCorrect:     correct,
		CorrectAnswer: question.CorrectAnswer,
		TimedOut:      timedOut,
	}

	var (
		reward      *domain.Level
		spendEnergy bool
	)
	switch {
	case game.PlayerPosition == total:
		game.Finish(domain.StatusPlayerWon, now)
		level, chest, err := s.worldChest(ctx, &game)
		if err != nil {
			return domain.AnswerResult{}, err
		}
		reward = &level
		result.ShouldOpenWorldChest = chest
	case game.LivesRemaining == 0:
		game.Finish(domain.StatusPlayerLost, now)
		spendEnergy = true
	case game.MachinePosition == total:
		game.Finish(domain.StatusMachineWon, now)
	}

	if err := s.games.Update(ctx, &game); err != nil {
		return domain.AnswerResult{}, fmt.Errorf("update race: %w", err)
	}
	s.feed.broadcast(game)

	if reward != nil {
		if err := s.rewards.GrantLevelReward(ctx, game.PlayerID, *reward); err != nil {
			s.logger.Printf("race %s: grant reward for level %d failed: %v", game.ID, reward.ID, err)
		}
	}
	if spendEnergy {
		s.consumeEnergy(ctx, game)
	}

	s.observer.AnswerSubmitted(correct, timedOut)
	if game.Status.Terminal() {
		s.finished(ctx, game)
	}
	result.Game = game
	return result, nil
}

// worldChest resolves the cleared level and reports whether its world chest opens for the first
// time. It only reads; the reward itself is granted once the race is persisted.
func (s *RaceService) worldChest(ctx context.Context, game *domain.RaceGame) (domain.Level, bool, error) {
	player, err := s.players.GetByID(ctx, game.PlayerID)
	if err != nil {
		return domain.Level{}, false, err
	}
	level, err := s.catalog.GetLevel(ctx, game.LevelID)
	if err != nil {
		return domain.Level{}, false, err
	}
	firstClear := player.LastCompletedLevelID < level.ID
	return level, level.IsLastInWorld() && firstClear, nil
}

// consumeEnergy charges the energy unit of a lost race. The race is already stored as lost,
// so a failure is logged rather than returned.
func (s *RaceService) consumeEnergy(ctx context.Context, game domain.RaceGame) {
	if err := s.energy.Consume(ctx, game.PlayerID); err != nil {
		s.logger.Printf("race %s: consume energy for player=%s failed: %v", game.ID, game.PlayerID, err)
	}
}

// ActivatePowerUp spends one power-up of type t and applies its effect to the running race.
//
// The in-race slot is decremented before the persistent inventory is charged, and the effect
// preconditions are checked only after that charge. A failed charge leaves the stored race
// untouched; a failed effect precondition leaves the unit consumed.
func (s *RaceService) ActivatePowerUp(ctx context.Context, gameID, uid string, t domain.PowerUpType) (domain.PowerUpResult, error) {
	if !t.Valid() {
		return domain.PowerUpResult{}, domain.ErrInvalidPowerUp
	}
	unlock := s.locks.lock(gameID)
	defer unlock()

	game, err := s.loadInProgress(ctx, gameID, uid)
	if err != nil {
		return domain.PowerUpResult{}, err
	}
	if game.HasUsed(t) {
		return domain.PowerUpResult{}, domain.ErrPowerUpUsed
	}
	slot := game.PowerUp(t)
	if slot == nil || slot.Quantity <= 0 {
		return domain.PowerUpResult{}, domain.ErrPowerUpUnavailable
	}
	available, err := s.powerUps.Available(ctx, game.PlayerID, t)
	if err != nil {
		return domain.PowerUpResult{}, fmt.Errorf("check power-up: %w", err)
	}
	if !available {
		return domain.PowerUpResult{}, domain.ErrPowerUpUnavailable
	}

	slot.Quantity--
	game.UsedPowerUps = append(game.UsedPowerUps, t)
	if err := s.powerUps.Consume(ctx, game.PlayerID, t); err != nil {
		s.logger.Printf("race %s: consume %s failed: %v", game.ID, t, err)
		return domain.PowerUpResult{}, fmt.Errorf("%w: %v", domain.ErrPowerUpConsume, err)
	}

	now := s.now()
	result := domain.PowerUpResult{Success: true, Type: t, RemainingQuantity: slot.Quantity}
	if err := s.applyPowerUp(&game, t, now, &result); err != nil {
		s.logger.Printf("race %s: %s consumed but not applied: %v", game.ID, t, err)
		return domain.PowerUpResult{}, err
	}
	game.MachinePosition = machinePosition(&game, now)

	if err := s.games.Update(ctx, &game); err != nil {
		return domain.PowerUpResult{}, fmt.Errorf("update race: %w", err)
	}
	s.feed.broadcast(game)
	s.observer.PowerUpActivated(t)
	result.Game = game
	return result, nil
}

func (s *RaceService) applyPowerUp(game *domain.RaceGame, t domain.PowerUpType, now time.Time, result *domain.PowerUpResult) error {
	switch t {
	case domain.PowerUpRemoveWrongOption:
		question, ok := game.CurrentQuestion()
		if !ok {
			return domain.ErrNoMoreQuestions
		}
		options := game.CurrentOptions()
		if len(options) <= 1 {
			return domain.ErrNoWrongOption
		}
		wrong := make([]int, 0, len(options))
		for _, o := range options {
			if o != question.CorrectAnswer {
				wrong = append(wrong, o)
			}
		}
		if len(wrong) == 0 {
			return domain.ErrNoWrongOption
		}
		removed := wrong[rand.IntN(len(wrong))]
		remaining := make([]int, 0, len(options)-1)
		for _, o := range options {
			if o != removed {
				remaining = append(remaining, o)
			}
		}
		game.ModifiedOptions = remaining
		result.RemovedOption = &removed
		result.Options = remaining
	case domain.PowerUpSkipQuestion:
		if game.CurrentQuestionIndex+1 >= len(game.Questions) {
			return domain.ErrNoMoreQuestions
		}
		game.CurrentQuestionIndex++
		restarted := now
		game.LastAnswerTime = &restarted
		game.ModifiedOptions = nil
		result.QuestionIndex = game.CurrentQuestionIndex
	case domain.PowerUpDoubleProgress:
		game.HasDoubleProgressActive = true
		result.DoubleProgressActive = true
	}
	return nil
}

// Abandon forfeits a running race. Progress fields are kept as a historical record.
func (s *RaceService) Abandon(ctx context.Context, gameID, uid string) (domain.RaceGame, error) {
	unlock := s.locks.lock(gameID)
	defer unlock()

	game, err := s.loadInProgress(ctx, gameID, uid)
	if err != nil {
		return domain.RaceGame{}, err
	}
	game.LivesRemaining = 0
	game.Finish(domain.StatusPlayerLost, s.now())
	if err := s.games.Update(ctx, &game); err != nil {
		return domain.RaceGame{}, fmt.Errorf("update race: %w", err)
	}
	s.feed.broadcast(game)
	s.consumeEnergy(ctx, game)
	s.logger.Printf("race %s abandoned by player=%s", game.ID, game.PlayerID)
	s.finished(ctx, game)
	return game, nil
}

// Subscribe streams race snapshots after every change, starting with the stored state.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *RaceService) Subscribe(ctx context.Context, gameID, uid string) (<-chan domain.RaceGame, func(), error) {
	unlock := s.locks.lock(gameID)
	defer unlock()

	game, err := s.load(ctx, gameID, uid)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.feed.subscribe(game)
	return ch, cancel, nil
}

// load runs the shared guards: not found, then ownership. An empty uid skips the ownership check.
func (s *RaceService) load(ctx context.Context, gameID, uid string) (domain.RaceGame, error) {
	game, err := s.games.Get(ctx, gameID)
	if err != nil {
		if errors.Is(err, domain.ErrGameNotFound) {
			return domain.RaceGame{}, err
		}
		return domain.RaceGame{}, fmt.Errorf("load race: %w", err)
	}
	if uid != "" && uid != game.PlayerUID {
		return domain.RaceGame{}, domain.ErrNoPermission
	}
	return game, nil
}

// loadInProgress adds the terminal guard used by every mutating operation.
func (s *RaceService) loadInProgress(ctx context.Context, gameID, uid string) (domain.RaceGame, error) {
	game, err := s.load(ctx, gameID, uid)
	if err != nil {
		return domain.RaceGame{}, err
	}
	if game.Status.Terminal() {
		return domain.RaceGame{}, domain.ErrGameFinished
	}
	return game, nil
}

func (s *RaceService) finished(ctx context.Context, game domain.RaceGame) {
	s.logger.Printf("race %s finished: status=%s player=%d machine=%d lives=%d",
		game.ID, game.Status, game.PlayerPosition, game.MachinePosition, game.LivesRemaining)
	s.observer.RaceFinished(game.Status)
	s.publish(ctx, domain.EventRaceFinished, game)
}

func (s *RaceService) publish(ctx context.Context, eventType string, game domain.RaceGame) {
	event := domain.RaceEvent{
		Type:       eventType,
		GameID:     game.ID,
		PlayerID:   game.PlayerID,
		LevelID:    game.LevelID,
		Status:     game.Status,
		OccurredAt: s.now(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Printf("publish %s for race %s: %v", eventType, game.ID, err)
	}
}
