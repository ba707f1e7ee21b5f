package app_test

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"math-race-service/internal/app"
	"math-race-service/internal/domain"
	"math-race-service/internal/equation"
	"math-race-service/internal/infra/memory"
)

func TestStartInitialisesRace(t *testing.T) {
	h := newHarness(t, memory.SampleSeed())
	game := h.start(t, 1)

	if game.Status != domain.StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", game.Status)
	}
	if game.LivesRemaining != 3 || game.PlayerPosition != 0 || game.MachinePosition != 0 {
		t.Fatalf("unexpected initial counters: %+v", game)
	}
	if len(game.Questions) != 10 || game.TotalQuestions() != 10 {
		t.Fatalf("expected 10 questions, got %d", len(game.Questions))
	}
	for i, q := range game.Questions {
		if !containsInt(q.Options, q.CorrectAnswer) {
			t.Fatalf("question %d: correct answer %d not in %v", i, q.CorrectAnswer, q.Options)
		}
	}
	if game.TimePerQuestion != 10 || game.ReviewTimeSeconds != 3 {
		t.Fatalf("unexpected timing: per question %d review %d", game.TimePerQuestion, game.ReviewTimeSeconds)
	}
	if game.LastAnswerTime != nil || game.GameFinishedAt != nil {
		t.Fatalf("expected no answer or finish time")
	}
	if slot := game.PowerUp(domain.PowerUpSkipQuestion); slot == nil || slot.Quantity != 2 {
		t.Fatalf("expected 2 skip power-ups loaded, got %+v", slot)
	}
	if len(game.PlayerProducts) != 3 || len(game.MachineProducts) != 3 {
		t.Fatalf("expected 3 products per racer, got %v / %v", game.PlayerProducts, game.MachineProducts)
	}
	if events := h.events.Events(); len(events) != 1 || events[0].Type != domain.EventRaceStarted {
		t.Fatalf("expected race.started event, got %+v", events)
	}
	if _, err := h.games.Get(context.Background(), game.ID); err != nil {
		t.Fatalf("expected race persisted: %v", err)
	}
}

func TestStartValidations(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, memory.SampleSeed())
	if _, err := h.svc.Start(ctx, "nobody", 1); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}
	if _, err := h.svc.Start(ctx, "uid-1", 404); !errors.Is(err, domain.ErrLevelNotFound) {
		t.Fatalf("expected level not found, got %v", err)
	}

	tired := memory.SampleSeed()
	tired.Players[0].Energy = 0
	h = newHarness(t, tired)
	if _, err := h.svc.Start(ctx, "uid-1", 1); !errors.Is(err, domain.ErrNoEnergy) {
		t.Fatalf("expected no energy, got %v", err)
	}

	orphan := memory.SampleSeed()
	orphan.Levels[0].WorldID = 99
	h = newHarness(t, orphan)
	if _, err := h.svc.Start(ctx, "uid-1", 1); !errors.Is(err, domain.ErrWorldNotFound) {
		t.Fatalf("expected world not found, got %v", err)
	}

	bare := memory.SampleSeed()
	bare.Players[0].Products = bare.Players[0].Products[:2]
	h = newHarness(t, bare)
	if _, err := h.svc.Start(ctx, "uid-1", 1); !errors.Is(err, domain.ErrNotEnoughProducts) {
		t.Fatalf("expected not enough products, got %v", err)
	}

	noRobots := memory.SampleSeed()
	noRobots.MachineProducts = noRobots.MachineProducts[:1]
	h = newHarness(t, noRobots)
	if _, err := h.svc.Start(ctx, "uid-1", 1); !errors.Is(err, domain.ErrNotEnoughProducts) {
		t.Fatalf("expected not enough machine products, got %v", err)
	}
}

func TestSubmitCorrectAnswerAdvancesPlayer(t *testing.T) {
	h := newHarness(t, memory.SampleSeed())
	game := h.start(t, 1)
	h.fixQuestions(t, game.ID)

	h.clock.Advance(2 * time.Second)
	res, err := h.svc.SubmitAnswer(context.Background(), game.ID, "uid-1", 4)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !res.IsCorrect || res.CorrectAnswer != 4 || res.TimedOut {
		t.Fatalf("expected correct answer, got %+v", res)
	}
	g := res.Game
	if g.PlayerPosition != 1 || g.LivesRemaining != 3 || g.CorrectAnswers != 1 || g.CurrentQuestionIndex != 1 {
		t.Fatalf("unexpected race after correct answer: %+v", g)
	}
	if g.LastAnswerTime == nil || !g.LastAnswerTime.Equal(h.clock.Now()) {
		t.Fatalf("expected last answer time to be set")
	}
	if res.ShouldOpenWorldChest {
		t.Fatalf("chest must stay closed mid-race")
	}
}

func TestSubmitWithDoubleProgress(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.SampleSeed())
	game := h.start(t, 1)
	h.fixQuestions(t, game.ID)

	pu, err := h.svc.ActivatePowerUp(ctx, game.ID, "uid-1", domain.PowerUpDoubleProgress)
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if !pu.Success || !pu.DoubleProgressActive || pu.RemainingQuantity != 1 {
		t.Fatalf("unexpected power-up result: %+v", pu)
	}

	res, err := h.svc.SubmitAnswer(ctx, game.ID, "uid-1", 4)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.Game.PlayerPosition != 2 || res.Game.HasDoubleProgressActive {
		t.Fatalf("expected double step and flag cleared, got %+v", res.Game)
	}

	h.clock.Advance(4 * time.Second)
	res, err = h.svc.SubmitAnswer(ctx, game.ID, "uid-1", 4)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.Game.PlayerPosition != 3 {
		t.Fatalf("double progress must apply once, position %d", res.Game.PlayerPosition)
	}
}

func TestSubmitWrongAnswerCostsLife(t *testing.T) {
	h := newHarness(t, memory.SampleSeed())
	game := h.start(t, 1)
	h.fixQuestions(t, game.ID)

	res, err := h.svc.SubmitAnswer(context.Background(), game.ID, "uid-1", 7)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.IsCorrect || res.Game.LivesRemaining != 2 || res.Game.PlayerPosition != 0 {
		t.Fatalf("expected a lost life, got %+v", res.Game)
	}
	if res.Game.CurrentQuestionIndex != 1 {
		t.Fatalf("wrong answers still advance the question, index %d", res.Game.CurrentQuestionIndex)
	}
}

func TestSubmitAfterTimeoutIsIncorrect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.SampleSeed())
	game := h.start(t, 1)
	h.fixQuestions(t, game.ID)

	h.clock.Advance(11 * time.Second)
	res, err := h.svc.SubmitAnswer(ctx, game.ID, "uid-1", 4)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.IsCorrect || !res.TimedOut || res.Game.LivesRemaining != 2 || res.Game.PlayerPosition != 0 {
		t.Fatalf("expected timeout to cost a life, got %+v", res)
	}

	// Later answers get the review time on top: 10s + 3s.
	h.clock.Advance(12 * time.Second)
	res, err = h.svc.SubmitAnswer(ctx, game.ID, "uid-1", 4)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !res.IsCorrect {
		t.Fatalf("expected answer within review window to count, got %+v", res)
	}

	h.clock.Advance(14 * time.Second)
	res, err = h.svc.SubmitAnswer(ctx, game.ID, "uid-1", 4)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.IsCorrect || !res.TimedOut {
		t.Fatalf("expected timeout after 14s, got %+v", res)
	}
}

func TestLosingLastLifeFinishesRace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.SampleSeed())
	game := h.start(t, 1)
	h.fixQuestions(t, game.ID)
	h.mutate(t, game.ID, func(g *domain.RaceGame) { g.LivesRemaining = 1 })

	res, err := h.svc.SubmitAnswer(ctx, game.ID, "uid-1", 1)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.Game.Status != domain.StatusPlayerLost || res.Game.GameFinishedAt == nil || res.Game.LivesRemaining != 0 {
		t.Fatalf("expected PLAYER_LOST, got %+v", res.Game)
	}
	if got := h.players.Energy("player-1"); got != 4 {
		t.Fatalf("expected exactly one energy consumed, energy=%d", got)
	}
	if _, err := h.svc.SubmitAnswer(ctx, game.ID, "uid-1", 4); !errors.Is(err, domain.ErrGameFinished) {
		t.Fatalf("expected finished race to reject answers, got %v", err)
	}
	if _, err := h.svc.Abandon(ctx, game.ID, "uid-1"); !errors.Is(err, domain.ErrGameFinished) {
		t.Fatalf("expected finished race to reject abandon, got %v", err)
	}
	if got := h.players.Energy("player-1"); got != 4 {
		t.Fatalf("finished race must not consume more energy, energy=%d", got)
	}
	assertLastEvent(t, h.events, domain.EventRaceFinished, domain.StatusPlayerLost)
}

func TestWinningLastLevelOpensWorldChestOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.SampleSeed())

	for round, wantChest := range []bool{true, false} {
		game := h.start(t, 15)
		h.fixQuestions(t, game.ID)
		h.mutate(t, game.ID, func(g *domain.RaceGame) { g.PlayerPosition = 9 })

		res, err := h.svc.SubmitAnswer(ctx, game.ID, "uid-1", 4)
		if err != nil {
			t.Fatalf("round %d: submit failed: %v", round, err)
		}
		if res.Game.Status != domain.StatusPlayerWon || res.Game.GameFinishedAt == nil {
			t.Fatalf("round %d: expected PLAYER_WON, got %+v", round, res.Game)
		}
		if res.ShouldOpenWorldChest != wantChest {
			t.Fatalf("round %d: expected chest=%v, got %v", round, wantChest, res.ShouldOpenWorldChest)
		}
		h.clock.Advance(time.Minute)
	}

	player, _ := h.players.GetByID(ctx, "player-1")
	if player.LastCompletedLevelID != 15 || player.Coins != 2*150 {
		t.Fatalf("expected reward granted twice, got %+v", player)
	}
	if got := h.players.Energy("player-1"); got != 5 {
		t.Fatalf("wins must not consume energy, energy=%d", got)
	}
}

func TestWinningRegularLevelKeepsChestClosed(t *testing.T) {
	h := newHarness(t, memory.SampleSeed())
	game := h.start(t, 3)
	h.fixQuestions(t, game.ID)
	h.mutate(t, game.ID, func(g *domain.RaceGame) { g.PlayerPosition = 9 })

	res, err := h.svc.SubmitAnswer(context.Background(), game.ID, "uid-1", 4)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.Game.Status != domain.StatusPlayerWon || res.ShouldOpenWorldChest {
		t.Fatalf("expected win without chest, got status=%s chest=%v", res.Game.Status, res.ShouldOpenWorldChest)
	}
}

func TestMachineWinsWhenClockRunsOut(t *testing.T) {
	h := newHarness(t, memory.SampleSeed())
	game := h.start(t, 1)
	h.fixQuestions(t, game.ID)

	// 10 questions * (10s + 3s) = 130s for the opponent to finish.
	h.clock.Advance(130 * time.Second)
	res, err := h.svc.SubmitAnswer(context.Background(), game.ID, "uid-1", 4)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.Game.MachinePosition != 10 || res.Game.Status != domain.StatusMachineWon {
		t.Fatalf("expected MACHINE_WON, got %+v", res.Game)
	}
	if got := h.players.Energy("player-1"); got != 5 {
		t.Fatalf("machine win must not consume energy, energy=%d", got)
	}
}

func TestAnsweringPastLastQuestionIsRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.SampleSeed())
	game := h.start(t, 1)
	h.fixQuestions(t, game.ID)

	// 8 correct and 2 wrong: every question answered, nobody at the finish line.
	for i, value := range []int{4, 4, 6, 4, 4, 4, 6, 4, 4, 4} {
		if _, err := h.svc.SubmitAnswer(ctx, game.ID, "uid-1", value); err != nil {
			t.Fatalf("answer %d failed: %v", i, err)
		}
	}
	stored, _ := h.games.Get(ctx, game.ID)
	if stored.Status != domain.StatusInProgress || stored.PlayerPosition != 8 || stored.LivesRemaining != 1 {
		t.Fatalf("expected race still in progress at position 8, got %+v", stored)
	}
	if stored.MachinePosition != 0 || stored.GameFinishedAt != nil {
		t.Fatalf("expected no finish without a winner, got %+v", stored)
	}

	if _, err := h.svc.SubmitAnswer(ctx, game.ID, "uid-1", 4); !errors.Is(err, domain.ErrNoMoreQuestions) {
		t.Fatalf("expected no more questions, got %v", err)
	}
}

func TestConflictingUpdateHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	conflicting := func(d *app.Dependencies) { d.Games = conflictingGames{GameRepository: d.Games} }

	h := newHarnessWith(t, memory.SampleSeed(), conflicting)
	game := h.start(t, 15)
	h.fixQuestions(t, game.ID)
	h.mutate(t, game.ID, func(g *domain.RaceGame) { g.LivesRemaining = 1 })

	if _, err := h.svc.SubmitAnswer(ctx, game.ID, "uid-1", 6); !errors.Is(err, domain.ErrConcurrentUpdate) {
		t.Fatalf("expected concurrent update, got %v", err)
	}
	if got := h.players.Energy("player-1"); got != 5 {
		t.Fatalf("rejected loss must not consume energy, energy=%d", got)
	}

	h.mutate(t, game.ID, func(g *domain.RaceGame) { g.PlayerPosition = 9 })
	if _, err := h.svc.SubmitAnswer(ctx, game.ID, "uid-1", 4); !errors.Is(err, domain.ErrConcurrentUpdate) {
		t.Fatalf("expected concurrent update, got %v", err)
	}
	player, _ := h.players.GetByID(ctx, "player-1")
	if player.Coins != 0 || player.LastCompletedLevelID != 0 {
		t.Fatalf("rejected win must not grant a reward, got %+v", player)
	}

	if _, err := h.svc.Abandon(ctx, game.ID, "uid-1"); !errors.Is(err, domain.ErrConcurrentUpdate) {
		t.Fatalf("expected concurrent update, got %v", err)
	}
	if got := h.players.Energy("player-1"); got != 5 {
		t.Fatalf("rejected abandon must not consume energy, energy=%d", got)
	}

	stored, _ := h.games.Get(ctx, game.ID)
	if stored.Status != domain.StatusInProgress {
		t.Fatalf("expected stored race untouched, got %s", stored.Status)
	}
	for _, e := range h.events.Events() {
		if e.Type == domain.EventRaceFinished {
			t.Fatalf("rejected updates must not publish race.finished")
		}
	}
}

func TestSubSecondDurationsAreRounded(t *testing.T) {
	cfg := app.DefaultConfig()
	cfg.ReviewTime = 1500 * time.Millisecond
	cfg.TimePerQuestion = 7600 * time.Millisecond
	seed := memory.SampleSeed()
	for i := range seed.Levels {
		seed.Levels[i].TimePerQuestion = 0
	}
	h := newHarnessConfig(t, seed, cfg, nil)

	game := h.start(t, 1)
	if game.ReviewTimeSeconds != 2 || game.TimePerQuestion != 8 {
		t.Fatalf("expected review 2s and 8s per question, got %d / %d", game.ReviewTimeSeconds, game.TimePerQuestion)
	}
}

func TestRemoveWrongOptionOncePerRace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.SampleSeed())
	game := h.start(t, 1)
	h.fixQuestions(t, game.ID)

	res, err := h.svc.ActivatePowerUp(ctx, game.ID, "uid-1", domain.PowerUpRemoveWrongOption)
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if res.RemovedOption == nil || *res.RemovedOption == 4 {
		t.Fatalf("expected a wrong option to be removed, got %+v", res)
	}
	if len(res.Options) != 3 || !containsInt(res.Options, 4) || containsInt(res.Options, *res.RemovedOption) {
		t.Fatalf("expected exactly one wrong option removed, got %v", res.Options)
	}
	if got := res.Game.CurrentOptions(); len(got) != 3 {
		t.Fatalf("expected modified options on the race, got %v", got)
	}

	_, err = h.svc.ActivatePowerUp(ctx, game.ID, "uid-1", domain.PowerUpRemoveWrongOption)
	if !errors.Is(err, domain.ErrPowerUpUsed) || domain.KindOf(err) != domain.KindBusiness {
		t.Fatalf("expected business error on reuse, got %v", err)
	}

	ans, err := h.svc.SubmitAnswer(ctx, game.ID, "uid-1", 4)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if len(ans.Game.ModifiedOptions) != 0 {
		t.Fatalf("expected modified options cleared on advance, got %v", ans.Game.ModifiedOptions)
	}
	if q, _ := h.inventory.Quantities(ctx, "player-1"); q[domain.PowerUpRemoveWrongOption] != 1 {
		t.Fatalf("expected one unit consumed from inventory, got %v", q)
	}
}

func TestSkipQuestion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.SampleSeed())
	game := h.start(t, 1)
	h.fixQuestions(t, game.ID)

	h.clock.Advance(5 * time.Second)
	res, err := h.svc.ActivatePowerUp(ctx, game.ID, "uid-1", domain.PowerUpSkipQuestion)
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	g := res.Game
	if res.QuestionIndex != 1 || g.CurrentQuestionIndex != 1 || g.PlayerPosition != 0 || g.LivesRemaining != 3 {
		t.Fatalf("expected question skipped without scoring, got %+v", g)
	}
	if g.LastAnswerTime == nil || !g.LastAnswerTime.Equal(h.clock.Now()) {
		t.Fatalf("expected timing window restarted")
	}
}

func TestSkipOnLastQuestionIsRejected(t *testing.T) {
	h := newHarness(t, memory.SampleSeed())
	game := h.start(t, 1)
	h.fixQuestions(t, game.ID)
	h.mutate(t, game.ID, func(g *domain.RaceGame) { g.CurrentQuestionIndex = 9 })

	_, err := h.svc.ActivatePowerUp(context.Background(), game.ID, "uid-1", domain.PowerUpSkipQuestion)
	if !errors.Is(err, domain.ErrNoMoreQuestions) {
		t.Fatalf("expected no more questions, got %v", err)
	}
}

func TestPowerUpUnavailable(t *testing.T) {
	seed := memory.SampleSeed()
	seed.Players[0].PowerUps = map[domain.PowerUpType]int{domain.PowerUpSkipQuestion: 1}
	h := newHarness(t, seed)
	game := h.start(t, 1)

	_, err := h.svc.ActivatePowerUp(context.Background(), game.ID, "uid-1", domain.PowerUpDoubleProgress)
	if !errors.Is(err, domain.ErrPowerUpUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	_, err = h.svc.ActivatePowerUp(context.Background(), game.ID, "uid-1", "TELEPORT")
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error for unknown type, got %v", err)
	}
}

func TestPowerUpConsumeFailureLeavesStoredRaceUntouched(t *testing.T) {
	ctx := context.Background()
	seed := memory.SampleSeed()
	h := newHarnessWith(t, seed, func(d *app.Dependencies) {
		d.PowerUps = failingInventory{d.PowerUps}
	})
	game := h.start(t, 1)

	_, err := h.svc.ActivatePowerUp(ctx, game.ID, "uid-1", domain.PowerUpDoubleProgress)
	if !errors.Is(err, domain.ErrPowerUpConsume) {
		t.Fatalf("expected consume failure, got %v", err)
	}
	stored, _ := h.games.Get(ctx, game.ID)
	if stored.HasUsed(domain.PowerUpDoubleProgress) || stored.HasDoubleProgressActive {
		t.Fatalf("stored race must not reflect the failed activation: %+v", stored)
	}
}

func TestStatusCooldownAndOpponent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.SampleSeed())
	game := h.start(t, 1)
	h.fixQuestions(t, game.ID)

	h.clock.Advance(26 * time.Second)
	st, err := h.svc.Status(ctx, game.ID, "uid-1")
	if err != nil {
		t.Fatalf("status before any answer failed: %v", err)
	}
	// floor(10 * 26 / 130) = 2
	if st.Game.MachinePosition != 2 || st.ElapsedSeconds != 26 {
		t.Fatalf("expected machine at 2 after 26s, got %d (elapsed %v)", st.Game.MachinePosition, st.ElapsedSeconds)
	}
	if stored, _ := h.games.Get(ctx, game.ID); stored.MachinePosition != 2 {
		t.Fatalf("expected machine position persisted, got %d", stored.MachinePosition)
	}

	if _, err := h.svc.SubmitAnswer(ctx, game.ID, "uid-1", 7); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	h.clock.Advance(1 * time.Second)
	_, err = h.svc.Status(ctx, game.ID, "uid-1")
	if !errors.Is(err, domain.ErrCooldownActive) || domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected cooldown validation error, got %v", err)
	}
	if want := "review time has not elapsed: wait 2 more seconds"; err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}

	h.clock.Advance(2 * time.Second)
	if _, err := h.svc.Status(ctx, game.ID, "uid-1"); err != nil {
		t.Fatalf("status after review window failed: %v", err)
	}
}

func TestStatusIsIdempotentAndFrozenWhenFinished(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.SampleSeed())
	game := h.start(t, 1)

	h.clock.Advance(39 * time.Second)
	first, err := h.svc.Status(ctx, game.ID, "")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	second, err := h.svc.Status(ctx, game.ID, "")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if first.Game.MachinePosition != 3 || second.Game.MachinePosition != 3 {
		t.Fatalf("expected repeated polls to agree on 3, got %d and %d", first.Game.MachinePosition, second.Game.MachinePosition)
	}

	if _, err := h.svc.Abandon(ctx, game.ID, "uid-1"); err != nil {
		t.Fatalf("abandon failed: %v", err)
	}
	h.clock.Advance(5 * time.Minute)
	frozen, err := h.svc.Status(ctx, game.ID, "uid-1")
	if err != nil {
		t.Fatalf("status on finished race failed: %v", err)
	}
	if frozen.Game.MachinePosition != 3 || frozen.ElapsedSeconds != 39 {
		t.Fatalf("expected frozen race, got machine=%d elapsed=%v", frozen.Game.MachinePosition, frozen.ElapsedSeconds)
	}
}

func TestAbandonKeepsProgress(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.SampleSeed())
	game := h.start(t, 1)
	h.mutate(t, game.ID, func(g *domain.RaceGame) { g.PlayerPosition = 5 })

	g, err := h.svc.Abandon(ctx, game.ID, "uid-1")
	if err != nil {
		t.Fatalf("abandon failed: %v", err)
	}
	if g.Status != domain.StatusPlayerLost || g.LivesRemaining != 0 || g.PlayerPosition != 5 || g.GameFinishedAt == nil {
		t.Fatalf("unexpected abandoned race: %+v", g)
	}
	if len(g.PlayerProducts) != 3 {
		t.Fatalf("expected products preserved, got %v", g.PlayerProducts)
	}
	if got := h.players.Energy("player-1"); got != 4 {
		t.Fatalf("expected one energy consumed, energy=%d", got)
	}
}

func TestGuards(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.SampleSeed())
	game := h.start(t, 1)

	if _, err := h.svc.SubmitAnswer(ctx, "missing", "uid-1", 1); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := h.svc.Status(ctx, "missing", ""); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found kind, got %v", err)
	}
	if _, err := h.svc.SubmitAnswer(ctx, game.ID, "intruder", 1); !errors.Is(err, domain.ErrNoPermission) {
		t.Fatalf("expected no permission, got %v", err)
	}
	if _, err := h.svc.ActivatePowerUp(ctx, game.ID, "intruder", domain.PowerUpSkipQuestion); !errors.Is(err, domain.ErrNoPermission) {
		t.Fatalf("expected no permission, got %v", err)
	}
	if _, err := h.svc.Abandon(ctx, game.ID, "intruder"); !errors.Is(err, domain.ErrNoPermission) {
		t.Fatalf("expected no permission, got %v", err)
	}
	if _, err := h.svc.Status(ctx, game.ID, ""); err != nil {
		t.Fatalf("expected anonymous status to pass, got %v", err)
	}
}

func TestConcurrentSubmissionsAreSerialised(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.SampleSeed())
	game := h.start(t, 1)
	h.fixQuestions(t, game.ID)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.SubmitAnswer(ctx, game.ID, "uid-1", 4)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	stored, _ := h.games.Get(ctx, game.ID)
	if stored.CurrentQuestionIndex != 2 || stored.PlayerPosition != 2 {
		t.Fatalf("expected both answers applied in turn, got index=%d position=%d", stored.CurrentQuestionIndex, stored.PlayerPosition)
	}
}

func TestSubscribeReceivesRaceUpdates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, memory.SampleSeed())
	game := h.start(t, 1)
	h.fixQuestions(t, game.ID)

	if _, _, err := h.svc.Subscribe(ctx, game.ID, "intruder"); !errors.Is(err, domain.ErrNoPermission) {
		t.Fatalf("expected no permission, got %v", err)
	}
	ch, cancel, err := h.svc.Subscribe(ctx, game.ID, "uid-1")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer cancel()

	<-ch // initial snapshot

	if _, err := h.svc.SubmitAnswer(ctx, game.ID, "uid-1", 4); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	update := <-ch
	if update.PlayerPosition != 1 || update.CurrentQuestionIndex != 1 {
		t.Fatalf("expected updated race, got %+v", update)
	}
}

func TestSubscribeDuringAnswersEndsOnStoredState(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 20; round++ {
		h := newHarness(t, memory.SampleSeed())
		game := h.start(t, 1)
		h.fixQuestions(t, game.ID)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 5; i++ {
				if _, err := h.svc.SubmitAnswer(ctx, game.ID, "uid-1", 4); err != nil {
					t.Errorf("submit failed: %v", err)
					return
				}
			}
		}()
		ch, cancel, err := h.svc.Subscribe(ctx, game.ID, "uid-1")
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}
		<-done

		var last domain.RaceGame
		for len(ch) > 0 {
			last = <-ch
		}
		cancel()
		if last.CurrentQuestionIndex != 5 {
			t.Fatalf("round %d: subscriber ended on stale snapshot at index %d", round, last.CurrentQuestionIndex)
		}
	}
}

type harness struct {
	svc       *app.RaceService
	games     *memory.GameStore
	players   *memory.PlayerStore
	inventory *memory.InventoryStore
	events    *memory.EventLog
	clock     *fakeClock
}

func newHarness(t *testing.T, seed memory.Seed) *harness {
	return newHarnessWith(t, seed, nil)
}

func newHarnessWith(t *testing.T, seed memory.Seed, customize func(*app.Dependencies)) *harness {
	t.Helper()
	return newHarnessConfig(t, seed, app.DefaultConfig(), customize)
}

func newHarnessConfig(t *testing.T, seed memory.Seed, cfg app.Config, customize func(*app.Dependencies)) *harness {
	t.Helper()
	h := &harness{
		games:     memory.NewGameStore(),
		players:   memory.NewPlayerStore(seed.Players),
		inventory: memory.NewInventoryStore(seed.Players, seed.MachineProducts),
		events:    memory.NewEventLog(),
		clock:     &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	deps := app.Dependencies{
		Games:     h.games,
		Players:   h.players,
		Energy:    h.players,
		Catalog:   memory.NewLevelRepository(memory.NewStaticLevelLoader(seed.Levels, seed.Worlds), time.Minute),
		Products:  h.inventory,
		PowerUps:  h.inventory,
		Rewards:   h.players,
		Events:    h.events,
		Generator: equation.NewSeededGenerator(11),
		Logger:    log.New(io.Discard, "", 0),
	}
	if customize != nil {
		customize(&deps)
	}
	h.svc = app.NewRaceServiceWithClock(deps, cfg, h.clock.Now)
	return h
}

func (h *harness) start(t *testing.T, levelID int64) domain.RaceGame {
	t.Helper()
	game, err := h.svc.Start(context.Background(), "uid-1", levelID)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return game
}

func (h *harness) mutate(t *testing.T, id string, fn func(*domain.RaceGame)) {
	t.Helper()
	ctx := context.Background()
	game, err := h.games.Get(ctx, id)
	if err != nil {
		t.Fatalf("load race: %v", err)
	}
	fn(&game)
	if err := h.games.Update(ctx, &game); err != nil {
		t.Fatalf("update race: %v", err)
	}
}

// fixQuestions replaces the generated questions with ones whose answer is always 4.
func (h *harness) fixQuestions(t *testing.T, id string) {
	h.mutate(t, id, func(g *domain.RaceGame) {
		for i := range g.Questions {
			expr := domain.Expression{
				Terms:     []domain.Term{{Coefficient: -1, Variable: true}, {Coefficient: 2}},
				Operators: []domain.Operator{domain.OpAdd},
			}
			g.Questions[i] = domain.Question{
				Text:          equation.Render(expr),
				Expression:    expr,
				Options:       []int{4, 6, 7, 9},
				CorrectAnswer: 4,
			}
		}
	})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// conflictingGames loses every optimistic write, as if another instance got there first.
type conflictingGames struct {
	app.GameRepository
}

func (conflictingGames) Update(context.Context, *domain.RaceGame) error {
	return domain.ErrConcurrentUpdate
}

type failingInventory struct {
	app.PowerUpInventory
}

func (failingInventory) Consume(context.Context, string, domain.PowerUpType) error {
	return errors.New("inventory offline")
}

func assertLastEvent(t *testing.T, log *memory.EventLog, eventType string, status domain.GameStatus) {
	t.Helper()
	events := log.Events()
	if len(events) == 0 {
		t.Fatalf("expected events, got none")
	}
	last := events[len(events)-1]
	if last.Type != eventType || last.Status != status {
		t.Fatalf("expected %s/%s, got %s/%s", eventType, status, last.Type, last.Status)
	}
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
