package domain

import "time"

// GameStatus is the race lifecycle discriminator. InProgress is the only non-terminal status.
type GameStatus string

const (
	StatusInProgress GameStatus = "IN_PROGRESS"
	StatusPlayerWon  GameStatus = "PLAYER_WON"
	StatusPlayerLost GameStatus = "PLAYER_LOST"
	StatusMachineWon GameStatus = "MACHINE_WON"
)

// Terminal reports whether no further gameplay mutation is allowed.
func (s GameStatus) Terminal() bool {
	return s != StatusInProgress
}

// PowerUpType identifies a single-use-per-race modifier.
type PowerUpType string

const (
	PowerUpRemoveWrongOption PowerUpType = "REMOVE_WRONG_OPTION"
	PowerUpSkipQuestion      PowerUpType = "SKIP_QUESTION"
	PowerUpDoubleProgress    PowerUpType = "DOUBLE_PROGRESS"
)

// PowerUpTypes lists every supported power-up.
var PowerUpTypes = []PowerUpType{PowerUpRemoveWrongOption, PowerUpSkipQuestion, PowerUpDoubleProgress}

func (t PowerUpType) Valid() bool {
	switch t {
	case PowerUpRemoveWrongOption, PowerUpSkipQuestion, PowerUpDoubleProgress:
		return true
	}
	return false
}

const (
	// MaxLives is the number of lives a race starts with.
	MaxLives = 3
	// RequiredProducts is the number of cosmetic products each racer needs.
	RequiredProducts = 3
)

// PowerUpSlot is the in-race copy of the player's inventory for one power-up type.
type PowerUpSlot struct {
	Type     PowerUpType `json:"type"`
	Quantity int         `json:"quantity"`
}

// RaceGame is the aggregate holding all state of one solo play-through.
type RaceGame struct {
	ID        string     `json:"id"`
	PlayerID  string     `json:"playerId"`
	PlayerUID string     `json:"playerUid"`
	LevelID   int64      `json:"levelId"`
	WorldID   int64      `json:"worldId"`
	Status    GameStatus `json:"status"`

	PlayerPosition       int `json:"playerPosition"`
	MachinePosition      int `json:"machinePosition"`
	LivesRemaining       int `json:"livesRemaining"`
	CorrectAnswers       int `json:"correctAnswers"`
	CurrentQuestionIndex int `json:"currentQuestionIndex"`

	Questions         []Question `json:"questions"`
	TimePerQuestion   int        `json:"timePerQuestion"`
	ReviewTimeSeconds int        `json:"reviewTimeSeconds"`

	GameStartedAt  time.Time  `json:"gameStartedAt"`
	LastAnswerTime *time.Time `json:"lastAnswerTime,omitempty"`
	GameFinishedAt *time.Time `json:"gameFinishedAt,omitempty"`

	HasDoubleProgressActive bool          `json:"hasDoubleProgressActive"`
	PowerUps                []PowerUpSlot `json:"powerUps"`
	UsedPowerUps            []PowerUpType `json:"usedPowerUps"`
	// ModifiedOptions overrides the current question's options after a wrong option was removed.
	ModifiedOptions []int `json:"modifiedOptions,omitempty"`

	PlayerProducts  []string `json:"playerProducts"`
	MachineProducts []string `json:"machineProducts"`

	// Version is bumped by every successful store update.
	Version int64 `json:"version"`
}

// TotalQuestions is the length of the race track.
func (g *RaceGame) TotalQuestions() int {
	return len(g.Questions)
}

// CurrentQuestion returns the question awaiting an answer, if any.
func (g *RaceGame) CurrentQuestion() (Question, bool) {
	if g.CurrentQuestionIndex < 0 || g.CurrentQuestionIndex >= len(g.Questions) {
		return Question{}, false
	}
	return g.Questions[g.CurrentQuestionIndex], true
}

// CurrentOptions honours a removed wrong option for display.
func (g *RaceGame) CurrentOptions() []int {
	if len(g.ModifiedOptions) > 0 {
		return g.ModifiedOptions
	}
	q, ok := g.CurrentQuestion()
	if !ok {
		return nil
	}
	return q.Options
}

// HasUsed reports whether t was already activated in this race.
func (g *RaceGame) HasUsed(t PowerUpType) bool {
	for _, used := range g.UsedPowerUps {
		if used == t {
			return true
		}
	}
	return false
}

// PowerUp returns the in-race slot for t, or nil.
func (g *RaceGame) PowerUp(t PowerUpType) *PowerUpSlot {
	for i := range g.PowerUps {
		if g.PowerUps[i].Type == t {
			return &g.PowerUps[i]
		}
	}
	return nil
}

// Finish moves the race into a terminal status.
func (g *RaceGame) Finish(status GameStatus, at time.Time) {
	g.Status = status
	finished := at
	g.GameFinishedAt = &finished
}

// Clone returns a deep copy so stores never share slices with callers.
func (g RaceGame) Clone() RaceGame {
	out := g
	if g.Questions != nil {
		out.Questions = make([]Question, len(g.Questions))
		for i, q := range g.Questions {
			q.Options = append([]int(nil), q.Options...)
			q.Expression.Terms = append([]Term(nil), q.Expression.Terms...)
			q.Expression.Operators = append([]Operator(nil), q.Expression.Operators...)
			out.Questions[i] = q
		}
	}
	if g.LastAnswerTime != nil {
		t := *g.LastAnswerTime
		out.LastAnswerTime = &t
	}
	if g.GameFinishedAt != nil {
		t := *g.GameFinishedAt
		out.GameFinishedAt = &t
	}
	out.PowerUps = append([]PowerUpSlot(nil), g.PowerUps...)
	out.UsedPowerUps = append([]PowerUpType(nil), g.UsedPowerUps...)
	out.ModifiedOptions = append([]int(nil), g.ModifiedOptions...)
	out.PlayerProducts = append([]string(nil), g.PlayerProducts...)
	out.MachineProducts = append([]string(nil), g.MachineProducts...)
	return out
}

// StatusResult is returned by status polling.
type StatusResult struct {
	Game           RaceGame `json:"game"`
	ElapsedSeconds float64  `json:"elapsedSeconds"`
}

// AnswerResult summarises one answer submission.
type AnswerResult struct {
	IsCorrect            bool     `json:"isCorrect"`
	CorrectAnswer        int      `json:"correctAnswer"`
	TimedOut             bool     `json:"timedOut"`
	Game                 RaceGame `json:"game"`
	ShouldOpenWorldChest bool     `json:"shouldOpenWorldChest"`
}

// PowerUpResult carries the effect payload of an activated power-up.
type PowerUpResult struct {
	Success           bool        `json:"success"`
	Type              PowerUpType `json:"type"`
	RemainingQuantity int         `json:"remainingQuantity"`
	// RemovedOption and Options are set for REMOVE_WRONG_OPTION.
	RemovedOption *int  `json:"removedOption,omitempty"`
	Options       []int `json:"options,omitempty"`
	// QuestionIndex is set for SKIP_QUESTION.
	QuestionIndex int `json:"questionIndex"`
	// DoubleProgressActive is set for DOUBLE_PROGRESS.
	DoubleProgressActive bool     `json:"doubleProgressActive"`
	Game                 RaceGame `json:"game"`
}
