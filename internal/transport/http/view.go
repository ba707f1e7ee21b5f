package http

import (
	"time"

	"math-race-service/internal/domain"
)

// raceView is the client-facing race. Correct answers stay hidden until a question is behind
// the player, or the race is over.
type raceView struct {
	ID                      string               `json:"id"`
	LevelID                 int64                `json:"levelId"`
	WorldID                 int64                `json:"worldId"`
	Status                  domain.GameStatus    `json:"status"`
	PlayerPosition          int                  `json:"playerPosition"`
	MachinePosition         int                  `json:"machinePosition"`
	LivesRemaining          int                  `json:"livesRemaining"`
	CorrectAnswers          int                  `json:"correctAnswers"`
	CurrentQuestionIndex    int                  `json:"currentQuestionIndex"`
	TotalQuestions          int                  `json:"totalQuestions"`
	Questions               []questionView       `json:"questions"`
	TimePerQuestion         int                  `json:"timePerQuestion"`
	ReviewTimeSeconds       int                  `json:"reviewTimeSeconds"`
	GameStartedAt           time.Time            `json:"gameStartedAt"`
	LastAnswerTime          *time.Time           `json:"lastAnswerTime,omitempty"`
	GameFinishedAt          *time.Time           `json:"gameFinishedAt,omitempty"`
	HasDoubleProgressActive bool                 `json:"hasDoubleProgressActive"`
	PowerUps                []domain.PowerUpSlot `json:"powerUps"`
	UsedPowerUps            []domain.PowerUpType `json:"usedPowerUps"`
	PlayerProducts          []string             `json:"playerProducts"`
	MachineProducts         []string             `json:"machineProducts"`
}

type questionView struct {
	Text          string `json:"text"`
	Options       []int  `json:"options"`
	CorrectAnswer *int   `json:"correctAnswer,omitempty"`
}

func newRaceView(game domain.RaceGame) raceView {
	questions := make([]questionView, len(game.Questions))
	for i, q := range game.Questions {
		view := questionView{Text: q.Text, Options: q.Options}
		if i == game.CurrentQuestionIndex {
			view.Options = game.CurrentOptions()
		}
		if i < game.CurrentQuestionIndex || game.Status.Terminal() {
			answer := q.CorrectAnswer
			view.CorrectAnswer = &answer
		}
		questions[i] = view
	}
	return raceView{
		ID:                      game.ID,
		LevelID:                 game.LevelID,
		WorldID:                 game.WorldID,
		Status:                  game.Status,
		PlayerPosition:          game.PlayerPosition,
		MachinePosition:         game.MachinePosition,
		LivesRemaining:          game.LivesRemaining,
		CorrectAnswers:          game.CorrectAnswers,
		CurrentQuestionIndex:    game.CurrentQuestionIndex,
		TotalQuestions:          game.TotalQuestions(),
		Questions:               questions,
		TimePerQuestion:         game.TimePerQuestion,
		ReviewTimeSeconds:       game.ReviewTimeSeconds,
		GameStartedAt:           game.GameStartedAt,
		LastAnswerTime:          game.LastAnswerTime,
		GameFinishedAt:          game.GameFinishedAt,
		HasDoubleProgressActive: game.HasDoubleProgressActive,
		PowerUps:                game.PowerUps,
		UsedPowerUps:            game.UsedPowerUps,
		PlayerProducts:          game.PlayerProducts,
		MachineProducts:         game.MachineProducts,
	}
}

type statusView struct {
	Race           raceView `json:"race"`
	ElapsedSeconds float64  `json:"elapsedSeconds"`
}

type answerView struct {
	IsCorrect            bool     `json:"isCorrect"`
	CorrectAnswer        int      `json:"correctAnswer"`
	TimedOut             bool     `json:"timedOut"`
	ShouldOpenWorldChest bool     `json:"shouldOpenWorldChest"`
	Race                 raceView `json:"race"`
}

type powerUpView struct {
	Success              bool               `json:"success"`
	Type                 domain.PowerUpType `json:"type"`
	RemainingQuantity    int                `json:"remainingQuantity"`
	RemovedOption        *int               `json:"removedOption,omitempty"`
	Options              []int              `json:"options,omitempty"`
	QuestionIndex        int                `json:"questionIndex"`
	DoubleProgressActive bool               `json:"doubleProgressActive"`
	Race                 raceView           `json:"race"`
}

func newStatusView(res domain.StatusResult) statusView {
	return statusView{Race: newRaceView(res.Game), ElapsedSeconds: res.ElapsedSeconds}
}

func newAnswerView(res domain.AnswerResult) answerView {
	return answerView{
		IsCorrect:            res.IsCorrect,
		CorrectAnswer:        res.CorrectAnswer,
		TimedOut:             res.TimedOut,
		ShouldOpenWorldChest: res.ShouldOpenWorldChest,
		Race:                 newRaceView(res.Game),
	}
}

func newPowerUpView(res domain.PowerUpResult) powerUpView {
	return powerUpView{
		Success:              res.Success,
		Type:                 res.Type,
		RemainingQuantity:    res.RemainingQuantity,
		RemovedOption:        res.RemovedOption,
		Options:              res.Options,
		QuestionIndex:        res.QuestionIndex,
		DoubleProgressActive: res.DoubleProgressActive,
		Race:                 newRaceView(res.Game),
	}
}
