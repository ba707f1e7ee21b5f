package app

import (
	"math"
	"time"

	"math-race-service/internal/domain"
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// wholeSeconds rounds a configured duration to the nearest second; races store whole seconds.
func wholeSeconds(d time.Duration) int {
	return int(d.Round(time.Second) / time.Second)
}

// elapsedSeconds is measured from the race start; finished races are frozen at their finish time.
func elapsedSeconds(game *domain.RaceGame, now time.Time) float64 {
	end := now
	if game.GameFinishedAt != nil {
		end = *game.GameFinishedAt
	}
	return end.Sub(game.GameStartedAt).Seconds()
}

// machinePosition derives the opponent's progress from wall-clock time only:
// floor(total * elapsed / (total * (timePerQuestion + reviewTime))), clamped to [0, total].
func machinePosition(game *domain.RaceGame, now time.Time) int {
	total := game.TotalQuestions()
	if total == 0 {
		return 0
	}
	estimated := float64(total * (game.TimePerQuestion + game.ReviewTimeSeconds))
	if estimated <= 0 {
		return total
	}
	pos := int(math.Floor(float64(total) * now.Sub(game.GameStartedAt).Seconds() / estimated))
	if pos < 0 {
		return 0
	}
	if pos > total {
		return total
	}
	return pos
}

// answerTimedOut applies the timing window: the first answer gets timePerQuestion from the start,
// later answers additionally get the review time after the previous answer.
func answerTimedOut(game *domain.RaceGame, now time.Time) bool {
	reference := game.GameStartedAt
	allowed := seconds(game.TimePerQuestion)
	if game.LastAnswerTime != nil {
		reference = *game.LastAnswerTime
		allowed += seconds(game.ReviewTimeSeconds)
	}
	return now.Sub(reference) > allowed
}

// cooldownRemaining returns the whole seconds left before status may be polled again.
func cooldownRemaining(game *domain.RaceGame, now time.Time) int {
	if game.LastAnswerTime == nil {
		return 0
	}
	left := seconds(game.ReviewTimeSeconds) - now.Sub(*game.LastAnswerTime)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}
