package domain

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors so transports can map them consistently.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound means a referenced player, game, level or world does not exist.
	KindNotFound
	// KindValidation means the input was malformed or mistimed; the caller may retry later.
	KindValidation
	// KindBusiness means a game rule was violated.
	KindBusiness
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindBusiness:
		return "business"
	default:
		return "internal"
	}
}

// Error is a classified engine error.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

var (
	// ErrPlayerNotFound is returned when no player matches the supplied uid or id.
	ErrPlayerNotFound = newError(KindNotFound, "player not found")
	// ErrGameNotFound is returned when a race id is unknown.
	ErrGameNotFound = newError(KindNotFound, "race game not found")
	// ErrLevelNotFound indicates the level could not be loaded.
	ErrLevelNotFound = newError(KindNotFound, "level not found")
	// ErrWorldNotFound indicates the level references a world that does not exist.
	ErrWorldNotFound = newError(KindNotFound, "world not found")

	// ErrCooldownActive is wrapped with the remaining wait when status is polled too early.
	ErrCooldownActive = newError(KindValidation, "review time has not elapsed")
	// ErrInvalidPowerUp is returned for unknown power-up types.
	ErrInvalidPowerUp = newError(KindValidation, "unknown power-up type")

	ErrNoEnergy           = newError(KindBusiness, "player has no energy available")
	ErrNoPermission       = newError(KindBusiness, "no permission to access this race")
	ErrGameFinished       = newError(KindBusiness, "race already finished")
	ErrNoMoreQuestions    = newError(KindBusiness, "no more questions")
	ErrPowerUpUsed        = newError(KindBusiness, "power-up already used in this race")
	ErrPowerUpUnavailable = newError(KindBusiness, "power-up not available")
	ErrPowerUpConsume     = newError(KindBusiness, "failed to consume power-up")
	ErrNoWrongOption      = newError(KindBusiness, "no wrong option left to remove")
	ErrNotEnoughProducts  = newError(KindBusiness, "not enough active products to race")
	// ErrConcurrentUpdate is returned by stores when the stored version moved underneath the caller.
	ErrConcurrentUpdate = newError(KindBusiness, "race was modified concurrently")
)

// CooldownError builds the validation error returned when status is polled inside the review window.
func CooldownError(remainingSeconds int) error {
	return fmt.Errorf("%w: wait %d more seconds", ErrCooldownActive, remainingSeconds)
}

// KindOf resolves the Kind of err through any wrapping. Unclassified errors are KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
