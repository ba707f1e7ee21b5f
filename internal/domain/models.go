package domain

import "time"

// Operator is an arithmetic operator allowed in generated expressions.
type Operator string

const (
	OpAdd Operator = "+"
	OpSub Operator = "-"
	OpMul Operator = "*"
	OpDiv Operator = "/"
)

// Valid reports whether o is one of the four supported operators.
func (o Operator) Valid() bool {
	switch o {
	case OpAdd, OpSub, OpMul, OpDiv:
		return true
	}
	return false
}

// ComparisonPolicy decides whether the correct option yields the greater or the lesser result.
type ComparisonPolicy string

const (
	PolicyGreater ComparisonPolicy = "GREATER"
	PolicyLess    ComparisonPolicy = "LESS"
)

func (p ComparisonPolicy) Valid() bool {
	return p == PolicyGreater || p == PolicyLess
}

// Term is either a constant or a coefficient applied to x.
type Term struct {
	Coefficient int  `json:"coefficient"`
	Variable    bool `json:"variable,omitempty"`
}

// Expression is the right-hand side of `y = ...`: Terms joined by len(Terms)-1 Operators.
type Expression struct {
	Terms     []Term     `json:"terms"`
	Operators []Operator `json:"operators"`
}

// VariableTerms counts the terms referencing x.
func (e Expression) VariableTerms() int {
	n := 0
	for _, t := range e.Terms {
		if t.Variable {
			n++
		}
	}
	return n
}

// Question models a generated comparison prompt with sorted, unique integer options.
type Question struct {
	Text          string     `json:"text"`
	Expression    Expression `json:"expression"`
	Options       []int      `json:"options"`
	CorrectAnswer int        `json:"correctAnswer"`
}

// Player is the slice of the player profile the race engine needs.
type Player struct {
	ID   string `json:"id" yaml:"id"`
	UID  string `json:"uid" yaml:"uid"`
	Name string `json:"name" yaml:"name"`
	// LastCompletedLevelID is the progress marker: the highest level id the player has beaten.
	LastCompletedLevelID int64 `json:"lastCompletedLevelId" yaml:"lastCompletedLevelId"`
	Coins                int   `json:"coins" yaml:"coins"`
}

// RaceEvent is published when a race starts or reaches a terminal status.
type RaceEvent struct {
	Type       string     `json:"type"`
	GameID     string     `json:"gameId"`
	PlayerID   string     `json:"playerId"`
	LevelID    int64      `json:"levelId"`
	Status     GameStatus `json:"status"`
	OccurredAt time.Time  `json:"occurredAt"`
}

const (
	EventRaceStarted  = "race.started"
	EventRaceFinished = "race.finished"
)
