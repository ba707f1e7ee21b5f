package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"math-race-service/internal/domain"
)

// Seed is the YAML catalog and player fixture used by the in-memory collaborators.
type Seed struct {
	Worlds          []domain.World `yaml:"worlds"`
	Levels          []domain.Level `yaml:"levels"`
	Players         []SeedPlayer   `yaml:"players"`
	MachineProducts []string       `yaml:"machineProducts"`
}

// SeedPlayer is a player profile plus the economy state the race engine reads.
type SeedPlayer struct {
	domain.Player `yaml:",inline"`
	Energy        int                        `yaml:"energy"`
	Products      []string                   `yaml:"products"`
	PowerUps      map[domain.PowerUpType]int `yaml:"powerUps"`
}

// LoadSeed reads a seed file from path.
func LoadSeed(path string) (Seed, error) {
	var seed Seed
	data, err := os.ReadFile(path)
	if err != nil {
		return seed, err
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return seed, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return seed, nil
}

// SampleSeed provides a minimal catalog: one world of 15 addition/subtraction levels and one
// player. Swap it for a seed file or the Postgres loader in production.
func SampleSeed() Seed {
	world := domain.World{
		ID:          1,
		Name:        "Linear Lane",
		Operators:   []domain.Operator{domain.OpAdd, domain.OpSub},
		OptionCount: 4,
		OptionMin:   -10,
		OptionMax:   10,
		ConstantMin: -9,
		ConstantMax: 9,
	}
	levels := make([]domain.Level, 0, domain.LevelsPerWorld)
	for n := 1; n <= domain.LevelsPerWorld; n++ {
		policy := domain.PolicyGreater
		if n%2 == 0 {
			policy = domain.PolicyLess
		}
		levels = append(levels, domain.Level{
			ID:              int64(n),
			WorldID:         world.ID,
			Number:          n,
			TermCount:       2 + n/5,
			VariableCount:   1 + n/8,
			ResultType:      policy,
			TimePerQuestion: 10,
			CoinReward:      10 * n,
		})
	}
	return Seed{
		Worlds: []domain.World{world},
		Levels: levels,
		Players: []SeedPlayer{{
			Player:   domain.Player{ID: "player-1", UID: "uid-1", Name: "Ada"},
			Energy:   5,
			Products: []string{"helmet-red", "car-blue", "flag-green"},
			PowerUps: map[domain.PowerUpType]int{
				domain.PowerUpRemoveWrongOption: 2,
				domain.PowerUpSkipQuestion:      2,
				domain.PowerUpDoubleProgress:    2,
			},
		}},
		MachineProducts: []string{"robot-helmet", "robot-car", "robot-flag", "robot-trail"},
	}
}
