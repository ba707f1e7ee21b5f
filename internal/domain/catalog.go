package domain

// LevelsPerWorld is the number of levels in every world; the last one unlocks the world chest.
const LevelsPerWorld = 15

// World groups levels and carries the shared difficulty configuration.
type World struct {
	ID          int64      `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Operators   []Operator `json:"operators" yaml:"operators"`
	OptionCount int        `json:"optionCount" yaml:"optionCount"`
	OptionMin   int        `json:"optionMin" yaml:"optionMin"`
	OptionMax   int        `json:"optionMax" yaml:"optionMax"`
	ConstantMin int        `json:"constantMin" yaml:"constantMin"`
	ConstantMax int        `json:"constantMax" yaml:"constantMax"`
}

// Level is a single playable stage inside a world.
type Level struct {
	ID            int64            `json:"id" yaml:"id"`
	WorldID       int64            `json:"worldId" yaml:"worldId"`
	Number        int              `json:"number" yaml:"number"`
	TermCount     int              `json:"termCount" yaml:"termCount"`
	VariableCount int              `json:"variableCount" yaml:"variableCount"`
	ResultType    ComparisonPolicy `json:"resultType" yaml:"resultType"`
	// TimePerQuestion is in seconds; zero means the engine default.
	TimePerQuestion int `json:"timePerQuestion" yaml:"timePerQuestion"`
	CoinReward      int `json:"coinReward" yaml:"coinReward"`
}

// IsLastInWorld reports whether finishing this level may open the world chest.
func (l Level) IsLastInWorld() bool {
	return l.Number == LevelsPerWorld
}

// FindWorld returns the world with the given id from a catalog listing.
func FindWorld(worlds []World, id int64) (World, bool) {
	for _, w := range worlds {
		if w.ID == id {
			return w, true
		}
	}
	return World{}, false
}
