package domain

import "time"

// Difficulty represents a riddle (or player) difficulty tier
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known tiers
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Riddle represents a static riddle record from the catalog
type Riddle struct {
	RiddleID   string     `json:"riddleId"`
	LevelID    int        `json:"levelId"`
	Question   string     `json:"question"`
	Answer     string     `json:"answer"`
	Hint       string     `json:"hint,omitempty"`
	Type       string     `json:"type"`
	Difficulty Difficulty `json:"difficulty"`
	IsActive   bool       `json:"isActive"`
	CreatedAt  time.Time  `json:"created_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at,omitempty"`
}

// RiddleFilter narrows riddle selection. At most one dimension is applied,
// in precedence order: LevelID, then Difficulty, then Type.
type RiddleFilter struct {
	LevelID       int        `json:"levelId,omitempty"`
	Difficulty    Difficulty `json:"difficulty,omitempty"`
	Type          string     `json:"type,omitempty"`
	ExcludeSolved bool       `json:"excludeSolved"`
}

// RiddleSelection is the result of picking a random riddle for a player
type RiddleSelection struct {
	Riddle         Riddle          `json:"riddle"`
	IsNew          bool            `json:"isNew"`
	PlayerProgress *PlayerProgress `json:"playerProgress"`
	NextRiddleHint string          `json:"nextRiddleHint,omitempty"`
}

// RiddleStats contains aggregate counts over the active catalog
type RiddleStats struct {
	TotalRiddles        int                `json:"totalRiddles"`
	RiddlesByDifficulty map[Difficulty]int `json:"riddlesByDifficulty"`
	RiddlesByType       map[string]int     `json:"riddlesByType"`
	RiddlesByLevel      map[int]int        `json:"riddlesByLevel"`
}

// ValidateAnswerRequest is the body of the answer validation endpoint
type ValidateAnswerRequest struct {
	RiddleID string `json:"riddleId"`
	Answer   string `json:"answer"`
}

// SolveRequest is the body of the solve endpoint
type SolveRequest struct {
	RiddleID       string   `json:"riddleId"`
	LevelID        int      `json:"levelId"`
	Stars          int      `json:"stars"`
	CompletionTime *float64 `json:"completionTime,omitempty"`
}
