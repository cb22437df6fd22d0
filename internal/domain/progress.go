package domain

import "time"

// LevelRecord tracks a player's best performance for a single level
type LevelRecord struct {
	Completed bool     `json:"completed"`
	BestStars int      `json:"bestStars"`
	Attempts  int      `json:"attempts"`
	BestTime  *float64 `json:"bestTime,omitempty"`
}

// PlayerProgress is the per-player aggregate record of solved riddles,
// per-level best performance, and derived score/tier. It is persisted as a
// whole document; Version guards concurrent writers.
type PlayerProgress struct {
	PlayerID          string               `json:"playerId"`
	SolvedRiddleIDs   []string             `json:"solvedRiddleIds"`
	CurrentDifficulty Difficulty           `json:"currentDifficulty"`
	LastPlayedAt      time.Time            `json:"lastPlayedTimestamp"`
	LevelProgress     map[int]*LevelRecord `json:"levelProgress"`
	TotalScore        int                  `json:"totalScore"`
	Achievements      []string             `json:"achievements"`
	Version           int64                `json:"-"`
}

// NewPlayerProgress returns the zero-value progress record for a player
func NewPlayerProgress(playerID string, now time.Time) *PlayerProgress {
	return &PlayerProgress{
		PlayerID:          playerID,
		SolvedRiddleIDs:   []string{},
		CurrentDifficulty: DifficultyEasy,
		LastPlayedAt:      now,
		LevelProgress:     make(map[int]*LevelRecord),
		TotalScore:        0,
		Achievements:      []string{},
	}
}

// HasSolved reports whether the player has already solved the riddle
func (p *PlayerProgress) HasSolved(riddleID string) bool {
	for _, id := range p.SolvedRiddleIDs {
		if id == riddleID {
			return true
		}
	}
	return false
}

// CompletedLevels returns the count of levels with a completed record
func (p *PlayerProgress) CompletedLevels() int {
	count := 0
	for _, lvl := range p.LevelProgress {
		if lvl.Completed {
			count++
		}
	}
	return count
}

// SolveEvent records one applied solve for auditing and event shipping
type SolveEvent struct {
	PlayerID       string    `json:"player_id"`
	RiddleID       string    `json:"riddle_id"`
	LevelID        int       `json:"level_id"`
	Stars          int       `json:"stars"`
	CompletionTime *float64  `json:"completion_time,omitempty"`
	EventType      string    `json:"event_type"`
	Timestamp      time.Time `json:"timestamp"`
}

// LeaderboardEntry is a single row of the total-score leaderboard
type LeaderboardEntry struct {
	Rank     int64  `json:"rank"`
	PlayerID string `json:"player_id"`
	Score    int64  `json:"score"`
	Username string `json:"username,omitempty"`
}
