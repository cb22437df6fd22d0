package riddle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/gotham-cipher/internal/domain"
)

type fakeRepo struct {
	riddles []domain.Riddle
}

func (r *fakeRepo) GetRiddle(ctx context.Context, riddleID string) (*domain.Riddle, error) {
	for _, riddle := range r.riddles {
		if riddle.RiddleID == riddleID {
			return &riddle, nil
		}
	}
	return nil, domain.ErrRiddleNotFound
}

func (r *fakeRepo) GetRiddlesByLevel(ctx context.Context, levelID int) ([]domain.Riddle, error) {
	return r.filter(func(riddle domain.Riddle) bool { return riddle.LevelID == levelID }), nil
}

func (r *fakeRepo) GetRiddlesByDifficulty(ctx context.Context, difficulty domain.Difficulty) ([]domain.Riddle, error) {
	return r.filter(func(riddle domain.Riddle) bool { return riddle.Difficulty == difficulty }), nil
}

func (r *fakeRepo) GetRiddlesByType(ctx context.Context, riddleType string) ([]domain.Riddle, error) {
	return r.filter(func(riddle domain.Riddle) bool { return riddle.Type == riddleType }), nil
}

func (r *fakeRepo) GetAllRiddles(ctx context.Context) ([]domain.Riddle, error) {
	return r.filter(func(domain.Riddle) bool { return true }), nil
}

func (r *fakeRepo) filter(keep func(domain.Riddle) bool) []domain.Riddle {
	var out []domain.Riddle
	for _, riddle := range r.riddles {
		if riddle.IsActive && keep(riddle) {
			out = append(out, riddle)
		}
	}
	return out
}

type fakeProgress struct {
	progress *domain.PlayerProgress
}

func (p *fakeProgress) GetOrCreate(ctx context.Context, playerID string) (*domain.PlayerProgress, error) {
	if p.progress != nil {
		return p.progress, nil
	}
	return domain.NewPlayerProgress(playerID, time.Now()), nil
}

func testRiddles() []domain.Riddle {
	return []domain.Riddle{
		{RiddleID: "r1", LevelID: 1, Question: "q1", Answer: "ARKHAM", Type: "logic", Difficulty: domain.DifficultyEasy, IsActive: true},
		{RiddleID: "r2", LevelID: 1, Question: "q2", Answer: "PENGUIN", Type: "wordplay", Difficulty: domain.DifficultyMedium, IsActive: true},
		{RiddleID: "r3", LevelID: 2, Question: "q3", Answer: "JOKER", Type: "logic", Difficulty: domain.DifficultyHard, IsActive: true},
		{RiddleID: "r4", LevelID: 2, Question: "q4", Answer: "BANE", Type: "cipher", Difficulty: domain.DifficultyHard, IsActive: false},
	}
}

func newTestSelector(t *testing.T, riddles []domain.Riddle, progress *fakeProgress) *Selector {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := NewCatalog(&fakeRepo{riddles: riddles}, nil, logger)
	return NewSelector(catalog, progress, logger)
}

func TestSelectRandom_ExcludesSolved(t *testing.T) {
	progress := domain.NewPlayerProgress("p1", time.Now())
	progress.SolvedRiddleIDs = []string{"r1", "r3"}
	selector := newTestSelector(t, testRiddles(), &fakeProgress{progress: progress})

	for i := 0; i < 20; i++ {
		selection, err := selector.SelectRandom(context.Background(), "p1", domain.RiddleFilter{ExcludeSolved: true})
		if err != nil {
			t.Fatalf("SelectRandom() error = %v", err)
		}
		if selection.Riddle.RiddleID != "r2" {
			t.Fatalf("SelectRandom() picked %s, want r2 (only unsolved active riddle)", selection.Riddle.RiddleID)
		}
		if !selection.IsNew {
			t.Error("IsNew = false for unsolved riddle")
		}
	}
}

func TestSelectRandom_NoRiddlesAvailable(t *testing.T) {
	progress := domain.NewPlayerProgress("p1", time.Now())
	progress.SolvedRiddleIDs = []string{"r1", "r2", "r3"}
	selector := newTestSelector(t, testRiddles(), &fakeProgress{progress: progress})

	_, err := selector.SelectRandom(context.Background(), "p1", domain.RiddleFilter{ExcludeSolved: true})
	if !errors.Is(err, domain.ErrNoRiddlesAvailable) {
		t.Fatalf("SelectRandom() error = %v, want no riddles available", err)
	}
}

func TestSelectRandom_IncludeSolved(t *testing.T) {
	progress := domain.NewPlayerProgress("p1", time.Now())
	progress.SolvedRiddleIDs = []string{"r1", "r2", "r3"}
	selector := newTestSelector(t, testRiddles(), &fakeProgress{progress: progress})

	selection, err := selector.SelectRandom(context.Background(), "p1", domain.RiddleFilter{ExcludeSolved: false})
	if err != nil {
		t.Fatalf("SelectRandom() error = %v", err)
	}
	if selection.IsNew {
		t.Errorf("IsNew = true for solved riddle %s", selection.Riddle.RiddleID)
	}
}

func TestSelectRandom_FilterPrecedence(t *testing.T) {
	selector := newTestSelector(t, testRiddles(), &fakeProgress{})
	ctx := context.Background()

	// Level wins over difficulty and type even when they disagree
	filter := domain.RiddleFilter{
		LevelID:    2,
		Difficulty: domain.DifficultyEasy,
		Type:       "wordplay",
	}
	for i := 0; i < 20; i++ {
		selection, err := selector.SelectRandom(ctx, "p1", filter)
		if err != nil {
			t.Fatalf("SelectRandom() error = %v", err)
		}
		if selection.Riddle.LevelID != 2 {
			t.Fatalf("picked level %d, want 2", selection.Riddle.LevelID)
		}
	}

	// Difficulty wins over type
	filter = domain.RiddleFilter{
		Difficulty: domain.DifficultyMedium,
		Type:       "logic",
	}
	selection, err := selector.SelectRandom(ctx, "p1", filter)
	if err != nil {
		t.Fatalf("SelectRandom() error = %v", err)
	}
	if selection.Riddle.Difficulty != domain.DifficultyMedium {
		t.Errorf("picked difficulty %q, want medium", selection.Riddle.Difficulty)
	}
}

func TestSelectRandom_SkipsInactive(t *testing.T) {
	selector := newTestSelector(t, testRiddles(), &fakeProgress{})

	for i := 0; i < 20; i++ {
		selection, err := selector.SelectRandom(context.Background(), "p1", domain.RiddleFilter{LevelID: 2})
		if err != nil {
			t.Fatalf("SelectRandom() error = %v", err)
		}
		if selection.Riddle.RiddleID == "r4" {
			t.Fatal("picked inactive riddle r4")
		}
	}
}

func TestSelectRandom_NextRiddleHint(t *testing.T) {
	selector := newTestSelector(t, testRiddles(), &fakeProgress{})

	// Level 1 holds exactly r1 and r2; the hint must tease the one not picked.
	selection, err := selector.SelectRandom(context.Background(), "p1", domain.RiddleFilter{LevelID: 1})
	if err != nil {
		t.Fatalf("SelectRandom() error = %v", err)
	}

	other := "r1"
	if selection.Riddle.RiddleID == "r1" {
		other = "r2"
	}
	var next domain.Riddle
	for _, r := range testRiddles() {
		if r.RiddleID == other {
			next = r
		}
	}
	want := "Next: " + next.Type + " puzzle in " + string(next.Difficulty) + " difficulty"
	if selection.NextRiddleHint != want {
		t.Errorf("NextRiddleHint = %q, want %q", selection.NextRiddleHint, want)
	}
}

func TestSelectRandom_NextRiddleHintEmptyWhenSoleCandidate(t *testing.T) {
	selector := newTestSelector(t, testRiddles(), &fakeProgress{})

	// Level 2 holds only r3.
	selection, err := selector.SelectRandom(context.Background(), "p1", domain.RiddleFilter{LevelID: 2})
	if err != nil {
		t.Fatalf("SelectRandom() error = %v", err)
	}
	if selection.NextRiddleHint != "" {
		t.Errorf("NextRiddleHint = %q, want empty", selection.NextRiddleHint)
	}
}

func TestValidateAnswer(t *testing.T) {
	selector := newTestSelector(t, testRiddles(), &fakeProgress{})
	ctx := context.Background()

	tests := []struct {
		name     string
		riddleID string
		answer   string
		want     bool
	}{
		{"exact match", "r1", "ARKHAM", true},
		{"lowercase", "r1", "arkham", true},
		{"surrounding whitespace", "r1", "  Arkham  ", true},
		{"interior whitespace", "r1", "ark ham", false},
		{"wrong answer", "r1", "GOTHAM", false},
		{"empty answer", "r1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, riddle, err := selector.ValidateAnswer(ctx, tt.riddleID, tt.answer)
			if err != nil {
				t.Fatalf("ValidateAnswer() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ValidateAnswer(%q) = %v, want %v", tt.answer, got, tt.want)
			}
			if riddle == nil || riddle.RiddleID != tt.riddleID {
				t.Errorf("ValidateAnswer returned riddle %v, want %s", riddle, tt.riddleID)
			}
		})
	}
}

func TestValidateAnswer_UnknownRiddle(t *testing.T) {
	selector := newTestSelector(t, testRiddles(), &fakeProgress{})

	if _, _, err := selector.ValidateAnswer(context.Background(), "missing", "ARKHAM"); !errors.Is(err, domain.ErrRiddleNotFound) {
		t.Fatalf("ValidateAnswer() error = %v, want riddle not found", err)
	}
}

func TestStats(t *testing.T) {
	selector := newTestSelector(t, testRiddles(), &fakeProgress{})

	stats, err := selector.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}

	if stats.TotalRiddles != 3 {
		t.Errorf("TotalRiddles = %d, want 3 (inactive excluded)", stats.TotalRiddles)
	}
	if stats.RiddlesByDifficulty[domain.DifficultyHard] != 1 {
		t.Errorf("RiddlesByDifficulty[hard] = %d, want 1", stats.RiddlesByDifficulty[domain.DifficultyHard])
	}
	if stats.RiddlesByType["logic"] != 2 {
		t.Errorf("RiddlesByType[logic] = %d, want 2", stats.RiddlesByType["logic"])
	}
	if stats.RiddlesByLevel[1] != 2 {
		t.Errorf("RiddlesByLevel[1] = %d, want 2", stats.RiddlesByLevel[1])
	}
}
