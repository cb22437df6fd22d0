package riddle

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/gotham-cipher/internal/domain"
)

// ProgressReader fetches the progress document used to exclude solved
// riddles and enrich selections
type ProgressReader interface {
	GetOrCreate(ctx context.Context, playerID string) (*domain.PlayerProgress, error)
}

// EventSink receives riddle request events for analytics
type EventSink interface {
	PublishRiddleRequested(playerID string, levelID int, difficulty domain.Difficulty, riddleType string)
}

// Selector picks riddles for players and checks answers
type Selector struct {
	catalog  *Catalog
	progress ProgressReader
	events   EventSink
	randIntN func(n int) int
	logger   *slog.Logger
}

// NewSelector creates a riddle selector
func NewSelector(catalog *Catalog, progress ProgressReader, logger *slog.Logger) *Selector {
	return &Selector{
		catalog:  catalog,
		progress: progress,
		randIntN: rand.IntN,
		logger:   logger,
	}
}

// SetEvents wires the riddle request event stream
func (s *Selector) SetEvents(sink EventSink) {
	s.events = sink
}

// SelectRandom picks one active riddle uniformly at random from the slice
// the filter names. Only the highest-precedence set dimension applies,
// in order level, difficulty, type; filters never combine. Riddles the
// player already solved are excluded when the filter asks for it.
func (s *Selector) SelectRandom(ctx context.Context, playerID string, filter domain.RiddleFilter) (*domain.RiddleSelection, error) {
	candidates, err := s.pool(ctx, filter)
	if err != nil {
		return nil, err
	}

	progress, err := s.progress.GetOrCreate(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("loading player progress: %w", err)
	}

	if filter.ExcludeSolved {
		unsolved := candidates[:0:0]
		for _, r := range candidates {
			if !progress.HasSolved(r.RiddleID) {
				unsolved = append(unsolved, r)
			}
		}
		candidates = unsolved
	}

	if len(candidates) == 0 {
		return nil, domain.ErrNoRiddlesAvailable
	}

	idx := s.randIntN(len(candidates))
	picked := candidates[idx]

	if s.events != nil {
		s.events.PublishRiddleRequested(playerID, picked.LevelID, picked.Difficulty, picked.Type)
	}

	return &domain.RiddleSelection{
		Riddle:         picked,
		IsNew:          !progress.HasSolved(picked.RiddleID),
		PlayerProgress: progress,
		NextRiddleHint: s.nextHint(candidates, idx),
	}, nil
}

// nextHint teases a second random candidate from the same pool. Empty when
// the picked riddle was the only one left.
func (s *Selector) nextHint(candidates []domain.Riddle, pickedIdx int) string {
	if len(candidates) < 2 {
		return ""
	}
	idx := s.randIntN(len(candidates) - 1)
	if idx >= pickedIdx {
		idx++
	}
	next := candidates[idx]
	return fmt.Sprintf("Next: %s puzzle in %s difficulty", next.Type, next.Difficulty)
}

// pool resolves the candidate slice for one filter
func (s *Selector) pool(ctx context.Context, filter domain.RiddleFilter) ([]domain.Riddle, error) {
	switch {
	case filter.LevelID != 0:
		return s.catalog.ByLevel(ctx, filter.LevelID)
	case filter.Difficulty != "":
		return s.catalog.ByDifficulty(ctx, filter.Difficulty)
	case filter.Type != "":
		return s.catalog.ByType(ctx, filter.Type)
	default:
		return s.catalog.All(ctx)
	}
}

// ValidateAnswer checks a submitted answer against the riddle's stored
// answer. Matching trims surrounding whitespace and ignores case; interior
// whitespace is significant.
func (s *Selector) ValidateAnswer(ctx context.Context, riddleID, answer string) (bool, *domain.Riddle, error) {
	riddle, err := s.catalog.Get(ctx, riddleID)
	if err != nil {
		return false, nil, err
	}
	match := normalizeAnswer(answer) == normalizeAnswer(riddle.Answer)
	return match, riddle, nil
}

func normalizeAnswer(answer string) string {
	return strings.ToUpper(strings.TrimSpace(answer))
}

// ListAll returns every active riddle
func (s *Selector) ListAll(ctx context.Context) ([]domain.Riddle, error) {
	return s.catalog.All(ctx)
}

// ListByLevel returns active riddles of one level
func (s *Selector) ListByLevel(ctx context.Context, levelID int) ([]domain.Riddle, error) {
	return s.catalog.ByLevel(ctx, levelID)
}

// ListByDifficulty returns active riddles of one difficulty
func (s *Selector) ListByDifficulty(ctx context.Context, difficulty domain.Difficulty) ([]domain.Riddle, error) {
	return s.catalog.ByDifficulty(ctx, difficulty)
}

// ListByType returns active riddles of one puzzle type
func (s *Selector) ListByType(ctx context.Context, riddleType string) ([]domain.Riddle, error) {
	return s.catalog.ByType(ctx, riddleType)
}

// Stats summarizes the active catalog grouped by difficulty, type and level
func (s *Selector) Stats(ctx context.Context) (*domain.RiddleStats, error) {
	riddles, err := s.catalog.All(ctx)
	if err != nil {
		return nil, err
	}

	stats := &domain.RiddleStats{
		TotalRiddles:        len(riddles),
		RiddlesByDifficulty: make(map[domain.Difficulty]int),
		RiddlesByType:       make(map[string]int),
		RiddlesByLevel:      make(map[int]int),
	}
	for _, r := range riddles {
		stats.RiddlesByDifficulty[r.Difficulty]++
		stats.RiddlesByType[r.Type]++
		stats.RiddlesByLevel[r.LevelID]++
	}
	return stats, nil
}
