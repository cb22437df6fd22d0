package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gotham-cipher/internal/domain"
	"github.com/gotham-cipher/internal/notify"
)

// casRetries bounds how many times a solve is replayed after losing a
// version race to a concurrent writer.
const casRetries = 3

// Store persists player progress documents
type Store interface {
	GetProgress(ctx context.Context, playerID string) (*domain.PlayerProgress, error)
	InsertProgress(ctx context.Context, progress *domain.PlayerProgress) error
	UpdateProgress(ctx context.Context, progress *domain.PlayerProgress, expectedVersion int64) error
	RecordSolveEvent(ctx context.Context, event domain.SolveEvent) error
}

// EmailResolver resolves a player's email address from their id
type EmailResolver interface {
	EmailForSubject(ctx context.Context, subject string) (string, error)
}

// Scoreboard receives total-score updates after each solve
type Scoreboard interface {
	SetScore(ctx context.Context, playerID string, score int64) error
}

// EventSink receives applied solve events for shipping
type EventSink interface {
	PublishSolve(event domain.SolveEvent)
}

// Broadcaster pushes updated progress to connected clients
type Broadcaster interface {
	BroadcastProgress(progress *domain.PlayerProgress)
}

// Engine owns the solve-event state transition over player progress
type Engine struct {
	store            Store
	identity         EmailResolver
	mailer           notify.Mailer
	scoreboard       Scoreboard
	events           EventSink
	broadcaster      Broadcaster
	completionLevels []int
	now              func() time.Time
	logger           *slog.Logger
}

// Option configures optional engine collaborators
type Option func(*Engine)

// WithScoreboard wires the total-score leaderboard
func WithScoreboard(s Scoreboard) Option {
	return func(e *Engine) { e.scoreboard = s }
}

// WithEventSink wires the solve event pipeline
func WithEventSink(s EventSink) Option {
	return func(e *Engine) { e.events = s }
}

// WithBroadcaster wires the live progress broadcast
func WithBroadcaster(b Broadcaster) Option {
	return func(e *Engine) { e.broadcaster = b }
}

// WithClock overrides the engine's time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a progress engine. completionLevels is the level set
// that must all be completed before the congratulations mail fires.
func NewEngine(
	store Store,
	identity EmailResolver,
	mailer notify.Mailer,
	completionLevels []int,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:            store,
		identity:         identity,
		mailer:           mailer,
		completionLevels: completionLevels,
		now:              time.Now,
		logger:           logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetOrCreate fetches a player's progress, creating the zero-value record
// on first read.
func (e *Engine) GetOrCreate(ctx context.Context, playerID string) (*domain.PlayerProgress, error) {
	if playerID == "" {
		return nil, domain.ErrInvalidRequest
	}

	progress, err := e.store.GetProgress(ctx, playerID)
	if err == nil {
		return progress, nil
	}
	if !errors.Is(err, domain.ErrProgressNotFound) {
		return nil, fmt.Errorf("fetching progress: %w", err)
	}

	progress = domain.NewPlayerProgress(playerID, e.now())
	if err := e.store.InsertProgress(ctx, progress); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			// A concurrent request created the record first; use theirs
			return e.store.GetProgress(ctx, playerID)
		}
		return nil, fmt.Errorf("creating progress: %w", err)
	}
	return progress, nil
}

// ApplySolve advances a player's progress for one solve event and persists
// the whole document. Stars are not range-checked here; callers constrain
// them, and the transition only ever takes a max. The write uses the
// document version as an optimistic concurrency token and replays the
// transition on conflict, so concurrent solves for the same player cannot
// lose attempts or bestStars improvements.
func (e *Engine) ApplySolve(ctx context.Context, playerID, riddleID string, levelID, stars int, completionTime *float64) (*domain.PlayerProgress, error) {
	if playerID == "" || riddleID == "" || levelID <= 0 {
		return nil, domain.ErrInvalidRequest
	}

	var progress *domain.PlayerProgress
	var err error
	for attempt := 0; ; attempt++ {
		progress, err = e.GetOrCreate(ctx, playerID)
		if err != nil {
			return nil, err
		}

		e.applyTransition(progress, riddleID, levelID, stars, completionTime)

		err = e.store.UpdateProgress(ctx, progress, progress.Version)
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrVersionConflict) && attempt < casRetries {
			e.logger.Debug("progress version conflict, replaying solve",
				"player_id", playerID,
				"attempt", attempt+1,
			)
			continue
		}
		return nil, fmt.Errorf("persisting progress: %w", err)
	}

	event := domain.SolveEvent{
		PlayerID:       playerID,
		RiddleID:       riddleID,
		LevelID:        levelID,
		Stars:          stars,
		CompletionTime: completionTime,
		EventType:      "solve",
		Timestamp:      e.now(),
	}
	if err := e.store.RecordSolveEvent(ctx, event); err != nil {
		e.logger.Warn("failed to record solve event", "error", err)
	}

	if e.scoreboard != nil {
		if err := e.scoreboard.SetScore(ctx, playerID, int64(progress.TotalScore)); err != nil {
			e.logger.Warn("failed to update scoreboard", "error", err)
		}
	}
	if e.events != nil {
		e.events.PublishSolve(event)
	}
	if e.broadcaster != nil {
		e.broadcaster.BroadcastProgress(progress)
	}

	if e.allLevelsCompleted(progress) {
		e.sendCongrats(ctx, playerID)
	}

	return progress, nil
}

// applyTransition mutates progress in place for one solve event
func (e *Engine) applyTransition(progress *domain.PlayerProgress, riddleID string, levelID, stars int, completionTime *float64) {
	if !progress.HasSolved(riddleID) {
		progress.SolvedRiddleIDs = append(progress.SolvedRiddleIDs, riddleID)
	}

	record, ok := progress.LevelProgress[levelID]
	if !ok {
		record = &domain.LevelRecord{}
		progress.LevelProgress[levelID] = record
	}

	record.Attempts++

	if stars > record.BestStars {
		record.BestStars = stars
	}

	if completionTime != nil && *completionTime > 0 &&
		(record.BestTime == nil || *completionTime < *record.BestTime) {
		t := *completionTime
		record.BestTime = &t
	}

	if stars > 0 {
		record.Completed = true
	}

	total := 0
	for _, lvl := range progress.LevelProgress {
		total += lvl.BestStars
	}
	progress.TotalScore = total

	progress.CurrentDifficulty = Tier(progress)
	progress.LastPlayedAt = e.now()
}

// Tier derives a player's difficulty tier from their level progress. It is
// a pure function of the current record and is recomputed from scratch on
// every solve.
func Tier(progress *domain.PlayerProgress) domain.Difficulty {
	completed := progress.CompletedLevels()
	averageStars := float64(progress.TotalScore) / float64(max(completed, 1))

	switch {
	case completed >= 3 && averageStars >= 2.5:
		return domain.DifficultyHard
	case completed >= 1 && averageStars >= 1.5:
		return domain.DifficultyMedium
	default:
		return domain.DifficultyEasy
	}
}

// allLevelsCompleted reports whether every tracked level is completed
func (e *Engine) allLevelsCompleted(progress *domain.PlayerProgress) bool {
	if len(e.completionLevels) == 0 {
		return false
	}
	for _, levelID := range e.completionLevels {
		record, ok := progress.LevelProgress[levelID]
		if !ok || !record.Completed {
			return false
		}
	}
	return true
}

// sendCongrats resolves the player's email and sends the congratulations
// message. Failures are logged and swallowed; a notification must never
// fail the solve that triggered it.
func (e *Engine) sendCongrats(ctx context.Context, playerID string) {
	email, err := e.identity.EmailForSubject(ctx, playerID)
	if err != nil {
		e.logger.Warn("failed to resolve player email for congrats", "player_id", playerID, "error", err)
		return
	}
	if email == "" {
		e.logger.Warn("no email on file for player, skipping congrats", "player_id", playerID)
		return
	}
	if err := e.mailer.SendCongrats(ctx, email); err != nil {
		e.logger.Warn("failed to send congrats mail", "player_id", playerID, "error", err)
	}
}
