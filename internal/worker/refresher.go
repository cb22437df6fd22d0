package worker

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gotham-cipher/internal/config"
	"github.com/gotham-cipher/internal/domain"
	"github.com/gotham-cipher/internal/postgres"
	"github.com/gotham-cipher/internal/redis"
)

// ScoreboardBroadcaster pushes refreshed standings to connected clients
type ScoreboardBroadcaster interface {
	BroadcastScoreboard(entries []domain.LeaderboardEntry, totalPlayers int64)
}

// CatalogRefresher periodically reloads the active riddle catalog into
// Redis and rebuilds the total-score scoreboard from stored progress. The
// catalog refresh keeps cached slices from drifting after riddle edits;
// the scoreboard rebuild recovers the ZSET after a Redis restart.
type CatalogRefresher struct {
	cache       *redis.CacheService
	postgres    *postgres.Repository
	config      *config.SyncConfig
	broadcaster ScoreboardBroadcaster
	logger      *slog.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
	mu          sync.Mutex
	running     bool
}

// NewCatalogRefresher creates a new catalog refresher
func NewCatalogRefresher(
	cache *redis.CacheService,
	pg *postgres.Repository,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *CatalogRefresher {
	return &CatalogRefresher{
		cache:    cache,
		postgres: pg,
		config:   cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// SetBroadcaster wires the live scoreboard feed
func (w *CatalogRefresher) SetBroadcaster(b ScoreboardBroadcaster) {
	w.broadcaster = b
}

// Start begins the background refresh process
func (w *CatalogRefresher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("catalog refresher started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the background refresh process
func (w *CatalogRefresher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("catalog refresher stopped")
	return nil
}

// run is the main worker loop
func (w *CatalogRefresher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.refreshAll(ctx)
		}
	}
}

// refreshAll runs one full refresh cycle
func (w *CatalogRefresher) refreshAll(ctx context.Context) {
	w.logger.Info("starting refresh cycle")
	startTime := time.Now()

	errorCount := 0
	if err := w.RefreshCatalog(ctx); err != nil {
		w.logger.Error("failed to refresh catalog", "error", err)
		errorCount++
	}
	if err := w.RebuildScoreboard(ctx); err != nil {
		w.logger.Error("failed to rebuild scoreboard", "error", err)
		errorCount++
	}

	w.logger.Info("refresh cycle completed",
		"duration", time.Since(startTime),
		"errors", errorCount,
	)
}

// RefreshCatalog reloads every cached catalog slice from PostgreSQL
func (w *CatalogRefresher) RefreshCatalog(ctx context.Context) error {
	riddles, err := w.postgres.GetAllRiddles(ctx)
	if err != nil {
		return err
	}

	if err := w.cache.InvalidateCatalog(ctx); err != nil {
		w.logger.Warn("failed to invalidate catalog", "error", err)
	}

	byLevel := make(map[int][]domain.Riddle)
	byDifficulty := make(map[domain.Difficulty][]domain.Riddle)
	byType := make(map[string][]domain.Riddle)
	for _, r := range riddles {
		byLevel[r.LevelID] = append(byLevel[r.LevelID], r)
		byDifficulty[r.Difficulty] = append(byDifficulty[r.Difficulty], r)
		byType[r.Type] = append(byType[r.Type], r)
	}

	if err := w.cache.SetCatalog(ctx, "all", "all", riddles); err != nil {
		return err
	}
	for levelID, slice := range byLevel {
		if err := w.cache.SetCatalog(ctx, "level", strconv.Itoa(levelID), slice); err != nil {
			return err
		}
	}
	for difficulty, slice := range byDifficulty {
		if err := w.cache.SetCatalog(ctx, "difficulty", string(difficulty), slice); err != nil {
			return err
		}
	}
	for riddleType, slice := range byType {
		if err := w.cache.SetCatalog(ctx, "type", riddleType, slice); err != nil {
			return err
		}
	}

	w.logger.Debug("refreshed catalog",
		"riddles", len(riddles),
		"levels", len(byLevel),
		"types", len(byType),
	)
	return nil
}

// RebuildScoreboard rewrites the total-score ZSET from stored progress
func (w *CatalogRefresher) RebuildScoreboard(ctx context.Context) error {
	records, err := w.postgres.ListProgress(ctx)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		w.logger.Debug("no progress records to rebuild scoreboard from")
		return nil
	}

	scores := make(map[string]int64, len(records))
	for _, p := range records {
		scores[p.PlayerID] = int64(p.TotalScore)
	}

	if err := w.cache.BatchSetScores(ctx, scores); err != nil {
		return err
	}

	if w.broadcaster != nil {
		entries, err := w.cache.GetTopN(ctx, 10)
		if err != nil {
			w.logger.Warn("failed to read standings for broadcast", "error", err)
		} else {
			w.broadcaster.BroadcastScoreboard(entries, int64(len(records)))
		}
	}

	w.logger.Debug("rebuilt scoreboard", "players", len(records))
	return nil
}

// IsRunning returns whether the worker is currently running
func (w *CatalogRefresher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// RunOnce runs a single refresh cycle, used at startup for recovery
func (w *CatalogRefresher) RunOnce(ctx context.Context) {
	w.refreshAll(ctx)
}
