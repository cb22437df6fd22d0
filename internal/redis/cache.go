package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gotham-cipher/internal/config"
	"github.com/gotham-cipher/internal/domain"
)

// scoreboardKey is the sorted set holding every player's total score
const scoreboardKey = "gotham:scoreboard"

// CacheService provides Redis-based caching and the total-score leaderboard
type CacheService struct {
	client     *redis.Client
	catalogTTL time.Duration
	logger     *slog.Logger
}

// NewCacheService creates a new Redis cache service
func NewCacheService(cfg *config.RedisConfig, logger *slog.Logger) (*CacheService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &CacheService{
		client:     client,
		catalogTTL: cfg.CatalogTTL,
		logger:     logger,
	}, nil
}

// Close closes the Redis connection
func (s *CacheService) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client
func (s *CacheService) Client() *redis.Client {
	return s.client
}

// catalogKey returns the cache key for a catalog slice
func (s *CacheService) catalogKey(dimension, value string) string {
	return fmt.Sprintf("gotham:catalog:%s:%s", dimension, value)
}

// playerInfoKey returns the key for a player's cached info
func (s *CacheService) playerInfoKey(playerID string) string {
	return fmt.Sprintf("gotham:player:%s:info", playerID)
}

// --- Catalog cache ---

// GetCatalog returns the cached riddle list for a filter dimension, or a
// cache miss (nil, false).
func (s *CacheService) GetCatalog(ctx context.Context, dimension, value string) ([]domain.Riddle, bool, error) {
	data, err := s.client.Get(ctx, s.catalogKey(dimension, value)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("getting catalog cache: %w", err)
	}

	var riddles []domain.Riddle
	if err := json.Unmarshal(data, &riddles); err != nil {
		// Treat a corrupt entry as a miss; it gets rewritten on the next fill
		s.logger.Warn("dropping corrupt catalog cache entry", "dimension", dimension, "value", value, "error", err)
		return nil, false, nil
	}
	return riddles, true, nil
}

// SetCatalog caches a riddle list for a filter dimension
func (s *CacheService) SetCatalog(ctx context.Context, dimension, value string, riddles []domain.Riddle) error {
	data, err := json.Marshal(riddles)
	if err != nil {
		return fmt.Errorf("encoding catalog cache: %w", err)
	}
	if err := s.client.Set(ctx, s.catalogKey(dimension, value), data, s.catalogTTL).Err(); err != nil {
		return fmt.Errorf("setting catalog cache: %w", err)
	}
	return nil
}

// InvalidateCatalog drops every cached catalog slice
func (s *CacheService) InvalidateCatalog(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, "gotham:catalog:*", 0).Iterator()
	pipe := s.client.Pipeline()
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning catalog keys: %w", err)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidating catalog: %w", err)
	}
	return nil
}

// --- Total-score leaderboard ---

// SetScore sets a player's total score on the scoreboard
func (s *CacheService) SetScore(ctx context.Context, playerID string, score int64) error {
	err := s.client.ZAdd(ctx, scoreboardKey, redis.Z{
		Score:  float64(score),
		Member: playerID,
	}).Err()
	if err != nil {
		return fmt.Errorf("setting score: %w", err)
	}
	return nil
}

// GetTopN returns the top N players by total score
func (s *CacheService) GetTopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	results, err := s.client.ZRevRangeWithScores(ctx, scoreboardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("getting top n: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, len(results))
	for i, result := range results {
		playerID := result.Member.(string)
		username, err := s.GetPlayerUsername(ctx, playerID)
		if err != nil {
			s.logger.Warn("failed to resolve username for standings", "player_id", playerID, "error", err)
		}
		entries[i] = domain.LeaderboardEntry{
			Rank:     int64(i + 1),
			PlayerID: playerID,
			Score:    int64(result.Score),
			Username: username,
		}
	}
	return entries, nil
}

// GetPlayerRank returns a player's scoreboard position and score
func (s *CacheService) GetPlayerRank(ctx context.Context, playerID string) (*domain.LeaderboardEntry, error) {
	pipe := s.client.Pipeline()
	rankCmd := pipe.ZRevRank(ctx, scoreboardKey, playerID)
	scoreCmd := pipe.ZScore(ctx, scoreboardKey, playerID)
	_, err := pipe.Exec(ctx)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrProgressNotFound
		}
		return nil, fmt.Errorf("getting player rank: %w", err)
	}

	rank, err := rankCmd.Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrProgressNotFound
		}
		return nil, fmt.Errorf("getting rank result: %w", err)
	}

	score, err := scoreCmd.Result()
	if err != nil {
		return nil, fmt.Errorf("getting score result: %w", err)
	}

	return &domain.LeaderboardEntry{
		Rank:     rank + 1, // Convert 0-indexed to 1-indexed
		PlayerID: playerID,
		Score:    int64(score),
	}, nil
}

// RemovePlayer removes a player from the scoreboard
func (s *CacheService) RemovePlayer(ctx context.Context, playerID string) error {
	if err := s.client.ZRem(ctx, scoreboardKey, playerID).Err(); err != nil {
		return fmt.Errorf("removing player: %w", err)
	}
	return nil
}

// BatchSetScores sets multiple total scores using pipelining
func (s *CacheService) BatchSetScores(ctx context.Context, scores map[string]int64) error {
	if len(scores) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for playerID, score := range scores {
		pipe.ZAdd(ctx, scoreboardKey, redis.Z{
			Score:  float64(score),
			Member: playerID,
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch setting scores: %w", err)
	}
	return nil
}

// --- Player info cache ---

// SetPlayerInfo caches a player's display info
func (s *CacheService) SetPlayerInfo(ctx context.Context, playerID, username string) error {
	if err := s.client.HSet(ctx, s.playerInfoKey(playerID), "username", username).Err(); err != nil {
		return fmt.Errorf("setting player info: %w", err)
	}
	return nil
}

// GetPlayerUsername retrieves a player's cached username, empty on miss
func (s *CacheService) GetPlayerUsername(ctx context.Context, playerID string) (string, error) {
	username, err := s.client.HGet(ctx, s.playerInfoKey(playerID), "username").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("getting player info: %w", err)
	}
	return username, nil
}
