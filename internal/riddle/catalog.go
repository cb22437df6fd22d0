package riddle

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gotham-cipher/internal/domain"
)

// Repository reads riddles from durable storage
type Repository interface {
	GetRiddle(ctx context.Context, riddleID string) (*domain.Riddle, error)
	GetRiddlesByLevel(ctx context.Context, levelID int) ([]domain.Riddle, error)
	GetRiddlesByDifficulty(ctx context.Context, difficulty domain.Difficulty) ([]domain.Riddle, error)
	GetRiddlesByType(ctx context.Context, riddleType string) ([]domain.Riddle, error)
	GetAllRiddles(ctx context.Context) ([]domain.Riddle, error)
}

// Cache holds hot catalog slices keyed by dimension and value
type Cache interface {
	GetCatalog(ctx context.Context, dimension, value string) ([]domain.Riddle, bool, error)
	SetCatalog(ctx context.Context, dimension, value string, riddles []domain.Riddle) error
}

// Catalog serves riddle slices, consulting the cache before storage.
// Cache errors degrade to storage reads and are logged, never surfaced.
type Catalog struct {
	repo   Repository
	cache  Cache
	logger *slog.Logger
}

// NewCatalog creates a cache-fronted riddle catalog. cache may be nil,
// in which case every read hits storage.
func NewCatalog(repo Repository, cache Cache, logger *slog.Logger) *Catalog {
	return &Catalog{repo: repo, cache: cache, logger: logger}
}

// Get returns a single riddle by id, bypassing the cache
func (c *Catalog) Get(ctx context.Context, riddleID string) (*domain.Riddle, error) {
	return c.repo.GetRiddle(ctx, riddleID)
}

// ByLevel returns active riddles for one level
func (c *Catalog) ByLevel(ctx context.Context, levelID int) ([]domain.Riddle, error) {
	return c.cached(ctx, "level", strconv.Itoa(levelID), func() ([]domain.Riddle, error) {
		return c.repo.GetRiddlesByLevel(ctx, levelID)
	})
}

// ByDifficulty returns active riddles for one difficulty tier
func (c *Catalog) ByDifficulty(ctx context.Context, difficulty domain.Difficulty) ([]domain.Riddle, error) {
	return c.cached(ctx, "difficulty", string(difficulty), func() ([]domain.Riddle, error) {
		return c.repo.GetRiddlesByDifficulty(ctx, difficulty)
	})
}

// ByType returns active riddles of one puzzle type
func (c *Catalog) ByType(ctx context.Context, riddleType string) ([]domain.Riddle, error) {
	return c.cached(ctx, "type", riddleType, func() ([]domain.Riddle, error) {
		return c.repo.GetRiddlesByType(ctx, riddleType)
	})
}

// All returns every active riddle
func (c *Catalog) All(ctx context.Context) ([]domain.Riddle, error) {
	return c.cached(ctx, "all", "all", func() ([]domain.Riddle, error) {
		return c.repo.GetAllRiddles(ctx)
	})
}

func (c *Catalog) cached(ctx context.Context, dimension, value string, load func() ([]domain.Riddle, error)) ([]domain.Riddle, error) {
	if c.cache != nil {
		riddles, hit, err := c.cache.GetCatalog(ctx, dimension, value)
		if err != nil {
			c.logger.Warn("catalog cache read failed", "dimension", dimension, "value", value, "error", err)
		} else if hit {
			return riddles, nil
		}
	}

	riddles, err := load()
	if err != nil {
		return nil, fmt.Errorf("loading riddles: %w", err)
	}

	if c.cache != nil {
		if err := c.cache.SetCatalog(ctx, dimension, value, riddles); err != nil {
			c.logger.Warn("catalog cache write failed", "dimension", dimension, "value", value, "error", err)
		}
	}
	return riddles, nil
}
