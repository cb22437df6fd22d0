package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gotham-cipher/internal/config"
	"github.com/gotham-cipher/internal/domain"
	"github.com/gotham-cipher/internal/postgres"
)

// fixture is one riddle in the seed file
type fixture struct {
	ID         string `json:"id,omitempty"`
	LevelID    int    `json:"levelId"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Hint       string `json:"hint,omitempty"`
	Type       string `json:"type"`
	Difficulty string `json:"difficulty"`
	IsActive   *bool  `json:"isActive,omitempty"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	fixturesPath := flag.String("fixtures", "riddles.json", "Path to riddle fixtures file")
	dryRun := flag.Bool("dry-run", false, "Parse and validate fixtures without writing")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	data, err := os.ReadFile(*fixturesPath)
	if err != nil {
		log.Fatalf("Failed to read fixtures file: %v", err)
	}

	var fixtures []fixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		log.Fatalf("Failed to parse fixtures file: %v", err)
	}
	if len(fixtures) == 0 {
		log.Fatalf("No riddles found in %s", *fixturesPath)
	}

	now := time.Now()
	riddles := make([]domain.Riddle, 0, len(fixtures))
	for i, f := range fixtures {
		if f.Question == "" || f.Answer == "" || f.LevelID <= 0 {
			log.Fatalf("Invalid fixture at index %d: question, answer and levelId are required", i)
		}
		difficulty := domain.Difficulty(f.Difficulty)
		if !difficulty.Valid() {
			log.Fatalf("Invalid fixture at index %d: unknown difficulty %q", i, f.Difficulty)
		}

		id := f.ID
		if id == "" {
			id = uuid.New().String()
		}
		active := true
		if f.IsActive != nil {
			active = *f.IsActive
		}

		riddles = append(riddles, domain.Riddle{
			RiddleID:   id,
			LevelID:    f.LevelID,
			Question:   f.Question,
			Answer:     f.Answer,
			Hint:       f.Hint,
			Type:       f.Type,
			Difficulty: difficulty,
			IsActive:   active,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	fmt.Printf("Parsed %d riddles from %s\n", len(riddles), *fixturesPath)

	if *dryRun {
		fmt.Println("Dry-run mode: no writes performed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	repo, err := postgres.NewRepository(&cfg.Postgres, logger)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	seeded := 0
	for _, r := range riddles {
		if err := repo.UpsertRiddle(ctx, r); err != nil {
			log.Printf("Failed to seed riddle %s: %v", r.RiddleID, err)
			continue
		}
		seeded++
		fmt.Printf("\r  Progress: %d/%d riddles", seeded, len(riddles))
	}
	fmt.Printf("\n✓ Seeded %d/%d riddles\n", seeded, len(riddles))
}
