package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gotham-cipher/internal/config"
	"github.com/gotham-cipher/internal/domain"
)

// Repository provides PostgreSQL-based data access
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool returns the underlying connection pool
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}

// RunMigrations executes database migrations
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS riddles (
			riddle_id VARCHAR(64) PRIMARY KEY,
			level_id INT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			hint TEXT,
			type VARCHAR(64) NOT NULL,
			difficulty VARCHAR(10) NOT NULL,
			is_active BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS player_progress (
			player_id VARCHAR(64) PRIMARY KEY,
			doc JSONB NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS user_profiles (
			user_id VARCHAR(64) NOT NULL,
			profile_type VARCHAR(20) NOT NULL DEFAULT 'main',
			email VARCHAR(255) NOT NULL,
			username VARCHAR(64) NOT NULL,
			profile JSONB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, profile_type)
		)`,
		`CREATE TABLE IF NOT EXISTS solve_events (
			id BIGSERIAL PRIMARY KEY,
			player_id VARCHAR(64) NOT NULL,
			riddle_id VARCHAR(64) NOT NULL,
			level_id INT NOT NULL,
			stars INT NOT NULL,
			completion_time DOUBLE PRECISION,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_riddles_level ON riddles(level_id) WHERE is_active`,
		`CREATE INDEX IF NOT EXISTS idx_riddles_difficulty ON riddles(difficulty) WHERE is_active`,
		`CREATE INDEX IF NOT EXISTS idx_riddles_type ON riddles(type) WHERE is_active`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_email ON user_profiles(email)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_username ON user_profiles(username)`,
		`CREATE INDEX IF NOT EXISTS idx_solve_events_player ON solve_events(player_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// --- Riddle catalog ---

const riddleColumns = `riddle_id, level_id, question, answer, COALESCE(hint, ''), type, difficulty, is_active, created_at, updated_at`

func scanRiddle(row pgx.Row) (domain.Riddle, error) {
	var riddle domain.Riddle
	err := row.Scan(
		&riddle.RiddleID,
		&riddle.LevelID,
		&riddle.Question,
		&riddle.Answer,
		&riddle.Hint,
		&riddle.Type,
		&riddle.Difficulty,
		&riddle.IsActive,
		&riddle.CreatedAt,
		&riddle.UpdatedAt,
	)
	return riddle, err
}

// GetRiddle retrieves a riddle by id, active or not
func (r *Repository) GetRiddle(ctx context.Context, riddleID string) (*domain.Riddle, error) {
	query := `SELECT ` + riddleColumns + ` FROM riddles WHERE riddle_id = $1`
	riddle, err := scanRiddle(r.pool.QueryRow(ctx, query, riddleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRiddleNotFound
		}
		return nil, fmt.Errorf("getting riddle: %w", err)
	}
	return &riddle, nil
}

func (r *Repository) queryRiddles(ctx context.Context, query string, args ...any) ([]domain.Riddle, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying riddles: %w", err)
	}
	defer rows.Close()

	var riddles []domain.Riddle
	for rows.Next() {
		riddle, err := scanRiddle(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning riddle: %w", err)
		}
		riddles = append(riddles, riddle)
	}
	return riddles, rows.Err()
}

// GetRiddlesByLevel retrieves all active riddles for a level
func (r *Repository) GetRiddlesByLevel(ctx context.Context, levelID int) ([]domain.Riddle, error) {
	query := `SELECT ` + riddleColumns + ` FROM riddles WHERE level_id = $1 AND is_active ORDER BY riddle_id`
	return r.queryRiddles(ctx, query, levelID)
}

// GetRiddlesByDifficulty retrieves all active riddles of a difficulty
func (r *Repository) GetRiddlesByDifficulty(ctx context.Context, difficulty domain.Difficulty) ([]domain.Riddle, error) {
	query := `SELECT ` + riddleColumns + ` FROM riddles WHERE difficulty = $1 AND is_active ORDER BY riddle_id`
	return r.queryRiddles(ctx, query, string(difficulty))
}

// GetRiddlesByType retrieves all active riddles of a type
func (r *Repository) GetRiddlesByType(ctx context.Context, riddleType string) ([]domain.Riddle, error) {
	query := `SELECT ` + riddleColumns + ` FROM riddles WHERE type = $1 AND is_active ORDER BY riddle_id`
	return r.queryRiddles(ctx, query, riddleType)
}

// GetAllRiddles retrieves every active riddle
func (r *Repository) GetAllRiddles(ctx context.Context) ([]domain.Riddle, error) {
	query := `SELECT ` + riddleColumns + ` FROM riddles WHERE is_active ORDER BY riddle_id`
	return r.queryRiddles(ctx, query)
}

// UpsertRiddle inserts or replaces a catalog riddle
func (r *Repository) UpsertRiddle(ctx context.Context, riddle domain.Riddle) error {
	query := `
		INSERT INTO riddles (riddle_id, level_id, question, answer, hint, type, difficulty, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $9)
		ON CONFLICT (riddle_id)
		DO UPDATE SET level_id = $2, question = $3, answer = $4, hint = NULLIF($5, ''),
			type = $6, difficulty = $7, is_active = $8, updated_at = $9
	`
	now := time.Now()
	_, err := r.pool.Exec(ctx, query,
		riddle.RiddleID,
		riddle.LevelID,
		riddle.Question,
		riddle.Answer,
		riddle.Hint,
		riddle.Type,
		string(riddle.Difficulty),
		riddle.IsActive,
		now,
	)
	if err != nil {
		return fmt.Errorf("upserting riddle: %w", err)
	}
	return nil
}

// --- Player progress documents ---

// GetProgress retrieves a player's progress document with its version
func (r *Repository) GetProgress(ctx context.Context, playerID string) (*domain.PlayerProgress, error) {
	query := `SELECT doc, version FROM player_progress WHERE player_id = $1`
	var doc []byte
	var version int64
	err := r.pool.QueryRow(ctx, query, playerID).Scan(&doc, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProgressNotFound
		}
		return nil, fmt.Errorf("getting progress: %w", err)
	}

	var progress domain.PlayerProgress
	if err := json.Unmarshal(doc, &progress); err != nil {
		return nil, fmt.Errorf("decoding progress document: %w", err)
	}
	progress.Version = version
	return &progress, nil
}

// InsertProgress creates a new progress document at version 1. A concurrent
// creator wins the race; the caller should re-read on conflict.
func (r *Repository) InsertProgress(ctx context.Context, progress *domain.PlayerProgress) error {
	doc, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("encoding progress document: %w", err)
	}

	query := `
		INSERT INTO player_progress (player_id, doc, version, updated_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (player_id) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query, progress.PlayerID, doc, time.Now())
	if err != nil {
		return fmt.Errorf("inserting progress: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	progress.Version = 1
	return nil
}

// UpdateProgress overwrites the whole document iff the stored version still
// matches expectedVersion, bumping the version on success.
func (r *Repository) UpdateProgress(ctx context.Context, progress *domain.PlayerProgress, expectedVersion int64) error {
	doc, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("encoding progress document: %w", err)
	}

	query := `
		UPDATE player_progress
		SET doc = $2, version = version + 1, updated_at = $3
		WHERE player_id = $1 AND version = $4
	`
	result, err := r.pool.Exec(ctx, query, progress.PlayerID, doc, time.Now(), expectedVersion)
	if err != nil {
		return fmt.Errorf("updating progress: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	progress.Version = expectedVersion + 1
	return nil
}

// ListProgress retrieves all progress documents (for leaderboard rebuilds)
func (r *Repository) ListProgress(ctx context.Context) ([]domain.PlayerProgress, error) {
	query := `SELECT doc, version FROM player_progress`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing progress: %w", err)
	}
	defer rows.Close()

	var records []domain.PlayerProgress
	for rows.Next() {
		var doc []byte
		var version int64
		if err := rows.Scan(&doc, &version); err != nil {
			return nil, fmt.Errorf("scanning progress: %w", err)
		}
		var progress domain.PlayerProgress
		if err := json.Unmarshal(doc, &progress); err != nil {
			return nil, fmt.Errorf("decoding progress document: %w", err)
		}
		progress.Version = version
		records = append(records, progress)
	}
	return records, rows.Err()
}

// RecordSolveEvent records a solve for auditing
func (r *Repository) RecordSolveEvent(ctx context.Context, event domain.SolveEvent) error {
	query := `
		INSERT INTO solve_events (player_id, riddle_id, level_id, stars, completion_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		event.PlayerID,
		event.RiddleID,
		event.LevelID,
		event.Stars,
		event.CompletionTime,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("recording solve event: %w", err)
	}
	return nil
}

// --- User profiles ---

// CreateProfile stores a new user profile
func (r *Repository) CreateProfile(ctx context.Context, profile *domain.UserProfile) error {
	doc, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}

	query := `
		INSERT INTO user_profiles (user_id, profile_type, email, username, profile, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id, profile_type) DO NOTHING
	`
	result, err := r.pool.Exec(ctx, query,
		profile.UserID,
		profile.ProfileType,
		profile.Email,
		profile.Username,
		doc,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("creating profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrProfileExists
	}
	return nil
}

func (r *Repository) scanProfile(row pgx.Row) (*domain.UserProfile, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	var profile domain.UserProfile
	if err := json.Unmarshal(doc, &profile); err != nil {
		return nil, fmt.Errorf("decoding profile: %w", err)
	}
	return &profile, nil
}

// GetProfile retrieves a user's main profile
func (r *Repository) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	query := `SELECT profile FROM user_profiles WHERE user_id = $1 AND profile_type = 'main'`
	return r.scanProfile(r.pool.QueryRow(ctx, query, userID))
}

// GetProfileByEmail retrieves a profile via the email secondary index
func (r *Repository) GetProfileByEmail(ctx context.Context, email string) (*domain.UserProfile, error) {
	query := `SELECT profile FROM user_profiles WHERE email = $1 AND profile_type = 'main' LIMIT 1`
	return r.scanProfile(r.pool.QueryRow(ctx, query, email))
}

// GetProfileByUsername retrieves a profile via the username secondary index
func (r *Repository) GetProfileByUsername(ctx context.Context, username string) (*domain.UserProfile, error) {
	query := `SELECT profile FROM user_profiles WHERE username = $1 AND profile_type = 'main' LIMIT 1`
	return r.scanProfile(r.pool.QueryRow(ctx, query, username))
}

// UpdateProfile overwrites a user's profile document
func (r *Repository) UpdateProfile(ctx context.Context, profile *domain.UserProfile) error {
	profile.UpdatedAt = time.Now()
	doc, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}

	query := `
		UPDATE user_profiles
		SET email = $3, username = $4, profile = $5, updated_at = $6
		WHERE user_id = $1 AND profile_type = $2
	`
	result, err := r.pool.Exec(ctx, query,
		profile.UserID,
		profile.ProfileType,
		profile.Email,
		profile.Username,
		doc,
		profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

// DeleteProfile removes a user's main profile
func (r *Repository) DeleteProfile(ctx context.Context, userID string) error {
	query := `DELETE FROM user_profiles WHERE user_id = $1 AND profile_type = 'main'`
	result, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}

// MigrateProfile rekeys a profile created under a provisional id (the
// registration flow stores profiles under the email until first login).
func (r *Repository) MigrateProfile(ctx context.Context, oldUserID, newUserID string) error {
	profile, err := r.GetProfile(ctx, oldUserID)
	if err != nil {
		return err
	}
	profile.UserID = newUserID

	doc, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}

	query := `
		UPDATE user_profiles
		SET user_id = $2, profile = $3, updated_at = $4
		WHERE user_id = $1 AND profile_type = 'main'
	`
	if _, err := r.pool.Exec(ctx, query, oldUserID, newUserID, doc, time.Now()); err != nil {
		return fmt.Errorf("migrating profile: %w", err)
	}
	return nil
}

// UpdateLastLogin stamps the profile's last login time
func (r *Repository) UpdateLastLogin(ctx context.Context, userID string) error {
	profile, err := r.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	now := time.Now()
	profile.LastLogin = &now
	return r.UpdateProfile(ctx, profile)
}

// IsUsernameAvailable reports whether no profile holds the username
func (r *Repository) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	_, err := r.GetProfileByUsername(ctx, username)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking username: %w", err)
	}
	return false, nil
}
