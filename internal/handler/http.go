package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gotham-cipher/internal/config"
	"github.com/gotham-cipher/internal/domain"
	"github.com/gotham-cipher/internal/identity"
	"github.com/gotham-cipher/internal/speech"
	"github.com/gotham-cipher/internal/token"
	"github.com/gotham-cipher/internal/websocket"
)

// ProgressService advances and reads player progress
type ProgressService interface {
	GetOrCreate(ctx context.Context, playerID string) (*domain.PlayerProgress, error)
	ApplySolve(ctx context.Context, playerID, riddleID string, levelID, stars int, completionTime *float64) (*domain.PlayerProgress, error)
}

// RiddleService selects riddles and checks answers
type RiddleService interface {
	SelectRandom(ctx context.Context, playerID string, filter domain.RiddleFilter) (*domain.RiddleSelection, error)
	ValidateAnswer(ctx context.Context, riddleID, answer string) (bool, *domain.Riddle, error)
	ListAll(ctx context.Context) ([]domain.Riddle, error)
	ListByLevel(ctx context.Context, levelID int) ([]domain.Riddle, error)
	ListByDifficulty(ctx context.Context, difficulty domain.Difficulty) ([]domain.Riddle, error)
	ListByType(ctx context.Context, riddleType string) ([]domain.Riddle, error)
	Stats(ctx context.Context) (*domain.RiddleStats, error)
}

// ProfileStore persists user profiles
type ProfileStore interface {
	CreateProfile(ctx context.Context, profile *domain.UserProfile) error
	GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
	GetProfileByEmail(ctx context.Context, email string) (*domain.UserProfile, error)
	UpdateProfile(ctx context.Context, profile *domain.UserProfile) error
	DeleteProfile(ctx context.Context, userID string) error
	MigrateProfile(ctx context.Context, oldUserID, newUserID string) error
	UpdateLastLogin(ctx context.Context, userID string) error
	IsUsernameAvailable(ctx context.Context, username string) (bool, error)
}

// Leaderboard reads the total-score ranking and caches display info
type Leaderboard interface {
	GetTopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error)
	GetPlayerRank(ctx context.Context, playerID string) (*domain.LeaderboardEntry, error)
	RemovePlayer(ctx context.Context, playerID string) error
	SetPlayerInfo(ctx context.Context, playerID, username string) error
}

// Handler provides the HTTP API
type Handler struct {
	progress    ProgressService
	riddles     RiddleService
	profiles    ProfileStore
	identity    identity.Gateway
	tokens      *token.Issuer
	speech      speech.Synthesizer
	leaderboard Leaderboard
	hub         *websocket.Hub
	game        *config.GameConfig
	frontendURL string
	logger      *slog.Logger
	now         func() time.Time
}

// NewHandler creates a new HTTP handler
func NewHandler(
	progress ProgressService,
	riddles RiddleService,
	profiles ProfileStore,
	gateway identity.Gateway,
	tokens *token.Issuer,
	synthesizer speech.Synthesizer,
	leaderboard Leaderboard,
	hub *websocket.Hub,
	game *config.GameConfig,
	frontendURL string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		progress:    progress,
		riddles:     riddles,
		profiles:    profiles,
		identity:    gateway,
		tokens:      tokens,
		speech:      synthesizer,
		leaderboard: leaderboard,
		hub:         hub,
		game:        game,
		frontendURL: frontendURL,
		logger:      logger,
		now:         time.Now,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type contextKey string

const claimsKey contextKey = "claims"

// ClaimsFromContext returns the verified token claims set by the auth
// middleware
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*token.Claims)
	return claims, ok
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(h.corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	r.Get("/ws", h.HandleWebSocket)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/verify", h.Verify)
			r.Post("/forgot-password", h.ForgotPassword)
			r.Post("/reset-password", h.ResetPassword)

			r.Group(func(r chi.Router) {
				r.Use(h.requireAuth)
				r.Get("/me", h.Me)
				r.Post("/refresh", h.Refresh)
				r.Post("/logout", h.Logout)
			})
		})

		r.Route("/profile", func(r chi.Router) {
			r.Get("/username/{username}", h.CheckUsername)
			r.Get("/user/{userID}", h.GetPublicProfile)

			r.Group(func(r chi.Router) {
				r.Use(h.requireAuth)
				r.Get("/", h.GetProfile)
				r.Put("/", h.UpdateProfile)
				r.Delete("/", h.DeleteProfile)
				r.Get("/stats", h.GetProfileStats)
			})
		})

		r.Route("/riddles", func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/random", h.GetRandomRiddle)
			r.Post("/validate", h.ValidateAnswer)
			r.Post("/solve", h.Solve)
			r.Get("/progress", h.GetProgress)
			r.Get("/stats", h.GetRiddleStats)
			r.Get("/all", h.GetAllRiddles)
			r.Get("/level/{levelID}", h.GetRiddlesByLevel)
			r.Get("/difficulty/{difficulty}", h.GetRiddlesByDifficulty)
			r.Get("/type/{riddleType}", h.GetRiddlesByType)
		})

		r.Route("/speech", func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/synthesize", h.Synthesize)
		})

		r.Get("/leaderboard", h.GetLeaderboard)
		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/leaderboard/rank", h.GetMyRank)
		})

		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", h.frontendURL)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requireAuth verifies the Bearer token and stores its claims in the
// request context
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := token.ExtractBearer(r.Header.Get("Authorization"))
		if tokenString == "" {
			h.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		claims, err := h.tokens.Verify(tokenString)
		if err != nil {
			h.writeError(w, http.StatusUnauthorized, errors.New("invalid or expired token"))
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) playerID(r *http.Request) string {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.Subject
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeMessage writes a successful JSON response with a message
func (h *Handler) writeMessage(w http.ResponseWriter, status int, message string, data interface{}) {
	h.writeJSON(w, status, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// sanitizeRiddle strips the answer before a riddle leaves the API
func sanitizeRiddle(r domain.Riddle) domain.Riddle {
	r.Answer = ""
	return r
}

func sanitizeRiddles(riddles []domain.Riddle) []domain.Riddle {
	out := make([]domain.Riddle, len(riddles))
	for i, r := range riddles {
		out[i] = sanitizeRiddle(r)
	}
	return out
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics, optionally
// including how many clients watch one player
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	}
	if playerID := r.URL.Query().Get("playerId"); playerID != "" {
		stats["subscribers"] = h.hub.GetSubscriberCount(playerID)
	}
	h.writeSuccess(w, stats)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// Register creates a new account with the identity provider and a
// provisional profile keyed by email until the first login
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if req.Email == "" || req.Password == "" || req.Username == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	available, err := h.profiles.IsUsernameAvailable(r.Context(), req.Username)
	if err != nil {
		h.logger.Error("failed to check username", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	if !available {
		h.writeError(w, http.StatusConflict, domain.ErrUsernameTaken)
		return
	}

	existing, err := h.identity.LookupByEmail(r.Context(), req.Email)
	if err != nil {
		h.logger.Error("failed to look up email", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}
	if existing != nil {
		h.writeError(w, http.StatusConflict, domain.ErrEmailTaken)
		return
	}

	user, err := h.identity.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, domain.ErrProfileExists) {
			h.writeError(w, http.StatusConflict, err)
			return
		}
		h.logger.Error("failed to register user", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	// The provider assigns the subject at first login; until then the
	// profile is keyed by email and migrated on login
	profile := domain.NewUserProfile(req.Email, req.Email, req.Username, req.FirstName, req.LastName, h.now())
	if err := h.profiles.CreateProfile(r.Context(), profile); err != nil && !errors.Is(err, domain.ErrProfileExists) {
		h.logger.Error("failed to create provisional profile", "error", err)
	}

	h.writeMessage(w, http.StatusCreated, "registration successful, check your email for the verification code", user)
}

// Login authenticates against the identity provider, adopts any
// provisional profile, and issues a session token
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.identity.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, err)
			return
		}
		h.logger.Error("failed to authenticate", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	profile, err := h.adoptProfile(r.Context(), result)
	if err != nil {
		h.logger.Error("failed to load profile on login", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	if err := h.profiles.UpdateLastLogin(r.Context(), result.Subject); err != nil {
		h.logger.Warn("failed to update last login", "error", err)
	}
	if err := h.leaderboard.SetPlayerInfo(r.Context(), result.Subject, result.User.Username); err != nil {
		h.logger.Warn("failed to cache player info", "error", err)
	}

	sessionToken, err := h.tokens.Issue(result.Subject, result.User.Email, result.User.Username)
	if err != nil {
		h.logger.Error("failed to issue session token", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"user":         result.User,
		"tokens":       result.Tokens,
		"sessionToken": sessionToken,
		"profile":      profile,
	})
}

// adoptProfile returns the subject-keyed profile, migrating the
// email-keyed provisional one or creating a fresh profile when neither
// exists
func (h *Handler) adoptProfile(ctx context.Context, result *identity.AuthResult) (*domain.UserProfile, error) {
	profile, err := h.profiles.GetProfile(ctx, result.Subject)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, domain.ErrProfileNotFound) {
		return nil, err
	}

	provisional, err := h.profiles.GetProfileByEmail(ctx, result.User.Email)
	if err == nil {
		if err := h.profiles.MigrateProfile(ctx, provisional.UserID, result.Subject); err != nil {
			return nil, err
		}
		return h.profiles.GetProfile(ctx, result.Subject)
	}
	if !errors.Is(err, domain.ErrProfileNotFound) {
		return nil, err
	}

	profile = domain.NewUserProfile(result.Subject, result.User.Email, result.User.Username,
		result.User.FirstName, result.User.LastName, h.now())
	if err := h.profiles.CreateProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// Verify confirms an account with the emailed verification code
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if req.Email == "" || req.Code == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.identity.VerifyEmail(r.Context(), req.Email, req.Code); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			h.writeError(w, http.StatusBadRequest, errors.New("invalid verification code"))
			return
		}
		h.logger.Error("failed to verify email", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeMessage(w, http.StatusOK, "email verified", nil)
}

// ForgotPassword starts the password reset flow
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.identity.ForgotPassword(r.Context(), req.Email); err != nil {
		h.logger.Error("failed to start password reset", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeMessage(w, http.StatusOK, "password reset code sent", nil)
}

// ResetPassword completes the password reset flow
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if req.Email == "" || req.Code == "" || req.NewPassword == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if err := h.identity.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			h.writeError(w, http.StatusBadRequest, errors.New("invalid reset code"))
			return
		}
		h.logger.Error("failed to reset password", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeMessage(w, http.StatusOK, "password reset", nil)
}

// Me returns the authenticated account
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	profile, err := h.profiles.GetProfile(r.Context(), claims.Subject)
	if err != nil && !errors.Is(err, domain.ErrProfileNotFound) {
		h.logger.Error("failed to get profile", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"playerId": claims.Subject,
		"email":    claims.Email,
		"username": claims.Username,
		"profile":  profile,
	})
}

// Refresh issues a fresh session token from a still-valid one
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	tokenString := token.ExtractBearer(r.Header.Get("Authorization"))
	refreshed, err := h.tokens.Refresh(tokenString)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, errors.New("invalid or expired token"))
		return
	}

	h.writeSuccess(w, map[string]string{"sessionToken": refreshed})
}

// Logout acknowledges a logout. Session tokens are stateless; the client
// discards its copy.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.writeMessage(w, http.StatusOK, "logged out", nil)
}

// GetProfile returns the player's profile, creating a default one on
// first access
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	profile, err := h.profiles.GetProfile(r.Context(), claims.Subject)
	if errors.Is(err, domain.ErrProfileNotFound) {
		profile = domain.NewUserProfile(claims.Subject, claims.Email, claims.Username, "", "", h.now())
		if err := h.profiles.CreateProfile(r.Context(), profile); err != nil {
			h.logger.Error("failed to create profile", "error", err)
			h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
			return
		}
	} else if err != nil {
		h.logger.Error("failed to get profile", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, profile)
}

// UpdateProfile applies a partial update to the player's profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	var update domain.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	profile, err := h.profiles.GetProfile(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get profile", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	if update.Username != nil && *update.Username != profile.Username {
		available, err := h.profiles.IsUsernameAvailable(r.Context(), *update.Username)
		if err != nil {
			h.logger.Error("failed to check username", "error", err)
			h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
			return
		}
		if !available {
			h.writeError(w, http.StatusConflict, domain.ErrUsernameTaken)
			return
		}
		profile.Username = *update.Username
	}
	if update.FirstName != nil {
		profile.FirstName = *update.FirstName
	}
	if update.LastName != nil {
		profile.LastName = *update.LastName
	}
	if update.Avatar != nil {
		profile.Avatar = *update.Avatar
	}
	if update.Bio != nil {
		profile.Bio = *update.Bio
	}
	if update.Preferences != nil {
		profile.Preferences = update.Preferences
	}
	profile.UpdatedAt = h.now()

	if err := h.profiles.UpdateProfile(r.Context(), profile); err != nil {
		h.logger.Error("failed to update profile", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, profile)
}

// DeleteProfile removes the player's profile
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	if err := h.profiles.DeleteProfile(r.Context(), claims.Subject); err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to delete profile", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	if err := h.leaderboard.RemovePlayer(r.Context(), claims.Subject); err != nil {
		h.logger.Warn("failed to remove player from scoreboard", "error", err)
	}

	h.writeMessage(w, http.StatusOK, "profile deleted", nil)
}

// GetProfileStats returns game stats derived from the player's progress
func (h *Handler) GetProfileStats(w http.ResponseWriter, r *http.Request) {
	playerID := h.playerID(r)

	progress, err := h.progress.GetOrCreate(r.Context(), playerID)
	if err != nil {
		h.logger.Error("failed to get progress", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	stats := domain.GameStats{
		TotalScore:      progress.TotalScore,
		LevelsCompleted: progress.CompletedLevels(),
		Achievements:    progress.Achievements,
	}
	if stats.Achievements == nil {
		stats.Achievements = []string{}
	}

	h.writeSuccess(w, stats)
}

// CheckUsername reports whether a username is still free; the signup form
// polls this before registration
func (h *Handler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	available, err := h.profiles.IsUsernameAvailable(r.Context(), username)
	if err != nil {
		h.logger.Error("failed to check username", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	message := "username is taken"
	if available {
		message = "username is available"
	}
	h.writeMessage(w, http.StatusOK, message, map[string]bool{"available": available})
}

// GetPublicProfile returns another player's profile with the private
// fields stripped
func (h *Handler) GetPublicProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	profile, err := h.profiles.GetProfile(r.Context(), userID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get public profile", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, profile.Public())
}

// GetRandomRiddle picks a random riddle for the player
func (h *Handler) GetRandomRiddle(w http.ResponseWriter, r *http.Request) {
	playerID := h.playerID(r)
	q := r.URL.Query()

	filter := domain.RiddleFilter{ExcludeSolved: true}
	if levelStr := q.Get("levelId"); levelStr != "" {
		levelID, err := strconv.Atoi(levelStr)
		if err != nil || levelID <= 0 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		filter.LevelID = levelID
	}
	if difficultyStr := q.Get("difficulty"); difficultyStr != "" {
		difficulty := domain.Difficulty(difficultyStr)
		if !difficulty.Valid() {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		filter.Difficulty = difficulty
	}
	if typeStr := q.Get("type"); typeStr != "" {
		filter.Type = typeStr
	}
	if excludeStr := q.Get("excludeSolved"); excludeStr != "" {
		exclude, err := strconv.ParseBool(excludeStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		filter.ExcludeSolved = exclude
	}

	selection, err := h.riddles.SelectRandom(r.Context(), playerID, filter)
	if err != nil {
		if errors.Is(err, domain.ErrNoRiddlesAvailable) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to select riddle", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	selection.Riddle = sanitizeRiddle(selection.Riddle)
	h.writeSuccess(w, selection)
}

// ValidateAnswer checks a submitted answer without recording a solve
func (h *Handler) ValidateAnswer(w http.ResponseWriter, r *http.Request) {
	var req domain.ValidateAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if req.RiddleID == "" || req.Answer == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	correct, riddle, err := h.riddles.ValidateAnswer(r.Context(), req.RiddleID, req.Answer)
	if err != nil {
		if errors.Is(err, domain.ErrRiddleNotFound) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to validate answer", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	response := map[string]interface{}{"correct": correct}
	if correct {
		response["hint"] = riddle.Hint
	}
	h.writeSuccess(w, response)
}

// Solve records a solved riddle and returns the updated progress
func (h *Handler) Solve(w http.ResponseWriter, r *http.Request) {
	playerID := h.playerID(r)

	var req domain.SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	if req.RiddleID == "" || req.LevelID <= 0 || req.Stars < 0 || req.Stars > h.game.MaxStars {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	progress, err := h.progress.ApplySolve(r.Context(), playerID, req.RiddleID, req.LevelID, req.Stars, req.CompletionTime)
	if err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			h.writeError(w, http.StatusConflict, err)
			return
		}
		h.logger.Error("failed to apply solve", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, progress)
}

// GetProgress returns the player's progress document
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	playerID := h.playerID(r)

	progress, err := h.progress.GetOrCreate(r.Context(), playerID)
	if err != nil {
		h.logger.Error("failed to get progress", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, progress)
}

// GetRiddleStats returns aggregate catalog statistics
func (h *Handler) GetRiddleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.riddles.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to get riddle stats", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, stats)
}

// GetAllRiddles lists the whole active catalog
func (h *Handler) GetAllRiddles(w http.ResponseWriter, r *http.Request) {
	riddles, err := h.riddles.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list riddles", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, sanitizeRiddles(riddles))
}

// GetRiddlesByLevel lists active riddles for one level
func (h *Handler) GetRiddlesByLevel(w http.ResponseWriter, r *http.Request) {
	levelID, err := strconv.Atoi(chi.URLParam(r, "levelID"))
	if err != nil || levelID <= 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	riddles, err := h.riddles.ListByLevel(r.Context(), levelID)
	if err != nil {
		h.logger.Error("failed to list riddles", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, sanitizeRiddles(riddles))
}

// GetRiddlesByDifficulty lists active riddles for one difficulty tier
func (h *Handler) GetRiddlesByDifficulty(w http.ResponseWriter, r *http.Request) {
	difficulty := domain.Difficulty(chi.URLParam(r, "difficulty"))
	if !difficulty.Valid() {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	riddles, err := h.riddles.ListByDifficulty(r.Context(), difficulty)
	if err != nil {
		h.logger.Error("failed to list riddles", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, sanitizeRiddles(riddles))
}

// GetRiddlesByType lists active riddles of one puzzle type
func (h *Handler) GetRiddlesByType(w http.ResponseWriter, r *http.Request) {
	riddleType := chi.URLParam(r, "riddleType")
	if riddleType == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	riddles, err := h.riddles.ListByType(r.Context(), riddleType)
	if err != nil {
		h.logger.Error("failed to list riddles", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, sanitizeRiddles(riddles))
}

// synthesizeRequest is the body of the speech endpoint
type synthesizeRequest struct {
	Text string `json:"text"`
}

// Synthesize converts riddle text to speech and streams the audio back
func (h *Handler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req synthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	audio, err := h.speech.Synthesize(r.Context(), speech.FormatText(req.Text))
	if err != nil {
		h.logger.Error("failed to synthesize speech", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

// GetMyRank returns the authenticated player's scoreboard position
func (h *Handler) GetMyRank(w http.ResponseWriter, r *http.Request) {
	entry, err := h.leaderboard.GetPlayerRank(r.Context(), h.playerID(r))
	if err != nil {
		if errors.Is(err, domain.ErrProgressNotFound) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		h.logger.Error("failed to get player rank", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, entry)
}

// GetLeaderboard returns the top players by total score
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := h.game.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l <= 0 {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		limit = l
	}
	if limit > h.game.MaxLimit {
		limit = h.game.MaxLimit
	}

	entries, err := h.leaderboard.GetTopN(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to get leaderboard", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, entries)
}
