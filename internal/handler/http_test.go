package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gotham-cipher/internal/config"
	"github.com/gotham-cipher/internal/domain"
	"github.com/gotham-cipher/internal/identity"
	"github.com/gotham-cipher/internal/token"
	"github.com/gotham-cipher/internal/websocket"
)

type fakeProgressService struct {
	progress  *domain.PlayerProgress
	solveErr  error
	lastSolve struct {
		playerID string
		riddleID string
		levelID  int
		stars    int
	}
}

func (f *fakeProgressService) GetOrCreate(ctx context.Context, playerID string) (*domain.PlayerProgress, error) {
	if f.progress != nil {
		return f.progress, nil
	}
	return domain.NewPlayerProgress(playerID, time.Now()), nil
}

func (f *fakeProgressService) ApplySolve(ctx context.Context, playerID, riddleID string, levelID, stars int, completionTime *float64) (*domain.PlayerProgress, error) {
	if f.solveErr != nil {
		return nil, f.solveErr
	}
	f.lastSolve.playerID = playerID
	f.lastSolve.riddleID = riddleID
	f.lastSolve.levelID = levelID
	f.lastSolve.stars = stars
	return domain.NewPlayerProgress(playerID, time.Now()), nil
}

type fakeRiddleService struct {
	selection *domain.RiddleSelection
	selectErr error
	correct   bool
	riddle    *domain.Riddle
}

func (f *fakeRiddleService) SelectRandom(ctx context.Context, playerID string, filter domain.RiddleFilter) (*domain.RiddleSelection, error) {
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	return f.selection, nil
}

func (f *fakeRiddleService) ValidateAnswer(ctx context.Context, riddleID, answer string) (bool, *domain.Riddle, error) {
	if f.riddle == nil {
		return false, nil, domain.ErrRiddleNotFound
	}
	return f.correct, f.riddle, nil
}

func (f *fakeRiddleService) ListAll(ctx context.Context) ([]domain.Riddle, error) {
	if f.riddle != nil {
		return []domain.Riddle{*f.riddle}, nil
	}
	return nil, nil
}

func (f *fakeRiddleService) ListByLevel(ctx context.Context, levelID int) ([]domain.Riddle, error) {
	return nil, nil
}

func (f *fakeRiddleService) ListByDifficulty(ctx context.Context, difficulty domain.Difficulty) ([]domain.Riddle, error) {
	return nil, nil
}

func (f *fakeRiddleService) ListByType(ctx context.Context, riddleType string) ([]domain.Riddle, error) {
	return nil, nil
}

func (f *fakeRiddleService) Stats(ctx context.Context) (*domain.RiddleStats, error) {
	return &domain.RiddleStats{}, nil
}

type fakeProfileStore struct {
	profiles map[string]*domain.UserProfile
}

func newFakeProfileStore() *fakeProfileStore {
	return &fakeProfileStore{profiles: make(map[string]*domain.UserProfile)}
}

func (f *fakeProfileStore) CreateProfile(ctx context.Context, profile *domain.UserProfile) error {
	if _, ok := f.profiles[profile.UserID]; ok {
		return domain.ErrProfileExists
	}
	f.profiles[profile.UserID] = profile
	return nil
}

func (f *fakeProfileStore) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return p, nil
}

func (f *fakeProfileStore) GetProfileByEmail(ctx context.Context, email string) (*domain.UserProfile, error) {
	for _, p := range f.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, domain.ErrProfileNotFound
}

func (f *fakeProfileStore) UpdateProfile(ctx context.Context, profile *domain.UserProfile) error {
	f.profiles[profile.UserID] = profile
	return nil
}

func (f *fakeProfileStore) DeleteProfile(ctx context.Context, userID string) error {
	if _, ok := f.profiles[userID]; !ok {
		return domain.ErrProfileNotFound
	}
	delete(f.profiles, userID)
	return nil
}

func (f *fakeProfileStore) MigrateProfile(ctx context.Context, oldUserID, newUserID string) error {
	p, ok := f.profiles[oldUserID]
	if !ok {
		return domain.ErrProfileNotFound
	}
	delete(f.profiles, oldUserID)
	p.UserID = newUserID
	f.profiles[newUserID] = p
	return nil
}

func (f *fakeProfileStore) UpdateLastLogin(ctx context.Context, userID string) error { return nil }

func (f *fakeProfileStore) IsUsernameAvailable(ctx context.Context, username string) (bool, error) {
	for _, p := range f.profiles {
		if p.Username == username {
			return false, nil
		}
	}
	return true, nil
}

type fakeGateway struct {
	auth    *identity.AuthResult
	authErr error
}

func (f *fakeGateway) Authenticate(ctx context.Context, email, password string) (*identity.AuthResult, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.auth, nil
}

func (f *fakeGateway) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	return &domain.User{Email: req.Email, Username: req.Username}, nil
}

func (f *fakeGateway) VerifyEmail(ctx context.Context, email, code string) error       { return nil }
func (f *fakeGateway) ForgotPassword(ctx context.Context, email string) error          { return nil }
func (f *fakeGateway) ResetPassword(ctx context.Context, email, code, pw string) error { return nil }

func (f *fakeGateway) LookupByEmail(ctx context.Context, email string) (*domain.User, error) {
	return nil, nil
}

func (f *fakeGateway) EmailForSubject(ctx context.Context, subject string) (string, error) {
	return "", nil
}

type fakeLeaderboard struct {
	requested int
}

func (f *fakeLeaderboard) GetTopN(ctx context.Context, n int) ([]domain.LeaderboardEntry, error) {
	f.requested = n
	return []domain.LeaderboardEntry{}, nil
}

func (f *fakeLeaderboard) GetPlayerRank(ctx context.Context, playerID string) (*domain.LeaderboardEntry, error) {
	return &domain.LeaderboardEntry{Rank: 1, PlayerID: playerID, Score: 5}, nil
}

func (f *fakeLeaderboard) RemovePlayer(ctx context.Context, playerID string) error { return nil }

func (f *fakeLeaderboard) SetPlayerInfo(ctx context.Context, playerID, username string) error {
	return nil
}

type fakeSynthesizer struct {
	audio []byte
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return f.audio, nil
}

type testDeps struct {
	progress    *fakeProgressService
	riddles     *fakeRiddleService
	profiles    *fakeProfileStore
	gateway     *fakeGateway
	leaderboard *fakeLeaderboard
	tokens      *token.Issuer
}

func newTestHandler(t *testing.T) (*Handler, *testDeps) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps := &testDeps{
		progress:    &fakeProgressService{},
		riddles:     &fakeRiddleService{},
		profiles:    newFakeProfileStore(),
		gateway:     &fakeGateway{},
		leaderboard: &fakeLeaderboard{},
		tokens: token.NewIssuer(&config.TokenConfig{
			Secret:   "test-secret",
			Issuer:   "gotham-cipher-backend",
			Audience: "gotham-cipher-frontend",
			TTL:      time.Hour,
		}),
	}
	game := &config.GameConfig{
		CompletionLevels: []int{1, 2, 3, 4, 5},
		MaxStars:         3,
		DefaultLimit:     10,
		MaxLimit:         100,
	}
	h := NewHandler(
		deps.progress,
		deps.riddles,
		deps.profiles,
		deps.gateway,
		deps.tokens,
		&fakeSynthesizer{audio: []byte("mp3")},
		deps.leaderboard,
		websocket.NewHub(logger),
		game,
		"http://localhost:8080",
		logger,
	)
	return h, deps
}

func bearerFor(t *testing.T, deps *testDeps, playerID string) string {
	t.Helper()
	signed, err := deps.tokens.Issue(playerID, "p@example.com", "player")
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + signed
}

func doJSON(t *testing.T, router http.Handler, method, path, auth string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

func TestRequireAuth(t *testing.T) {
	h, deps := newTestHandler(t)
	router := h.Router()

	tests := []struct {
		name string
		auth string
		want int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"valid token", bearerFor(t, deps, "p1"), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodGet, "/api/riddles/progress", tt.auth, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestSolve(t *testing.T) {
	h, deps := newTestHandler(t)
	router := h.Router()
	auth := bearerFor(t, deps, "p1")

	rec := doJSON(t, router, http.MethodPost, "/api/riddles/solve", auth, domain.SolveRequest{
		RiddleID: "r1",
		LevelID:  1,
		Stars:    2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	if deps.progress.lastSolve.playerID != "p1" {
		t.Errorf("solve applied for player %q, want token subject p1", deps.progress.lastSolve.playerID)
	}
	if deps.progress.lastSolve.stars != 2 {
		t.Errorf("stars = %d, want 2", deps.progress.lastSolve.stars)
	}
}

func TestSolve_Validation(t *testing.T) {
	h, deps := newTestHandler(t)
	router := h.Router()
	auth := bearerFor(t, deps, "p1")

	tests := []struct {
		name string
		body domain.SolveRequest
	}{
		{"missing riddle", domain.SolveRequest{LevelID: 1, Stars: 1}},
		{"zero level", domain.SolveRequest{RiddleID: "r1", Stars: 1}},
		{"negative stars", domain.SolveRequest{RiddleID: "r1", LevelID: 1, Stars: -1}},
		{"stars above max", domain.SolveRequest{RiddleID: "r1", LevelID: 1, Stars: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/riddles/solve", auth, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestGetRandomRiddle(t *testing.T) {
	h, deps := newTestHandler(t)
	deps.riddles.selection = &domain.RiddleSelection{
		Riddle: domain.Riddle{
			RiddleID:   "r1",
			LevelID:    1,
			Question:   "What goes up but never comes down?",
			Answer:     "YOUR AGE",
			Type:       "wordplay",
			Difficulty: domain.DifficultyEasy,
			IsActive:   true,
		},
		IsNew:          true,
		NextRiddleHint: "Next: wordplay puzzle in easy difficulty",
	}
	router := h.Router()
	auth := bearerFor(t, deps, "p1")

	rec := doJSON(t, router, http.MethodGet, "/api/riddles/random?levelId=1", auth, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	resp := decodeResponse(t, rec)
	data, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatal(err)
	}
	var selection domain.RiddleSelection
	if err := json.Unmarshal(data, &selection); err != nil {
		t.Fatal(err)
	}
	if selection.Riddle.Answer != "" {
		t.Errorf("answer leaked in response: %q", selection.Riddle.Answer)
	}
	if selection.Riddle.RiddleID != "r1" {
		t.Errorf("riddle id = %q, want r1", selection.Riddle.RiddleID)
	}
}

func TestGetRandomRiddle_NoRiddles(t *testing.T) {
	h, deps := newTestHandler(t)
	deps.riddles.selectErr = domain.ErrNoRiddlesAvailable
	router := h.Router()
	auth := bearerFor(t, deps, "p1")

	rec := doJSON(t, router, http.MethodGet, "/api/riddles/random", auth, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetRandomRiddle_BadQuery(t *testing.T) {
	h, deps := newTestHandler(t)
	router := h.Router()
	auth := bearerFor(t, deps, "p1")

	tests := []struct {
		name  string
		query string
	}{
		{"bad level", "?levelId=zero"},
		{"bad difficulty", "?difficulty=impossible"},
		{"bad excludeSolved", "?excludeSolved=maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodGet, "/api/riddles/random"+tt.query, auth, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestGetAllRiddles(t *testing.T) {
	h, deps := newTestHandler(t)
	deps.riddles.riddle = &domain.Riddle{
		RiddleID:   "r1",
		LevelID:    1,
		Question:   "q1",
		Answer:     "ARKHAM",
		Type:       "logic",
		Difficulty: domain.DifficultyEasy,
		IsActive:   true,
	}
	router := h.Router()

	rec := doJSON(t, router, http.MethodGet, "/api/riddles/all", bearerFor(t, deps, "p1"), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	resp := decodeResponse(t, rec)
	data, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatal(err)
	}
	var riddles []domain.Riddle
	if err := json.Unmarshal(data, &riddles); err != nil {
		t.Fatal(err)
	}
	if len(riddles) != 1 || riddles[0].RiddleID != "r1" {
		t.Fatalf("riddles = %+v, want one with id r1", riddles)
	}
	if riddles[0].Answer != "" {
		t.Errorf("answer leaked in listing: %q", riddles[0].Answer)
	}
}

func TestValidateAnswer_RequiresBody(t *testing.T) {
	h, deps := newTestHandler(t)
	router := h.Router()
	auth := bearerFor(t, deps, "p1")

	rec := doJSON(t, router, http.MethodPost, "/api/riddles/validate", auth, domain.ValidateAnswerRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h, deps := newTestHandler(t)
	deps.gateway.authErr = domain.ErrInvalidCredentials
	router := h.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/auth/login", "", domain.LoginRequest{
		Email:    "bruce@wayne.example",
		Password: "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Success {
		t.Error("Success = true on failed login")
	}
}

func TestLogin_MigratesProvisionalProfile(t *testing.T) {
	h, deps := newTestHandler(t)
	now := time.Now()
	deps.profiles.profiles["bruce@wayne.example"] = domain.NewUserProfile(
		"bruce@wayne.example", "bruce@wayne.example", "batman", "Bruce", "Wayne", now)
	deps.gateway.auth = &identity.AuthResult{
		User:    &domain.User{ID: "sub-1", Email: "bruce@wayne.example", Username: "batman"},
		Tokens:  &domain.AuthTokens{AccessToken: "at"},
		Subject: "sub-1",
	}
	router := h.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/auth/login", "", domain.LoginRequest{
		Email:    "bruce@wayne.example",
		Password: "correct",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}

	if _, ok := deps.profiles.profiles["sub-1"]; !ok {
		t.Error("provisional profile was not migrated to the subject key")
	}
	if _, ok := deps.profiles.profiles["bruce@wayne.example"]; ok {
		t.Error("email-keyed provisional profile still present after login")
	}
}

func TestCheckUsername(t *testing.T) {
	h, deps := newTestHandler(t)
	deps.profiles.profiles["sub-1"] = domain.NewUserProfile(
		"sub-1", "bruce@wayne.example", "batman", "Bruce", "Wayne", time.Now())
	router := h.Router()

	tests := []struct {
		name      string
		username  string
		available bool
	}{
		{"taken", "batman", false},
		{"free", "nightwing", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodGet, "/api/profile/username/"+tt.username, "", nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			resp := decodeResponse(t, rec)
			data, ok := resp.Data.(map[string]any)
			if !ok {
				t.Fatalf("Data = %T, want object", resp.Data)
			}
			if data["available"] != tt.available {
				t.Errorf("available = %v, want %v", data["available"], tt.available)
			}
		})
	}
}

func TestGetPublicProfile_StripsPrivateFields(t *testing.T) {
	h, deps := newTestHandler(t)
	deps.profiles.profiles["sub-1"] = domain.NewUserProfile(
		"sub-1", "bruce@wayne.example", "batman", "Bruce", "Wayne", time.Now())
	router := h.Router()

	rec := doJSON(t, router, http.MethodGet, "/api/profile/user/sub-1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("Data = %T, want object", resp.Data)
	}
	if data["username"] != "batman" {
		t.Errorf("username = %v, want batman", data["username"])
	}
	if _, leaked := data["email"]; leaked {
		t.Error("public profile leaked the email field")
	}
	if _, leaked := data["preferences"]; leaked {
		t.Error("public profile leaked the preferences field")
	}
}

func TestGetPublicProfile_NotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	router := h.Router()

	rec := doJSON(t, router, http.MethodGet, "/api/profile/user/nobody", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetWebSocketStats(t *testing.T) {
	h, _ := newTestHandler(t)
	router := h.Router()

	rec := doJSON(t, router, http.MethodGet, "/api/ws/stats?playerId=p1", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("Data = %T, want object", resp.Data)
	}
	if data["total_connections"] != float64(0) {
		t.Errorf("total_connections = %v, want 0", data["total_connections"])
	}
	if data["subscribers"] != float64(0) {
		t.Errorf("subscribers = %v, want 0", data["subscribers"])
	}
}

func TestGetLeaderboard_LimitClamped(t *testing.T) {
	h, deps := newTestHandler(t)
	router := h.Router()

	rec := doJSON(t, router, http.MethodGet, "/api/leaderboard?limit=500", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if deps.leaderboard.requested != 100 {
		t.Errorf("requested limit = %d, want clamped to 100", deps.leaderboard.requested)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/leaderboard", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if deps.leaderboard.requested != 10 {
		t.Errorf("requested limit = %d, want default 10", deps.leaderboard.requested)
	}
}

func TestSynthesize(t *testing.T) {
	h, deps := newTestHandler(t)
	router := h.Router()
	auth := bearerFor(t, deps, "p1")

	rec := doJSON(t, router, http.MethodPost, "/api/speech/synthesize", auth, map[string]string{
		"text": "Riddle me this",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %q, want audio/mpeg", ct)
	}
	if rec.Body.String() != "mp3" {
		t.Errorf("body = %q, want raw audio bytes", rec.Body.String())
	}
}

func TestHealthEndpoints(t *testing.T) {
	h, _ := newTestHandler(t)
	router := h.Router()

	for _, path := range []string{"/health", "/ready"} {
		rec := doJSON(t, router, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, rec.Code)
		}
	}
}
