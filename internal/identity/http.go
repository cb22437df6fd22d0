package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gotham-cipher/internal/config"
	"github.com/gotham-cipher/internal/domain"
)

// HTTPGateway talks to the managed identity provider's REST API
type HTTPGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPGateway creates a gateway against the configured provider endpoint
func NewHTTPGateway(cfg *config.IdentityConfig, logger *slog.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

type authResponse struct {
	Subject string             `json:"subject"`
	User    *domain.User       `json:"user"`
	Tokens  *domain.AuthTokens `json:"tokens"`
}

type providerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling identity provider: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.ErrInvalidCredentials
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrProfileNotFound
	case resp.StatusCode >= 400:
		var pe providerError
		if err := json.NewDecoder(resp.Body).Decode(&pe); err == nil && pe.Message != "" {
			return fmt.Errorf("identity provider: %s", pe.Message)
		}
		return fmt.Errorf("identity provider: status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// Authenticate exchanges credentials for tokens and the account subject
func (g *HTTPGateway) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	var resp authResponse
	err := g.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		User:    resp.User,
		Tokens:  resp.Tokens,
		Subject: resp.Subject,
	}, nil
}

// Register creates a new account with the provider
func (g *HTTPGateway) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	var user domain.User
	if err := g.do(ctx, http.MethodPost, "/auth/register", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyEmail confirms an account with a verification code
func (g *HTTPGateway) VerifyEmail(ctx context.Context, email, code string) error {
	return g.do(ctx, http.MethodPost, "/auth/verify", map[string]string{
		"email": email,
		"code":  code,
	}, nil)
}

// ForgotPassword starts the provider's password reset flow
func (g *HTTPGateway) ForgotPassword(ctx context.Context, email string) error {
	return g.do(ctx, http.MethodPost, "/auth/forgot-password", map[string]string{
		"email": email,
	}, nil)
}

// ResetPassword completes a password reset with the emailed code
func (g *HTTPGateway) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	return g.do(ctx, http.MethodPost, "/auth/reset-password", map[string]string{
		"email":       email,
		"code":        code,
		"newPassword": newPassword,
	}, nil)
}

// LookupByEmail fetches the provider's view of an account
func (g *HTTPGateway) LookupByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	err := g.do(ctx, http.MethodGet, "/users?email="+url.QueryEscape(email), nil, &user)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// EmailForSubject resolves an account's email from its subject id
func (g *HTTPGateway) EmailForSubject(ctx context.Context, subject string) (string, error) {
	var user domain.User
	err := g.do(ctx, http.MethodGet, "/users/"+url.PathEscape(subject), nil, &user)
	if err != nil {
		if errors.Is(err, domain.ErrProfileNotFound) {
			return "", nil
		}
		return "", err
	}
	return user.Email, nil
}
