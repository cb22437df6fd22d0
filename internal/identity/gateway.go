package identity

import (
	"context"

	"github.com/gotham-cipher/internal/domain"
)

// AuthResult is the outcome of a successful authentication
type AuthResult struct {
	User   *domain.User
	Tokens *domain.AuthTokens
	// Subject is the provider-assigned stable identifier for the account;
	// it doubles as the playerId everywhere in this system.
	Subject string
}

// Gateway is the boundary to the managed identity provider. The provider
// itself (user pool, password policy, verification codes) is external; this
// interface is everything the backend consumes from it.
type Gateway interface {
	Authenticate(ctx context.Context, email, password string) (*AuthResult, error)
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error)
	VerifyEmail(ctx context.Context, email, code string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	LookupByEmail(ctx context.Context, email string) (*domain.User, error)
	// EmailForSubject resolves a player's email address from their subject
	// id. Returns "" without error when the account has no email on file.
	EmailForSubject(ctx context.Context, subject string) (string, error)
}
