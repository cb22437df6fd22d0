package token

import (
	"testing"
	"time"

	"github.com/gotham-cipher/internal/config"
)

func testConfig() *config.TokenConfig {
	return &config.TokenConfig{
		Secret:   "test-secret",
		Issuer:   "gotham-cipher-backend",
		Audience: "gotham-cipher-frontend",
		TTL:      time.Hour,
	}
}

func TestIssueAndVerify(t *testing.T) {
	issuer := NewIssuer(testConfig())

	signed, err := issuer.Issue("player-1", "bruce@wayne.example", "batman")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := issuer.Verify(signed)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "player-1" {
		t.Errorf("Subject = %q, want player-1", claims.Subject)
	}
	if claims.Email != "bruce@wayne.example" {
		t.Errorf("Email = %q, want bruce@wayne.example", claims.Email)
	}
	if claims.Username != "batman" {
		t.Errorf("Username = %q, want batman", claims.Username)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	issuer := NewIssuer(testConfig())
	signed, err := issuer.Issue("player-1", "bruce@wayne.example", "batman")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	other := NewIssuer(&config.TokenConfig{
		Secret:   "different-secret",
		Issuer:   "gotham-cipher-backend",
		Audience: "gotham-cipher-frontend",
		TTL:      time.Hour,
	})
	if _, err := other.Verify(signed); err == nil {
		t.Fatal("Verify() accepted token signed with a different secret")
	}
}

func TestVerify_Expired(t *testing.T) {
	cfg := testConfig()
	cfg.TTL = -time.Minute
	issuer := NewIssuer(cfg)

	signed, err := issuer.Issue("player-1", "", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := issuer.Verify(signed); err == nil {
		t.Fatal("Verify() accepted an expired token")
	}
}

func TestVerify_WrongAudience(t *testing.T) {
	cfg := testConfig()
	cfg.Audience = "another-app"
	other := NewIssuer(cfg)
	signed, err := other.Issue("player-1", "", "")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	issuer := NewIssuer(testConfig())
	if _, err := issuer.Verify(signed); err == nil {
		t.Fatal("Verify() accepted a token for another audience")
	}
}

func TestRefresh(t *testing.T) {
	issuer := NewIssuer(testConfig())
	signed, err := issuer.Issue("player-1", "bruce@wayne.example", "batman")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	refreshed, err := issuer.Refresh(signed)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	claims, err := issuer.Verify(refreshed)
	if err != nil {
		t.Fatalf("Verify(refreshed) error = %v", err)
	}
	if claims.Subject != "player-1" || claims.Username != "batman" {
		t.Errorf("refreshed claims = %q/%q, want player-1/batman", claims.Subject, claims.Username)
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid", "Bearer abc123", "abc123"},
		{"empty", "", ""},
		{"no scheme", "abc123", ""},
		{"wrong scheme", "Basic abc123", ""},
		{"extra parts", "Bearer abc 123", ""},
		{"extra whitespace", "Bearer   abc123", "abc123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractBearer(tt.header); got != tt.want {
				t.Errorf("ExtractBearer(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
