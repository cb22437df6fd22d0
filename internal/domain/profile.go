package domain

import "time"

// Preferences holds client-side settings persisted with the profile
type Preferences struct {
	Theme         string `json:"theme,omitempty"`
	Language      string `json:"language,omitempty"`
	Notifications bool   `json:"notifications"`
	SoundEnabled  bool   `json:"soundEnabled"`
}

// GameStats is the denormalized stats block shown on the profile page
type GameStats struct {
	TotalScore      int      `json:"totalScore"`
	LevelsCompleted int      `json:"levelsCompleted"`
	Achievements    []string `json:"achievements"`
	PlayTime        int64    `json:"playTime"`
	LastLevelPlayed string   `json:"lastLevelPlayed,omitempty"`
}

// UserProfile is the per-user profile document keyed by userId
type UserProfile struct {
	UserID      string       `json:"userId"`
	ProfileType string       `json:"profileType"`
	Email       string       `json:"email"`
	Username    string       `json:"username"`
	FirstName   string       `json:"firstName"`
	LastName    string       `json:"lastName"`
	Avatar      string       `json:"avatar,omitempty"`
	Bio         string       `json:"bio,omitempty"`
	Preferences *Preferences `json:"preferences,omitempty"`
	GameStats   *GameStats   `json:"gameStats,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	LastLogin   *time.Time   `json:"lastLogin,omitempty"`
	IsActive    bool         `json:"isActive"`
}

// NewUserProfile returns a fresh profile with default preferences and stats
func NewUserProfile(userID, email, username, firstName, lastName string, now time.Time) *UserProfile {
	return &UserProfile{
		UserID:      userID,
		ProfileType: "main",
		Email:       email,
		Username:    username,
		FirstName:   firstName,
		LastName:    lastName,
		Preferences: &Preferences{
			Theme:         "dark",
			Language:      "en",
			Notifications: true,
			SoundEnabled:  true,
		},
		GameStats: &GameStats{
			TotalScore:      0,
			LevelsCompleted: 0,
			Achievements:    []string{},
			PlayTime:        0,
		},
		CreatedAt: now,
		UpdatedAt: now,
		IsActive:  true,
	}
}

// PublicProfile is the view of a profile exposed to other players;
// email, preferences and account flags stay private
type PublicProfile struct {
	UserID    string     `json:"userId"`
	Username  string     `json:"username"`
	FirstName string     `json:"firstName,omitempty"`
	LastName  string     `json:"lastName,omitempty"`
	Avatar    string     `json:"avatar,omitempty"`
	Bio       string     `json:"bio,omitempty"`
	GameStats *GameStats `json:"gameStats,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Public strips the profile down to what other players may see
func (p *UserProfile) Public() *PublicProfile {
	return &PublicProfile{
		UserID:    p.UserID,
		Username:  p.Username,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Avatar:    p.Avatar,
		Bio:       p.Bio,
		GameStats: p.GameStats,
		CreatedAt: p.CreatedAt,
	}
}

// ProfileUpdate carries the mutable profile fields; nil means unchanged
type ProfileUpdate struct {
	FirstName   *string      `json:"firstName,omitempty"`
	LastName    *string      `json:"lastName,omitempty"`
	Username    *string      `json:"username,omitempty"`
	Avatar      *string      `json:"avatar,omitempty"`
	Bio         *string      `json:"bio,omitempty"`
	Preferences *Preferences `json:"preferences,omitempty"`
}

// User is the identity-provider view of an account
type User struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Username   string     `json:"username"`
	FirstName  string     `json:"firstName,omitempty"`
	LastName   string     `json:"lastName,omitempty"`
	IsVerified bool       `json:"isVerified"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastLogin  *time.Time `json:"lastLogin,omitempty"`
}

// AuthTokens bundles the tokens returned by the identity provider
type AuthTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	IDToken      string `json:"idToken"`
}

// LoginRequest is the body of the login endpoint
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of the registration endpoint
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
}

// VerifyRequest is the body of the email verification endpoint
type VerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// ForgotPasswordRequest is the body of the forgot-password endpoint
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the body of the reset-password endpoint
type ResetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}
