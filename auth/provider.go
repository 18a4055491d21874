// Package auth provides session-based authentication for the back office:
// a pluggable identity provider plus a manager that tracks the signed-in
// user, their profile and activity logging.
package auth

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Expected failure modes of the identity provider. Callers test with
// errors.Is.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrSessionExpired     = errors.New("session expired")
	ErrUserDisabled       = errors.New("account disabled")
	ErrEmailUnverified    = errors.New("email not verified")
)

// Session is an authenticated session: an opaque bearer token bound to one
// user until ExpiresAt.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session's lifetime has passed.
func (s *Session) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Credentials is an email/password pair for sign-in or sign-up.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.Email),
		validation.Field(&c.Password, validation.Required, validation.Length(8, 128)),
	)
}

// Provider is the identity backend contract. LocalProvider implements it
// over the users table; a hosted identity service could replace it without
// touching the manager.
type Provider interface {
	SignUp(ctx context.Context, creds Credentials, fullName string) (*Session, error)
	SignIn(ctx context.Context, creds Credentials) (*Session, error)
	SignOut(ctx context.Context, token string) error

	// SessionFromToken validates a bearer token and reconstructs its
	// session, or reports why it cannot (expired, malformed).
	SessionFromToken(ctx context.Context, token string) (*Session, error)
}
