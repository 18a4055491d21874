package auth

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/uptrace/bun"

	"github.com/activesoft/go-backoffice/record"
)

// sessionClaims is the JWT payload for a local session token.
type sessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// LocalProvider implements Provider over the users table with HS256-signed
// session tokens. Tokens are stateless; SignOut is a no-op at this layer
// (the manager clears its own state and activity-logs the event).
type LocalProvider struct {
	db         *bun.DB
	secret     []byte
	sessionTTL time.Duration
	logger     *slog.Logger
}

// LocalConfig configures a LocalProvider.
type LocalConfig struct {
	// Secret signs session tokens. Required.
	Secret string

	// SessionTTL bounds token lifetime. Defaults to 12h.
	SessionTTL time.Duration
}

// NewLocalProvider builds a provider over the shared database handle.
func NewLocalProvider(db *bun.DB, cfg LocalConfig, logger *slog.Logger) (*LocalProvider, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalProvider{
		db:         db,
		secret:     []byte(cfg.Secret),
		sessionTTL: cfg.SessionTTL,
		logger:     logger.With("component", "auth"),
	}, nil
}

// SignUp registers a new editor account. New accounts start unverified and
// must be activated before they can sign in.
func (p *LocalProvider) SignUp(ctx context.Context, creds Credentials, fullName string) (*Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	exists, err := p.db.NewSelect().Model((*record.User)(nil)).
		Where("email = ?", creds.Email).Exists(ctx)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailTaken
	}

	hash, err := HashPassword(creds.Password)
	if err != nil {
		return nil, err
	}
	user := &record.User{
		Email:        creds.Email,
		FullName:     fullName,
		Role:         "editor",
		PasswordHash: hash,
		Verified:     false,
		Active:       true,
	}
	if _, err := p.db.NewInsert().Model(user).Exec(ctx); err != nil {
		return nil, err
	}

	p.logger.Info("account created", "user_id", user.ID, "email", user.Email)
	return p.issue(user)
}

// SignIn authenticates an email/password pair. Wrong password and unknown
// email both report ErrInvalidCredentials.
func (p *LocalProvider) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, ErrInvalidCredentials
	}

	user := new(record.User)
	err := p.db.NewSelect().Model(user).Where("email = ?", creds.Email).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := VerifyPassword(creds.Password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, ErrUserDisabled
	}
	if !user.Verified {
		return nil, ErrEmailUnverified
	}

	return p.issue(user)
}

// SignOut invalidates nothing server-side; tokens simply expire.
func (p *LocalProvider) SignOut(ctx context.Context, token string) error {
	return nil
}

// SessionFromToken parses and validates a bearer token.
func (p *LocalProvider) SessionFromToken(ctx context.Context, token string) (*Session, error) {
	claims := new(sessionClaims)
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return p.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, ErrInvalidCredentials
	}
	if !parsed.Valid || claims.ExpiresAt == nil {
		return nil, ErrInvalidCredentials
	}

	return &Session{
		Token:     token,
		UserID:    claims.Subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (p *LocalProvider) issue(user *record.User) (*Session, error) {
	now := time.Now().UTC()
	expires := now.Add(p.sessionTTL)
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Email: user.Email,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, UserID: user.ID, Email: user.Email, ExpiresAt: expires}, nil
}

var _ Provider = (*LocalProvider)(nil)
