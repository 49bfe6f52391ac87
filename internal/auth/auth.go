// Package auth issues and verifies caller identities. Passwords are bcrypt
// hashed; identities travel as HS256 JWTs in a bearer header or cookie. The
// turn pipeline only ever sees the resolved user ID.
package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/orionlabs/orion-go/internal/config"
	"github.com/orionlabs/orion-go/internal/store"
)

const (
	// CookieName carries the auth token for browser clients.
	CookieName = "orion_token"
	issuer     = "orion"
	// anonymousUsername owns all sessions when auth is disabled.
	anonymousUsername = "anonymous"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserExists         = errors.New("user already exists")
)

// Service is the authentication collaborator.
type Service struct {
	store   *store.Store
	secret  []byte
	ttl     time.Duration
	enabled bool

	anonymousID int64
}

// NewService creates the auth service. When auth is disabled it ensures the
// anonymous user exists and attributes all traffic to it.
func NewService(ctx context.Context, st *store.Store, cfg config.AuthConfig) (*Service, error) {
	s := &Service{
		store:   st,
		secret:  []byte(cfg.Secret),
		ttl:     cfg.TokenTTL(),
		enabled: cfg.Enabled,
	}
	if !cfg.Enabled {
		anon, err := st.GetUserByUsername(ctx, anonymousUsername)
		if errors.Is(err, store.ErrNotFound) {
			anon, err = st.CreateUser(ctx, anonymousUsername, "anonymous@localhost", "")
		}
		if err != nil {
			return nil, errors.Wrap(err, "ensure anonymous user")
		}
		s.anonymousID = anon.ID
	}
	return s, nil
}

// Enabled reports whether credential checks apply.
func (s *Service) Enabled() bool { return s.enabled }

// AnonymousID returns the user owning all sessions in anonymous mode.
func (s *Service) AnonymousID() int64 { return s.anonymousID }

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Register creates a new account.
func (s *Service) Register(ctx context.Context, username, email, password string) (*store.User, error) {
	if _, err := s.store.GetUserByUsername(ctx, username); err == nil {
		return nil, ErrUserExists
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return s.store.CreateUser(ctx, username, email, hash)
}

// Login verifies credentials and issues a signed token.
func (s *Service) Login(ctx context.Context, username, password string) (string, *store.User, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if !user.IsActive || !CheckPassword(user.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.issueToken(user.ID)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *Service) issueToken(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   strconv.FormatInt(userID, 10),
		ID:        shortuuid.New(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	return signed, errors.Wrap(err, "sign token")
}

// Verify parses a token and returns the caller's user ID.
func (s *Service) Verify(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}
