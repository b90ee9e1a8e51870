package auth

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the fixed validity window of a session token.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Identity is everything an authorization decision needs. No other PII goes into a token.
type Identity struct {
	UserID string
	Email  string
	Role   Role
}

type Claims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// WithClock swaps the time source used for both issuing and verifying.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	cp := *s
	cp.now = now
	return &cp
}

func (s *TokenService) Issue(id Identity) (string, error) {
	if id.UserID == "" || !id.Role.Valid() {
		return "", errors.New("incomplete identity")
	}
	now := s.now()
	claims := Claims{
		Email: id.Email,
		Role:  id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify reports false for every kind of bad input; it never returns an error to callers.
func (s *TokenService) Verify(tokenStr string) (Identity, bool) {
	if tokenStr == "" {
		return Identity{}, false
	}
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return Identity{}, false
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || c.Subject == "" || !c.Role.Valid() {
		return Identity{}, false
	}
	return Identity{UserID: c.Subject, Email: c.Email, Role: c.Role}, true
}
