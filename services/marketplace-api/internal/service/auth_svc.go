package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/kithly/marketplace/pkg/apperr"
	"github.com/kithly/marketplace/pkg/auth"
	"github.com/kithly/marketplace/pkg/mail"
	"github.com/kithly/marketplace/services/marketplace-api/internal/domain"
	"github.com/kithly/marketplace/services/marketplace-api/internal/repository"
)

// ResetRequestedMessage is returned whether or not the email exists.
const ResetRequestedMessage = "If an account exists for that email, a reset link has been sent."

type AuthConfig struct {
	ResetURL string
	ResetTTL time.Duration
}

type AuthSvc struct {
	users  *repository.UserRepo
	tokens *auth.TokenService
	google auth.ExternalVerifier
	mailer mail.Mailer
	cfg    AuthConfig
	now    func() time.Time
}

func NewAuthSvc(users *repository.UserRepo, tokens *auth.TokenService, google auth.ExternalVerifier, mailer mail.Mailer, cfg AuthConfig) *AuthSvc {
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	if mailer == nil {
		mailer = mail.Console{}
	}
	return &AuthSvc{users: users, tokens: tokens, google: google, mailer: mailer, cfg: cfg, now: time.Now}
}

func (s *AuthSvc) WithClock(now func() time.Time) *AuthSvc {
	s.now = now
	return s
}

type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      auth.Role
}

type Session struct {
	Token string
	User  *domain.User
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthSvc) Signup(ctx context.Context, in SignupInput) (*domain.User, error) {
	email := normalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperr.Validation("valid email is required")
	}
	if !in.Role.Valid() {
		return nil, apperr.Validation("role must be buyer or shop_owner")
	}
	if len(in.Password) < auth.MinPasswordLength {
		return nil, apperr.Validation(fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength))
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal(err, "hash password")
	}
	u := &domain.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         in.Role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if isDuplicate(err) {
			return nil, apperr.Conflict("email already registered")
		}
		return nil, storeErr(err, "")
	}
	return u, nil
}

func (s *AuthSvc) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.ByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.Unauthorized("invalid email or password")
		}
		return nil, storeErr(err, "")
	}
	if !auth.VerifyPassword(password, u.PasswordHash) {
		return nil, apperr.Unauthorized("invalid email or password")
	}
	return s.session(u)
}

// Google signs in with a Google ID token. An unknown subject is linked to an
// existing account with the same email, or a new account is created with role.
func (s *AuthSvc) Google(ctx context.Context, idToken string, role auth.Role) (*Session, error) {
	if s.google == nil {
		return nil, apperr.Upstream("google sign-in is not configured")
	}
	ext, ok := s.google.Verify(ctx, idToken)
	if !ok {
		return nil, apperr.Upstream("google token rejected")
	}

	u, err := s.users.ByExternalID(ctx, ext.ExternalID)
	if err == nil {
		return s.session(u)
	}
	if !isNotFound(err) {
		return nil, storeErr(err, "")
	}

	u, err = s.users.ByEmail(ctx, ext.Email)
	switch {
	case err == nil:
		linked, err := s.users.LinkExternalID(ctx, u.ID, ext.ExternalID)
		if err != nil {
			if isDuplicate(err) {
				return nil, apperr.Conflict("google account already linked")
			}
			return nil, storeErr(err, "")
		}
		if !linked {
			return nil, apperr.Conflict("email is linked to a different google account")
		}
		extID := ext.ExternalID
		u.ExternalID = &extID
		return s.session(u)
	case !isNotFound(err):
		return nil, storeErr(err, "")
	}

	if !role.Valid() {
		return nil, apperr.Validation("role must be buyer or shop_owner")
	}
	extID := ext.ExternalID
	u = &domain.User{
		Email:      ext.Email,
		ExternalID: &extID,
		FirstName:  ext.FirstName,
		LastName:   ext.LastName,
		Role:       role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if isDuplicate(err) {
			return nil, apperr.Conflict("account already exists")
		}
		return nil, storeErr(err, "")
	}
	return s.session(u)
}

func (s *AuthSvc) session(u *domain.User) (*Session, error) {
	tok, err := s.tokens.Issue(u.Identity())
	if err != nil {
		return nil, apperr.Internal(err, "issue token")
	}
	return &Session{Token: tok, User: u}, nil
}

func digestToken(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}

func newResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RequestReset always reports success to the caller. Failures are logged only.
func (s *AuthSvc) RequestReset(ctx context.Context, email string) string {
	u, err := s.users.ByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if !isNotFound(err) {
			log.Printf("[auth] reset lookup: %v", err)
		}
		return ResetRequestedMessage
	}
	tok, err := newResetToken()
	if err != nil {
		log.Printf("[auth] reset token: %v", err)
		return ResetRequestedMessage
	}
	expires := s.now().UTC().Add(s.cfg.ResetTTL)
	if err := s.users.SetResetToken(ctx, u.ID, digestToken(tok), expires); err != nil {
		log.Printf("[auth] store reset token: %v", err)
		return ResetRequestedMessage
	}

	msg := mail.Message{
		To:      u.Email,
		Subject: "Reset your Kithly password",
		Text:    fmt.Sprintf("Use this link within %s to reset your password: %s", s.cfg.ResetTTL, s.resetLink(tok)),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.mailer.Send(ctx, msg); err != nil {
			log.Printf("[auth] reset mail to user=%s failed: %v", u.ID, err)
		}
	}()
	return ResetRequestedMessage
}

func (s *AuthSvc) resetLink(tok string) string {
	u, err := url.Parse(s.cfg.ResetURL)
	if err != nil || s.cfg.ResetURL == "" {
		return tok
	}
	q := u.Query()
	q.Set("token", tok)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *AuthSvc) PerformReset(ctx context.Context, token, password string) error {
	if len(password) < auth.MinPasswordLength {
		return apperr.Validation(fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength))
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return apperr.Validation("invalid or expired token")
	}
	digest := digestToken(token)
	u, err := s.users.ByResetTokenHash(ctx, digest)
	if err != nil {
		if isNotFound(err) {
			return apperr.Validation("invalid or expired token")
		}
		return storeErr(err, "")
	}
	if u.ResetTokenExpiresAt == nil || !s.now().UTC().Before(*u.ResetTokenExpiresAt) {
		if err := s.users.ClearResetToken(ctx, u.ID); err != nil {
			log.Printf("[auth] clear expired reset token: %v", err)
		}
		return apperr.Validation("invalid or expired token")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return apperr.Internal(err, "hash password")
	}
	ok, err := s.users.ResetPassword(ctx, u.ID, digest, hash)
	if err != nil {
		return storeErr(err, "")
	}
	if !ok {
		return apperr.Validation("invalid or expired token")
	}
	return nil
}
