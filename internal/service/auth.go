package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storefront/storefront-go/internal/crypto"
	"github.com/storefront/storefront-go/internal/metrics"
	"github.com/storefront/storefront-go/internal/model"
	"github.com/storefront/storefront-go/internal/repository"
)

var (
	ErrEmailInUse             = errors.New("email already in use")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrEmailNotVerified       = errors.New("email not verified")
	ErrInvalidOrExpiredToken  = errors.New("invalid or expired token")
	ErrUserNotFound           = errors.New("user not found")
	ErrInvalidCurrentPassword = errors.New("current password is incorrect")
	ErrEmailNotFound          = errors.New("email not found")
)

// Notification kinds, used as the metrics "kind" label.
const (
	EmailVerification  = "verification"
	EmailPasswordReset = "password_reset"
)

// UserStore persists user records. Implementations must enforce email
// uniqueness themselves and consume opaque tokens atomically.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	VerifyEmail(ctx context.Context, tokenHash string) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	SetResetToken(ctx context.Context, id int64, tokenHash string, expiresAt time.Time) error
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*model.User, error)
	ResetPassword(ctx context.Context, tokenHash, passwordHash string, now time.Time) error
}

// Notifier delivers account emails. The token argument is the plaintext
// opaque token to embed in the link.
type Notifier interface {
	SendVerificationEmail(ctx context.Context, to, firstName, token string) error
	SendPasswordResetEmail(ctx context.Context, to, firstName, token string) error
}

// AuthConfig holds the AuthService settings.
type AuthConfig struct {
	JWTSecret     string
	JWTExpiry     time.Duration
	ResetTokenTTL time.Duration
	MailTimeout   time.Duration
	Metrics       *metrics.Metrics
}

// AuthService handles authentication business logic.
type AuthService struct {
	repo     UserStore
	notifier Notifier
	cfg      AuthConfig
	now      func() time.Time
	hash     func(string) (string, error)

	wg sync.WaitGroup
}

// NewAuthService creates a new AuthService.
func NewAuthService(repo UserStore, notifier Notifier, cfg AuthConfig) *AuthService {
	if cfg.JWTExpiry <= 0 {
		cfg.JWTExpiry = time.Hour
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = time.Hour
	}
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = 30 * time.Second
	}
	return &AuthService{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		hash:     crypto.HashPassword,
	}
}

// dummyHash is compared against when the account does not exist so that a
// missing user costs as much as a wrong password.
var dummyHash = sync.OnceValue(func() string {
	hash, err := crypto.HashPassword("storefront-dummy-password")
	if err != nil {
		return ""
	}
	return hash
})

// Register creates an unverified account and sends the verification email.
// The email is stored exactly as given.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.UserResponse, error) {
	hash, err := s.hash(req.Password)
	if err != nil {
		return model.UserResponse{}, err
	}

	token, err := crypto.GenerateOpaqueToken()
	if err != nil {
		return model.UserResponse{}, err
	}
	tokenHash := crypto.HashOpaqueToken(token)

	user := &model.User{
		Email:                 req.Email,
		FirstName:             req.FirstName,
		LastName:              req.LastName,
		PasswordHash:          hash,
		VerificationTokenHash: &tokenHash,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return model.UserResponse{}, ErrEmailInUse
		}
		return model.UserResponse{}, err
	}

	s.dispatch(EmailVerification, func(ctx context.Context) error {
		return s.notifier.SendVerificationEmail(ctx, user.Email, user.FirstName, token)
	})

	return user.ToResponse(), nil
}

// VerifyEmail consumes a verification token.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidOrExpiredToken
	}

	err := s.repo.VerifyEmail(ctx, crypto.HashOpaqueToken(token))
	if errors.Is(err, repository.ErrTokenNotFound) {
		return ErrInvalidOrExpiredToken
	}
	return err
}

// Login authenticates a customer and returns a session token.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error) {
	user, err := s.authenticate(ctx, req)
	if err != nil {
		return model.AuthResponse{}, err
	}

	if !user.EmailVerified {
		return model.AuthResponse{}, ErrEmailNotVerified
	}

	return s.issue(user)
}

// AdminLogin authenticates an administrator. Every failure is reported as
// ErrInvalidCredentials.
func (s *AuthService) AdminLogin(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error) {
	user, err := s.authenticate(ctx, req)
	if err != nil {
		return model.AuthResponse{}, err
	}

	if !user.IsAdmin {
		return model.AuthResponse{}, ErrInvalidCredentials
	}

	return s.issue(user)
}

func (s *AuthService) authenticate(ctx context.Context, req model.LoginRequest) (*model.User, error) {
	user, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			crypto.VerifyPassword(req.Password, dummyHash())
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !crypto.VerifyPassword(req.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

func (s *AuthService) issue(user *model.User) (model.AuthResponse, error) {
	token, err := crypto.GenerateToken(user.ID, user.IsAdmin, s.cfg.JWTSecret, s.cfg.JWTExpiry)
	if err != nil {
		return model.AuthResponse{}, err
	}

	return model.AuthResponse{
		Status: 1,
		Token:  token,
		User:   user.ToResponse(),
	}, nil
}

// ChangePassword replaces the password of an authenticated user.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, req model.ChangePasswordRequest) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if !crypto.VerifyPassword(req.CurrentPassword, user.PasswordHash) {
		return ErrInvalidCurrentPassword
	}

	hash, err := s.hash(req.NewPassword)
	if err != nil {
		return err
	}

	err = s.repo.UpdatePassword(ctx, user.ID, hash)
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return err
}

// ForgotPassword issues a reset token, replacing any earlier one, and sends
// it by email.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrEmailNotFound
		}
		return err
	}

	token, err := crypto.GenerateOpaqueToken()
	if err != nil {
		return err
	}

	expiresAt := s.now().UTC().Add(s.cfg.ResetTokenTTL)
	if err := s.repo.SetResetToken(ctx, user.ID, crypto.HashOpaqueToken(token), expiresAt); err != nil {
		return fmt.Errorf("storing reset token: %w", err)
	}

	s.dispatch(EmailPasswordReset, func(ctx context.Context) error {
		return s.notifier.SendPasswordResetEmail(ctx, user.Email, user.FirstName, token)
	})

	return nil
}

// ResetPassword consumes a reset token and sets the new password. Expired
// tokens are rejected at use time.
func (s *AuthService) ResetPassword(ctx context.Context, req model.ResetPasswordRequest) error {
	if req.Token == "" {
		return ErrInvalidOrExpiredToken
	}

	tokenHash := crypto.HashOpaqueToken(req.Token)
	if _, err := s.repo.GetByResetToken(ctx, tokenHash, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return err
	}

	hash, err := s.hash(req.NewPassword)
	if err != nil {
		return err
	}

	// The token may have been consumed while hashing; the update re-checks it.
	err = s.repo.ResetPassword(ctx, tokenHash, hash, s.now().UTC())
	if errors.Is(err, repository.ErrTokenNotFound) {
		return ErrInvalidOrExpiredToken
	}
	return err
}

// GetUser retrieves a user by ID and returns safe user data.
func (s *AuthService) GetUser(ctx context.Context, userID int64) (model.UserResponse, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.UserResponse{}, ErrUserNotFound
		}
		return model.UserResponse{}, err
	}

	return user.ToResponse(), nil
}

// Wait blocks until every in-flight notification has finished.
func (s *AuthService) Wait() {
	s.wg.Wait()
}

// dispatch runs send in the background with its own deadline. Failures,
// panics included, are logged and counted but never reach the caller.
func (s *AuthService) dispatch(kind string, send func(ctx context.Context) error) {
	if s.notifier == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.MailTimeout)
		defer cancel()

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("notifier panic: %v", r)
				}
			}()
			return send(ctx)
		}()

		if err != nil {
			slog.Error("sending email failed", "kind", kind, "error", err)
			s.cfg.Metrics.ObserveEmail(kind, metrics.OutcomeFailed)
			return
		}
		s.cfg.Metrics.ObserveEmail(kind, metrics.OutcomeSent)
	}()
}
