// Package authpw provides email/password authentication with verification
// and password reset.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"recruitcrm/api/internal/logger"
	"recruitcrm/api/internal/rbac"
	"recruitcrm/api/internal/store"
	"recruitcrm/api/internal/util"
)

const (
	MinPasswordLength = 8
	verificationTTL   = 24 * time.Hour
	ResetTTL          = time.Hour
)

var (
	ErrMissingFields      = errors.New("email and password are required")
	ErrInvalidEmail       = errors.New("email address is invalid")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	VerifyUserEmail(ctx context.Context, token string) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	ConsumePasswordReset(ctx context.Context, token string) (string, error)
}

type Service struct {
	store  UserStore
	cost   int
	logger *zap.Logger
}

func NewService(userStore UserStore, log *zap.Logger) *Service {
	return &Service{store: userStore, cost: bcrypt.DefaultCost, logger: logger.OrNop(log)}
}

// WithCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

type SignUpRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type SignUpResponse struct {
	UserID            string
	VerificationToken string
}

// SignUp creates an unverified viewer account. Admins promote users later.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if req.Password == "" {
		return nil, ErrMissingFields
	}
	if err := CheckPassword(req.Password); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	hash, err := s.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	token := util.NewToken()
	user := store.User{
		ID:                util.NewID("usr"),
		Email:             email,
		FirstName:         strings.TrimSpace(req.FirstName),
		LastName:          strings.TrimSpace(req.LastName),
		DisplayName:       DisplayName(req.FirstName, req.LastName, email),
		Role:              string(rbac.RoleViewer),
		PasswordHash:      hash,
		VerificationToken: token,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	if err := s.store.UpdateUserVerificationToken(ctx, user.ID, token, time.Now().Add(verificationTTL)); err != nil {
		return nil, err
	}

	return &SignUpResponse{UserID: user.ID, VerificationToken: token}, nil
}

type SignInResponse struct {
	User           store.User
	RequiresVerify bool
}

// SignIn checks credentials. An unverified account is reported only after the
// password matched.
func (s *Service) SignIn(ctx context.Context, email, password string) (*SignInResponse, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, ErrMissingFields
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &SignInResponse{User: user, RequiresVerify: !user.IsEmailVerified}, nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrInvalidToken
	}
	if err := s.store.VerifyUserEmail(ctx, token); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	return nil
}

// RequestPasswordReset returns a reset token, or "" when the email is unknown
// so callers cannot tell the difference.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, store.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", store.User{}, nil
		}
		return "", store.User{}, err
	}
	token, err := s.IssueResetToken(ctx, user.ID)
	if err != nil {
		return "", store.User{}, err
	}
	return token, user, nil
}

// IssueResetToken creates a single-use password reset token for userID.
func (s *Service) IssueResetToken(ctx context.Context, userID string) (string, error) {
	token := util.NewToken()
	if err := s.store.CreatePasswordReset(ctx, userID, token, time.Now().Add(ResetTTL)); err != nil {
		return "", err
	}
	return token, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if strings.TrimSpace(token) == "" || newPassword == "" {
		return ErrMissingFields
	}
	if err := CheckPassword(newPassword); err != nil {
		return err
	}

	hash, err := s.HashPassword(newPassword)
	if err != nil {
		return err
	}
	userID, err := s.store.ConsumePasswordReset(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if err := s.store.UpdateUserPassword(ctx, userID, hash); err != nil {
		s.logger.Error("reset password after consuming token", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

// DisplayName joins the name parts, falling back to the email local part.
func DisplayName(firstName, lastName, email string) string {
	name := strings.TrimSpace(strings.TrimSpace(firstName) + " " + strings.TrimSpace(lastName))
	if name != "" {
		return name
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}

func normalizeEmail(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ErrMissingFields
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return "", ErrInvalidEmail
	}
	return value, nil
}
