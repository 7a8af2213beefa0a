package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"recruitcrm/api/internal/authpw"
	"recruitcrm/api/internal/rbac"
	"recruitcrm/api/internal/store"
	"recruitcrm/api/internal/util"
)

// UserView is the public shape of a user record.
type UserView struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	DisplayName     string    `json:"displayName"`
	Role            string    `json:"role"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	CreatedAt       time.Time `json:"createdAt"`
}

func userView(u store.User) UserView {
	return UserView{
		ID:              u.ID,
		Email:           u.Email,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		DisplayName:     u.DisplayName,
		Role:            string(rbac.Normalize(u.Role)),
		IsEmailVerified: u.IsEmailVerified,
		CreatedAt:       u.CreatedAt,
	}
}

type CreateUserInput struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Role      string `json:"role" validate:"required,oneof=admin editor viewer"`
	Password  string `json:"password" validate:"omitempty,min=8,max=128"`
}

type UpdateUserInput struct {
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Role      string `json:"role" validate:"required,oneof=admin editor viewer"`
}

// CreatedUser is returned by CreateUser. InviteToken is only set when email
// delivery is not configured.
type CreatedUser struct {
	User        UserView `json:"user"`
	InviteSent  bool     `json:"inviteSent"`
	InviteToken string   `json:"devInviteToken,omitempty"`
}

// validationError turns validator output into a 400 with per-field details.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domainError(http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	}
	details := make([]map[string]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, map[string]string{
			"field": fe.Field(),
			"rule":  fe.Tag(),
		})
	}
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid user details", details)
}

func (s *Service) ListUsers(ctx context.Context) ([]UserView, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, upstreamError("LIST_FAILED", err)
	}
	out := make([]UserView, 0, len(users))
	for _, u := range users {
		out = append(out, userView(u))
	}
	return out, nil
}

// CreateUser adds a user on behalf of an admin. Without a password the user
// is invited to set one through a reset link.
func (s *Service) CreateUser(ctx context.Context, admin Session, input CreateUserInput) (CreatedUser, error) {
	input.Email = strings.TrimSpace(input.Email)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Role = strings.ToLower(strings.TrimSpace(input.Role))
	if err := s.validate.Struct(input); err != nil {
		return CreatedUser{}, validationError(err)
	}

	user := store.User{
		ID:          util.NewID("usr"),
		Email:       input.Email,
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		DisplayName: authpw.DisplayName(input.FirstName, input.LastName, input.Email),
		Role:        input.Role,
	}
	if input.Password != "" {
		hash, err := s.passwords.HashPassword(input.Password)
		if err != nil {
			return CreatedUser{}, err
		}
		user.PasswordHash = hash
		user.IsEmailVerified = true
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return CreatedUser{}, err
		}
		return CreatedUser{}, upstreamError("CREATE_FAILED", err)
	}
	created, err := s.store.GetUserByID(ctx, user.ID)
	if err != nil {
		created = user
	}
	result := CreatedUser{User: userView(created)}
	s.logger.Info("user created",
		zap.String("user_id", user.ID),
		zap.String("role", user.Role),
		zap.String("by", admin.UserID),
	)

	if input.Password != "" {
		return result, nil
	}
	token, err := s.passwords.IssueResetToken(ctx, user.ID)
	if err != nil {
		s.logger.Warn("issue invite token", zap.String("user_id", user.ID), zap.Error(err))
		return result, nil
	}
	if !s.SMTPConfigured() {
		result.InviteToken = token
		return result, nil
	}
	if err := s.email.SendInviteEmail(user.Email, user.DisplayName, admin.UserName, s.link("/reset-password", token)); err != nil {
		s.logger.Warn("send invite email", zap.String("user_id", user.ID), zap.Error(err))
		return result, nil
	}
	result.InviteSent = true
	return result, nil
}

func (s *Service) UpdateUser(ctx context.Context, admin Session, userID string, input UpdateUserInput) (UserView, error) {
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Role = strings.ToLower(strings.TrimSpace(input.Role))
	if err := s.validate.Struct(input); err != nil {
		return UserView{}, validationError(err)
	}
	if userID == admin.UserID && rbac.Role(input.Role) != rbac.RoleAdmin {
		return UserView{}, errCannotDemoteSelf
	}
	updated, err := s.store.UpdateUser(ctx, userID, input.FirstName, input.LastName, input.Role)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return UserView{}, err
		}
		return UserView{}, upstreamError("UPDATE_FAILED", err)
	}
	return userView(updated), nil
}

func (s *Service) DeleteUser(ctx context.Context, admin Session, userID string) error {
	if userID == admin.UserID {
		return errCannotDeleteSelf
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return err
		}
		return upstreamError("DELETE_FAILED", err)
	}
	if err := s.idle.Forget(ctx, userID); err != nil {
		s.logger.Warn("forget idle window", zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}
