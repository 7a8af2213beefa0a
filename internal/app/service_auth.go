package app

import (
	"context"

	"go.uber.org/zap"

	"recruitcrm/api/internal/authpw"
)

// SignUp registers an account and mails the verification link when email is
// configured. The returned token is only meant for the dev echo.
func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (*authpw.SignUpResponse, error) {
	resp, err := s.passwords.SignUp(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.SMTPConfigured() {
		name := authpw.DisplayName(req.FirstName, req.LastName, req.Email)
		if err := s.email.SendVerificationEmail(req.Email, name, s.link("/verify-email", resp.VerificationToken)); err != nil {
			s.logger.Warn("send verification email", zap.String("user_id", resp.UserID), zap.Error(err))
		}
	}
	return resp, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*authpw.SignInResponse, error) {
	return s.passwords.SignIn(ctx, email, password)
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	return s.passwords.VerifyEmail(ctx, token)
}

// RequestPasswordReset returns the reset token ("" for unknown emails) and
// mails it when email is configured.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	token, user, err := s.passwords.RequestPasswordReset(ctx, email)
	if err != nil {
		s.logger.Error("password reset request", zap.Error(err))
		return "", err
	}
	if token == "" || !s.SMTPConfigured() {
		return token, nil
	}
	if err := s.email.SendPasswordResetEmail(user.Email, user.DisplayName, s.link("/reset-password", token)); err != nil {
		s.logger.Warn("send password reset email", zap.String("user_id", user.ID), zap.Error(err))
	}
	return token, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.passwords.ResetPassword(ctx, token, newPassword)
}
