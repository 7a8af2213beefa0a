package app

import (
	"errors"
	"fmt"
	"net/http"

	"recruitcrm/api/internal/ai"
	"recruitcrm/api/internal/auth"
	"recruitcrm/api/internal/authpw"
	"recruitcrm/api/internal/export"
	"recruitcrm/api/internal/notify"
	"recruitcrm/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	errSessionIdle       = domainError(http.StatusUnauthorized, "SESSION_IDLE", "Session expired after inactivity", nil)
	errStorageDisabled   = domainError(http.StatusInternalServerError, "STORAGE_UNAVAILABLE", "Object storage is not configured", nil)
	errCannotDeleteSelf  = domainError(http.StatusBadRequest, "CANNOT_DELETE_SELF", "You cannot delete your own account", nil)
	errCannotDemoteSelf  = domainError(http.StatusBadRequest, "CANNOT_DEMOTE_SELF", "You cannot remove your own admin role", nil)
	errNotificationGone  = domainError(http.StatusNotFound, "NOT_FOUND", "Notification not found", nil)
	errCompanyNameNeeded = domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Company name is required", nil)
)

// mapError converts service and package errors into the HTTP envelope fields.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "USER_EXISTS", "A user with this email already exists", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, ai.ErrDisabled):
		return http.StatusInternalServerError, "AI_DISABLED", ai.ErrDisabled.Error(), nil
	case errors.Is(err, export.ErrPDFUnavailable):
		return http.StatusServiceUnavailable, "PDF_UNAVAILABLE", "PDF export is not available on this server", nil
	case errors.Is(err, notify.ErrLiveUnavailable):
		return http.StatusServiceUnavailable, "LIVE_UNAVAILABLE", "Live notifications are not available", nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, authpw.ErrMissingFields),
		errors.Is(err, authpw.ErrInvalidEmail),
		errors.Is(err, authpw.ErrWeakPassword):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, authpw.ErrInvalidToken):
		return http.StatusBadRequest, "INVALID_TOKEN", err.Error(), nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// upstreamError surfaces the underlying message for datastore, storage and AI
// failures.
func upstreamError(code string, err error) *DomainError {
	return domainError(http.StatusInternalServerError, code, err.Error(), nil)
}
