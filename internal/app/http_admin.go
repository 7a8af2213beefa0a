package app

import (
	"net/http"

	"recruitcrm/api/internal/rbac"
)

// routeAdmin serves /api/admin/*. Every route requires the admin role.
func (s *HTTPServer) routeAdmin(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if !s.service.Can(session.Role, rbac.ActionAdmin) {
		s.forbid(w, r, session, "admin")
		return
	}
	if len(parts) == 0 || parts[0] != "users" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch len(parts) {
	case 1:
		switch r.Method {
		case http.MethodGet:
			s.handleAdminUsers(w, r)
		case http.MethodPost:
			s.handleAdminCreateUser(w, r, session)
		default:
			methodNotAllowed(w)
		}
	case 2:
		switch r.Method {
		case http.MethodPut:
			s.handleAdminUpdateUser(w, r, session, parts[1])
		case http.MethodDelete:
			s.handleAdminDeleteUser(w, r, session, parts[1])
		default:
			methodNotAllowed(w)
		}
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.service.ListUsers(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (s *HTTPServer) handleAdminCreateUser(w http.ResponseWriter, r *http.Request, session Session) {
	var body CreateUserInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	created, err := s.service.CreateUser(r.Context(), session, body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *HTTPServer) handleAdminUpdateUser(w http.ResponseWriter, r *http.Request, session Session, userID string) {
	var body UpdateUserInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	user, err := s.service.UpdateUser(r.Context(), session, userID, body)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *HTTPServer) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request, session Session, userID string) {
	if err := s.service.DeleteUser(r.Context(), session, userID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
