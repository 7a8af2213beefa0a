package app

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"recruitcrm/api/internal/ai"
	"recruitcrm/api/internal/metrics"
	"recruitcrm/api/internal/rbac"
	"recruitcrm/api/internal/search"
)

// multipartOverhead is allowed on top of the file size for form boundaries
// and headers.
const multipartOverhead = 1 << 20

var (
	errNoFile       = domainError(http.StatusBadRequest, "NO_FILE", "No file uploaded", nil)
	errNotPDF       = domainError(http.StatusBadRequest, "INVALID_FILE_TYPE", "Only PDF files are allowed", nil)
	errFileTooLarge = domainError(http.StatusBadRequest, "FILE_TOO_LARGE", "File exceeds the 10 MB limit", nil)
)

func (s *HTTPServer) routeCandidates(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 0:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		if !s.service.Can(session.Role, rbac.ActionRead) {
			s.forbid(w, r, session, "candidates.list")
			return
		}
		s.handleListCandidates(w, r)

	case len(parts) == 1 && parts[0] == "parse-cv":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			s.forbid(w, r, session, "candidates.parse")
			return
		}
		s.handleParseCV(w, r)

	case len(parts) == 1 && parts[0] == "upload-cv":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			s.forbid(w, r, session, "candidates.upload")
			return
		}
		s.handleUploadCV(w, r, session)

	case len(parts) == 1 && parts[0] == "save":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			s.forbid(w, r, session, "candidates.save")
			return
		}
		s.handleSaveCandidate(w, r, session)

	case len(parts) == 1:
		candidateID := parts[0]
		switch r.Method {
		case http.MethodGet:
			if !s.service.Can(session.Role, rbac.ActionRead) {
				s.forbid(w, r, session, "candidates.get")
				return
			}
			candidate, err := s.service.GetCandidate(r.Context(), candidateID)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"candidate": candidate})
		case http.MethodDelete:
			if !s.service.Can(session.Role, rbac.ActionDelete) {
				s.forbid(w, r, session, "candidates.delete")
				return
			}
			if err := s.service.DeleteCandidate(r.Context(), candidateID); err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		default:
			methodNotAllowed(w)
		}

	case len(parts) == 2 && parts[1] == "export":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		if !s.service.Can(session.Role, rbac.ActionRead) {
			s.forbid(w, r, session, "candidates.export")
			return
		}
		s.handleExportCandidate(w, r, parts[0])

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	query := search.Query{Text: strings.TrimSpace(r.URL.Query().Get("q"))}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		query.Limit = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		query.Offset = parsed
	}

	list, err := s.service.ListCandidates(r.Context(), query)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if list.Search != nil {
		writeJSON(w, http.StatusOK, list.Search)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": list.Candidates})
}

// readCVFile pulls the "cv" part out of a multipart request.
func readCVFile(w http.ResponseWriter, r *http.Request) ([]byte, *multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCVBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxCVBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, nil, errFileTooLarge
		}
		return nil, nil, errNoFile
	}
	file, header, err := r.FormFile("cv")
	if err != nil {
		return nil, nil, errNoFile
	}
	defer file.Close()
	if header.Size > maxCVBytes {
		return nil, nil, errFileTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(file, maxCVBytes+1))
	if err != nil {
		return nil, nil, errNoFile
	}
	if len(data) > maxCVBytes {
		return nil, nil, errFileTooLarge
	}
	return data, header, nil
}

// declaredMediaType returns the part's Content-Type without parameters,
// guessing from the extension when none was sent.
func declaredMediaType(header *multipart.FileHeader) string {
	if raw := strings.TrimSpace(header.Header.Get("Content-Type")); raw != "" {
		if mediaType, _, err := mime.ParseMediaType(raw); err == nil {
			return strings.ToLower(mediaType)
		}
		return strings.ToLower(raw)
	}
	if guessed := mime.TypeByExtension(strings.ToLower(filepath.Ext(header.Filename))); guessed != "" {
		mediaType, _, _ := mime.ParseMediaType(guessed)
		return mediaType
	}
	return "application/octet-stream"
}

func (s *HTTPServer) handleParseCV(w http.ResponseWriter, r *http.Request) {
	if !s.service.AIEnabled() {
		s.writeServiceError(w, r, ai.ErrDisabled)
		return
	}
	data, header, err := readCVFile(w, r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	result, err := s.service.ParseCV(r.Context(), data, declaredMediaType(header))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleUploadCV(w http.ResponseWriter, r *http.Request, session Session) {
	data, header, err := readCVFile(w, r)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	mediaType := declaredMediaType(header)
	if mediaType != "application/pdf" {
		metrics.CVUploadsTotal.WithLabelValues("rejected").Inc()
		s.writeServiceError(w, r, errNotPDF)
		return
	}
	result, err := s.service.UploadCV(r.Context(), session.UserID, header.Filename, mediaType, data)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleSaveCandidate(w http.ResponseWriter, r *http.Request, session Session) {
	var payload map[string]any
	if err := decodeBody(r, &payload); err != nil || payload == nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
		return
	}
	candidate, err := s.service.SaveCandidate(r.Context(), session.UserID, payload)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "candidate": candidate})
}

func (s *HTTPServer) handleExportCandidate(w http.ResponseWriter, r *http.Request, candidateID string) {
	result, err := s.service.ExportCandidate(r.Context(), candidateID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) routeCompanies(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		if !s.service.Can(session.Role, rbac.ActionRead) {
			s.forbid(w, r, session, "companies.list")
			return
		}
		items, err := s.service.ListCompanies(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"companies": items})

	case len(parts) == 0 && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			s.forbid(w, r, session, "companies.save")
			return
		}
		var body CompanyInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		company, err := s.service.SaveCompany(r.Context(), session.UserID, body)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "company": company})

	case len(parts) == 1 && parts[0] == "enrich":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			s.forbid(w, r, session, "companies.enrich")
			return
		}
		var body struct {
			Name    string `json:"name"`
			Website string `json:"website"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		record, err := s.service.EnrichCompany(r.Context(), body.Name, body.Website)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": record})

	case len(parts) == 0:
		methodNotAllowed(w)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}
