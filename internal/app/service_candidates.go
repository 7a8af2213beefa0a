package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"recruitcrm/api/internal/ai"
	"recruitcrm/api/internal/export"
	"recruitcrm/api/internal/extract"
	"recruitcrm/api/internal/logger"
	"recruitcrm/api/internal/metrics"
	"recruitcrm/api/internal/search"
	"recruitcrm/api/internal/storage"
	"recruitcrm/api/internal/store"
	"recruitcrm/api/internal/util"
)

const (
	maxCVBytes         = 10 << 20
	candidateListLimit = 200
)

// fileObjectFields are client-side file handles that must never reach the
// candidate insert.
var fileObjectFields = []string{"cv_file", "file", "cvFile"}

// ParseResult is the parse-cv response body.
type ParseResult struct {
	Success     bool           `json:"success"`
	Data        extract.Record `json:"data,omitempty"`
	Error       string         `json:"error,omitempty"`
	RawResponse string         `json:"rawResponse,omitempty"`
}

// ParseCV asks the AI model to read a CV. A response that is not a JSON
// object is reported with success=false and the raw text.
func (s *Service) ParseCV(ctx context.Context, data []byte, mediaType string) (ParseResult, error) {
	if s.ai == nil {
		return ParseResult{}, ai.ErrDisabled
	}
	raw, err := s.ai.GenerateFromDocument(ctx, data, mediaType, ai.CVPrompt)
	if err != nil {
		return ParseResult{}, upstreamError("AI_ERROR", err)
	}
	values, err := extract.Decode(raw)
	if err != nil {
		s.logger.Warn("cv response is not a JSON object",
			zap.Error(err),
			zap.String("preview", logger.Truncate(raw, 200)),
		)
		return ParseResult{Success: false, Error: "Failed to parse AI response", RawResponse: raw}, nil
	}
	return ParseResult{Success: true, Data: extract.FromMap(values, extract.CandidateSchema)}, nil
}

// UploadResult is the upload-cv response body.
type UploadResult struct {
	Success   bool   `json:"success"`
	FilePath  string `json:"filePath"`
	PublicURL string `json:"publicUrl"`
}

// UploadCV stores a PDF in the bucket and indexes its text. Text extraction
// is best effort.
func (s *Service) UploadCV(ctx context.Context, userID, filename, mediaType string, data []byte) (UploadResult, error) {
	if s.bucket == nil {
		metrics.CVUploadsTotal.WithLabelValues("error").Inc()
		return UploadResult{}, errStorageDisabled
	}
	key := storage.CVKey(s.now(), filename)
	if err := s.bucket.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
		metrics.CVUploadsTotal.WithLabelValues("error").Inc()
		s.logger.Error("store cv", zap.String("key", key), zap.Error(err))
		return UploadResult{}, upstreamError("STORAGE_ERROR", err)
	}
	metrics.CVUploadsTotal.WithLabelValues("stored").Inc()

	s.indexCVText(ctx, userID, key, filename, mediaType, data)

	return UploadResult{Success: true, FilePath: key, PublicURL: s.bucket.PublicURL(key)}, nil
}

func (s *Service) indexCVText(ctx context.Context, userID, key, filename, mediaType string, data []byte) {
	if s.text == nil {
		return
	}
	body, err := s.text.Extract(data, mediaType, filename)
	if err != nil {
		s.logger.Warn("extract cv text", zap.String("key", key), zap.Error(err))
		return
	}
	doc := store.CVDocument{
		Path:       key,
		Filename:   filename,
		MediaType:  mediaType,
		SizeBytes:  int64(len(data)),
		Body:       body,
		UploadedBy: userID,
		CreatedAt:  s.now(),
	}
	if err := s.store.InsertCVDocument(ctx, doc); err != nil {
		s.logger.Warn("save cv text", zap.String("key", key), zap.Error(err))
	}
}

// SaveCandidate inserts a candidate from a loosely typed client payload.
func (s *Service) SaveCandidate(ctx context.Context, userID string, payload map[string]any) (store.Candidate, error) {
	candidate, err := candidateFromPayload(payload, s.now())
	if err != nil {
		return store.Candidate{}, err
	}
	candidate.ID = util.NewID("cand")
	candidate.CreatedBy = userID

	saved, err := s.store.InsertCandidate(ctx, candidate)
	if err != nil {
		s.logger.Error("insert candidate", zap.Error(err))
		return store.Candidate{}, upstreamError("SAVE_FAILED", err)
	}

	if s.search != nil {
		s.search.IndexCandidate(saved)
	}
	if s.notify != nil {
		name := saved.FullName()
		if name == "" {
			name = "A new candidate"
		}
		if _, err := s.notify.Create(ctx, userID, "Candidate added", name+" was added to the talent pool.", "/candidates/"+saved.ID); err != nil {
			s.logger.Warn("notify candidate added", zap.String("candidate_id", saved.ID), zap.Error(err))
		}
	}
	return saved, nil
}

// candidateFromPayload drops file-object fields, normalizes the relocation
// flag and defaults date_added to now when it is absent.
func candidateFromPayload(payload map[string]any, now time.Time) (store.Candidate, error) {
	for _, key := range fileObjectFields {
		delete(payload, key)
	}
	text := func(key string) string {
		v, ok := payload[key]
		if !ok || v == nil {
			return ""
		}
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
		return strings.TrimSpace(fmt.Sprint(v))
	}

	dateAdded := now.UTC()
	if raw := text("date_added"); raw != "" {
		parsed, err := parseDateAdded(raw)
		if err != nil {
			return store.Candidate{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid date_added",
				[]map[string]string{{"field": "date_added", "rule": "datetime"}})
		}
		dateAdded = parsed
	}

	return store.Candidate{
		FirstName:         text("first_name"),
		LastName:          text("last_name"),
		Email:             text("email"),
		Phone:             text("phone"),
		Location:          text("location"),
		LinkedInURL:       text("linkedin_url"),
		CurrentTitle:      text("current_title"),
		CurrentCompany:    text("current_company"),
		CurrentSalary:     text("current_salary"),
		ExpectedSalary:    text("expected_salary"),
		NoticePeriod:      text("notice_period"),
		YearsExperience:   text("years_experience"),
		Skills:            text("skills"),
		Education:         text("education"),
		Languages:         text("languages"),
		Summary:           text("summary"),
		WillingToRelocate: relocateFlag(payload["willing_to_relocate"]),
		AvailabilityDate:  text("availability_date"),
		CVFilePath:        text("cv_file_path"),
		CVURL:             text("cv_url"),
		Notes:             text("notes"),
		DateAdded:         dateAdded,
	}, nil
}

// dateAddedLayouts are tried in order. Values without a zone are UTC.
var dateAddedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

func parseDateAdded(raw string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateAddedLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			return parsed.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// relocateFlag is true only for the string "yes" in any case. Booleans and
// every other value are false.
func relocateFlag(v any) bool {
	value, ok := v.(string)
	return ok && strings.EqualFold(strings.TrimSpace(value), "yes")
}

// CandidateList holds either a plain listing or a search response.
type CandidateList struct {
	Candidates []store.Candidate
	Search     *search.Response
}

func (s *Service) ListCandidates(ctx context.Context, q search.Query) (CandidateList, error) {
	if strings.TrimSpace(q.Text) != "" && s.search != nil {
		resp, err := s.search.Search(ctx, q)
		if err != nil {
			return CandidateList{}, upstreamError("SEARCH_FAILED", err)
		}
		return CandidateList{Search: &resp}, nil
	}
	limit := q.Limit
	if limit <= 0 || limit > candidateListLimit {
		limit = candidateListLimit
	}
	items, err := s.store.ListCandidates(ctx, limit)
	if err != nil {
		return CandidateList{}, upstreamError("LIST_FAILED", err)
	}
	if items == nil {
		items = []store.Candidate{}
	}
	return CandidateList{Candidates: items}, nil
}

func (s *Service) GetCandidate(ctx context.Context, id string) (store.Candidate, error) {
	return s.store.GetCandidate(ctx, id)
}

func (s *Service) DeleteCandidate(ctx context.Context, id string) error {
	if err := s.store.DeleteCandidate(ctx, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteCandidate(id)
	}
	return nil
}

func (s *Service) ExportCandidate(ctx context.Context, id string) (*export.Result, error) {
	if s.export == nil {
		return nil, export.ErrPDFUnavailable
	}
	candidate, err := s.store.GetCandidate(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := s.export.CandidateProfile(ctx, candidate)
	if err != nil {
		if errors.Is(err, export.ErrPDFUnavailable) {
			return nil, err
		}
		return nil, upstreamError("EXPORT_FAILED", err)
	}
	return result, nil
}
