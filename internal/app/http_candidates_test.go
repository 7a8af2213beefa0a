package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"recruitcrm/api/internal/export"
	"recruitcrm/api/internal/search"
	"recruitcrm/api/internal/store"
)

func multipartCV(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="cv"; filename="%s"`, filename))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func postCV(t *testing.T, env *testEnv, path, token, filename, contentType string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	body, formType := multipartCV(t, filename, contentType, []byte("%PDF-1.4 fake"))
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", formType)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)

	payload := map[string]any{}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return rr, payload
}

func TestUploadCVRejectsNonPDFWithoutStorageWrite(t *testing.T) {
	env := newTestEnv(t, false)
	token, _ := env.signIn(t, "editor")

	rr, payload := postCV(t, env, "/api/candidates/upload-cv", token, "photo.png", "image/png")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if payload["error"] != "Only PDF files are allowed" {
		t.Fatalf("unexpected error message: %v", payload["error"])
	}
	if len(env.bucket.puts) != 0 {
		t.Fatalf("bucket must not be written, got %d objects", len(env.bucket.puts))
	}
}

func TestUploadCVStoresPDF(t *testing.T) {
	env := newTestEnv(t, false)
	token, user := env.signIn(t, "editor")

	rr, payload := postCV(t, env, "/api/candidates/upload-cv", token, "ada cv.pdf", "application/pdf; charset=binary")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	filePath, _ := payload["filePath"].(string)
	if payload["success"] != true || !strings.HasPrefix(filePath, "cvs/") || !strings.HasSuffix(filePath, ".pdf") {
		t.Fatalf("unexpected upload result: %v", payload)
	}
	if _, ok := env.bucket.puts[filePath]; !ok {
		t.Fatalf("expected object %q in bucket", filePath)
	}
	if url, _ := payload["publicUrl"].(string); !strings.HasPrefix(url, "http://storage.test/") {
		t.Fatalf("unexpected public url %q", url)
	}
	if len(env.store.cvDocs) != 1 || env.store.cvDocs[0].Body != "Go developer" || env.store.cvDocs[0].UploadedBy != user.ID {
		t.Fatalf("expected cv text row, got %+v", env.store.cvDocs)
	}
}

func TestUploadCVStorageErrorSurfacesMessage(t *testing.T) {
	env := newTestEnv(t, false)
	env.bucket.err = errors.New("bucket unreachable")
	token, _ := env.signIn(t, "editor")

	rr, payload := postCV(t, env, "/api/candidates/upload-cv", token, "cv.pdf", "application/pdf")
	if rr.Code != http.StatusInternalServerError || payload["error"] != "bucket unreachable" {
		t.Fatalf("expected storage error, got %d %v", rr.Code, payload)
	}
}

func TestUploadCVRequiresFile(t *testing.T) {
	env := newTestEnv(t, false)
	token, _ := env.signIn(t, "editor")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("note", "no file here")
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/candidates/upload-cv", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestParseCVWithoutAIKey(t *testing.T) {
	env := newTestEnv(t, false)
	token, _ := env.signIn(t, "editor")

	rr, payload := postCV(t, env, "/api/candidates/parse-cv", token, "cv.pdf", "application/pdf")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if payload["error"] != "AI API key is not configured" {
		t.Fatalf("unexpected error: %v", payload["error"])
	}
}

func TestParseCVDecodesFencedJSON(t *testing.T) {
	env := newTestEnv(t, true)
	env.ai.text = "```json\n{\"first_name\":\"Ada\",\"last_name\":\"Lovelace\",\"phone\":\"N/A\",\"willing_to_relocate\":\"Yes\"}\n```"
	token, _ := env.signIn(t, "editor")

	rr, payload := postCV(t, env, "/api/candidates/parse-cv", token, "cv.pdf", "application/pdf")
	if rr.Code != http.StatusOK || payload["success"] != true {
		t.Fatalf("expected success, got %d %v", rr.Code, payload)
	}
	data, _ := payload["data"].(map[string]any)
	if data["first_name"] != "Ada" || data["last_name"] != "Lovelace" {
		t.Fatalf("unexpected data: %v", data)
	}
	if data["phone"] != "" {
		t.Fatalf("sentinel must not be assigned, got %v", data["phone"])
	}
	if len(env.ai.media) != 1 || env.ai.media[0] != "application/pdf" {
		t.Fatalf("expected declared media type to reach the model, got %v", env.ai.media)
	}
}

func TestParseCVReportsUndecodableResponse(t *testing.T) {
	env := newTestEnv(t, true)
	env.ai.text = "Sorry, I could not read that document."
	token, _ := env.signIn(t, "editor")

	rr, payload := postCV(t, env, "/api/candidates/parse-cv", token, "cv.pdf", "application/pdf")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if payload["success"] != false || payload["rawResponse"] != env.ai.text || payload["error"] == "" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestParseCVUpstreamError(t *testing.T) {
	env := newTestEnv(t, true)
	env.ai.err = errors.New("generate content: quota exceeded")
	token, _ := env.signIn(t, "editor")

	rr, payload := postCV(t, env, "/api/candidates/parse-cv", token, "cv.pdf", "application/pdf")
	if rr.Code != http.StatusInternalServerError || payload["error"] != "generate content: quota exceeded" {
		t.Fatalf("expected upstream error, got %d %v", rr.Code, payload)
	}
}

func TestSaveCandidateNormalizesPayload(t *testing.T) {
	env := newTestEnv(t, false)
	token, user := env.signIn(t, "editor")

	body := `{"first_name":"Ada","last_name":"Lovelace","willing_to_relocate":" YES ","cv_file":{"name":"cv.pdf"},"file":{},"skills":"Go, SQL"}`
	rr, payload := doJSON(t, env.server.Handler(), http.MethodPost, "/api/candidates/save", token, body)
	if rr.Code != http.StatusOK || payload["success"] != true {
		t.Fatalf("expected success, got %d %v", rr.Code, payload)
	}
	candidate, _ := payload["candidate"].(map[string]any)
	if candidate["willing_to_relocate"] != true {
		t.Fatalf("expected relocate true, got %v", candidate["willing_to_relocate"])
	}
	if candidate["created_by"] != user.ID {
		t.Fatalf("expected created_by %s, got %v", user.ID, candidate["created_by"])
	}
	if added, _ := candidate["date_added"].(string); added == "" || strings.HasPrefix(added, "0001") {
		t.Fatalf("expected date_added default, got %q", added)
	}
	if len(env.index.indexed) != 1 {
		t.Fatalf("expected candidate indexed")
	}
	if len(env.store.notifications) != 1 || env.store.notifications[0].UserID != user.ID {
		t.Fatalf("expected creator notification, got %+v", env.store.notifications)
	}
}

func TestSaveCandidateRequiresWriteRole(t *testing.T) {
	env := newTestEnv(t, false)
	token, _ := env.signIn(t, "viewer")

	rr, payload := doJSON(t, env.server.Handler(), http.MethodPost, "/api/candidates/save", token, `{"first_name":"Ada"}`)
	if rr.Code != http.StatusForbidden || payload["code"] != "FORBIDDEN" {
		t.Fatalf("expected 403, got %d %v", rr.Code, payload)
	}
}

func TestSaveCandidateInsertFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.insertErr = errors.New("insert candidate: column missing")
	token, _ := env.signIn(t, "editor")

	rr, payload := doJSON(t, env.server.Handler(), http.MethodPost, "/api/candidates/save", token, `{"first_name":"Ada"}`)
	if rr.Code != http.StatusInternalServerError || payload["error"] != "insert candidate: column missing" {
		t.Fatalf("expected insert failure, got %d %v", rr.Code, payload)
	}
}

func TestRelocateFlag(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{"yes", true},
		{" Yes ", true},
		{"YES", true},
		{true, false},
		{"no", false},
		{"true", false},
		{"", false},
		{false, false},
		{nil, false},
		{1.0, false},
	}
	for _, tt := range tests {
		if got := relocateFlag(tt.in); got != tt.want {
			t.Errorf("relocateFlag(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCandidateFromPayload(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	payload := map[string]any{
		"first_name":       " Ada ",
		"years_experience": 7.0,
		"cvFile":           map[string]any{"size": 10},
		"date_added":       "2023-01-02T03:04:05Z",
	}
	got, err := candidateFromPayload(payload, now)
	if err != nil {
		t.Fatalf("candidateFromPayload: %v", err)
	}

	if _, ok := payload["cvFile"]; ok {
		t.Fatalf("file object must be stripped")
	}
	if got.FirstName != "Ada" || got.YearsExperience != "7" {
		t.Fatalf("unexpected candidate: %+v", got)
	}
	if !got.DateAdded.Equal(time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Fatalf("expected supplied date_added, got %v", got.DateAdded)
	}
	empty, err := candidateFromPayload(map[string]any{}, now)
	if err != nil || !empty.DateAdded.Equal(now) {
		t.Fatalf("expected default date_added %v, got %v (%v)", now, empty.DateAdded, err)
	}
}

func TestCandidateDateAddedLayouts(t *testing.T) {
	now := time.Date(2026, 10, 19, 13, 2, 19, 0, time.UTC)
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"2024-05-01", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-05-01T10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-05-01T10:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-05-01 10:00:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-05-01T10:00:00Z", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-05-01T12:00:00+02:00", time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-05-01T10:00:00.250Z", time.Date(2024, 5, 1, 10, 0, 0, 250000000, time.UTC)},
	}
	for _, tt := range tests {
		got, err := candidateFromPayload(map[string]any{"date_added": tt.raw}, now)
		if err != nil {
			t.Errorf("date_added %q: unexpected error %v", tt.raw, err)
			continue
		}
		if !got.DateAdded.Equal(tt.want) {
			t.Errorf("date_added %q = %v, want %v", tt.raw, got.DateAdded, tt.want)
		}
	}
}

func TestSaveCandidateRejectsUnparseableDate(t *testing.T) {
	env := newTestEnv(t, false)
	token, _ := env.signIn(t, "editor")

	for _, raw := range []string{"last tuesday", "05/01/2024", "2024-13-01"} {
		rr, payload := doJSON(t, env.server.Handler(), http.MethodPost, "/api/candidates/save", token,
			`{"first_name":"Ada","date_added":"`+raw+`"}`)
		if rr.Code != http.StatusBadRequest || payload["code"] != "VALIDATION_ERROR" {
			t.Fatalf("date_added %q: expected 400 VALIDATION_ERROR, got %d %v", raw, rr.Code, payload)
		}
	}
	if len(env.store.candidates) != 0 {
		t.Fatalf("nothing should be stored, got %d candidates", len(env.store.candidates))
	}
}

func TestSaveCandidateKeepsPlainDate(t *testing.T) {
	env := newTestEnv(t, false)
	token, _ := env.signIn(t, "editor")

	rr, payload := doJSON(t, env.server.Handler(), http.MethodPost, "/api/candidates/save", token,
		`{"first_name":"Ada","date_added":"2024-05-01"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %v", rr.Code, payload)
	}
	candidate, _ := payload["candidate"].(map[string]any)
	if candidate["date_added"] != "2024-05-01T00:00:00Z" {
		t.Fatalf("expected supplied date kept, got %v", candidate["date_added"])
	}
}

func TestCandidateReadAndDelete(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.candidates["cand_1"] = store.Candidate{ID: "cand_1", FirstName: "Ada"}
	editorToken, _ := env.signIn(t, "editor")
	adminToken, _ := env.signIn(t, "admin")

	rr, payload := doJSON(t, env.server.Handler(), http.MethodGet, "/api/candidates/cand_1", editorToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if c, _ := payload["candidate"].(map[string]any); c["first_name"] != "Ada" {
		t.Fatalf("unexpected candidate: %v", payload)
	}

	rr, _ = doJSON(t, env.server.Handler(), http.MethodGet, "/api/candidates/missing", editorToken, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr, _ = doJSON(t, env.server.Handler(), http.MethodDelete, "/api/candidates/cand_1", editorToken, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected editor delete to be forbidden, got %d", rr.Code)
	}

	rr, _ = doJSON(t, env.server.Handler(), http.MethodDelete, "/api/candidates/cand_1", adminToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected admin delete 200, got %d", rr.Code)
	}
	if len(env.index.deleted) != 1 || env.index.deleted[0] != "cand_1" {
		t.Fatalf("expected index delete, got %v", env.index.deleted)
	}
}

func TestListCandidatesSearch(t *testing.T) {
	env := newTestEnv(t, false)
	env.index.resp = search.Response{Results: []search.Result{{ID: "cand_1", Name: "Ada"}}, Total: 1, Backend: "postgres"}
	env.store.candidates["cand_2"] = store.Candidate{ID: "cand_2"}
	token, _ := env.signIn(t, "viewer")

	rr, payload := doJSON(t, env.server.Handler(), http.MethodGet, "/api/candidates?q=golang", token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if payload["query"] != "golang" || payload["total"] != float64(1) || payload["backend"] != "postgres" {
		t.Fatalf("unexpected search payload: %v", payload)
	}

	rr, payload = doJSON(t, env.server.Handler(), http.MethodGet, "/api/candidates", token, "")
	if list, _ := payload["candidates"].([]any); rr.Code != http.StatusOK || len(list) != 1 {
		t.Fatalf("expected one candidate, got %d %v", rr.Code, payload)
	}

	rr, _ = doJSON(t, env.server.Handler(), http.MethodGet, "/api/candidates?limit=ten", token, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rr.Code)
	}
}

func TestListCandidatesSearchFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.index.err = errors.New("search candidates: connection refused")
	token, _ := env.signIn(t, "viewer")

	rr, payload := doJSON(t, env.server.Handler(), http.MethodGet, "/api/candidates?q=golang", token, "")
	if rr.Code != http.StatusInternalServerError || payload["code"] != "SEARCH_FAILED" {
		t.Fatalf("expected 500 SEARCH_FAILED, got %d %v", rr.Code, payload)
	}
	if payload["error"] != "search candidates: connection refused" {
		t.Fatalf("expected upstream message, got %v", payload["error"])
	}
}

func TestExportCandidate(t *testing.T) {
	env := newTestEnv(t, false)
	env.store.candidates["cand_1"] = store.Candidate{ID: "cand_1", FirstName: "Ada"}
	token, _ := env.signIn(t, "viewer")

	req := httptest.NewRequest(http.MethodGet, "/api/candidates/cand_1/export", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || rr.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("expected pdf, got %d %s", rr.Code, rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "profile.pdf") {
		t.Fatalf("unexpected disposition %q", rr.Header().Get("Content-Disposition"))
	}

	env.exporter.err = export.ErrPDFUnavailable
	rr, payload := doJSON(t, env.server.Handler(), http.MethodGet, "/api/candidates/cand_1/export", token, "")
	if rr.Code != http.StatusServiceUnavailable || payload["code"] != "PDF_UNAVAILABLE" {
		t.Fatalf("expected PDF_UNAVAILABLE, got %d %v", rr.Code, payload)
	}
}
