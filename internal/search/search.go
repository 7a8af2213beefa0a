// Package search indexes candidates in Meilisearch and falls back to
// PostgreSQL full-text search when Meilisearch is absent or unhealthy.
package search

import (
	"strings"

	"recruitcrm/api/internal/store"
)

// Result is a single candidate hit.
type Result struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	Company  string `json:"company"`
	Location string `json:"location"`
	Snippet  string `json:"snippet"`
}

type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the candidate search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Backend string   `json:"backend"`
}

// CandidateRecord is the document stored in the candidate index.
type CandidateRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Title    string `json:"title"`
	Company  string `json:"company"`
	Location string `json:"location"`
	Skills   string `json:"skills"`
	Summary  string `json:"summary"`
	CVText   string `json:"cvText"`
}

// RecordFromCandidate builds the index document. cvText may be empty.
func RecordFromCandidate(c store.Candidate, cvText string) CandidateRecord {
	return CandidateRecord{
		ID:       c.ID,
		Name:     c.FullName(),
		Email:    c.Email,
		Title:    c.CurrentTitle,
		Company:  c.CurrentCompany,
		Location: c.Location,
		Skills:   c.Skills,
		Summary:  c.Summary,
		CVText:   cvText,
	}
}

func normalizeQuery(q Query) Query {
	q.Text = strings.TrimSpace(q.Text)
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}
