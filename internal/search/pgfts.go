package search

import (
	"context"
	"database/sql"
	"fmt"
)

// PgFTS searches candidates and their CV text with PostgreSQL full-text search.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

const pgftsMatch = `
	FROM candidates c
	LEFT JOIN cv_documents d ON d.path = c.cv_file_path
	WHERE c.fts @@ plainto_tsquery('english', $1)
		OR d.fts @@ plainto_tsquery('english', $1)`

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if q.Text == "" {
		return nil, 0, nil
	}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) `+pgftsMatch, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT c.id, TRIM(c.first_name || ' ' || c.last_name), c.current_title, c.current_company, c.location,
			ts_headline('english', coalesce(nullif(d.body, ''), c.summary, ''), plainto_tsquery('english', $1),
				'MaxFragments=1,MaxWords=30,StartSel=<mark>,StopSel=</mark>') AS snippet
		`+pgftsMatch+`
		ORDER BY ts_rank(c.fts, plainto_tsquery('english', $1)) + coalesce(ts_rank(d.fts, plainto_tsquery('english', $1)), 0) DESC,
			c.date_added DESC
		LIMIT $2 OFFSET $3`, q.Text, q.Limit, q.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Name, &r.Title, &r.Company, &r.Location, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every candidate with its CV text for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]CandidateRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT c.id, TRIM(c.first_name || ' ' || c.last_name), c.email, c.current_title, c.current_company,
			c.location, c.skills, c.summary, coalesce(d.body, '')
		FROM candidates c
		LEFT JOIN cv_documents d ON d.path = c.cv_file_path
	`)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	defer rows.Close()

	records := make([]CandidateRecord, 0)
	for rows.Next() {
		var r CandidateRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Email, &r.Title, &r.Company, &r.Location, &r.Skills, &r.Summary, &r.CVText); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return records, nil
}

// CVText returns the extracted text stored for an uploaded CV path.
func (p *PgFTS) CVText(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	var body string
	err := p.db.QueryRowContext(ctx, `SELECT body FROM cv_documents WHERE path=$1`, path).Scan(&body)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load cv text: %w", err)
	}
	return body, nil
}
