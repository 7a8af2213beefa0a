package search

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"recruitcrm/api/internal/logger"
	"recruitcrm/api/internal/metrics"
	"recruitcrm/api/internal/store"
)

type meiliBackend interface {
	Healthy() bool
	OnRecover(fn func())
	Search(q Query) ([]Result, int, error)
	IndexCandidates(records []CandidateRecord) error
	DeleteCandidate(id string) error
}

const reindexTimeout = 2 * time.Minute

type pgBackend interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	LoadAllRecords(ctx context.Context) ([]CandidateRecord, error)
	CVText(ctx context.Context, path string) (string, error)
}

// Service tries Meilisearch first and falls back to PostgreSQL.
type Service struct {
	meili  meiliBackend
	pgfts  pgBackend
	logger *zap.Logger
}

// NewService builds the facade. meili may be nil when Meilisearch is not configured.
func NewService(m *Meili, p *PgFTS, log *zap.Logger) *Service {
	s := &Service{logger: logger.OrNop(log)}
	if p != nil {
		s.pgfts = p
	}
	if m != nil {
		s.useMeili(m)
	}
	return s
}

// useMeili installs the Meilisearch backend and resyncs it from PostgreSQL
// whenever it comes back after an outage. Writes made while it was down are
// only in PostgreSQL.
func (s *Service) useMeili(m meiliBackend) {
	s.meili = m
	m.OnRecover(func() {
		ctx, cancel := context.WithTimeout(context.Background(), reindexTimeout)
		defer cancel()
		n, err := s.ReindexAll(ctx)
		if err != nil {
			s.logger.Error("reindex after recovery", zap.Error(err))
			return
		}
		s.logger.Info("reindexed candidates after recovery", zap.Int("count", n))
	})
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

// Search returns an error only when the PostgreSQL fallback fails. A
// Meilisearch failure falls through to PostgreSQL.
func (s *Service) Search(ctx context.Context, q Query) (Response, error) {
	q = normalizeQuery(q)
	if s.meiliReady() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			metrics.SearchQueriesTotal.WithLabelValues("meilisearch").Inc()
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "meilisearch"}, nil
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", zap.Error(err))
	}

	metrics.SearchQueriesTotal.WithLabelValues("postgres").Inc()
	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text, Backend: "postgres"}, nil
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		return Response{}, fmt.Errorf("search candidates: %w", err)
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Backend: "postgres"}, nil
}

// IndexCandidate pushes a candidate to Meilisearch in the background. The CV
// text is looked up by the candidate's cv_file_path.
func (s *Service) IndexCandidate(candidate store.Candidate) {
	if !s.meiliReady() {
		return
	}
	go func() {
		cvText := ""
		if s.pgfts != nil && candidate.CVFilePath != "" {
			text, err := s.pgfts.CVText(context.Background(), candidate.CVFilePath)
			if err != nil {
				s.logger.Warn("load cv text for indexing", zap.String("candidate_id", candidate.ID), zap.Error(err))
			}
			cvText = text
		}
		if err := s.meili.IndexCandidates([]CandidateRecord{RecordFromCandidate(candidate, cvText)}); err != nil {
			s.logger.Warn("index candidate", zap.String("candidate_id", candidate.ID), zap.Error(err))
		}
	}()
}

func (s *Service) DeleteCandidate(id string) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.DeleteCandidate(id); err != nil {
			s.logger.Warn("delete candidate from index", zap.String("candidate_id", id), zap.Error(err))
		}
	}()
}

// ReindexAll loads every candidate from PostgreSQL into Meilisearch.
func (s *Service) ReindexAll(ctx context.Context) (int, error) {
	if !s.meiliReady() || s.pgfts == nil {
		return 0, nil
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.meili.IndexCandidates(records); err != nil {
		return 0, err
	}
	return len(records), nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
