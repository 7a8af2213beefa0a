package export

import (
	"context"
	"time"

	"go.uber.org/zap"

	"recruitcrm/api/internal/logger"
	"recruitcrm/api/internal/metrics"
	"recruitcrm/api/internal/store"
)

// Service renders candidate profile PDFs.
type Service struct {
	render func(ctx context.Context, html string) ([]byte, error)
	now    func() time.Time
	log    *zap.Logger
}

// NewService creates an exporter backed by headless Chrome.
func NewService(log *zap.Logger) *Service {
	return &Service{render: chromePDF, now: time.Now, log: logger.OrNop(log)}
}

// Available reports whether a Chrome binary can be found.
func (s *Service) Available() bool {
	_, err := lookChrome()
	return err == nil
}

// CandidateProfile renders c to a PDF document.
func (s *Service) CandidateProfile(ctx context.Context, c store.Candidate) (*Result, error) {
	html, err := RenderProfileHTML(ProfileFromCandidate(c, s.now().UTC()))
	if err != nil {
		return nil, err
	}

	start := time.Now()
	pdf, err := s.render(ctx, html)
	metrics.ExportsTotal.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		s.log.Warn("candidate export failed", zap.String("candidate_id", c.ID), zap.Error(err))
		return nil, err
	}
	s.log.Debug("candidate exported",
		zap.String("candidate_id", c.ID),
		zap.Int("bytes", len(pdf)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &Result{
		Data:     pdf,
		Filename: sanitizeFilename(c.FullName()) + ".pdf",
		MimeType: "application/pdf",
	}, nil
}
