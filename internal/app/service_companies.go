package app

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"recruitcrm/api/internal/ai"
	"recruitcrm/api/internal/extract"
	"recruitcrm/api/internal/logger"
	"recruitcrm/api/internal/store"
	"recruitcrm/api/internal/util"
)

// EnrichCompany asks the AI model about a company and normalizes whatever
// comes back. The record may be all empty.
func (s *Service) EnrichCompany(ctx context.Context, name, website string) (extract.Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errCompanyNameNeeded
	}
	if s.ai == nil {
		return nil, ai.ErrDisabled
	}
	raw, err := s.ai.GenerateText(ctx, ai.CompanyPrompt(name, strings.TrimSpace(website)))
	if err != nil {
		return nil, upstreamError("AI_ERROR", err)
	}
	record := extract.Normalize(raw, extract.CompanySchema)
	if isBlank(record) {
		s.logger.Warn("company enrichment yielded no fields",
			zap.String("company", name),
			zap.String("preview", logger.Truncate(raw, 200)),
		)
	}
	return record, nil
}

func isBlank(record extract.Record) bool {
	for _, v := range record {
		if v != "" {
			return false
		}
	}
	return true
}

type CompanyInput struct {
	Name          string `json:"name"`
	Location      string `json:"location"`
	Industry      string `json:"industry"`
	EmployeeCount string `json:"employee_count"`
	Website       string `json:"website"`
}

func (s *Service) SaveCompany(ctx context.Context, userID string, input CompanyInput) (store.Company, error) {
	if strings.TrimSpace(input.Name) == "" {
		return store.Company{}, errCompanyNameNeeded
	}
	saved, err := s.store.InsertCompany(ctx, store.Company{
		ID:            util.NewID("co"),
		Name:          strings.TrimSpace(input.Name),
		Location:      strings.TrimSpace(input.Location),
		Industry:      strings.TrimSpace(input.Industry),
		EmployeeCount: strings.TrimSpace(input.EmployeeCount),
		Website:       strings.TrimSpace(input.Website),
		CreatedBy:     userID,
		CreatedAt:     s.now(),
	})
	if err != nil {
		return store.Company{}, upstreamError("SAVE_FAILED", err)
	}
	return saved, nil
}

func (s *Service) ListCompanies(ctx context.Context) ([]store.Company, error) {
	items, err := s.store.ListCompanies(ctx)
	if err != nil {
		return nil, upstreamError("LIST_FAILED", err)
	}
	if items == nil {
		items = []store.Company{}
	}
	return items, nil
}
