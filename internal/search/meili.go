package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"

	"recruitcrm/api/internal/logger"
	"recruitcrm/api/internal/metrics"
)

const idxCandidates = "recruitcrm_candidates"

// Meili searches and indexes candidates in Meilisearch.
type Meili struct {
	client    meili.ServiceManager
	healthy   atomic.Bool
	onRecover atomic.Pointer[func()]
	done      chan struct{}
	logger    *zap.Logger
}

// NewMeili connects and configures the candidate index. An unreachable server
// is not an error: the health loop keeps probing and callers fall back.
func NewMeili(url, apiKey string, log *zap.Logger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
		logger: logger.OrNop(log),
	}

	if _, err := m.client.Health(); err != nil {
		m.logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		m.setHealthy(false)
	} else {
		m.setHealthy(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) setHealthy(ok bool) {
	m.healthy.Store(ok)
	if ok {
		metrics.SearchHealthy.Set(1)
	} else {
		metrics.SearchHealthy.Set(0)
	}
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: idxCandidates, PrimaryKey: "id"}); err != nil {
		m.logger.Debug("create index (may already exist)", zap.String("index", idxCandidates), zap.Error(err))
	}
	searchable := []string{"name", "title", "skills", "company", "location", "summary", "email", "cvText"}
	if _, err := m.client.Index(idxCandidates).UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", zap.String("index", idxCandidates), zap.Error(err))
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.setHealthy(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
				if fn := m.onRecover.Load(); fn != nil {
					(*fn)()
				}
			}
		}
	}
}

func (m *Meili) Close() {
	close(m.done)
}

// OnRecover registers fn to run on the health loop each time the server
// becomes reachable again.
func (m *Meili) OnRecover(fn func()) {
	m.onRecover.Store(&fn)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{{
			IndexUID:              idxCandidates,
			Query:                 q.Text,
			Limit:                 int64(q.Limit),
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"summary", "skills", "cvText"},
			AttributesToCrop:      []string{"cvText:30"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		}},
	})
	if err != nil {
		m.setHealthy(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func hitToResult(hit meili.Hit) Result {
	return Result{
		ID:       decodeString(hit, "id"),
		Name:     decodeString(hit, "name"),
		Title:    decodeString(hit, "title"),
		Company:  decodeString(hit, "company"),
		Location: decodeString(hit, "location"),
		Snippet: firstNonBlank(
			decodeFormattedString(hit, "cvText"),
			decodeFormattedString(hit, "summary"),
			decodeString(hit, "summary"),
			decodeString(hit, "skills"),
		),
	}
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]any
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	value, _ := formatted[key].(string)
	if !strings.Contains(value, "<mark>") {
		return ""
	}
	return strings.TrimSpace(value)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func (m *Meili) IndexCandidates(records []CandidateRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxCandidates).AddDocuments(records, nil)
	return err
}

func (m *Meili) DeleteCandidate(id string) error {
	_, err := m.client.Index(idxCandidates).DeleteDocument(id, nil)
	return err
}
