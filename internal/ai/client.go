// Package ai wraps the Gemini API for the two call shapes the CRM needs: a
// plain text prompt and a document plus instruction prompt.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"recruitcrm/api/internal/logger"
	"recruitcrm/api/internal/metrics"
)

const (
	DefaultModel = "gemini-2.0-flash"

	defaultRateLimit = 2.0
	defaultBurst     = 4
	previewLimit     = 200
)

var (
	// ErrDisabled is returned by New when no API key is configured.
	ErrDisabled = errors.New("AI API key is not configured")
	// ErrEmptyResponse is returned when no candidate carries text.
	ErrEmptyResponse = errors.New("gemini api returned empty response")
)

type Config struct {
	APIKey    string
	Model     string
	RateLimit float64
	Burst     int
}

// contentModel is the slice of genai.Models the client uses.
type contentModel interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Client struct {
	models  contentModel
	model   string
	limiter *rate.Limiter
	logger  *zap.Logger
}

func New(ctx context.Context, cfg Config, log *zap.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrDisabled
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newClient(client.Models, cfg, log), nil
}

func newClient(models contentModel, cfg Config, log *zap.Logger) *Client {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return &Client{
		models:  models,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
		logger:  logger.OrNop(log),
	}
}

func (c *Client) Model() string {
	return c.model
}

// GenerateText sends a single text prompt.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}
	return c.generate(ctx, "text", genai.Text(prompt))
}

// GenerateFromDocument sends raw document bytes tagged with mediaType,
// followed by the instruction prompt.
func (c *Client) GenerateFromDocument(ctx context.Context, data []byte, mediaType, prompt string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("document must not be empty")
	}
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{Data: data, MIMEType: mediaType}},
			{Text: prompt},
		},
	}}
	return c.generate(ctx, "document", contents)
}

func (c *Client) generate(ctx context.Context, operation string, contents []*genai.Content) (out string, err error) {
	start := time.Now()
	defer func() {
		metrics.AICallsTotal.WithLabelValues(operation, metrics.Result(err)).Inc()
		metrics.AICallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := c.models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		c.logger.Warn("gemini call failed", zap.String("operation", operation), zap.String("model", c.model), zap.Error(err))
		return "", fmt.Errorf("generate content: %w", err)
	}

	out = responseText(resp)
	if out == "" {
		return "", ErrEmptyResponse
	}
	c.logger.Debug("gemini call",
		zap.String("operation", operation),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("preview", logger.Truncate(out, previewLimit)),
	)
	return out, nil
}

// responseText joins the text parts of every candidate with newlines.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}
	return strings.TrimSpace(builder.String())
}
