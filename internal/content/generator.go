// Package content generates episode scripts through a chat-completion API.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"podcaster/internal/domain"
)

const (
	defaultBaseURL     = "https://api.perplexity.ai/chat/completions"
	defaultModel       = "sonar"
	defaultMaxRetries  = 3
	defaultTimeout     = 30 * time.Second
	defaultBackoffUnit = 2 * time.Second
	defaultMinWords    = 500
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxRetries  int
	Timeout     time.Duration
	BackoffUnit time.Duration
	MinWords    int
}

// Generator calls the text-generation API for a series prompt.
type Generator struct {
	cfg        Config
	series     domain.SeriesLookup
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Generator)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Generator) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// WithSleeper overrides how rate-limit waits are performed.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Generator) {
		if sleep != nil {
			g.sleep = sleep
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// New creates a generator resolving series through lookup.
func New(cfg Config, lookup domain.SeriesLookup, logger *slog.Logger, opts ...Option) *Generator {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = defaultBackoffUnit
	}
	if cfg.MinWords <= 0 {
		cfg.MinWords = defaultMinWords
	}

	g := &Generator{
		cfg:        cfg,
		series:     lookup,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		sleep:      sleepContext,
		now:        time.Now,
		logger:     logger.With("component", "content"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("api request failed with status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Generate produces a script for seriesID. A non-empty promptOverride replaces
// the series prompt.
func (g *Generator) Generate(ctx context.Context, seriesID, promptOverride string) (domain.GeneratedContent, error) {
	var empty domain.GeneratedContent

	series, ok := g.series.Lookup(seriesID)
	if !ok {
		return empty, domain.Wrap(domain.ErrContentGeneration, "invalid series id "+seriesID, domain.ErrUnknownSeries)
	}

	prompt := series.Prompt
	if strings.TrimSpace(promptOverride) != "" {
		prompt = promptOverride
	}

	body, err := g.requestWithRetry(ctx, chatRequest{
		Model:    g.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return empty, domain.Wrap(domain.ErrContentGeneration, seriesID, err)
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return empty, domain.Wrap(domain.ErrContentGeneration, "decode response", err)
	}
	if len(resp.Choices) == 0 {
		return empty, domain.Wrap(domain.ErrContentGeneration, "parse response", errors.New("no choices returned"))
	}

	text := resp.Choices[0].Message.Content
	title, rest := splitTitle(text)
	if title == "" {
		return empty, domain.Wrap(domain.ErrContentGeneration, "parse response", errors.New("empty content"))
	}

	generated := domain.GeneratedContent{
		SeriesID:    series.ID,
		SeriesName:  series.Name,
		Title:       title,
		Body:        rest,
		FullText:    text,
		WordCount:   len(strings.Fields(text)),
		Category:    series.Category,
		GeneratedAt: g.now().UTC(),
	}

	g.logger.Info("content generated",
		"series_id", series.ID,
		"title", generated.Title,
		"word_count", generated.WordCount,
	)

	return generated, nil
}

// Validate applies the quality checks with the configured word minimum.
func (g *Generator) Validate(text string) bool {
	return ValidateContent(text, g.cfg.MinWords)
}

func (g *Generator) requestWithRetry(ctx context.Context, payload chatRequest) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	maxAttempts := g.cfg.MaxRetries
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		body, err := g.doRequest(ctx, encoded)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		var statusErr *statusError
		switch {
		case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests:
			if attempt == maxAttempts {
				break
			}
			wait := time.Duration(attempt) * g.cfg.BackoffUnit
			g.logger.Warn("rate limited, waiting before retry",
				"attempt", attempt,
				"backoff", wait,
			)
			if err := g.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		case errors.As(err, &statusErr):
			return nil, err
		case retryable(err):
			g.logger.Warn("request failed, retrying",
				"attempt", attempt,
				"error", err,
			)
			continue
		default:
			return nil, err
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxAttempts, lastErr)
}

func (g *Generator) doRequest(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// retryable reports timeouts and connection failures.
func retryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET)
}

// splitTitle treats the first line as the title and the rest as the body.
func splitTitle(text string) (string, string) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	title := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(lines[0]), "#* "))
	title = strings.TrimSpace(strings.TrimRight(title, "*"))
	body := strings.TrimSpace(strings.Join(lines[1:], "\n"))
	return title, body
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
