// Package podbean publishes stored episodes to the Podbean hosting platform.
package podbean

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"podcaster/internal/domain"
)

const (
	defaultBaseURL  = "https://api.podbean.com"
	defaultTokenTTL = 55 * time.Minute
	defaultTimeout  = 5 * time.Minute
	defaultBrandTag = "metrovoice"
	fallbackName    = "MetroVoice"
	fallbackDesc    = "MetroVoice Podcast"
)

type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenTTL     time.Duration
	Timeout      time.Duration
	ScratchDir   string
	BrandTag     string
}

// Downloader reads a stored artifact into w.
type Downloader interface {
	Download(ctx context.Context, key string, w io.Writer) (int64, error)
}

type Client struct {
	cfg        Config
	series     domain.SeriesLookup
	storage    Downloader
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger

	tokens tokenCache
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the clock used for token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func New(cfg Config, lookup domain.SeriesLookup, storage Downloader, logger *slog.Logger, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = defaultTokenTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.BrandTag == "" {
		cfg.BrandTag = defaultBrandTag
	}

	c := &Client{
		cfg:        cfg,
		series:     lookup,
		storage:    storage,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
		logger:     logger.With("component", "podbean"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type uploadAuthorization struct {
	PresignedURL string `json:"presigned_url"`
	FileKey      string `json:"file_key"`
}

type episodeResponse struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Episode *struct {
		ID           string `json:"id"`
		PermalinkURL string `json:"permalink_url"`
	} `json:"episode"`
}

// Publish uploads the artifact at storageKey and creates a public episode.
// Steps already completed are not rolled back when a later one fails.
func (c *Client) Publish(ctx context.Context, seriesID, title, storageKey, description string) (domain.Publication, error) {
	var empty domain.Publication

	token, err := c.accessToken(ctx)
	if err != nil {
		return empty, domain.Wrap(domain.ErrPublish, "", err)
	}

	scratch, size, err := c.downloadToScratch(ctx, storageKey)
	if err != nil {
		return empty, domain.Wrap(domain.ErrPublish, "download artifact", err)
	}
	defer func() {
		scratch.Close()
		if err := os.Remove(scratch.Name()); err != nil {
			c.logger.Warn("failed to remove scratch file", "path", scratch.Name(), "error", err)
		}
	}()

	auth, err := c.authorizeUpload(ctx, token, path.Base(storageKey), size)
	if err != nil {
		c.dropRejectedToken(err)
		return empty, domain.Wrap(domain.ErrPublish, "authorize upload", err)
	}

	if err := c.upload(ctx, auth.PresignedURL, scratch, size); err != nil {
		return empty, domain.Wrap(domain.ErrPublish, "upload file", err)
	}

	episode, err := c.createEpisode(ctx, token, seriesID, title, description, auth.FileKey)
	if err != nil {
		c.dropRejectedToken(err)
		return empty, domain.Wrap(domain.ErrPublish, "create episode", err)
	}

	pub := domain.Publication{
		EpisodeID:   episode.id(),
		URL:         episode.permalink(),
		FileKey:     auth.FileKey,
		PublishedAt: c.now().UTC(),
	}

	c.logger.Info("episode published",
		"series_id", seriesID,
		"episode_id", pub.EpisodeID,
		"url", pub.URL,
	)

	return pub, nil
}

// EpisodeStatus fetches the platform's view of an episode.
func (c *Client) EpisodeStatus(ctx context.Context, episodeID string) (map[string]any, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, domain.Wrap(domain.ErrPublish, "", err)
	}

	endpoint := c.endpoint("/v1/episodes/"+url.PathEscape(episodeID)) + "?" + url.Values{"access_token": {token}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var out map[string]any
	if err := c.do(req, &out); err != nil {
		c.dropRejectedToken(err)
		return nil, domain.Wrap(domain.ErrPublish, "episode status", err)
	}
	return out, nil
}

func (c *Client) downloadToScratch(ctx context.Context, key string) (*os.File, int64, error) {
	f, err := os.CreateTemp(c.cfg.ScratchDir, "episode-*"+path.Ext(key))
	if err != nil {
		return nil, 0, fmt.Errorf("create scratch file: %w", err)
	}

	size, err := c.storage.Download(ctx, key, f)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, 0, err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, 0, fmt.Errorf("rewind scratch file: %w", err)
	}

	c.logger.Debug("downloaded artifact", "key", key, "path", f.Name(), "size", size)
	return f, size, nil
}

func (c *Client) authorizeUpload(ctx context.Context, token, filename string, size int64) (uploadAuthorization, error) {
	params := url.Values{
		"access_token": {token},
		"filename":     {filename},
		"filesize":     {strconv.FormatInt(size, 10)},
		"content_type": {domain.AudioMIMEType},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1/files/uploadAuthorize")+"?"+params.Encode(), nil)
	if err != nil {
		return uploadAuthorization{}, fmt.Errorf("create request: %w", err)
	}

	var auth uploadAuthorization
	if err := c.do(req, &auth); err != nil {
		return auth, err
	}
	if auth.PresignedURL == "" || auth.FileKey == "" {
		return auth, errors.New("incomplete upload authorization")
	}
	return auth, nil
}

func (c *Client) upload(ctx context.Context, presignedURL string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, presignedURL, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", domain.AudioMIMEType)

	return c.do(req, nil)
}

func (c *Client) createEpisode(ctx context.Context, token, seriesID, title, description, fileKey string) (episodeResponse, error) {
	name := fallbackName
	desc := fallbackDesc
	if s, ok := c.series.Lookup(seriesID); ok {
		name = s.Name
		desc = s.Description
	}
	if strings.TrimSpace(description) == "" {
		description = fmt.Sprintf("Latest episode from %s - %s", name, desc)
	}

	form := url.Values{
		"access_token": {token},
		"title":        {title},
		"content":      {description},
		"status":       {"publish"},
		"type":         {"public"},
		"media_key":    {fileKey},
		"logo_key":     {""},
		"tags":         {EpisodeTags(c.cfg.BrandTag, seriesID, name)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/episodes"), strings.NewReader(form.Encode()))
	if err != nil {
		return episodeResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp episodeResponse
	if err := c.do(req, &resp); err != nil {
		return resp, err
	}
	if resp.id() == "" {
		return resp, errors.New("response carried no episode id")
	}
	return resp, nil
}

// EpisodeTags builds the comma separated tag list for an episode.
func EpisodeTags(brand, seriesID, seriesName string) string {
	snake := strings.ReplaceAll(strings.ToLower(seriesName), " ", "_")
	return strings.Join([]string{brand, seriesID, snake}, ",")
}

func (e episodeResponse) id() string {
	if e.ID != "" {
		return e.ID
	}
	if e.Episode != nil {
		return e.Episode.ID
	}
	return ""
}

func (e episodeResponse) permalink() string {
	if e.URL != "" {
		return e.URL
	}
	if e.Episode != nil {
		return e.Episode.PermalinkURL
	}
	return ""
}

func (c *Client) endpoint(p string) string {
	return c.cfg.BaseURL + p
}

type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// dropRejectedToken forgets the cached token after the platform rejected it.
func (c *Client) dropRejectedToken(err error) {
	var statusErr *statusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
