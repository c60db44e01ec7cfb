// Package content retrieves and extracts the full body text of articles.
package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/secalert-agent/internal/config"
	"github.com/secalert-agent/internal/models"
	"github.com/secalert-agent/pkg/logger"
	"github.com/secalert-agent/pkg/ratelimit"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher retrieves article pages and extracts their primary text.
// Fetching is best effort: exhausted retries leave the article on its
// summary, they never fail the pipeline.
type Fetcher struct {
	client     HTTPClient
	limiter    *ratelimit.MultiLimiter
	enabled    bool
	timeout    time.Duration
	maxRetries int
	maxBody    int64
	log        *logger.Logger
}

// New creates a Fetcher from configuration. The enabled flag is read once
// here; toggling it requires a restart.
func New(cfg config.ContentConfig, client HTTPClient, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = 5 * 1024 * 1024
	}
	return &Fetcher{
		client:     client,
		limiter:    limiter,
		enabled:    cfg.Enabled,
		timeout:    cfg.TimeoutDuration(),
		maxRetries: cfg.MaxRetries,
		maxBody:    maxBody,
		log:        log.WithComponent("content"),
	}
}

// Enabled reports whether full-content fetching is turned on.
func (f *Fetcher) Enabled() bool {
	return f.enabled
}

// Enrich attempts to populate the article's full content. It returns true
// when content was set. Disabled flag, missing URL, or exhausted retries
// all leave the article untouched with HasFullContent=false and no error:
// classification proceeds on the summary.
func (f *Fetcher) Enrich(ctx context.Context, article *models.Article) bool {
	if !f.enabled || article.HasFullContent || article.URL == "" {
		return false
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, ratelimit.LimiterContent); err != nil {
			f.log.Warn().Err(err).Uint("article_id", article.ID).Msg("Rate limiter wait aborted")
			return false
		}
	}

	html, err := f.fetch(ctx, article.URL)
	if err != nil {
		f.log.Warn().
			Err(err).
			Uint("article_id", article.ID).
			Str("url", article.URL).
			Msg("Full-content fetch failed, proceeding on summary")
		return false
	}

	text, err := ExtractText(html)
	if err != nil || text == "" {
		f.log.Warn().
			Err(err).
			Uint("article_id", article.ID).
			Msg("Content extraction produced nothing, proceeding on summary")
		return false
	}

	article.SetContent(text)

	// Some feeds omit titles on items; backfill from the page if we can.
	if article.Title == "" {
		if title, err := ExtractTitle(html); err == nil {
			article.Title = title
		}
	}

	f.log.Debug().
		Uint("article_id", article.ID).
		Int("content_len", len(text)).
		Msg("Fetched full content")
	return true
}

// fetch retrieves the page with a bounded retry budget and exponential
// backoff between attempts.
func (f *Fetcher) fetch(ctx context.Context, url string) (string, error) {
	var body string

	backoff := retry.WithMaxRetries(uint64(f.maxRetries), retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			return err // malformed URL, no point retrying
		}
		req.Header.Set("User-Agent", "secalert-agent/1.0")

		resp, err := f.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("http get: %w", err))
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return retry.RetryableError(fmt.Errorf("status %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("read body: %w", err))
		}
		body = string(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	return body, nil
}
