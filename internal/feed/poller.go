// Package feed polls syndication sources and turns new items into
// unclassified articles.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"github.com/secalert-agent/internal/config"
	"github.com/secalert-agent/internal/models"
	"github.com/secalert-agent/internal/storage"
	"github.com/secalert-agent/pkg/logger"
	"github.com/secalert-agent/pkg/ratelimit"
)

// maxFeedBody bounds how much of a feed document is read.
const maxFeedBody = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Sink receives each newly created article for downstream processing.
type Sink interface {
	Process(ctx context.Context, article *models.Article) error
}

// Result contains the counters of one polling pass.
type Result struct {
	FeedsDue        int
	FeedsPolled     int
	FeedsFailed     int
	ItemsSeen       int
	ItemsSkipped    int
	ArticlesCreated int
	Errors          []error
	Duration        time.Duration
}

// Poller scans for due feeds and polls them concurrently under a global
// worker cap. Each feed keeps its own cadence; one feed's failure never
// blocks another's poll.
type Poller struct {
	repo          storage.Repository
	client        HTTPClient
	limiter       *ratelimit.MultiLimiter
	sink          Sink
	tick          time.Duration
	fetchTimeout  time.Duration
	maxConcurrent int
	log           *logger.Logger
}

// New creates a poller from configuration.
func New(cfg config.PollerConfig, repo storage.Repository, client HTTPClient, limiter *ratelimit.MultiLimiter, sink Sink, log *logger.Logger) *Poller {
	if client == nil {
		client = http.DefaultClient
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &Poller{
		repo:          repo,
		client:        client,
		limiter:       limiter,
		sink:          sink,
		tick:          cfg.TickDuration(),
		fetchTimeout:  cfg.FetchTimeoutDuration(),
		maxConcurrent: maxConcurrent,
		log:           log.WithComponent("poller"),
	}
}

// Run starts the polling loop, blocking until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.pollPass(ctx)

	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollPass(ctx)
		}
	}
}

func (p *Poller) pollPass(ctx context.Context) {
	result, err := p.PollDue(ctx)
	if err != nil {
		p.log.Error().Err(err).Msg("Polling pass failed")
		return
	}
	if result.FeedsDue > 0 {
		p.log.Info().
			Int("feeds_due", result.FeedsDue).
			Int("feeds_failed", result.FeedsFailed).
			Int("articles_created", result.ArticlesCreated).
			Dur("duration", result.Duration).
			Msg("Polling pass completed")
	}
}

// PollDue polls every due feed once. Per-feed failures are captured in the
// result; only a failure to list feeds is returned as an error.
func (p *Poller) PollDue(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{}

	feeds, err := p.repo.ListDueFeeds(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("list due feeds: %w", err)
	}
	result.FeedsDue = len(feeds)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent)

	for _, f := range feeds {
		feed := f
		g.Go(func() error {
			stats, err := p.pollFeed(gctx, feed)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.FeedsFailed++
				result.Errors = append(result.Errors, fmt.Errorf("feed %d (%s): %w", feed.ID, feed.Name, err))
				return nil // isolated: siblings keep polling
			}
			result.FeedsPolled++
			result.ItemsSeen += stats.seen
			result.ItemsSkipped += stats.skipped
			result.ArticlesCreated += stats.created
			return nil
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(start)
	return result, nil
}

type feedStats struct {
	seen    int
	skipped int
	created int
}

// pollFeed fetches and parses one feed, creating an article for every item
// not already known. The last-fetch timestamp advances only when the fetch
// and parse succeeded, so failed feeds back off implicitly.
func (p *Poller) pollFeed(ctx context.Context, feed *models.Feed) (feedStats, error) {
	var stats feedStats
	log := p.log.WithFeed(feed.ID, feed.Name)

	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, ratelimit.LimiterFeeds); err != nil {
			return stats, fmt.Errorf("rate limiter: %w", err)
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	doc, err := p.fetch(fetchCtx, feed.URL)
	if err != nil {
		log.Error().Err(err).Str("url", feed.URL).Msg("Feed fetch failed")
		return stats, err
	}

	// Items are processed in document order.
	for _, item := range doc.Items {
		stats.seen++

		created, err := p.ingestItem(ctx, feed, item, log)
		if err != nil {
			// Malformed or unsaveable items are skipped, never fatal to the feed.
			stats.skipped++
			continue
		}
		if created {
			stats.created++
		}
	}

	feed.MarkFetched(time.Now().UTC())
	if err := p.repo.UpdateFeed(ctx, feed); err != nil {
		log.Error().Err(err).Msg("Failed to advance last-fetch timestamp")
	}

	log.Debug().
		Int("items", stats.seen).
		Int("created", stats.created).
		Int("skipped", stats.skipped).
		Msg("Feed polled")
	return stats, nil
}

// ingestItem creates an article for a feed item unless it is malformed or
// already known. Returns whether a new article was created.
func (p *Poller) ingestItem(ctx context.Context, feed *models.Feed, item *gofeed.Item, log *logger.Logger) (bool, error) {
	title := cleanText(item.Title)
	if title == "" || (item.Link == "" && item.GUID == "") {
		log.Warn().Str("guid", item.GUID).Str("link", item.Link).Msg("Skipping malformed feed item")
		return false, fmt.Errorf("malformed item")
	}

	externalID := models.ExternalID(item.GUID, item.Title, item.Link)

	existing, err := p.repo.GetArticleByExternalID(ctx, externalID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("dedupe lookup: %w", err)
	}
	if existing != nil {
		return false, nil // already known: never duplicate, never regress
	}

	publishedAt := time.Now().UTC()
	if item.PublishedParsed != nil {
		publishedAt = *item.PublishedParsed
	}

	article := &models.Article{
		ExternalID:  externalID,
		FeedID:      feed.ID,
		Title:       title,
		URL:         item.Link,
		Summary:     cleanText(item.Description),
		PublishedAt: publishedAt,
	}

	if err := p.repo.CreateArticle(ctx, article); err != nil {
		log.Warn().Err(err).Str("title", title).Msg("Failed to save article")
		return false, err
	}

	if p.sink != nil {
		if err := p.sink.Process(ctx, article); err != nil {
			// Processing failures don't undo ingestion; the sweep picks
			// the article up again later.
			log.Warn().Err(err).Uint("article_id", article.ID).Msg("Downstream processing failed")
		}
	}
	return true, nil
}

// fetch downloads and parses a feed document.
func (p *Poller) fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "secalert-agent/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}
