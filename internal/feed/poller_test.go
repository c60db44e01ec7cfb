package feed

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/secalert-agent/internal/config"
	"github.com/secalert-agent/internal/models"
	"github.com/secalert-agent/internal/storage"
	"github.com/secalert-agent/internal/storage/sqlite"
	"github.com/secalert-agent/pkg/logger"
)

type urlTransport struct {
	responses map[string]mockResponse
}

type mockResponse struct {
	body       string
	statusCode int
	err        error
}

func (t *urlTransport) Do(req *http.Request) (*http.Response, error) {
	resp, ok := t.responses[req.URL.String()]
	if !ok {
		return &http.Response{StatusCode: 404, Body: io.NopCloser(bytes.NewBufferString("not found"))}, nil
	}
	if resp.err != nil {
		return nil, resp.err
	}
	return &http.Response{
		StatusCode: resp.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(resp.body)),
	}, nil
}

type captureSink struct {
	titles []string
}

func (s *captureSink) Process(_ context.Context, article *models.Article) error {
	s.titles = append(s.titles, article.Title)
	return nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func newTestRepo(t *testing.T) storage.Repository {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := repo.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newTestPoller(repo storage.Repository, client HTTPClient, sink Sink) *Poller {
	cfg := config.PollerConfig{
		TickInterval:  "1m",
		FetchTimeout:  "5s",
		MaxConcurrent: 3,
	}
	return New(cfg, repo, client, nil, sink, logger.Nop())
}

func TestPollDue(t *testing.T) {
	ctx := context.Background()
	xml := loadFixture(t, "testdata/sample.xml")
	repo := newTestRepo(t)

	feed := &models.Feed{Name: "Security Wire", URL: "https://security-wire.example.com/rss", IntervalMinutes: 30, IsActive: true}
	if err := repo.CreateFeed(ctx, feed); err != nil {
		t.Fatalf("create feed: %v", err)
	}

	sink := &captureSink{}
	transport := &urlTransport{responses: map[string]mockResponse{
		feed.URL: {body: xml, statusCode: 200},
	}}
	p := newTestPoller(repo, transport, sink)

	result, err := p.PollDue(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.FeedsPolled != 1 || result.FeedsFailed != 0 {
		t.Errorf("polled=%d failed=%d, want 1/0", result.FeedsPolled, result.FeedsFailed)
	}
	if result.ArticlesCreated != 3 {
		t.Errorf("articles created = %d, want 3 (malformed item skipped)", result.ArticlesCreated)
	}
	if result.ItemsSkipped != 1 {
		t.Errorf("items skipped = %d, want 1", result.ItemsSkipped)
	}

	// Items handed to the sink in document order.
	wantTitles := []string{
		"Retailer Confirms Unauthorized Access To Customer Records",
		"Hospital Network Reviewing A Potential Incident",
		"Vendor Ships Quarterly Security Patch Bundle",
	}
	if diff := cmp.Diff(wantTitles, sink.titles); diff != "" {
		t.Errorf("sink order mismatch (-want +got):\n%s", diff)
	}

	// Summary HTML is stripped.
	article, err := repo.GetArticleByExternalID(ctx, "wire-1001")
	if err != nil {
		t.Fatalf("lookup article: %v", err)
	}
	if article.Summary != "The retailer confirmed unauthorized access to customer records held in a cloud database." {
		t.Errorf("summary not cleaned: %q", article.Summary)
	}
	if article.Classified() {
		t.Error("freshly ingested article should be unclassified")
	}

	// Timestamp advanced on success.
	updated, err := repo.GetFeedByID(ctx, feed.ID)
	if err != nil {
		t.Fatalf("lookup feed: %v", err)
	}
	if updated.LastFetchedAt == nil {
		t.Error("last-fetch timestamp should advance after a successful poll")
	}
}

func TestPollDueReingestionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	xml := loadFixture(t, "testdata/sample.xml")
	repo := newTestRepo(t)

	feed := &models.Feed{Name: "Security Wire", URL: "https://security-wire.example.com/rss", IntervalMinutes: 0, IsActive: true}
	if err := repo.CreateFeed(ctx, feed); err != nil {
		t.Fatalf("create feed: %v", err)
	}

	transport := &urlTransport{responses: map[string]mockResponse{
		feed.URL: {body: xml, statusCode: 200},
	}}
	p := newTestPoller(repo, transport, nil)

	if _, err := p.PollDue(ctx); err != nil {
		t.Fatalf("first poll: %v", err)
	}

	// Classify one article, then re-poll the same document.
	article, err := repo.GetArticleByExternalID(ctx, "wire-1001")
	if err != nil {
		t.Fatalf("lookup article: %v", err)
	}
	conf := 0.9
	now := time.Now().UTC()
	article.AlertType = models.AlertTypeBreach
	article.Severity = models.SeverityCritical
	article.Confidence = &conf
	article.ClassifiedAt = &now
	if err := repo.UpdateArticle(ctx, article); err != nil {
		t.Fatalf("update article: %v", err)
	}

	// Force the feed due again.
	feed.LastFetchedAt = nil
	if err := repo.UpdateFeed(ctx, feed); err != nil {
		t.Fatalf("reset feed: %v", err)
	}

	result, err := p.PollDue(ctx)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if result.ArticlesCreated != 0 {
		t.Errorf("re-ingestion created %d articles, want 0", result.ArticlesCreated)
	}

	// Terminal classification survives re-ingestion.
	again, err := repo.GetArticleByExternalID(ctx, "wire-1001")
	if err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if again.AlertType != models.AlertTypeBreach || again.Confidence == nil {
		t.Error("re-ingestion must not regress an existing classification")
	}
}

func TestPollDueFailureIsolation(t *testing.T) {
	ctx := context.Background()
	xml := loadFixture(t, "testdata/sample.xml")
	repo := newTestRepo(t)

	broken := &models.Feed{Name: "Broken", URL: "https://broken.example.com/rss", IsActive: true}
	healthy := &models.Feed{Name: "Security Wire", URL: "https://security-wire.example.com/rss", IsActive: true}
	for _, f := range []*models.Feed{broken, healthy} {
		if err := repo.CreateFeed(ctx, f); err != nil {
			t.Fatalf("create feed: %v", err)
		}
	}

	transport := &urlTransport{responses: map[string]mockResponse{
		broken.URL:  {err: io.ErrUnexpectedEOF},
		healthy.URL: {body: xml, statusCode: 200},
	}}
	p := newTestPoller(repo, transport, nil)

	result, err := p.PollDue(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.FeedsFailed != 1 || result.FeedsPolled != 1 {
		t.Errorf("polled=%d failed=%d, want 1/1", result.FeedsPolled, result.FeedsFailed)
	}
	if result.ArticlesCreated != 3 {
		t.Errorf("healthy feed created %d articles, want 3", result.ArticlesCreated)
	}

	// Failed feed keeps a nil timestamp so it stays due.
	failed, err := repo.GetFeedByID(ctx, broken.ID)
	if err != nil {
		t.Fatalf("lookup feed: %v", err)
	}
	if failed.LastFetchedAt != nil {
		t.Error("failed feed must not advance its last-fetch timestamp")
	}
}

func TestPollDueSkipsInactiveAndFreshFeeds(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	recent := time.Now().UTC().Add(-time.Minute)
	fresh := &models.Feed{Name: "Fresh", URL: "https://fresh.example.com/rss", IntervalMinutes: 60, IsActive: true}
	inactive := &models.Feed{Name: "Inactive", URL: "https://inactive.example.com/rss", IsActive: true}
	for _, f := range []*models.Feed{fresh, inactive} {
		if err := repo.CreateFeed(ctx, f); err != nil {
			t.Fatalf("create feed: %v", err)
		}
	}
	fresh.LastFetchedAt = &recent
	if err := repo.UpdateFeed(ctx, fresh); err != nil {
		t.Fatalf("update feed: %v", err)
	}
	// Deactivate via update; creates skip zero-value fields with defaults.
	inactive.IsActive = false
	if err := repo.UpdateFeed(ctx, inactive); err != nil {
		t.Fatalf("deactivate feed: %v", err)
	}

	transport := &urlTransport{responses: map[string]mockResponse{}}
	p := newTestPoller(repo, transport, nil)

	result, err := p.PollDue(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FeedsDue != 0 {
		t.Errorf("feeds due = %d, want 0", result.FeedsDue)
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"tags stripped", "<p>hello <b>world</b></p>", "hello world"},
		{"breaks become spaces", "line one<br/>line two", "line one line two"},
		{"whitespace collapsed", "  a \n\t b  ", "a b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, cleanText(tt.in)); diff != "" {
				t.Errorf("cleanText mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
