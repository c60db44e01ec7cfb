package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/secalert-agent/internal/classify"
	"github.com/secalert-agent/internal/match"
	"github.com/secalert-agent/internal/models"
	"github.com/secalert-agent/internal/reference"
	"github.com/secalert-agent/internal/storage"
	"github.com/secalert-agent/internal/storage/sqlite"
	"github.com/secalert-agent/pkg/logger"
)

type captureDispatcher struct {
	batches [][]uint // subscription IDs per Dispatch call
}

func (d *captureDispatcher) Dispatch(_ context.Context, deliveries []match.Delivery) error {
	var ids []uint
	for _, del := range deliveries {
		ids = append(ids, del.Subscription.ID)
	}
	d.batches = append(d.batches, ids)
	return nil
}

func (d *captureDispatcher) all() []uint {
	var ids []uint
	for _, b := range d.batches {
		ids = append(ids, b...)
	}
	return ids
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

func newTestPipeline(t *testing.T, repo storage.Repository, disp *captureDispatcher) *Pipeline {
	t.Helper()
	dir := reference.NewDirectory(repo)
	tagger := reference.NewTagger(dir, logger.Nop())
	classifier := classify.New(1.0, tagger, logger.Nop())
	matcher := match.New(dir, logger.Nop())
	return New(repo, nil, tagger, classifier, matcher, disp, logger.Nop())
}

func activeSubscription(ctx context.Context, t *testing.T, repo storage.Repository, sub *models.Subscription) *models.Subscription {
	t.Helper()
	sub.IsActive = true
	if err := repo.CreateSubscription(ctx, sub); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	// Creates skip zero-value fields with column defaults; force the flag.
	if err := repo.UpdateSubscription(ctx, sub); err != nil {
		t.Fatalf("activate subscription: %v", err)
	}
	return sub
}

func TestProcessClassifiesTagsAndDispatches(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	disp := &captureDispatcher{}
	p := newTestPipeline(t, repo, disp)

	// Seed reference data the tagger and matcher resolve against.
	company := &models.Company{Name: "Acme Corp"}
	if err := repoCreateCompany(ctx, repo, company); err != nil {
		t.Fatalf("seed company: %v", err)
	}

	activeSubscription(ctx, t, repo, &models.Subscription{
		SubscriberID: "u1", TargetType: models.TargetKeyword, TargetRef: "breach",
	})
	activeSubscription(ctx, t, repo, &models.Subscription{
		SubscriberID: "u2", TargetType: models.TargetCompany, TargetRef: "1",
	})
	activeSubscription(ctx, t, repo, &models.Subscription{
		SubscriberID: "u3", TargetType: models.TargetKeyword, TargetRef: "ransomware",
	})

	article := &models.Article{
		ExternalID: "ext-1",
		Title:      "Acme Corp discloses data breach",
		Summary:    "Acme Corp confirmed unauthorized access to customer records.",
	}
	if err := repo.CreateArticle(ctx, article); err != nil {
		t.Fatalf("create article: %v", err)
	}

	if err := p.Process(ctx, article); err != nil {
		t.Fatalf("process: %v", err)
	}

	if article.AlertType != models.AlertTypeBreach {
		t.Errorf("alert type = %s, want breach", article.AlertType)
	}
	if article.Confidence == nil || *article.Confidence <= 0.8 {
		t.Errorf("confidence = %v, want > 0.8", article.Confidence)
	}
	if !article.Tags.Contains("company:1") {
		t.Errorf("expected company tag, got %v", article.Tags)
	}

	// Subscriptions 1 (keyword "breach") and 2 (company) match; 3 does not.
	if diff := cmp.Diff([]uint{1, 2}, disp.all()); diff != "" {
		t.Errorf("dispatched pairs mismatch (-want +got):\n%s", diff)
	}

	// Re-running is safe: pairs are deduplicated at the pipeline level.
	if err := p.Process(ctx, article); err != nil {
		t.Fatalf("second process: %v", err)
	}
	if diff := cmp.Diff([]uint{1, 2}, disp.all()); diff != "" {
		t.Errorf("re-run dispatched duplicates (-want +got):\n%s", diff)
	}
}

func TestProcessFallbackMarked(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	disp := &captureDispatcher{}
	p := newTestPipeline(t, repo, disp)

	article := &models.Article{
		ExternalID: "ext-2",
		Title:      "Quarterly results",
		Summary:    "Revenue grew eight percent on services demand.",
	}
	if err := repo.CreateArticle(ctx, article); err != nil {
		t.Fatalf("create article: %v", err)
	}

	if err := p.Process(ctx, article); err != nil {
		t.Fatalf("process: %v", err)
	}

	if article.AlertType != models.AlertTypeMention || !article.Fallback {
		t.Errorf("want fallback mention, got %s fallback=%v", article.AlertType, article.Fallback)
	}
	if article.Confidence == nil || *article.Confidence != classify.FallbackConfidence {
		t.Errorf("fallback confidence = %v, want %v", article.Confidence, classify.FallbackConfidence)
	}
}

type failingDirectory struct{}

var errDirDown = errors.New("reference store unavailable")

func (failingDirectory) Agency(context.Context, uint) (*models.Agency, error) {
	return nil, errDirDown
}
func (failingDirectory) Company(context.Context, uint) (*models.Company, error) {
	return nil, errDirDown
}
func (failingDirectory) Location(context.Context, uint) (*models.Location, error) {
	return nil, errDirDown
}
func (failingDirectory) Agencies(context.Context) ([]*models.Agency, error)       { return nil, errDirDown }
func (failingDirectory) Companies(context.Context) ([]*models.Company, error)     { return nil, errDirDown }
func (failingDirectory) Locations(context.Context) ([]*models.Location, error)    { return nil, errDirDown }
func (failingDirectory) Regulations(context.Context) ([]*models.Regulation, error) { return nil, errDirDown }

func TestProcessHoldsArticleWhenReferenceDataDown(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	disp := &captureDispatcher{}

	tagger := reference.NewTagger(failingDirectory{}, logger.Nop())
	classifier := classify.New(1.0, tagger, logger.Nop())
	matcher := match.New(failingDirectory{}, logger.Nop())
	p := New(repo, nil, tagger, classifier, matcher, disp, logger.Nop())

	article := &models.Article{
		ExternalID: "ext-3",
		Title:      "Hospital reviewing a potential incident",
		Summary:    "A potential incident is under investigation.",
	}
	if err := repo.CreateArticle(ctx, article); err != nil {
		t.Fatalf("create article: %v", err)
	}

	if err := p.Process(ctx, article); err == nil {
		t.Fatal("expected error while reference data is unavailable")
	}

	// Held, not defaulted: the sweep retries it later.
	held, err := repo.GetArticleByID(ctx, article.ID)
	if err != nil {
		t.Fatalf("lookup article: %v", err)
	}
	if held.Classified() {
		t.Error("article must stay unclassified after a classifier outage")
	}
	if len(disp.all()) != 0 {
		t.Error("nothing should be dispatched for a held article")
	}
}

func TestSweepUnclassified(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	disp := &captureDispatcher{}
	p := newTestPipeline(t, repo, disp)

	for _, a := range []*models.Article{
		{ExternalID: "s-1", Title: "Breach disclosed", Summary: "A data breach exposed records."},
		{ExternalID: "s-2", Title: "Earnings", Summary: "Quarterly revenue grew on cloud demand."},
	} {
		if err := repo.CreateArticle(ctx, a); err != nil {
			t.Fatalf("create article: %v", err)
		}
	}

	result, err := p.SweepUnclassified(ctx, 0)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if result.Seen != 2 || result.Classified != 2 || result.Held != 0 {
		t.Errorf("seen=%d classified=%d held=%d, want 2/2/0", result.Seen, result.Classified, result.Held)
	}
	if result.Fallbacks != 1 {
		t.Errorf("fallbacks = %d, want 1", result.Fallbacks)
	}

	// A second sweep finds nothing left to do.
	again, err := p.SweepUnclassified(ctx, 0)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again.Seen != 0 {
		t.Errorf("second sweep saw %d articles, want 0", again.Seen)
	}
}

// repoCreateCompany seeds a reference entity. Reference data is managed
// externally in production; tests write it directly.
func repoCreateCompany(ctx context.Context, repo storage.Repository, company *models.Company) error {
	type creator interface {
		CreateCompany(ctx context.Context, company *models.Company) error
	}
	if c, ok := repo.(creator); ok {
		return c.CreateCompany(ctx, company)
	}
	return errors.New("repository cannot seed companies")
}
