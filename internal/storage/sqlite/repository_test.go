package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/secalert-agent/internal/models"
	"github.com/secalert-agent/internal/storage"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := repo.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestArticleExternalIDUnique(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	a := &models.Article{ExternalID: "guid-1", Title: "First"}
	if err := repo.CreateArticle(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	dup := &models.Article{ExternalID: "guid-1", Title: "Duplicate"}
	if err := repo.CreateArticle(ctx, dup); err == nil {
		t.Fatal("expected unique-constraint error for duplicate external ID")
	}

	got, err := repo.GetArticleByExternalID(ctx, "guid-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Title != "First" {
		t.Errorf("original article overwritten: %q", got.Title)
	}
}

func TestGetArticleNotFound(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if _, err := repo.GetArticleByExternalID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("want storage.ErrNotFound, got %v", err)
	}
	if _, err := repo.GetArticleByID(ctx, 42); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("want storage.ErrNotFound, got %v", err)
	}
}

func TestListUnclassified(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	conf := 0.9
	now := time.Now().UTC()
	classified := &models.Article{
		ExternalID: "c-1", Title: "Classified",
		AlertType: models.AlertTypeBreach, Severity: models.SeverityHigh,
		Confidence: &conf, ClassifiedAt: &now,
	}
	pending := &models.Article{ExternalID: "p-1", Title: "Pending"}
	for _, a := range []*models.Article{classified, pending} {
		if err := repo.CreateArticle(ctx, a); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := repo.ListUnclassified(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ExternalID != "p-1" {
		t.Errorf("want only the pending article, got %d", len(got))
	}
}

func TestListDueFeeds(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	now := time.Now().UTC()

	never := &models.Feed{Name: "never fetched", URL: "https://a.example.com", IntervalMinutes: 30, IsActive: true}
	stale := &models.Feed{Name: "stale", URL: "https://b.example.com", IntervalMinutes: 30, IsActive: true}
	fresh := &models.Feed{Name: "fresh", URL: "https://c.example.com", IntervalMinutes: 30, IsActive: true}
	inactive := &models.Feed{Name: "inactive", URL: "https://d.example.com", IntervalMinutes: 30, IsActive: true}
	for _, f := range []*models.Feed{never, stale, fresh, inactive} {
		if err := repo.CreateFeed(ctx, f); err != nil {
			t.Fatalf("create feed: %v", err)
		}
	}

	staleAt := now.Add(-time.Hour)
	stale.LastFetchedAt = &staleAt
	freshAt := now.Add(-time.Minute)
	fresh.LastFetchedAt = &freshAt
	inactive.IsActive = false
	for _, f := range []*models.Feed{stale, fresh, inactive} {
		if err := repo.UpdateFeed(ctx, f); err != nil {
			t.Fatalf("update feed: %v", err)
		}
	}

	due, err := repo.ListDueFeeds(ctx, now)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}

	dueNames := make(map[string]bool)
	for _, f := range due {
		dueNames[f.Name] = true
	}
	if len(due) != 2 || !dueNames["never fetched"] || !dueNames["stale"] {
		t.Errorf("due feeds = %v, want never fetched + stale", dueNames)
	}
}

func TestListActiveSubscriptions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	active := &models.Subscription{SubscriberID: "u1", TargetType: models.TargetKeyword, TargetRef: "breach", IsActive: true}
	retired := &models.Subscription{SubscriberID: "u2", TargetType: models.TargetKeyword, TargetRef: "malware", IsActive: true}
	for _, s := range []*models.Subscription{active, retired} {
		if err := repo.CreateSubscription(ctx, s); err != nil {
			t.Fatalf("create sub: %v", err)
		}
	}
	retired.IsActive = false
	if err := repo.UpdateSubscription(ctx, retired); err != nil {
		t.Fatalf("deactivate sub: %v", err)
	}

	got, err := repo.ListActiveSubscriptions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].SubscriberID != "u1" {
		t.Errorf("want only the active subscription, got %d", len(got))
	}
}

func TestRecordDispatchIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	created, err := repo.RecordDispatch(ctx, 1, 2)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !created {
		t.Error("first record should report created")
	}

	again, err := repo.RecordDispatch(ctx, 1, 2)
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if again {
		t.Error("second record for the same pair should report not created")
	}

	other, err := repo.RecordDispatch(ctx, 1, 3)
	if err != nil {
		t.Fatalf("other record: %v", err)
	}
	if !other {
		t.Error("different pair should report created")
	}
}

func TestReferenceLookups(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if err := repo.CreateCompany(ctx, &models.Company{Name: "Acme Corp", Aliases: models.StringSlice{"ACME"}}); err != nil {
		t.Fatalf("seed company: %v", err)
	}

	company, err := repo.GetCompany(ctx, 1)
	if err != nil {
		t.Fatalf("get company: %v", err)
	}
	if company.Name != "Acme Corp" || len(company.Aliases) != 1 {
		t.Errorf("unexpected company: %+v", company)
	}

	if _, err := repo.GetCompany(ctx, 99); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("want storage.ErrNotFound for dangling reference, got %v", err)
	}
}
