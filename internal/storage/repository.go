package storage

import (
	"context"
	"errors"
	"time"

	"github.com/secalert-agent/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository defines the interface for data persistence
type Repository interface {
	// Article operations
	CreateArticle(ctx context.Context, article *models.Article) error
	GetArticleByID(ctx context.Context, id uint) (*models.Article, error)
	GetArticleByExternalID(ctx context.Context, externalID string) (*models.Article, error)
	ListArticles(ctx context.Context, filter ArticleFilter) ([]*models.Article, error)
	ListUnclassified(ctx context.Context, limit int) ([]*models.Article, error)
	UpdateArticle(ctx context.Context, article *models.Article) error

	// Feed operations
	CreateFeed(ctx context.Context, feed *models.Feed) error
	GetFeedByID(ctx context.Context, id uint) (*models.Feed, error)
	ListFeeds(ctx context.Context, activeOnly bool) ([]*models.Feed, error)
	ListDueFeeds(ctx context.Context, now time.Time) ([]*models.Feed, error)
	UpdateFeed(ctx context.Context, feed *models.Feed) error

	// Subscription operations
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscriptionByID(ctx context.Context, id uint) (*models.Subscription, error)
	ListActiveSubscriptions(ctx context.Context) ([]*models.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error

	// Dispatch bookkeeping
	RecordDispatch(ctx context.Context, subscriptionID, articleID uint) (bool, error)

	// Reference lookups (read-only here, managed externally)
	GetAgency(ctx context.Context, id uint) (*models.Agency, error)
	GetCompany(ctx context.Context, id uint) (*models.Company, error)
	GetLocation(ctx context.Context, id uint) (*models.Location, error)
	ListAgencies(ctx context.Context) ([]*models.Agency, error)
	ListCompanies(ctx context.Context) ([]*models.Company, error)
	ListLocations(ctx context.Context) ([]*models.Location, error)
	ListRegulations(ctx context.Context) ([]*models.Regulation, error)

	// Maintenance
	Close() error
	Migrate() error
}

// ArticleFilter defines filtering options for articles
type ArticleFilter struct {
	AlertType    *models.AlertType
	FeedID       *uint
	Unclassified bool
	FallbackOnly bool
	Limit        int
	Offset       int
	OrderBy      string // "created_at", "published_at", "confidence"
	OrderDesc    bool
}

// DefaultArticleFilter returns a filter with sensible defaults
func DefaultArticleFilter() ArticleFilter {
	return ArticleFilter{
		Limit:     50,
		OrderBy:   "created_at",
		OrderDesc: true,
	}
}
