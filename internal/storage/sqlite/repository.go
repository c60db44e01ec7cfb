package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/secalert-agent/internal/models"
	"github.com/secalert-agent/internal/storage"
)

// Repository implements storage.Repository using SQLite
type Repository struct {
	db *gorm.DB
}

// New creates a new SQLite repository
func New(dsn string) (*Repository, error) {
	// Ensure directory exists
	if dsn != ":memory:" {
		dir := filepath.Dir(dsn)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.Feed{},
		&models.Article{},
		&models.Subscription{},
		&models.DispatchRecord{},
		&models.Agency{},
		&models.Company{},
		&models.Location{},
		&models.Regulation{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

// Article operations

func (r *Repository) CreateArticle(ctx context.Context, article *models.Article) error {
	return r.db.WithContext(ctx).Create(article).Error
}

func (r *Repository) GetArticleByID(ctx context.Context, id uint) (*models.Article, error) {
	var article models.Article
	if err := r.db.WithContext(ctx).First(&article, id).Error; err != nil {
		return nil, translate(err)
	}
	return &article, nil
}

func (r *Repository) GetArticleByExternalID(ctx context.Context, externalID string) (*models.Article, error) {
	var article models.Article
	if err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&article).Error; err != nil {
		return nil, translate(err)
	}
	return &article, nil
}

func (r *Repository) ListArticles(ctx context.Context, filter storage.ArticleFilter) ([]*models.Article, error) {
	var articles []*models.Article
	query := r.db.WithContext(ctx).Model(&models.Article{})

	if filter.AlertType != nil {
		query = query.Where("alert_type = ?", *filter.AlertType)
	}
	if filter.FeedID != nil {
		query = query.Where("feed_id = ?", *filter.FeedID)
	}
	if filter.Unclassified {
		query = query.Where("alert_type = ''")
	}
	if filter.FallbackOnly {
		query = query.Where("fallback = ?", true)
	}

	// Ordering
	orderCol := "created_at"
	if filter.OrderBy != "" {
		orderCol = filter.OrderBy
	}
	if filter.OrderDesc {
		query = query.Order(orderCol + " DESC")
	} else {
		query = query.Order(orderCol + " ASC")
	}

	// Pagination
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&articles).Error; err != nil {
		return nil, err
	}
	return articles, nil
}

func (r *Repository) ListUnclassified(ctx context.Context, limit int) ([]*models.Article, error) {
	var articles []*models.Article
	query := r.db.WithContext(ctx).
		Where("alert_type = ''").
		Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&articles).Error; err != nil {
		return nil, err
	}
	return articles, nil
}

func (r *Repository) UpdateArticle(ctx context.Context, article *models.Article) error {
	return r.db.WithContext(ctx).Save(article).Error
}

// Feed operations

func (r *Repository) CreateFeed(ctx context.Context, feed *models.Feed) error {
	return r.db.WithContext(ctx).Create(feed).Error
}

func (r *Repository) GetFeedByID(ctx context.Context, id uint) (*models.Feed, error) {
	var feed models.Feed
	if err := r.db.WithContext(ctx).First(&feed, id).Error; err != nil {
		return nil, translate(err)
	}
	return &feed, nil
}

func (r *Repository) ListFeeds(ctx context.Context, activeOnly bool) ([]*models.Feed, error) {
	var feeds []*models.Feed
	query := r.db.WithContext(ctx).Order("id ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&feeds).Error; err != nil {
		return nil, err
	}
	return feeds, nil
}

// ListDueFeeds returns active feeds whose interval has elapsed since the
// last successful fetch. Never-fetched feeds are always due.
func (r *Repository) ListDueFeeds(ctx context.Context, now time.Time) ([]*models.Feed, error) {
	feeds, err := r.ListFeeds(ctx, true)
	if err != nil {
		return nil, err
	}
	due := make([]*models.Feed, 0, len(feeds))
	for _, f := range feeds {
		if f.Due(now) {
			due = append(due, f)
		}
	}
	return due, nil
}

func (r *Repository) UpdateFeed(ctx context.Context, feed *models.Feed) error {
	return r.db.WithContext(ctx).Save(feed).Error
}

// Subscription operations

func (r *Repository) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *Repository) GetSubscriptionByID(ctx context.Context, id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).First(&sub, id).Error; err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (r *Repository) ListActiveSubscriptions(ctx context.Context) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	if err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *Repository) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

// RecordDispatch marks a (subscription, article) pair as dispatched.
// Returns false when the pair was already recorded.
func (r *Repository) RecordDispatch(ctx context.Context, subscriptionID, articleID uint) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.DispatchRecord{}).
		Where("subscription_id = ? AND article_id = ?", subscriptionID, articleID).
		Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	rec := &models.DispatchRecord{SubscriptionID: subscriptionID, ArticleID: articleID}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return false, err
	}
	return true, nil
}

// Reference lookups. The entities are managed by external CRUD; the
// create methods below exist for seeding and live only on the concrete
// type, not on storage.Repository.

func (r *Repository) CreateAgency(ctx context.Context, agency *models.Agency) error {
	return r.db.WithContext(ctx).Create(agency).Error
}

func (r *Repository) CreateCompany(ctx context.Context, company *models.Company) error {
	return r.db.WithContext(ctx).Create(company).Error
}

func (r *Repository) CreateLocation(ctx context.Context, location *models.Location) error {
	return r.db.WithContext(ctx).Create(location).Error
}

func (r *Repository) CreateRegulation(ctx context.Context, regulation *models.Regulation) error {
	return r.db.WithContext(ctx).Create(regulation).Error
}

func (r *Repository) GetAgency(ctx context.Context, id uint) (*models.Agency, error) {
	var agency models.Agency
	if err := r.db.WithContext(ctx).First(&agency, id).Error; err != nil {
		return nil, translate(err)
	}
	return &agency, nil
}

func (r *Repository) GetCompany(ctx context.Context, id uint) (*models.Company, error) {
	var company models.Company
	if err := r.db.WithContext(ctx).First(&company, id).Error; err != nil {
		return nil, translate(err)
	}
	return &company, nil
}

func (r *Repository) GetLocation(ctx context.Context, id uint) (*models.Location, error) {
	var location models.Location
	if err := r.db.WithContext(ctx).First(&location, id).Error; err != nil {
		return nil, translate(err)
	}
	return &location, nil
}

func (r *Repository) ListAgencies(ctx context.Context) ([]*models.Agency, error) {
	var agencies []*models.Agency
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&agencies).Error; err != nil {
		return nil, err
	}
	return agencies, nil
}

func (r *Repository) ListCompanies(ctx context.Context) ([]*models.Company, error) {
	var companies []*models.Company
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&companies).Error; err != nil {
		return nil, err
	}
	return companies, nil
}

func (r *Repository) ListLocations(ctx context.Context) ([]*models.Location, error) {
	var locations []*models.Location
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&locations).Error; err != nil {
		return nil, err
	}
	return locations, nil
}

func (r *Repository) ListRegulations(ctx context.Context) ([]*models.Regulation, error) {
	var regulations []*models.Regulation
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&regulations).Error; err != nil {
		return nil, err
	}
	return regulations, nil
}
