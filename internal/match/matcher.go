// Package match resolves which subscriptions a classified article is
// delivered to. Matching is a pure function of the article and the
// subscription snapshot it is given; dispatch bookkeeping lives elsewhere.
package match

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/secalert-agent/internal/models"
	"github.com/secalert-agent/internal/reference"
	"github.com/secalert-agent/pkg/logger"
)

// Delivery is one (subscription, article) pair handed to the dispatcher.
type Delivery struct {
	Subscription *models.Subscription
	Article      *models.Article
}

// Matcher evaluates subscriptions against classified articles.
type Matcher struct {
	dir reference.Directory
	log *logger.Logger
}

// New creates a matcher over the given reference directory.
func New(dir reference.Directory, log *logger.Logger) *Matcher {
	return &Matcher{
		dir: dir,
		log: log.WithComponent("matcher"),
	}
}

// resolverFunc decides whether a subscription's target matches an article.
// One entry per target type keeps the polymorphic reference column closed
// over a fixed, extensible set of target kinds.
type resolverFunc func(ctx context.Context, m *Matcher, article *models.Article, sub *models.Subscription) (bool, error)

var resolvers = map[models.TargetType]resolverFunc{
	models.TargetKeyword:  resolveKeyword,
	models.TargetAgency:   resolveEntity,
	models.TargetCompany:  resolveEntity,
	models.TargetLocation: resolveEntity,
}

// Match returns the deliveries for a classified article against the given
// active-subscription snapshot, ordered by subscription ID with no
// duplicates. A subscription that fails to resolve (dangling reference,
// unknown target type) is logged and skipped; it never affects siblings.
func (m *Matcher) Match(ctx context.Context, article *models.Article, subs []*models.Subscription) []Delivery {
	if !article.Classified() {
		return nil
	}

	var deliveries []Delivery
	seen := make(map[uint]bool)

	for _, sub := range subs {
		if !sub.IsActive || seen[sub.ID] {
			continue
		}
		if !sub.WantsAlertType(article.AlertType) {
			continue
		}

		resolve, ok := resolvers[sub.TargetType]
		if !ok {
			m.log.Warn().
				Uint("subscription_id", sub.ID).
				Str("target_type", string(sub.TargetType)).
				Msg("Unknown target type, skipping subscription")
			continue
		}

		matched, err := resolve(ctx, m, article, sub)
		if err != nil {
			m.log.Warn().
				Err(err).
				Uint("subscription_id", sub.ID).
				Str("target_type", string(sub.TargetType)).
				Str("target_ref", sub.TargetRef).
				Msg("Target resolution failed, skipping subscription")
			continue
		}
		if !matched {
			continue
		}

		seen[sub.ID] = true
		deliveries = append(deliveries, Delivery{Subscription: sub, Article: article})
	}

	sort.Slice(deliveries, func(i, j int) bool {
		return deliveries[i].Subscription.ID < deliveries[j].Subscription.ID
	})
	return deliveries
}

// resolveKeyword matches when the keyword appears anywhere in the
// article's title, summary or full content, case-insensitively.
func resolveKeyword(_ context.Context, _ *Matcher, article *models.Article, sub *models.Subscription) (bool, error) {
	keyword := strings.ToLower(strings.TrimSpace(sub.TargetRef))
	if keyword == "" {
		return false, nil
	}
	text := strings.ToLower(article.Title + " " + article.Summary + " " + article.FullContent)
	return strings.Contains(text, keyword), nil
}

// resolveEntity matches when the article carries the subscription's
// association tag, after verifying the referenced entity still exists.
func resolveEntity(ctx context.Context, m *Matcher, article *models.Article, sub *models.Subscription) (bool, error) {
	id, err := strconv.ParseUint(sub.TargetRef, 10, 32)
	if err != nil {
		return false, err
	}

	switch sub.TargetType {
	case models.TargetAgency:
		_, err = m.dir.Agency(ctx, uint(id))
	case models.TargetCompany:
		_, err = m.dir.Company(ctx, uint(id))
	case models.TargetLocation:
		_, err = m.dir.Location(ctx, uint(id))
	}
	if err != nil {
		return false, err
	}

	return article.Tags.Contains(sub.EntityTag()), nil
}
