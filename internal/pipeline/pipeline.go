// Package pipeline wires the per-article stages together: content
// enrichment, entity tagging, classification, subscription matching and
// dispatch. Each article moves through independently; a failure holds
// that article for a later pass and never unwinds its siblings.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/secalert-agent/internal/classify"
	"github.com/secalert-agent/internal/content"
	"github.com/secalert-agent/internal/dispatch"
	"github.com/secalert-agent/internal/match"
	"github.com/secalert-agent/internal/models"
	"github.com/secalert-agent/internal/reference"
	"github.com/secalert-agent/internal/storage"
	"github.com/secalert-agent/pkg/logger"
)

// Pipeline processes articles from ingestion through dispatch.
type Pipeline struct {
	repo       storage.Repository
	fetcher    *content.Fetcher
	tagger     *reference.Tagger
	classifier *classify.Classifier
	matcher    *match.Matcher
	dispatcher dispatch.Dispatcher
	log        *logger.Logger
}

// New creates a pipeline.
func New(
	repo storage.Repository,
	fetcher *content.Fetcher,
	tagger *reference.Tagger,
	classifier *classify.Classifier,
	matcher *match.Matcher,
	dispatcher dispatch.Dispatcher,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		repo:       repo,
		fetcher:    fetcher,
		tagger:     tagger,
		classifier: classifier,
		matcher:    matcher,
		dispatcher: dispatcher,
		log:        log.WithComponent("pipeline"),
	}
}

// Process runs one article through the remaining stages. A returned error
// means the article is held unclassified; the sweep retries it later.
func (p *Pipeline) Process(ctx context.Context, article *models.Article) error {
	log := p.log.WithArticle(article.ID)

	// Content enrichment is best effort; classification runs on the
	// summary when it yields nothing.
	if p.fetcher != nil && p.fetcher.Enrich(ctx, article) {
		if err := p.repo.UpdateArticle(ctx, article); err != nil {
			log.Warn().Err(err).Msg("Failed to persist full content")
		}
	}

	if !article.Classified() {
		if err := p.classifyArticle(ctx, article); err != nil {
			log.Warn().Err(err).Msg("Classification unavailable, holding article")
			return err
		}
	}

	return p.matchAndDispatch(ctx, article)
}

// classifyArticle tags and classifies in one step, persisting the result.
// Alert type, severity and confidence are applied together.
func (p *Pipeline) classifyArticle(ctx context.Context, article *models.Article) error {
	tags, err := p.tagger.Tag(ctx, article)
	if err != nil {
		return fmt.Errorf("tag article: %w", err)
	}
	article.Tags = tags

	result, err := p.classifier.Classify(ctx, article)
	if err != nil {
		return fmt.Errorf("classify article: %w", err)
	}
	result.Apply(article, time.Now().UTC())

	if err := p.repo.UpdateArticle(ctx, article); err != nil {
		return fmt.Errorf("persist classification: %w", err)
	}

	p.log.Info().
		Uint("article_id", article.ID).
		Str("alert_type", string(article.AlertType)).
		Str("severity", string(article.Severity)).
		Float64("confidence", *article.Confidence).
		Bool("fallback", article.Fallback).
		Msg("Article classified")
	return nil
}

// matchAndDispatch snapshots the active subscriptions, matches, drops
// pairs that were already dispatched, and hands the rest off.
func (p *Pipeline) matchAndDispatch(ctx context.Context, article *models.Article) error {
	subs, err := p.repo.ListActiveSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("snapshot subscriptions: %w", err)
	}

	deliveries := p.matcher.Match(ctx, article, subs)
	if len(deliveries) == 0 {
		return nil
	}

	fresh := make([]match.Delivery, 0, len(deliveries))
	for _, d := range deliveries {
		created, err := p.repo.RecordDispatch(ctx, d.Subscription.ID, d.Article.ID)
		if err != nil {
			p.log.Warn().
				Err(err).
				Uint("subscription_id", d.Subscription.ID).
				Uint("article_id", d.Article.ID).
				Msg("Dispatch bookkeeping failed, skipping pair")
			continue
		}
		if created {
			fresh = append(fresh, d)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	if err := p.dispatcher.Dispatch(ctx, fresh); err != nil {
		// Fire and forget: delivery outcomes are the dispatcher's problem.
		p.log.Warn().Err(err).Uint("article_id", article.ID).Msg("Dispatcher reported an error")
	}

	p.log.Info().
		Uint("article_id", article.ID).
		Int("deliveries", len(fresh)).
		Msg("Deliveries dispatched")
	return nil
}

// SweepResult contains the counters of one retry sweep.
type SweepResult struct {
	Seen       int
	Classified int
	Fallbacks  int
	Held       int
	Errors     []error
	Duration   time.Duration
}

// SweepUnclassified retries articles that were held in the unclassified
// state (e.g. after a reference-data outage). Failures stay isolated per
// article.
func (p *Pipeline) SweepUnclassified(ctx context.Context, limit int) (*SweepResult, error) {
	start := time.Now()
	result := &SweepResult{}

	articles, err := p.repo.ListUnclassified(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list unclassified: %w", err)
	}
	result.Seen = len(articles)

	for _, article := range articles {
		if ctx.Err() != nil {
			break
		}
		if err := p.Process(ctx, article); err != nil {
			result.Held++
			result.Errors = append(result.Errors, fmt.Errorf("article %d: %w", article.ID, err))
			continue
		}
		result.Classified++
		if article.Fallback {
			result.Fallbacks++
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// Reclassify re-runs tagging and classification for an article even if it
// already carries a terminal classification. Only this explicit path may
// overwrite one.
func (p *Pipeline) Reclassify(ctx context.Context, article *models.Article) error {
	if err := p.classifyArticle(ctx, article); err != nil {
		return err
	}
	return p.matchAndDispatch(ctx, article)
}
