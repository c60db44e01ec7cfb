// Package classify assigns an alert type, severity and confidence score to
// ingested articles from weighted phrase detectors.
package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/secalert-agent/internal/models"
	"github.com/secalert-agent/pkg/logger"
)

// FallbackConfidence is reported when no detector clears the threshold.
// It is a fixed constant so audit trails can rely on it, and the Fallback
// flag keeps it distinguishable from a genuine 0.5-confidence result.
const FallbackConfidence = 0.5

// SignalSource supplies secondary keyword signals from reference data.
// A lookup failure here means the classifier could not run at all; the
// article is held unclassified for a later pass rather than defaulted.
type SignalSource interface {
	RegulationKeywords(ctx context.Context) ([]string, error)
}

// Result is the outcome of a classification run.
type Result struct {
	AlertType  models.AlertType
	Severity   models.Severity
	Confidence float64
	Fallback   bool
	Signals    []string // matched phrases, for the audit trail
	Scores     map[models.AlertType]float64
}

// Apply writes the result onto the article. Alert type, severity and
// confidence are always set together.
func (r Result) Apply(article *models.Article, now time.Time) {
	conf := r.Confidence
	article.AlertType = r.AlertType
	article.Severity = r.Severity
	article.Confidence = &conf
	article.Fallback = r.Fallback
	article.ClassifiedAt = &now
}

// Classifier scores article text against the category detectors.
type Classifier struct {
	minScore float64
	signals  SignalSource
	log      *logger.Logger
}

// New creates a classifier. signals may be nil when no reference data
// is available (e.g. in isolation tests).
func New(minScore float64, signals SignalSource, log *logger.Logger) *Classifier {
	if minScore <= 0 {
		minScore = 1.0
	}
	return &Classifier{
		minScore: minScore,
		signals:  signals,
		log:      log.WithComponent("classifier"),
	}
}

// Classify scores the article's available text (full content if present,
// else summary) and returns the winning category with a margin-based
// confidence. An error means the run could not complete and the article
// must stay unclassified.
func (c *Classifier) Classify(ctx context.Context, article *models.Article) (Result, error) {
	text := strings.ToLower(article.Text())

	scores := map[models.AlertType]float64{
		models.AlertTypeBreach:   0,
		models.AlertTypeIncident: 0,
		models.AlertTypeMention:  0,
	}
	var matched []string

	score := func(t models.AlertType, sigs []signal) {
		for _, s := range sigs {
			if strings.Contains(text, s.Phrase) {
				scores[t] += s.Weight
				matched = append(matched, fmt.Sprintf("%s:%s", t, s.Phrase))
			}
		}
	}
	score(models.AlertTypeBreach, breachSignals)
	score(models.AlertTypeIncident, incidentSignals)
	score(models.AlertTypeMention, mentionSignals)

	// Regulation names and keywords count as generic security mentions.
	if c.signals != nil {
		keywords, err := c.signals.RegulationKeywords(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("regulation signals unavailable: %w", err)
		}
		for _, kw := range keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(text, kw) {
				scores[models.AlertTypeMention] += regulationWeight
				matched = append(matched, fmt.Sprintf("%s:%s", models.AlertTypeMention, kw))
			}
		}
	}

	winner, top, runnerUp := pickWinner(scores)

	if top < c.minScore {
		// Nothing fired above threshold: this is the documented fallback,
		// not a positive classification.
		c.log.Debug().Str("title", article.Title).Msg("No detector above threshold, using fallback")
		return Result{
			AlertType:  models.AlertTypeMention,
			Severity:   models.SeverityLow,
			Confidence: FallbackConfidence,
			Fallback:   true,
			Scores:     scores,
		}, nil
	}

	confidence := (top - runnerUp) / top
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	severity := c.severityFor(winner, text, article.Tags)

	c.log.Debug().
		Str("alert_type", string(winner)).
		Str("severity", string(severity)).
		Float64("confidence", confidence).
		Strs("signals", matched).
		Msg("Classified article")

	return Result{
		AlertType:  winner,
		Severity:   severity,
		Confidence: confidence,
		Signals:    matched,
		Scores:     scores,
	}, nil
}

// pickWinner returns the highest-scoring category and the runner-up score.
// Categories are visited lowest severity first and only a strictly greater
// score displaces the current winner, so an exact tie resolves to the more
// conservative category (and the zero margin reports low confidence).
func pickWinner(scores map[models.AlertType]float64) (models.AlertType, float64, float64) {
	winner := models.AlertTypeMention
	top := scores[models.AlertTypeMention]
	for _, t := range []models.AlertType{models.AlertTypeIncident, models.AlertTypeBreach} {
		if scores[t] > top {
			winner = t
			top = scores[t]
		}
	}
	runnerUp := 0.0
	for t, s := range scores {
		if t != winner && s > runnerUp {
			runnerUp = s
		}
	}
	return winner, top, runnerUp
}

// severityFor derives severity from the winning category plus secondary
// signals: scale indicators in the text and named-entity associations.
func (c *Classifier) severityFor(t models.AlertType, text string, tags models.StringSlice) models.Severity {
	var base models.Severity
	switch t {
	case models.AlertTypeBreach:
		base = models.SeverityHigh
	case models.AlertTypeIncident:
		base = models.SeverityMedium
	default:
		base = models.SeverityLow
	}

	for _, s := range scaleSignals {
		if strings.Contains(text, s) {
			return base.Upgrade()
		}
	}
	if len(tags) > 0 {
		return base.Upgrade()
	}
	return base
}
