package reference

import (
	"context"
	"fmt"
	"strings"

	"github.com/secalert-agent/internal/models"
	"github.com/secalert-agent/pkg/logger"
)

// Tagger scans article text for known entity names and produces the
// "type:id" association tags the matcher resolves against.
type Tagger struct {
	dir Directory
	log *logger.Logger
}

// NewTagger creates a tagger over the given directory.
func NewTagger(dir Directory, log *logger.Logger) *Tagger {
	return &Tagger{
		dir: dir,
		log: log.WithComponent("tagger"),
	}
}

// Tag returns the association tags for an article, scanning title, summary
// and full content for entity names and aliases. Matching is case-insensitive
// whole-substring containment, the same rule keyword subscriptions use.
func (t *Tagger) Tag(ctx context.Context, article *models.Article) (models.StringSlice, error) {
	text := strings.ToLower(article.Title + " " + article.Summary + " " + article.FullContent)

	var tags models.StringSlice

	agencies, err := t.dir.Agencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agencies: %w", err)
	}
	for _, a := range agencies {
		if containsAny(text, a.Names()) {
			tags = append(tags, fmt.Sprintf("%s:%d", models.TargetAgency, a.ID))
		}
	}

	companies, err := t.dir.Companies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	for _, c := range companies {
		if containsAny(text, c.Names()) {
			tags = append(tags, fmt.Sprintf("%s:%d", models.TargetCompany, c.ID))
		}
	}

	locations, err := t.dir.Locations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	for _, l := range locations {
		if containsAny(text, l.Names()) {
			tags = append(tags, fmt.Sprintf("%s:%d", models.TargetLocation, l.ID))
		}
	}

	t.log.Debug().
		Uint("article_id", article.ID).
		Int("tags", len(tags)).
		Msg("Tagged article")

	return tags, nil
}

// RegulationKeywords returns the flattened keyword list of every known
// regulation, used as a classifier signal source.
func (t *Tagger) RegulationKeywords(ctx context.Context) ([]string, error) {
	regulations, err := t.dir.Regulations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list regulations: %w", err)
	}
	var keywords []string
	for _, r := range regulations {
		keywords = append(keywords, r.Name)
		keywords = append(keywords, r.Keywords...)
	}
	return keywords, nil
}

func containsAny(text string, names []string) bool {
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" && strings.Contains(text, name) {
			return true
		}
	}
	return false
}
