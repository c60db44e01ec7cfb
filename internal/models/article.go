package models

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// AlertType is the classification category assigned to an article,
// ordered by severity (breach > incident > mention).
type AlertType string

const (
	AlertTypeBreach   AlertType = "breach"
	AlertTypeIncident AlertType = "incident"
	AlertTypeMention  AlertType = "mention"
)

// AlertTypes lists all categories from highest to lowest severity.
var AlertTypes = []AlertType{AlertTypeBreach, AlertTypeIncident, AlertTypeMention}

// Rank returns the severity rank of the alert type, higher is more severe.
func (t AlertType) Rank() int {
	switch t {
	case AlertTypeBreach:
		return 3
	case AlertTypeIncident:
		return 2
	case AlertTypeMention:
		return 1
	}
	return 0
}

// Valid reports whether the alert type is one of the known categories.
func (t AlertType) Valid() bool {
	return t.Rank() > 0
}

// Severity expresses how serious a classified article is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Upgrade returns the next-higher severity, capped at critical.
func (s Severity) Upgrade() Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	case SeverityHigh:
		return SeverityCritical
	}
	return s
}

// Article represents a piece of ingested security content
type Article struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	ExternalID string `gorm:"uniqueIndex;not null" json:"external_id"` // Feed GUID or hash of title+link
	FeedID     uint   `gorm:"index" json:"feed_id"`
	Title      string `gorm:"not null" json:"title"`
	URL        string `json:"url"`
	Slug       string `json:"slug"`
	Summary    string `json:"summary"`

	FullContent    string `json:"full_content"`
	HasFullContent bool   `json:"has_full_content"`

	AlertType    AlertType  `gorm:"index" json:"alert_type"` // empty until classified
	Severity     Severity   `json:"severity"`
	Confidence   *float64   `json:"confidence"`
	Fallback     bool       `json:"fallback"` // set when no detector cleared threshold
	ClassifiedAt *time.Time `json:"classified_at"`

	Tags StringSlice `gorm:"type:json" json:"tags"` // entity associations as "type:id"

	PublishedAt time.Time `json:"published_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Classified reports whether the article has a terminal classification.
func (a *Article) Classified() bool {
	return a.AlertType != ""
}

// Text returns the best available text for classification and matching:
// full content when present, the feed summary otherwise.
func (a *Article) Text() string {
	if a.HasFullContent {
		return a.FullContent
	}
	return a.Summary
}

// SetContent stores extracted full content, keeping HasFullContent consistent.
func (a *Article) SetContent(content string) {
	content = strings.TrimSpace(content)
	a.FullContent = content
	a.HasFullContent = content != ""
}

// ExternalID derives the unique identifier for a feed item.
// The feed-provided GUID wins; items without one hash title and link.
func ExternalID(guid, title, link string) string {
	if guid != "" {
		return guid
	}
	h := sha256.Sum256([]byte(title + "|" + link))
	return fmt.Sprintf("sha256:%x", h[:16])
}
