package models

import (
	"fmt"
	"time"
)

// TargetType is the tag half of a subscription's polymorphic target:
// it decides which table the single TargetRef column resolves against.
type TargetType string

const (
	TargetAgency   TargetType = "agency"
	TargetCompany  TargetType = "company"
	TargetKeyword  TargetType = "keyword"
	TargetLocation TargetType = "location"
)

// Valid reports whether the target type is part of the closed set.
func (t TargetType) Valid() bool {
	switch t {
	case TargetAgency, TargetCompany, TargetKeyword, TargetLocation:
		return true
	}
	return false
}

// Subscription represents a subscriber's delivery rule
type Subscription struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	SubscriberID string     `gorm:"index;not null" json:"subscriber_id"`
	TargetType   TargetType `gorm:"not null" json:"target_type"`
	TargetRef    string     `gorm:"not null" json:"target_ref"` // meaning depends on TargetType

	// AlertTypes is the alert-type filter; empty means all types.
	AlertTypes StringSlice `gorm:"type:json" json:"alert_types"`

	IsActive  bool      `gorm:"default:true;index" json:"is_active"` // soft delete
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// WantsAlertType reports whether the subscription's filter admits the
// given alert type. An empty filter admits every type.
func (s *Subscription) WantsAlertType(t AlertType) bool {
	if len(s.AlertTypes) == 0 {
		return true
	}
	return s.AlertTypes.Contains(string(t))
}

// EntityTag returns the association tag a non-keyword subscription
// resolves to, e.g. "company:42".
func (s *Subscription) EntityTag() string {
	return fmt.Sprintf("%s:%s", s.TargetType, s.TargetRef)
}
