package models

import "time"

// Feed represents an ingestion source
type Feed struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Name            string     `gorm:"not null" json:"name"`
	URL             string     `gorm:"uniqueIndex;not null" json:"url"`
	IntervalMinutes int        `gorm:"default:30" json:"interval_minutes"`
	IsActive        bool       `gorm:"default:true;index" json:"is_active"`
	LastFetchedAt   *time.Time `json:"last_fetched_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Interval returns the polling interval as a duration.
func (f *Feed) Interval() time.Duration {
	if f.IntervalMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(f.IntervalMinutes) * time.Minute
}

// Due reports whether the feed should be polled at the given time.
// Feeds never fetched successfully are always due.
func (f *Feed) Due(now time.Time) bool {
	if !f.IsActive {
		return false
	}
	if f.LastFetchedAt == nil {
		return true
	}
	return now.Sub(*f.LastFetchedAt) >= f.Interval()
}

// MarkFetched advances the last-fetch timestamp, never backwards.
func (f *Feed) MarkFetched(at time.Time) {
	if f.LastFetchedAt != nil && at.Before(*f.LastFetchedAt) {
		return
	}
	f.LastFetchedAt = &at
}
