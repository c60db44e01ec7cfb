package models

import "time"

// DispatchRecord marks a (subscription, article) pair as handed to the
// dispatcher. The matcher itself is pure; this is how the pipeline keeps
// re-runs from delivering the same pair twice.
type DispatchRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	SubscriptionID uint      `gorm:"uniqueIndex:idx_sub_article;not null" json:"subscription_id"`
	ArticleID      uint      `gorm:"uniqueIndex:idx_sub_article;not null" json:"article_id"`
	DispatchedAt   time.Time `gorm:"autoCreateTime" json:"dispatched_at"`
}
