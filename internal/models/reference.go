package models

import "time"

// Reference entities are static lookup data managed externally.
// This pipeline only reads them: the tagger scans article text for their
// names, and the matcher resolves subscription targets against them.

// Agency is a government or regulatory body articles can be linked to.
// Regulators are stored here as well; they resolve as agencies.
type Agency struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	Name      string      `gorm:"uniqueIndex;not null" json:"name"`
	Aliases   StringSlice `gorm:"type:json" json:"aliases"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

// Company is a commercial entity articles can be linked to
type Company struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	Name      string      `gorm:"uniqueIndex;not null" json:"name"`
	Aliases   StringSlice `gorm:"type:json" json:"aliases"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

// Location is a geographic entity articles can be linked to
type Location struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	Name      string      `gorm:"uniqueIndex;not null" json:"name"`
	Aliases   StringSlice `gorm:"type:json" json:"aliases"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

// Regulation supplies keyword signals to the classifier (e.g. "GDPR")
type Regulation struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	Name      string      `gorm:"uniqueIndex;not null" json:"name"`
	Keywords  StringSlice `gorm:"type:json" json:"keywords"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

// Names returns the agency's name plus aliases.
func (a *Agency) Names() []string { return append([]string{a.Name}, a.Aliases...) }

// Names returns the company's name plus aliases.
func (c *Company) Names() []string { return append([]string{c.Name}, c.Aliases...) }

// Names returns the location's name plus aliases.
func (l *Location) Names() []string { return append([]string{l.Name}, l.Aliases...) }
