package models

import "time"

// Link represents a shortened link record
// UID is the short identifier that maps to the target URL: either a
// caller-chosen alias or a generated 7-character id
// TargetURL is stored in normalized form (punycode host, no trailing slash)
// Rows are immutable once written
type Link struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	UID       string `gorm:"size:64;not null;uniqueIndex:uk_links_uid" json:"uid"`
	TargetURL string `gorm:"type:text;not null;index:idx_links_target_url" json:"target_url"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_links_created_at" json:"created_at"`
}

// TableName returns the table name for Link
func (Link) TableName() string { return "links" }

// LinkFilter provides filter fields for repository queries
type LinkFilter struct {
	ID            *uint
	UID           *string
	TargetURL     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
