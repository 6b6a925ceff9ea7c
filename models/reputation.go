package models

import "time"

// Reputation holds the per-identity attempt ledger used to derive bans.
// Identity is a hashed caller id, never a raw address. Score accrues 1 per
// fully successful verification; AttemptCount increments on every attempt.
// A ban is derived, not stored: AttemptCount - Score >= the configured
// threshold. Rows are upserted, never deleted.
type Reputation struct {
	Identity     string `gorm:"size:128;primaryKey" json:"identity"`
	Score        int    `gorm:"not null;default:0" json:"score"`
	AttemptCount int    `gorm:"not null;default:0" json:"attempt_count"`

	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for Reputation
func (Reputation) TableName() string { return "reputation" }

// ReputationFilter provides filter fields for repository queries
type ReputationFilter struct {
	Identity      *string
	UpdatedAfter  *time.Time
	UpdatedBefore *time.Time
}
