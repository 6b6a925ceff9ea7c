// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"

	"github.com/mijikai/mijikai/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

// LinkRepository defines operations for shortened links.
// ByUID/ByTarget pre-checks are advisory; the unique constraint on uid is
// the authoritative collision signal and surfaces as ErrDuplicateKey from
// Insert.
type LinkRepository interface {
	ByUID(ctx context.Context, uid string) (*models.Link, error)
	ByTarget(ctx context.Context, target string) (*models.Link, error)
	ByFilter(ctx context.Context, filter models.LinkFilter, orderBy string, limit, offset int) ([]*models.Link, error)
	Count(ctx context.Context, filter models.LinkFilter) (int64, error)
	Exists(ctx context.Context, filter models.LinkFilter) (bool, error)
	Insert(ctx context.Context, link *models.Link) error
}

// ReputationRepository defines operations for the per-identity attempt ledger
type ReputationRepository interface {
	ByIdentity(ctx context.Context, identity string) (*models.Reputation, error)
	// RecordAttempt upserts atomically: insert {score: delta, count: 1} or
	// score += delta, count += 1. Safe under concurrent attempts for the
	// same identity.
	RecordAttempt(ctx context.Context, identity string, scoreDelta int) error
	// IsBanned reports whether the identity is banned at the given
	// threshold. Unknown identities are banned by default.
	IsBanned(ctx context.Context, identity string, threshold int) (bool, error)
}
