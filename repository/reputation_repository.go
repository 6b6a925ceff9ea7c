package repository

import (
	"context"
	"errors"

	"github.com/mijikai/mijikai/models"
	"github.com/mijikai/mijikai/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ReputationRepositoryImpl implements ReputationRepository
type ReputationRepositoryImpl struct {
	*BaseRepository[models.Reputation, models.ReputationFilter]
}

func NewReputationRepository(db *gorm.DB) ReputationRepository {
	return &ReputationRepositoryImpl{BaseRepository: NewBaseRepository[models.Reputation, models.ReputationFilter](db)}
}

func (r *ReputationRepositoryImpl) ByIdentity(ctx context.Context, identity string) (*models.Reputation, error) {
	db := r.getDB(ctx)
	var row models.Reputation
	if err := db.Where("identity = ?", identity).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// RecordAttempt is a single atomic upsert: no read-modify-write gap even
// under concurrent attempts for the same identity.
func (r *ReputationRepositoryImpl) RecordAttempt(ctx context.Context, identity string, scoreDelta int) error {
	db := r.getDB(ctx)
	row := models.Reputation{
		Identity:     identity,
		Score:        scoreDelta,
		AttemptCount: 1,
		UpdatedAt:    utils.UTCNow(),
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "identity"}},
		DoUpdates: clause.Assignments(map[string]any{
			"score":         gorm.Expr("reputation.score + excluded.score"),
			"attempt_count": gorm.Expr("reputation.attempt_count + 1"),
			"updated_at":    utils.UTCNow(),
		}),
	}).Create(&row).Error
}

// IsBanned derives the ban from the ledger. An unknown identity is banned:
// callers that never passed verification get no trust by default.
func (r *ReputationRepositoryImpl) IsBanned(ctx context.Context, identity string, threshold int) (bool, error) {
	row, err := r.ByIdentity(ctx, identity)
	if err != nil {
		return false, err
	}
	if row == nil {
		return true, nil
	}
	return row.AttemptCount-row.Score >= threshold, nil
}
