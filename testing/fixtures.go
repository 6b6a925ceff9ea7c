package testing

import (
	"fmt"

	"github.com/mijikai/mijikai/models"
	"github.com/mijikai/mijikai/utils"
)

// InsertTestLink inserts a link row and returns it
func (tdb *TestDB) InsertTestLink(uid, target string) (*models.Link, error) {
	link := &models.Link{
		UID:       uid,
		TargetURL: target,
		CreatedAt: utils.UTCNow(),
	}
	if err := tdb.DB.Create(link).Error; err != nil {
		return nil, fmt.Errorf("failed to insert test link %s: %w", uid, err)
	}
	return link, nil
}

// InsertTestReputation seeds a reputation row for an identity
func (tdb *TestDB) InsertTestReputation(identity string, score, attempts int) (*models.Reputation, error) {
	row := &models.Reputation{
		Identity:     identity,
		Score:        score,
		AttemptCount: attempts,
		UpdatedAt:    utils.UTCNow(),
	}
	if err := tdb.DB.Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to insert test reputation %s: %w", identity, err)
	}
	return row, nil
}
