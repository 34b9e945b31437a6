// services/strategy.go
package services

import (
	"encoding/json"
	"fmt"

	"contest-lifecycle-system/models"

	"gorm.io/gorm"
)

// payoutShare is one tier of a contest's payout structure JSON,
// e.g. [{"rank":1,"share":0.5},{"rank":2,"share":0.3},{"rank":3,"share":0.2}].
type payoutShare struct {
	Rank  int     `json:"rank"`
	Share float64 `json:"share"`
}

// RankShareStrategy is the default payout strategy: the prize pool is the
// entry fee times the number of ranked participants, split across ranks
// according to the contest's payout structure. Scoring itself happened
// upstream — the standings rows are taken as given.
func RankShareStrategy(db *gorm.DB) PayoutStrategy {
	return func(contest *models.ContestInstance, snapshotID string) ([]models.PayoutLine, error) {
		var shares []payoutShare
		if contest.PayoutStructure == "" {
			return nil, fmt.Errorf("contest %s has no payout structure", contest.ID)
		}
		if err := json.Unmarshal([]byte(contest.PayoutStructure), &shares); err != nil {
			return nil, fmt.Errorf("malformed payout structure for contest %s: %w", contest.ID, err)
		}

		var standings []models.ContestStanding
		if err := db.Where("contest_id = ?", contest.ID).
			Order("rank ASC").
			Find(&standings).Error; err != nil {
			return nil, fmt.Errorf("failed to load standings for contest %s: %w", contest.ID, err)
		}
		if len(standings) == 0 {
			return nil, fmt.Errorf("contest %s has no standings to settle", contest.ID)
		}

		pool := contest.EntryFee * float64(len(standings))

		shareByRank := make(map[int]float64, len(shares))
		for _, share := range shares {
			shareByRank[share.Rank] = share.Share
		}

		var lines []models.PayoutLine
		for _, standing := range standings {
			share, ok := shareByRank[standing.Rank]
			if !ok {
				continue // rank out of the money
			}
			lines = append(lines, models.PayoutLine{
				ContestID:      contest.ID,
				ExternalUserID: standing.ExternalUserID,
				Rank:           standing.Rank,
				Points:         standing.Points,
				Amount:         pool * share,
			})
		}
		return lines, nil
	}
}
