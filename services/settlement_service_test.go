package services

import (
	"testing"
	"time"

	"github.com/bidhub/auction-backend/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestPickWinningBidEmpty(t *testing.T) {
	assert.Nil(t, PickWinningBid(nil))
	assert.Nil(t, PickWinningBid([]models.Bid{}))
}

func TestPickWinningBidLatestTimeWins(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	bids := []models.Bid{
		{ID: 1, BidderID: 10, Amount: 500, BidTime: base},
		{ID: 2, BidderID: 11, Amount: 300, BidTime: base.Add(2 * time.Minute)},
		{ID: 3, BidderID: 12, Amount: 900, BidTime: base.Add(time.Minute)},
	}

	winner := PickWinningBid(bids)
	assert.Equal(t, int64(2), winner.ID, "the latest bid wins regardless of amount")
	assert.Equal(t, int64(11), winner.BidderID)
}

func TestPickWinningBidTieGoesToLaterSubmission(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	bids := []models.Bid{
		{ID: 5, BidderID: 10, Amount: 500, BidTime: at},
		{ID: 9, BidderID: 11, Amount: 400, BidTime: at},
		{ID: 7, BidderID: 12, Amount: 600, BidTime: at},
	}

	winner := PickWinningBid(bids)
	assert.Equal(t, int64(9), winner.ID)
}

func buildBids(offsets []int) []models.Bid {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	bids := make([]models.Bid, len(offsets))
	for i, offset := range offsets {
		bids[i] = models.Bid{
			ID:       int64(i + 1),
			BidderID: int64(100 + i),
			Amount:   int64(offset%997 + 1),
			BidTime:  base.Add(time.Duration(offset) * time.Second),
		}
	}
	return bids
}

func TestPickWinningBidProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("For any bid history, no bid is strictly later than the winner", prop.ForAll(
		func(offsets []int) bool {
			bids := buildBids(offsets)
			winner := PickWinningBid(bids)
			if len(bids) == 0 {
				return winner == nil
			}
			for _, b := range bids {
				if b.BidTime.After(winner.BidTime) {
					return false
				}
				if b.BidTime.Equal(winner.BidTime) && b.ID > winner.ID {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 86400)),
	))

	properties.Property("For any bid history, the winner is one of the input bids", prop.ForAll(
		func(offsets []int) bool {
			bids := buildBids(offsets)
			winner := PickWinningBid(bids)
			if len(bids) == 0 {
				return winner == nil
			}
			for _, b := range bids {
				if b.ID == winner.ID && b.BidTime.Equal(winner.BidTime) {
					return true
				}
			}
			return false
		},
		gen.SliceOf(gen.IntRange(0, 86400)),
	))

	properties.TestingRun(t)
}
