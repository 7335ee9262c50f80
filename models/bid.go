package models

import "time"

// Bid is immutable once created. The settlement engine only reads bids;
// the winning bid is the one with the latest BidTime, ties resolved by
// submission order (higher ID).
type Bid struct {
	ID        int64     `json:"id"`
	AuctionID int64     `json:"auction_id"`
	BidderID  int64     `json:"bidder_id"`
	Amount    int64     `json:"amount"`
	BidTime   time.Time `json:"bid_time"`
}
