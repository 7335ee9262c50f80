package models

import "time"

// Auction status values. An auction is created PENDING, becomes ONGOING at
// its starting time, may be pushed to LIVE while broadcasting, and ends in
// exactly one of SOLD, UNSOLD or CLOSED.
const (
	AuctionStatusPending = "PENDING"
	AuctionStatusOngoing = "ONGOING"
	AuctionStatusLive    = "LIVE"
	AuctionStatusSold    = "SOLD"
	AuctionStatusUnsold  = "UNSOLD"
	AuctionStatusClosed  = "CLOSED"
)

type Auction struct {
	ID                 int64      `json:"id"`
	ProductName        string     `json:"product_name"`
	ProductDescription string     `json:"product_description"`
	SellerID           int64      `json:"seller_id"`
	AuctionStatus      string     `json:"auction_status"`
	StartingTime       time.Time  `json:"starting_time"`
	EndingTime         time.Time  `json:"ending_time"`
	ChannelID          *int64     `json:"channel_id,omitempty"`
	WinnerID           *int64     `json:"winner_id,omitempty"`
	WinningBid         *int64     `json:"winning_bid,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	// Loaded together with the auction for settlement; nil elsewhere.
	Bids []Bid `json:"bids,omitempty"`
}

// Settleable reports whether the auction is still in a state the settlement
// engine may transition out of. CLOSED counts: a manually ended broadcast
// still needs its winner resolved by the end-time trigger. PENDING counts
// too, so an auction nobody pushed through its lifecycle still resolves at
// its ending time.
func (a *Auction) Settleable() bool {
	switch a.AuctionStatus {
	case AuctionStatusPending, AuctionStatusOngoing, AuctionStatusLive, AuctionStatusClosed:
		return true
	}
	return false
}

// AcceptingBids reports whether new bids may still be placed.
func (a *Auction) AcceptingBids() bool {
	switch a.AuctionStatus {
	case AuctionStatusPending, AuctionStatusOngoing, AuctionStatusLive:
		return true
	}
	return false
}

// AuctionDetailSnapshot is the final per-auction payload published to
// realtime subscribers after settlement.
type AuctionDetailSnapshot struct {
	AuctionID     int64     `json:"auction_id"`
	ProductName   string    `json:"product_name"`
	AuctionStatus string    `json:"auction_status"`
	WinnerID      *int64    `json:"winner_id,omitempty"`
	WinningBid    *int64    `json:"winning_bid,omitempty"`
	SettledAt     time.Time `json:"settled_at"`
}
