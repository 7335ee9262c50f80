package models

import "time"

// Notification categories dispatched by this service.
const (
	NotificationAuctionWin   = "auction-win"
	NotificationAuctionSold  = "auction-sold"
	NotificationAuctionStart = "auction-start"
)

// Notification is one dispatched message to a member. Dispatch is
// fire-and-forget: rows record what was attempted, failures only log.
type Notification struct {
	ID        int64     `json:"id"`
	MemberID  int64     `json:"member_id"`
	AuctionID int64     `json:"auction_id"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
