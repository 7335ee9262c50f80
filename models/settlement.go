package models

import (
	"time"

	"github.com/google/uuid"
)

// Use types recorded on settlement records.
const (
	SettlementUseWinningBid = "winning-bid"
)

// SettlementRecord is the append-only artifact of a successful settlement:
// the balance movement for the winning bidder. Write-once.
type SettlementRecord struct {
	ID            uuid.UUID `json:"id"`
	AuctionID     int64     `json:"auction_id"`
	AccountID     int64     `json:"account_id"`
	MemberID      int64     `json:"member_id"`
	BeforeBalance int64     `json:"before_balance"`
	AfterBalance  int64     `json:"after_balance"`
	Amount        int64     `json:"amount"`
	ProductName   string    `json:"product_name"`
	UseType       string    `json:"use_type"`
	CreatedAt     time.Time `json:"created_at"`
}
