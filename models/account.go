package models

import "time"

// Account holds a member's spendable balance. Balances are integer money
// units; the settlement engine is the only writer in this service.
type Account struct {
	ID        int64     `json:"id"`
	MemberID  int64     `json:"member_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}
