package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bidhub/auction-backend/models"
	"github.com/bidhub/auction-backend/shared"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Settler resolves an ended auction exactly once.
type Settler interface {
	Settle(ctx context.Context, auctionID int64) error
}

// SnapshotPublisher pushes the final auction snapshot to realtime
// subscribers. Publishing happens after commit and never fails settlement.
type SnapshotPublisher interface {
	PublishSnapshot(snapshot *models.AuctionDetailSnapshot)
}

// SettlementService resolves ended auctions: it picks the winning bid,
// debits the winner's account, writes the settlement record and moves the
// auction to SOLD or UNSOLD. The whole resolution runs in one transaction
// with the auction row locked, so concurrent triggers for the same auction
// settle it exactly once.
type SettlementService struct {
	db            *sql.DB
	notifications NotificationSender
	publisher     SnapshotPublisher
	metrics       *shared.OperationMetrics
}

func NewSettlementService(db *sql.DB, notifications NotificationSender, publisher SnapshotPublisher) *SettlementService {
	return &SettlementService{
		db:            db,
		notifications: notifications,
		publisher:     publisher,
		metrics:       shared.NewOperationMetrics("settlement-service"),
	}
}

// Metrics exposes the settlement operation counters.
func (s *SettlementService) Metrics() *shared.OperationMetrics {
	return s.metrics
}

// Settle resolves the auction. Safe to call multiple times: the second and
// later calls fail with ALREADY_SETTLED and change nothing.
func (s *SettlementService) Settle(ctx context.Context, auctionID int64) error {
	start := time.Now()
	outcome, err := s.settle(ctx, auctionID)
	s.metrics.Record("Settle", time.Since(start), err)
	if err != nil {
		return err
	}

	// Post-commit side effects. Failures here must not undo the settled
	// state, so they are logged by the implementations and never returned.
	if outcome.winner != nil {
		s.notifications.NotifyAuctionWin(ctx, outcome.winner.BidderID, auctionID)
		s.notifications.NotifyAuctionSold(ctx, outcome.sellerID, auctionID)
	}
	if s.publisher != nil {
		s.publisher.PublishSnapshot(outcome.snapshot)
	}

	logrus.WithFields(logrus.Fields{
		"auction_id": auctionID,
		"status":     outcome.snapshot.AuctionStatus,
	}).Info("Auction settled")
	return nil
}

type settlementOutcome struct {
	sellerID int64
	winner   *models.Bid
	snapshot *models.AuctionDetailSnapshot
}

func (s *SettlementService) settle(ctx context.Context, auctionID int64) (*settlementOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin settlement transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`, auctionID)
	auction, err := scanAuction(row)
	if err == sql.ErrNoRows {
		return nil, shared.NewServiceError(shared.ErrorCategoryResource, shared.CodeNotFound,
			fmt.Sprintf("auction %d not found", auctionID),
			"settlement-service", "Settle", false, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock auction %d: %w", auctionID, err)
	}

	// Idempotency guard. Holding the row lock, only the first caller sees a
	// settleable status.
	if !auction.Settleable() {
		return nil, shared.NewServiceError(shared.ErrorCategorySettlement, shared.CodeAlreadySettled,
			fmt.Sprintf("auction %d already settled with status %s", auctionID, auction.AuctionStatus),
			"settlement-service", "Settle", false, nil)
	}

	winner, err := s.loadWinningBid(ctx, tx, auctionID)
	if err != nil {
		return nil, err
	}

	settledAt := time.Now()
	snapshot := &models.AuctionDetailSnapshot{
		AuctionID:   auctionID,
		ProductName: auction.ProductName,
		SettledAt:   settledAt,
	}

	if winner == nil {
		if err := s.markSettled(ctx, tx, auctionID, models.AuctionStatusUnsold, nil); err != nil {
			return nil, err
		}
		snapshot.AuctionStatus = models.AuctionStatusUnsold
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit settlement of auction %d: %w", auctionID, err)
		}
		return &settlementOutcome{sellerID: auction.SellerID, snapshot: snapshot}, nil
	}

	if err := s.debitWinner(ctx, tx, auction, winner); err != nil {
		return nil, err
	}
	if err := s.markSettled(ctx, tx, auctionID, models.AuctionStatusSold, winner); err != nil {
		return nil, err
	}

	snapshot.AuctionStatus = models.AuctionStatusSold
	snapshot.WinnerID = &winner.BidderID
	snapshot.WinningBid = &winner.Amount

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit settlement of auction %d: %w", auctionID, err)
	}
	return &settlementOutcome{sellerID: auction.SellerID, winner: winner, snapshot: snapshot}, nil
}

// loadWinningBid returns the auction's winning bid or nil when no bids were
// placed. The winner is the bid with the latest bid time; ties go to the
// later submission.
func (s *SettlementService) loadWinningBid(ctx context.Context, tx *sql.Tx, auctionID int64) (*models.Bid, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, auction_id, bidder_id, amount, bid_time
		FROM bids WHERE auction_id = $1
		ORDER BY bid_time DESC, id DESC
		LIMIT 1`, auctionID)

	var bid models.Bid
	err := row.Scan(&bid.ID, &bid.AuctionID, &bid.BidderID, &bid.Amount, &bid.BidTime)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load winning bid for auction %d: %w", auctionID, err)
	}
	return &bid, nil
}

// PickWinningBid selects the winning bid from an in-memory slice using the
// same rule as the SQL path: latest bid time, ties by higher ID. Returns
// nil for an empty slice.
func PickWinningBid(bids []models.Bid) *models.Bid {
	var winner *models.Bid
	for i := range bids {
		b := &bids[i]
		if winner == nil {
			winner = b
			continue
		}
		if b.BidTime.After(winner.BidTime) ||
			(b.BidTime.Equal(winner.BidTime) && b.ID > winner.ID) {
			winner = b
		}
	}
	return winner
}

// debitWinner locks the winner's account, checks funds and writes the
// balance movement plus the settlement record.
func (s *SettlementService) debitWinner(ctx context.Context, tx *sql.Tx, auction *models.Auction, winner *models.Bid) error {
	var account models.Account
	err := tx.QueryRowContext(ctx, `
		SELECT id, member_id, balance, updated_at
		FROM accounts WHERE member_id = $1 FOR UPDATE`, winner.BidderID,
	).Scan(&account.ID, &account.MemberID, &account.Balance, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return shared.NewServiceError(shared.ErrorCategorySettlement, shared.CodeNotFound,
			fmt.Sprintf("no account for member %d", winner.BidderID),
			"settlement-service", "Settle", false, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to lock account of member %d: %w", winner.BidderID, err)
	}

	if account.Balance < winner.Amount {
		return shared.NewServiceError(shared.ErrorCategorySettlement, shared.CodeInsufficientFunds,
			fmt.Sprintf("member %d balance %d below winning bid %d",
				winner.BidderID, account.Balance, winner.Amount),
			"settlement-service", "Settle", false, nil)
	}

	afterBalance := account.Balance - winner.Amount
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, updated_at = NOW() WHERE id = $2`,
		afterBalance, account.ID); err != nil {
		return fmt.Errorf("failed to debit account %d: %w", account.ID, err)
	}

	record := models.SettlementRecord{
		ID:            uuid.New(),
		AuctionID:     auction.ID,
		AccountID:     account.ID,
		MemberID:      account.MemberID,
		BeforeBalance: account.Balance,
		AfterBalance:  afterBalance,
		Amount:        winner.Amount,
		ProductName:   auction.ProductName,
		UseType:       models.SettlementUseWinningBid,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO settlement_records
			(id, auction_id, account_id, member_id, before_balance, after_balance, amount, product_name, use_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID, record.AuctionID, record.AccountID, record.MemberID,
		record.BeforeBalance, record.AfterBalance, record.Amount,
		record.ProductName, record.UseType); err != nil {
		return fmt.Errorf("failed to write settlement record for auction %d: %w", auction.ID, err)
	}
	return nil
}

func (s *SettlementService) markSettled(ctx context.Context, tx *sql.Tx, auctionID int64, status string, winner *models.Bid) error {
	var err error
	if winner != nil {
		_, err = tx.ExecContext(ctx, `
			UPDATE auctions
			SET auction_status = $1, winner_id = $2, winning_bid = $3, updated_at = NOW()
			WHERE id = $4`,
			status, winner.BidderID, winner.Amount, auctionID)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE auctions SET auction_status = $1, updated_at = NOW() WHERE id = $2`,
			status, auctionID)
	}
	if err != nil {
		return fmt.Errorf("failed to mark auction %d %s: %w", auctionID, status, err)
	}
	return nil
}
