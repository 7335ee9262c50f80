package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bidhub/auction-backend/models"
	"github.com/bidhub/auction-backend/shared"
	"github.com/sirupsen/logrus"
)

// AuctionService is the SQL-backed store for auctions and their bids.
type AuctionService struct {
	db *sql.DB
}

func NewAuctionService(db *sql.DB) *AuctionService {
	return &AuctionService{db: db}
}

const auctionColumns = `
	id, product_name, product_description, seller_id, auction_status,
	starting_time, ending_time, channel_id, winner_id, winning_bid,
	created_at, updated_at`

func scanAuction(row interface{ Scan(...interface{}) error }) (*models.Auction, error) {
	var a models.Auction
	err := row.Scan(
		&a.ID, &a.ProductName, &a.ProductDescription, &a.SellerID, &a.AuctionStatus,
		&a.StartingTime, &a.EndingTime, &a.ChannelID, &a.WinnerID, &a.WinningBid,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAuction inserts a new auction and returns it with its assigned ID.
// Status is derived from the starting time when left empty.
func (s *AuctionService) CreateAuction(ctx context.Context, auction *models.Auction) (*models.Auction, error) {
	if auction.AuctionStatus == "" {
		if time.Now().Before(auction.StartingTime) {
			auction.AuctionStatus = models.AuctionStatusPending
		} else {
			auction.AuctionStatus = models.AuctionStatusOngoing
		}
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO auctions (product_name, product_description, seller_id, auction_status, starting_time, ending_time)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		auction.ProductName, auction.ProductDescription, auction.SellerID,
		auction.AuctionStatus, auction.StartingTime, auction.EndingTime,
	).Scan(&auction.ID, &auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert auction: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"auction_id":  auction.ID,
		"ending_time": auction.EndingTime,
	}).Info("Auction created")

	return auction, nil
}

// GetAuction loads a single auction by ID.
func (s *AuctionService) GetAuction(ctx context.Context, auctionID int64) (*models.Auction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, auctionID)

	auction, err := scanAuction(row)
	if err == sql.ErrNoRows {
		return nil, shared.NewServiceError(shared.ErrorCategoryResource, shared.CodeNotFound,
			fmt.Sprintf("auction %d not found", auctionID),
			"auction-service", "GetAuction", false, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load auction %d: %w", auctionID, err)
	}
	return auction, nil
}

// GetAuctionWithBids loads an auction together with all of its bids in one
// consistent read.
func (s *AuctionService) GetAuctionWithBids(ctx context.Context, auctionID int64) (*models.Auction, error) {
	auction, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, auction_id, bidder_id, amount, bid_time
		FROM bids WHERE auction_id = $1
		ORDER BY bid_time ASC, id ASC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bids for auction %d: %w", auctionID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Amount, &b.BidTime); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		auction.Bids = append(auction.Bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bids: %w", err)
	}

	return auction, nil
}

// UpdateStatus sets the auction's status unconditionally.
func (s *AuctionService) UpdateStatus(ctx context.Context, auctionID int64, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE auctions SET auction_status = $1, updated_at = NOW() WHERE id = $2`,
		status, auctionID)
	if err != nil {
		return fmt.Errorf("failed to update auction %d status: %w", auctionID, err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return shared.NewServiceError(shared.ErrorCategoryResource, shared.CodeNotFound,
			fmt.Sprintf("auction %d not found", auctionID),
			"auction-service", "UpdateStatus", false, nil)
	}

	logrus.WithFields(logrus.Fields{
		"auction_id": auctionID,
		"status":     status,
	}).Info("Auction status updated")
	return nil
}

// PlaceBid appends a bid for the auction. Bids are insert-only; the
// settlement engine never mutates them.
func (s *AuctionService) PlaceBid(ctx context.Context, bid *models.Bid) (*models.Bid, error) {
	auction, err := s.GetAuction(ctx, bid.AuctionID)
	if err != nil {
		return nil, err
	}
	if !auction.AcceptingBids() {
		return nil, shared.NewServiceError(shared.ErrorCategoryValidation, shared.CodeAlreadySettled,
			fmt.Sprintf("auction %d is no longer accepting bids", bid.AuctionID),
			"auction-service", "PlaceBid", false, nil)
	}

	if bid.BidTime.IsZero() {
		bid.BidTime = time.Now()
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO bids (auction_id, bidder_id, amount, bid_time)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		bid.AuctionID, bid.BidderID, bid.Amount, bid.BidTime,
	).Scan(&bid.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert bid: %w", err)
	}
	return bid, nil
}

// ListLiveAuctions returns auctions currently broadcasting or still open,
// newest first. Backs the live-auction listing endpoint.
func (s *AuctionService) ListLiveAuctions(ctx context.Context) ([]models.Auction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+auctionColumns+` FROM auctions
		WHERE auction_status IN ($1, $2, $3)
		ORDER BY starting_time DESC`,
		models.AuctionStatusPending, models.AuctionStatusOngoing, models.AuctionStatusLive)
	if err != nil {
		return nil, fmt.Errorf("failed to list live auctions: %w", err)
	}
	defer rows.Close()

	return collectAuctions(rows)
}

// ListUnsettled returns auctions whose end schedule must exist: anything the
// settlement engine could still transition. Used by the startup resync job.
func (s *AuctionService) ListUnsettled(ctx context.Context) ([]models.Auction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+auctionColumns+` FROM auctions
		WHERE auction_status IN ($1, $2, $3, $4)
		ORDER BY ending_time ASC`,
		models.AuctionStatusPending, models.AuctionStatusOngoing,
		models.AuctionStatusLive, models.AuctionStatusClosed)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled auctions: %w", err)
	}
	defer rows.Close()

	return collectAuctions(rows)
}

func collectAuctions(rows *sql.Rows) ([]models.Auction, error) {
	var auctions []models.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		auctions = append(auctions, *auction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate auctions: %w", err)
	}
	return auctions, nil
}
