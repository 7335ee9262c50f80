package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bidhub/auction-backend/models"
	"github.com/sirupsen/logrus"
)

// NotificationSender dispatches messages to members. Dispatch is
// fire-and-forget: implementations log failures and never propagate them
// into the callers' control flow.
type NotificationSender interface {
	NotifyAuctionWin(ctx context.Context, memberID, auctionID int64)
	NotifyAuctionSold(ctx context.Context, memberID, auctionID int64)
	NotifyAuctionStartingSoon(ctx context.Context, memberID int64, auction *models.Auction)
}

// NotificationService persists one row per dispatched notification and
// logs the dispatch. It is the only NotificationSender in production.
type NotificationService struct {
	db *sql.DB
}

func NewNotificationService(db *sql.DB) *NotificationService {
	return &NotificationService{db: db}
}

func (s *NotificationService) NotifyAuctionWin(ctx context.Context, memberID, auctionID int64) {
	s.dispatch(ctx, memberID, auctionID, models.NotificationAuctionWin,
		fmt.Sprintf("You won auction %d. Congratulations!", auctionID))
}

func (s *NotificationService) NotifyAuctionSold(ctx context.Context, memberID, auctionID int64) {
	s.dispatch(ctx, memberID, auctionID, models.NotificationAuctionSold,
		fmt.Sprintf("Your auction %d has sold.", auctionID))
}

func (s *NotificationService) NotifyAuctionStartingSoon(ctx context.Context, memberID int64, auction *models.Auction) {
	s.dispatch(ctx, memberID, auction.ID, models.NotificationAuctionStart,
		fmt.Sprintf("Auction %q starts at %s.", auction.ProductName, auction.StartingTime.Format("15:04")))
}

func (s *NotificationService) dispatch(ctx context.Context, memberID, auctionID int64, category, message string) {
	logger := logrus.WithFields(logrus.Fields{
		"component":  "NotificationService",
		"member_id":  memberID,
		"auction_id": auctionID,
		"category":   category,
	})

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (member_id, auction_id, category, message)
		VALUES ($1, $2, $3, $4)`,
		memberID, auctionID, category, message)
	if err != nil {
		logger.WithError(err).Error("Failed to dispatch notification")
		return
	}

	logger.Info("Notification dispatched")
}
