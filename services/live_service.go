package services

import (
	"context"
	"fmt"
	"time"

	"github.com/bidhub/auction-backend/models"
	"github.com/bidhub/auction-backend/shared"
	"github.com/sirupsen/logrus"
)

// AuctionStore is the slice of auction persistence the live facade needs.
type AuctionStore interface {
	GetAuction(ctx context.Context, auctionID int64) (*models.Auction, error)
	UpdateStatus(ctx context.Context, auctionID int64, status string) error
}

// ChannelPool is the slice of channel management the live facade needs.
type ChannelPool interface {
	Allocate(ctx context.Context, auctionID int64) (*models.LiveChannel, error)
	Release(ctx context.Context, auctionID int64) error
	SaveBinding(ctx context.Context, channelID int64, binding *BroadcastBinding) error
	ChannelForAuction(ctx context.Context, auctionID int64) (*models.LiveChannel, error)
}

// LiveAuctionService ties auctions, the channel pool and the broadcast
// provider together. It owns the live lifecycle: provision a channel, go
// on air at the starting time, go off air, tear the channel down.
type LiveAuctionService struct {
	auctions AuctionStore
	channels ChannelPool
	driver   BroadcastDriver
	settler  Settler
	clock    func() time.Time
}

func NewLiveAuctionService(auctions AuctionStore, channels ChannelPool, driver BroadcastDriver, settler Settler) *LiveAuctionService {
	return &LiveAuctionService{
		auctions: auctions,
		channels: channels,
		driver:   driver,
		settler:  settler,
		clock:    time.Now,
	}
}

// CreateLiveChannel allocates a pool channel for the auction and provisions
// the remote broadcast on it. When provisioning fails the channel goes
// straight back to the pool.
func (s *LiveAuctionService) CreateLiveChannel(ctx context.Context, auctionID int64) (*models.LiveChannel, error) {
	auction, err := s.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	channel, err := s.channels.Allocate(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	binding, err := s.driver.CreateBroadcast(ctx, auction.ProductName, auction.ProductDescription, auction.StartingTime)
	if err != nil {
		if releaseErr := s.channels.Release(ctx, auctionID); releaseErr != nil {
			logrus.WithFields(logrus.Fields{
				"component":  "LiveAuctionService",
				"auction_id": auctionID,
				"channel_id": channel.ID,
			}).WithError(releaseErr).Error("Failed to release channel after broadcast create failure")
		}
		return nil, err
	}

	if err := s.channels.SaveBinding(ctx, channel.ID, binding); err != nil {
		return nil, err
	}

	channel.BroadcastID = binding.BroadcastID
	channel.StreamID = binding.StreamID
	channel.StreamURL = binding.IngestURL
	channel.StreamKey = binding.StreamKey
	channel.WatchURL = binding.WatchURL

	logrus.WithFields(logrus.Fields{
		"component":    "LiveAuctionService",
		"auction_id":   auctionID,
		"channel_id":   channel.ID,
		"broadcast_id": binding.BroadcastID,
	}).Info("Live channel provisioned")
	return channel, nil
}

// DeleteLiveChannel tears down the auction's broadcast and returns the
// channel to the pool. Remote teardown failures are logged; the local
// release always happens.
func (s *LiveAuctionService) DeleteLiveChannel(ctx context.Context, auctionID int64) error {
	channel, err := s.channels.ChannelForAuction(ctx, auctionID)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil
		}
		return err
	}

	if channel.Provisioned() {
		if err := s.driver.DeleteBroadcast(ctx, channel.BroadcastID, channel.StreamID); err != nil {
			logrus.WithFields(logrus.Fields{
				"component":    "LiveAuctionService",
				"auction_id":   auctionID,
				"broadcast_id": channel.BroadcastID,
			}).WithError(err).Error("Failed to delete remote broadcast, releasing channel anyway")
		}
	}

	return s.channels.Release(ctx, auctionID)
}

// StartLive transitions the auction's broadcast to live and the auction to
// LIVE. Refuses with TOO_EARLY, touching nothing remote, while the current
// time is before the auction's starting time.
func (s *LiveAuctionService) StartLive(ctx context.Context, auctionID int64) error {
	auction, err := s.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}

	if s.clock().Before(auction.StartingTime) {
		return shared.NewServiceError(shared.ErrorCategoryValidation, shared.CodeTooEarly,
			fmt.Sprintf("auction %d does not start until %s", auctionID, auction.StartingTime.Format(time.RFC3339)),
			"live-auction-service", "StartLive", true, nil)
	}

	channel, err := s.channels.ChannelForAuction(ctx, auctionID)
	if err != nil {
		return err
	}

	if err := s.driver.StartBroadcast(ctx, channel.BroadcastID); err != nil {
		return err
	}

	if err := s.auctions.UpdateStatus(ctx, auctionID, models.AuctionStatusLive); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"component":    "LiveAuctionService",
		"auction_id":   auctionID,
		"broadcast_id": channel.BroadcastID,
	}).Info("Auction broadcast started")
	return nil
}

// EndLive takes the auction off air. Local cleanup is unconditional: even
// when the provider call fails, the channel returns to the pool and the
// auction moves to CLOSED, then the remote error is reported. A manual end
// also resolves the auction; the natural end-time trigger arriving later
// lands on the settlement idempotency guard.
func (s *LiveAuctionService) EndLive(ctx context.Context, auctionID int64) error {
	channel, err := s.channels.ChannelForAuction(ctx, auctionID)
	if err != nil {
		return err
	}

	var remoteErr error
	if channel.Provisioned() {
		if remoteErr = s.driver.EndBroadcast(ctx, channel.BroadcastID, channel.StreamID); remoteErr != nil {
			logrus.WithFields(logrus.Fields{
				"component":    "LiveAuctionService",
				"auction_id":   auctionID,
				"broadcast_id": channel.BroadcastID,
			}).WithError(remoteErr).Error("Failed to end remote broadcast, cleaning up locally")
		}
	}

	if err := s.channels.Release(ctx, auctionID); err != nil {
		return err
	}
	if err := s.auctions.UpdateStatus(ctx, auctionID, models.AuctionStatusClosed); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"component":  "LiveAuctionService",
		"auction_id": auctionID,
	}).Info("Auction broadcast ended")

	if err := s.settler.Settle(ctx, auctionID); err != nil && !shared.IsAlreadySettled(err) {
		logrus.WithFields(logrus.Fields{
			"component":  "LiveAuctionService",
			"auction_id": auctionID,
		}).WithError(err).Error("Settlement after manual end failed")
		if remoteErr == nil {
			return err
		}
	}

	if remoteErr != nil {
		return shared.WrapError(remoteErr, shared.ErrorCategoryProvider, shared.CodeRemoteProviderFailure,
			"live-auction-service", "EndLive", true)
	}
	return nil
}
