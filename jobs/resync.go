package jobs

import (
	"context"
	"time"

	"github.com/bidhub/auction-backend/models"
	"github.com/sirupsen/logrus"
)

// UnsettledLister yields auctions that still need an end trigger.
type UnsettledLister interface {
	ListUnsettled(ctx context.Context) ([]models.Auction, error)
}

// EndScheduler arms settlement triggers.
type EndScheduler interface {
	ScheduleAuctionEnd(auctionID int64, endingTime time.Time)
}

// EndResyncJob rebuilds the in-memory end triggers after a restart. Every
// auction the settlement engine could still touch gets its trigger
// re-armed; past-due ones fire immediately through the pool.
type EndResyncJob struct {
	auctions  UnsettledLister
	scheduler EndScheduler
}

func NewEndResyncJob(auctions UnsettledLister, scheduler EndScheduler) *EndResyncJob {
	return &EndResyncJob{auctions: auctions, scheduler: scheduler}
}

// Run performs one resync pass. Called once at startup.
func (j *EndResyncJob) Run(ctx context.Context) error {
	auctions, err := j.auctions.ListUnsettled(ctx)
	if err != nil {
		return err
	}

	for _, auction := range auctions {
		j.scheduler.ScheduleAuctionEnd(auction.ID, auction.EndingTime)
	}

	logrus.WithFields(logrus.Fields{
		"component": "EndResyncJob",
		"resynced":  len(auctions),
	}).Info("Auction end triggers resynced")
	return nil
}
