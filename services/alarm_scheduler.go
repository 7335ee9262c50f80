package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bidhub/auction-backend/models"
	"github.com/bidhub/auction-backend/scheduler"
	"github.com/bidhub/auction-backend/shared"
	"github.com/sirupsen/logrus"
)

// AuctionScheduler owns the timed side of an auction's life: the per-member
// start alarms and the end-of-auction settlement trigger. All firing runs
// on the shared worker pool.
type AuctionScheduler struct {
	pool          *scheduler.Pool
	settler       Settler
	notifications NotificationSender
	alarmLead     time.Duration

	// alarm key -> *alarmEntry. LoadOrStore makes registration first-wins
	// under concurrency.
	alarms sync.Map
	// auction ID -> *scheduler.Task for the end trigger.
	endTasks sync.Map
}

type alarmEntry struct {
	task *scheduler.Task
}

func NewAuctionScheduler(pool *scheduler.Pool, settler Settler, notifications NotificationSender, alarmLead time.Duration) *AuctionScheduler {
	if alarmLead <= 0 {
		alarmLead = 10 * time.Minute
	}
	return &AuctionScheduler{
		pool:          pool,
		settler:       settler,
		notifications: notifications,
		alarmLead:     alarmLead,
	}
}

func alarmKey(auctionID, memberID int64) string {
	return fmt.Sprintf("%d:%d", auctionID, memberID)
}

// RegisterAlarm schedules a starting-soon notification for the member,
// fired alarmLead before the auction's starting time. Registration is
// idempotent per (auction, member): the first call wins and schedules,
// every later call reports false and schedules nothing.
func (s *AuctionScheduler) RegisterAlarm(auction *models.Auction, memberID int64) bool {
	key := alarmKey(auction.ID, memberID)

	entry := &alarmEntry{}
	if _, loaded := s.alarms.LoadOrStore(key, entry); loaded {
		return false
	}

	fireAt := auction.StartingTime.Add(-s.alarmLead)
	auctionCopy := *auction
	entry.task = s.pool.ScheduleAt(fireAt, func() {
		s.notifications.NotifyAuctionStartingSoon(context.Background(), memberID, &auctionCopy)
		s.alarms.Delete(key)
	})

	logrus.WithFields(logrus.Fields{
		"component":  "AuctionScheduler",
		"auction_id": auction.ID,
		"member_id":  memberID,
		"fire_at":    fireAt,
	}).Info("Auction start alarm registered")
	return true
}

// HasAlarm reports whether the member holds an unfired alarm for the
// auction.
func (s *AuctionScheduler) HasAlarm(auctionID, memberID int64) bool {
	_, ok := s.alarms.Load(alarmKey(auctionID, memberID))
	return ok
}

// CancelAlarm removes the member's alarm if it has not fired yet.
func (s *AuctionScheduler) CancelAlarm(auctionID, memberID int64) bool {
	key := alarmKey(auctionID, memberID)
	value, ok := s.alarms.Load(key)
	if !ok {
		return false
	}
	entry := value.(*alarmEntry)
	if entry.task == nil || !entry.task.Cancel() {
		return false
	}
	s.alarms.Delete(key)
	return true
}

// ScheduleAuctionEnd arms the settlement trigger at the auction's ending
// time. Scheduling an already-past ending time fires immediately.
// Rescheduling the same auction replaces the previous trigger.
func (s *AuctionScheduler) ScheduleAuctionEnd(auctionID int64, endingTime time.Time) {
	task := s.pool.ScheduleAt(endingTime, func() {
		s.endTasks.Delete(auctionID)
		s.runSettlement(auctionID)
	})

	if previous, loaded := s.endTasks.Swap(auctionID, task); loaded {
		previous.(*scheduler.Task).Cancel()
	}

	logrus.WithFields(logrus.Fields{
		"component":   "AuctionScheduler",
		"auction_id":  auctionID,
		"ending_time": endingTime,
	}).Info("Auction end trigger scheduled")
}

// runSettlement is the task body of the end trigger. Settlement errors stop
// here: the pool worker must survive, and ALREADY_SETTLED simply means
// another trigger won.
func (s *AuctionScheduler) runSettlement(auctionID int64) {
	err := s.settler.Settle(context.Background(), auctionID)
	if err == nil {
		return
	}

	logger := logrus.WithFields(logrus.Fields{
		"component":  "AuctionScheduler",
		"auction_id": auctionID,
	})
	if shared.IsAlreadySettled(err) {
		logger.Debug("End trigger fired for already settled auction")
		return
	}
	logger.WithError(err).Error("Auction settlement failed")
}
