package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bidhub/auction-backend/models"
	"github.com/bidhub/auction-backend/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingNotifier struct {
	wins, sales, alarms int32
}

func (c *countingNotifier) NotifyAuctionWin(ctx context.Context, memberID, auctionID int64) {
	atomic.AddInt32(&c.wins, 1)
}

func (c *countingNotifier) NotifyAuctionSold(ctx context.Context, memberID, auctionID int64) {
	atomic.AddInt32(&c.sales, 1)
}

func (c *countingNotifier) NotifyAuctionStartingSoon(ctx context.Context, memberID int64, auction *models.Auction) {
	atomic.AddInt32(&c.alarms, 1)
}

type countingSettler struct {
	settled int32
	done    chan int64
}

func (c *countingSettler) Settle(ctx context.Context, auctionID int64) error {
	atomic.AddInt32(&c.settled, 1)
	if c.done != nil {
		c.done <- auctionID
	}
	return nil
}

func newSchedulerFixture(t *testing.T, lead time.Duration) (*AuctionScheduler, *countingSettler, *countingNotifier) {
	t.Helper()
	pool := scheduler.NewPool(4)
	t.Cleanup(pool.Stop)

	settler := &countingSettler{done: make(chan int64, 16)}
	notifier := &countingNotifier{}
	return NewAuctionScheduler(pool, settler, notifier, lead), settler, notifier
}

func TestRegisterAlarmFirstCallWins(t *testing.T) {
	sched, _, _ := newSchedulerFixture(t, 10*time.Minute)
	auction := &models.Auction{ID: 1, StartingTime: time.Now().Add(time.Hour)}

	assert.True(t, sched.RegisterAlarm(auction, 7))
	assert.False(t, sched.RegisterAlarm(auction, 7))
	assert.True(t, sched.HasAlarm(1, 7))

	// A different member registers independently.
	assert.True(t, sched.RegisterAlarm(auction, 8))
}

func TestRegisterAlarmConcurrentExactlyOneWinner(t *testing.T) {
	sched, _, _ := newSchedulerFixture(t, 10*time.Minute)
	auction := &models.Auction{ID: 1, StartingTime: time.Now().Add(time.Hour)}

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sched.RegisterAlarm(auction, 7) {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}

func TestAlarmFiresLeadTimeBeforeStart(t *testing.T) {
	sched, _, notifier := newSchedulerFixture(t, 50*time.Millisecond)
	auction := &models.Auction{ID: 1, StartingTime: time.Now().Add(80 * time.Millisecond)}

	require.True(t, sched.RegisterAlarm(auction, 7))

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&notifier.alarms) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The fired alarm frees the slot for re-registration.
	require.Eventually(t, func() bool {
		return !sched.HasAlarm(1, 7)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCancelAlarmBeforeFire(t *testing.T) {
	sched, _, notifier := newSchedulerFixture(t, 10*time.Minute)
	auction := &models.Auction{ID: 1, StartingTime: time.Now().Add(time.Hour)}

	require.True(t, sched.RegisterAlarm(auction, 7))
	assert.True(t, sched.CancelAlarm(1, 7))
	assert.False(t, sched.HasAlarm(1, 7))
	assert.False(t, sched.CancelAlarm(1, 7))

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&notifier.alarms))
}

func TestScheduleAuctionEndFiresSettlement(t *testing.T) {
	sched, settler, _ := newSchedulerFixture(t, 10*time.Minute)

	sched.ScheduleAuctionEnd(5, time.Now().Add(30*time.Millisecond))

	select {
	case auctionID := <-settler.done:
		assert.Equal(t, int64(5), auctionID)
	case <-time.After(2 * time.Second):
		t.Fatal("settlement trigger never fired")
	}
}

func TestScheduleAuctionEndPastDueFiresImmediately(t *testing.T) {
	sched, settler, _ := newSchedulerFixture(t, 10*time.Minute)

	sched.ScheduleAuctionEnd(5, time.Now().Add(-time.Hour))

	select {
	case <-settler.done:
	case <-time.After(2 * time.Second):
		t.Fatal("past-due trigger did not fire")
	}
}

func TestScheduleAuctionEndReplacesPreviousTrigger(t *testing.T) {
	sched, settler, _ := newSchedulerFixture(t, 10*time.Minute)

	sched.ScheduleAuctionEnd(5, time.Now().Add(time.Hour))
	sched.ScheduleAuctionEnd(5, time.Now().Add(30*time.Millisecond))

	select {
	case <-settler.done:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement trigger did not fire")
	}

	// The superseded trigger was cancelled, so only one settlement runs.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&settler.settled))
}
