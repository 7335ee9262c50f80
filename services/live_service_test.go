package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bidhub/auction-backend/models"
	"github.com/bidhub/auction-backend/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuctionStore struct {
	auctions map[int64]*models.Auction
	statuses map[int64]string
}

func newFakeAuctionStore(auctions ...*models.Auction) *fakeAuctionStore {
	store := &fakeAuctionStore{
		auctions: make(map[int64]*models.Auction),
		statuses: make(map[int64]string),
	}
	for _, a := range auctions {
		store.auctions[a.ID] = a
	}
	return store
}

func (f *fakeAuctionStore) GetAuction(ctx context.Context, auctionID int64) (*models.Auction, error) {
	auction, ok := f.auctions[auctionID]
	if !ok {
		return nil, shared.NewServiceError(shared.ErrorCategoryResource, shared.CodeNotFound,
			"auction not found", "fake", "GetAuction", false, nil)
	}
	copied := *auction
	return &copied, nil
}

func (f *fakeAuctionStore) UpdateStatus(ctx context.Context, auctionID int64, status string) error {
	f.statuses[auctionID] = status
	return nil
}

type fakeChannelPool struct {
	channel      *models.LiveChannel
	allocated    map[int64]*models.LiveChannel
	releases     int
	allocateErr  error
	saveBindings int
}

func newFakeChannelPool(channel *models.LiveChannel) *fakeChannelPool {
	return &fakeChannelPool{
		channel:   channel,
		allocated: make(map[int64]*models.LiveChannel),
	}
}

func (f *fakeChannelPool) Allocate(ctx context.Context, auctionID int64) (*models.LiveChannel, error) {
	if f.allocateErr != nil {
		return nil, f.allocateErr
	}
	f.allocated[auctionID] = f.channel
	copied := *f.channel
	return &copied, nil
}

func (f *fakeChannelPool) Release(ctx context.Context, auctionID int64) error {
	delete(f.allocated, auctionID)
	f.releases++
	return nil
}

func (f *fakeChannelPool) SaveBinding(ctx context.Context, channelID int64, binding *BroadcastBinding) error {
	f.saveBindings++
	f.channel.BroadcastID = binding.BroadcastID
	f.channel.StreamID = binding.StreamID
	return nil
}

func (f *fakeChannelPool) ChannelForAuction(ctx context.Context, auctionID int64) (*models.LiveChannel, error) {
	channel, ok := f.allocated[auctionID]
	if !ok {
		return nil, shared.NewServiceError(shared.ErrorCategoryResource, shared.CodeNotFound,
			"auction has no live channel", "fake", "ChannelForAuction", false, nil)
	}
	copied := *channel
	return &copied, nil
}

type fakeDriver struct {
	creates, starts, ends, deletes int
	createErr, startErr, endErr    error
}

func (f *fakeDriver) CreateBroadcast(ctx context.Context, title, description string, scheduledStart time.Time) (*BroadcastBinding, error) {
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &BroadcastBinding{BroadcastID: "bc-1", StreamID: "st-1"}, nil
}

func (f *fakeDriver) StartBroadcast(ctx context.Context, broadcastID string) error {
	f.starts++
	return f.startErr
}

func (f *fakeDriver) EndBroadcast(ctx context.Context, broadcastID, streamID string) error {
	f.ends++
	return f.endErr
}

func (f *fakeDriver) DeleteBroadcast(ctx context.Context, broadcastID, streamID string) error {
	f.deletes++
	return nil
}

func newLiveFixture(auction *models.Auction) (*LiveAuctionService, *fakeAuctionStore, *fakeChannelPool, *fakeDriver, *countingSettler) {
	store := newFakeAuctionStore(auction)
	pool := newFakeChannelPool(&models.LiveChannel{ID: 1})
	driver := &fakeDriver{}
	settler := &countingSettler{}
	svc := NewLiveAuctionService(store, pool, driver, settler)
	return svc, store, pool, driver, settler
}

func upcomingAuction() *models.Auction {
	return &models.Auction{
		ID:            42,
		ProductName:   "Vintage watch",
		AuctionStatus: models.AuctionStatusPending,
		StartingTime:  time.Now().Add(time.Hour),
		EndingTime:    time.Now().Add(2 * time.Hour),
	}
}

func TestStartLiveTooEarlyTouchesNothingRemote(t *testing.T) {
	svc, store, _, driver, _ := newLiveFixture(upcomingAuction())
	svc.clock = func() time.Time { return time.Now() }

	err := svc.StartLive(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, shared.IsTooEarly(err))
	assert.Zero(t, driver.starts, "no provider call before the starting time")
	assert.Empty(t, store.statuses)
}

func TestStartLiveAfterStartingTime(t *testing.T) {
	auction := upcomingAuction()
	svc, store, pool, driver, _ := newLiveFixture(auction)
	svc.clock = func() time.Time { return auction.StartingTime.Add(time.Minute) }

	_, err := svc.CreateLiveChannel(context.Background(), 42)
	require.NoError(t, err)

	require.NoError(t, svc.StartLive(context.Background(), 42))
	assert.Equal(t, 1, driver.starts)
	assert.Equal(t, models.AuctionStatusLive, store.statuses[42])
	assert.Equal(t, 1, pool.saveBindings)
}

func TestCreateLiveChannelReleasesOnProviderFailure(t *testing.T) {
	svc, _, pool, driver, _ := newLiveFixture(upcomingAuction())
	driver.createErr = errors.New("provider down")

	_, err := svc.CreateLiveChannel(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, 1, driver.creates)
	assert.Equal(t, 1, pool.releases, "failed provisioning must return the channel to the pool")
	assert.Empty(t, pool.allocated)
}

func TestCreateLiveChannelPoolExhausted(t *testing.T) {
	svc, _, pool, driver, _ := newLiveFixture(upcomingAuction())
	pool.allocateErr = shared.NewServiceError(shared.ErrorCategoryResource, shared.CodeNoChannelAvailable,
		"pool exhausted", "fake", "Allocate", true, nil)

	_, err := svc.CreateLiveChannel(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, shared.IsNoChannelAvailable(err))
	assert.Zero(t, driver.creates, "no provider call without a channel")
}

func TestEndLiveCleansUpLocallyOnRemoteFailure(t *testing.T) {
	auction := upcomingAuction()
	svc, store, pool, driver, settler := newLiveFixture(auction)
	svc.clock = func() time.Time { return auction.StartingTime.Add(time.Minute) }

	_, err := svc.CreateLiveChannel(context.Background(), 42)
	require.NoError(t, err)
	require.NoError(t, svc.StartLive(context.Background(), 42))

	driver.endErr = errors.New("provider down")
	err = svc.EndLive(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, shared.IsRemoteProviderFailure(err))

	assert.Equal(t, 1, pool.releases, "channel returns to the pool despite the remote failure")
	assert.Equal(t, models.AuctionStatusClosed, store.statuses[42])
	assert.Equal(t, int32(1), atomic.LoadInt32(&settler.settled), "manual end still resolves the auction")
}

func TestEndLiveSettlesExactlyOnce(t *testing.T) {
	auction := upcomingAuction()
	svc, store, pool, _, settler := newLiveFixture(auction)
	svc.clock = func() time.Time { return auction.StartingTime.Add(time.Minute) }

	_, err := svc.CreateLiveChannel(context.Background(), 42)
	require.NoError(t, err)
	require.NoError(t, svc.StartLive(context.Background(), 42))

	require.NoError(t, svc.EndLive(context.Background(), 42))
	assert.Equal(t, models.AuctionStatusClosed, store.statuses[42])
	assert.Empty(t, pool.allocated)
	assert.Equal(t, int32(1), atomic.LoadInt32(&settler.settled))
}

func TestDeleteLiveChannelWithoutChannelIsNoop(t *testing.T) {
	svc, _, pool, driver, _ := newLiveFixture(upcomingAuction())

	require.NoError(t, svc.DeleteLiveChannel(context.Background(), 42))
	assert.Zero(t, driver.deletes)
	assert.Zero(t, pool.releases)
}

func TestDeleteLiveChannelTearsDownProvisionedBroadcast(t *testing.T) {
	svc, _, pool, driver, _ := newLiveFixture(upcomingAuction())

	_, err := svc.CreateLiveChannel(context.Background(), 42)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteLiveChannel(context.Background(), 42))
	assert.Equal(t, 1, driver.deletes)
	assert.Equal(t, 1, pool.releases)
}
