package tests

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bidhub/auction-backend/models"
	"github.com/bidhub/auction-backend/services"
	"github.com/bidhub/auction-backend/shared"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// IntegrationTestSuite wires the SQL-backed services against a real
// Postgres instance.
type IntegrationTestSuite struct {
	db          *sql.DB
	auctions    *services.AuctionService
	channels    *services.ChannelAllocator
	settlements *services.SettlementService
}

// SetupIntegrationTestSuite initializes the integration test environment.
// Tests skip when no test database is reachable.
func SetupIntegrationTestSuite(t *testing.T) *IntegrationTestSuite {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://localhost/auction_backend_test?sslmode=disable"
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Skipf("Skipping integration tests - database not available: %v", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Skipf("Skipping integration tests - database ping failed: %v", err)
		return nil
	}

	schema, err := os.ReadFile(filepath.Join("..", "database", "schema.sql"))
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	suite := &IntegrationTestSuite{
		db:          db,
		auctions:    services.NewAuctionService(db),
		channels:    services.NewChannelAllocator(db),
		settlements: services.NewSettlementService(db, services.NewNotificationService(db), nil),
	}
	suite.truncate(t)
	t.Cleanup(func() {
		suite.truncate(t)
		db.Close()
	})
	return suite
}

func (s *IntegrationTestSuite) truncate(t *testing.T) {
	t.Helper()
	_, err := s.db.Exec(`TRUNCATE notifications, settlement_records, bids, auctions, live_channels, accounts RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

func (s *IntegrationTestSuite) createAccount(t *testing.T, memberID, balance int64) {
	t.Helper()
	_, err := s.db.Exec(`INSERT INTO accounts (member_id, balance) VALUES ($1, $2)`, memberID, balance)
	require.NoError(t, err)
}

func (s *IntegrationTestSuite) createEndedAuction(t *testing.T) *models.Auction {
	t.Helper()
	auction, err := s.auctions.CreateAuction(context.Background(), &models.Auction{
		ProductName:        "Vintage watch",
		ProductDescription: "1960s chronograph",
		SellerID:           1,
		AuctionStatus:      models.AuctionStatusOngoing,
		StartingTime:       time.Now().Add(-2 * time.Hour),
		EndingTime:         time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)
	return auction
}

func (s *IntegrationTestSuite) placeBid(t *testing.T, auctionID, bidderID, amount int64, at time.Time) {
	t.Helper()
	_, err := s.db.Exec(`INSERT INTO bids (auction_id, bidder_id, amount, bid_time) VALUES ($1, $2, $3, $4)`,
		auctionID, bidderID, amount, at)
	require.NoError(t, err)
}

func (s *IntegrationTestSuite) seedChannels(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := s.db.Exec(`
			INSERT INTO live_channels (stream_url, stream_key, watch_url, is_allocated, is_available)
			VALUES ('rtmp://a.rtmp.youtube.com/live2', '', '', FALSE, TRUE)`)
		require.NoError(t, err)
	}
}

func TestSettleSoldAuction(t *testing.T) {
	suite := SetupIntegrationTestSuite(t)
	ctx := context.Background()

	auction := suite.createEndedAuction(t)
	suite.createAccount(t, 10, 1000)
	suite.createAccount(t, 11, 1000)

	base := time.Now().Add(-time.Hour)
	suite.placeBid(t, auction.ID, 10, 300, base)
	suite.placeBid(t, auction.ID, 11, 200, base.Add(time.Minute))

	require.NoError(t, suite.settlements.Settle(ctx, auction.ID))

	settled, err := suite.auctions.GetAuction(ctx, auction.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusSold, settled.AuctionStatus)
	require.NotNil(t, settled.WinnerID)
	assert.Equal(t, int64(11), *settled.WinnerID, "latest bid wins even at a lower amount")
	require.NotNil(t, settled.WinningBid)
	assert.Equal(t, int64(200), *settled.WinningBid)

	var balance int64
	require.NoError(t, suite.db.QueryRow(`SELECT balance FROM accounts WHERE member_id = 11`).Scan(&balance))
	assert.Equal(t, int64(800), balance)

	var records int
	require.NoError(t, suite.db.QueryRow(
		`SELECT COUNT(*) FROM settlement_records WHERE auction_id = $1`, auction.ID).Scan(&records))
	assert.Equal(t, 1, records)
}

func TestSettleUnsoldAuctionWithoutBids(t *testing.T) {
	suite := SetupIntegrationTestSuite(t)
	ctx := context.Background()

	auction := suite.createEndedAuction(t)
	require.NoError(t, suite.settlements.Settle(ctx, auction.ID))

	settled, err := suite.auctions.GetAuction(ctx, auction.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusUnsold, settled.AuctionStatus)
	assert.Nil(t, settled.WinnerID)

	var records int
	require.NoError(t, suite.db.QueryRow(`SELECT COUNT(*) FROM settlement_records`).Scan(&records))
	assert.Zero(t, records)
}

func TestSettleInsufficientFundsRollsBack(t *testing.T) {
	suite := SetupIntegrationTestSuite(t)
	ctx := context.Background()

	auction := suite.createEndedAuction(t)
	suite.createAccount(t, 10, 100)
	suite.placeBid(t, auction.ID, 10, 500, time.Now().Add(-time.Hour))

	err := suite.settlements.Settle(ctx, auction.ID)
	require.Error(t, err)
	assert.True(t, shared.IsInsufficientFunds(err))

	// Nothing moved: status, balance and records are untouched.
	settled, err := suite.auctions.GetAuction(ctx, auction.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AuctionStatusOngoing, settled.AuctionStatus)

	var balance int64
	require.NoError(t, suite.db.QueryRow(`SELECT balance FROM accounts WHERE member_id = 10`).Scan(&balance))
	assert.Equal(t, int64(100), balance)
}

func TestSettleExactlyOnce(t *testing.T) {
	suite := SetupIntegrationTestSuite(t)
	ctx := context.Background()

	auction := suite.createEndedAuction(t)
	suite.createAccount(t, 10, 1000)
	suite.placeBid(t, auction.ID, 10, 300, time.Now().Add(-time.Hour))

	var successes, alreadySettled int32
	var mutex sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := suite.settlements.Settle(ctx, auction.ID)
			mutex.Lock()
			defer mutex.Unlock()
			switch {
			case err == nil:
				successes++
			case shared.IsAlreadySettled(err):
				alreadySettled++
			default:
				t.Errorf("unexpected settlement error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes, "exactly one settlement must win")
	assert.Equal(t, int32(4), alreadySettled)

	var balance int64
	require.NoError(t, suite.db.QueryRow(`SELECT balance FROM accounts WHERE member_id = 10`).Scan(&balance))
	assert.Equal(t, int64(700), balance, "the winner is debited exactly once")
}

func TestChannelAllocationExhaustsPool(t *testing.T) {
	suite := SetupIntegrationTestSuite(t)
	ctx := context.Background()

	suite.seedChannels(t, 2)

	var auctionIDs []int64
	for i := 0; i < 3; i++ {
		auction, err := suite.auctions.CreateAuction(ctx, &models.Auction{
			ProductName:  fmt.Sprintf("Lot %d", i+1),
			SellerID:     1,
			StartingTime: time.Now().Add(time.Hour),
			EndingTime:   time.Now().Add(2 * time.Hour),
		})
		require.NoError(t, err)
		auctionIDs = append(auctionIDs, auction.ID)
	}

	first, err := suite.channels.Allocate(ctx, auctionIDs[0])
	require.NoError(t, err)
	second, err := suite.channels.Allocate(ctx, auctionIDs[1])
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID, "a channel serves at most one auction")

	_, err = suite.channels.Allocate(ctx, auctionIDs[2])
	require.Error(t, err)
	assert.True(t, shared.IsNoChannelAvailable(err))
}

func TestChannelReleaseRoundTrip(t *testing.T) {
	suite := SetupIntegrationTestSuite(t)
	ctx := context.Background()

	suite.seedChannels(t, 1)
	auction, err := suite.auctions.CreateAuction(ctx, &models.Auction{
		ProductName:  "Vintage watch",
		SellerID:     1,
		StartingTime: time.Now().Add(time.Hour),
		EndingTime:   time.Now().Add(2 * time.Hour),
	})
	require.NoError(t, err)

	channel, err := suite.channels.Allocate(ctx, auction.ID)
	require.NoError(t, err)
	require.NoError(t, suite.channels.SaveBinding(ctx, channel.ID, &services.BroadcastBinding{
		BroadcastID: "bc-1", StreamID: "st-1",
		IngestURL: "rtmp://ingest", StreamKey: "key", WatchURL: "https://watch",
	}))

	require.NoError(t, suite.channels.Release(ctx, auction.ID))

	// Released channel carries no provider state and is allocatable again.
	reallocated, err := suite.channels.Allocate(ctx, auction.ID)
	require.NoError(t, err)
	assert.Equal(t, channel.ID, reallocated.ID)
	assert.Empty(t, reallocated.BroadcastID)
	assert.Empty(t, reallocated.StreamID)

	// Releasing an auction without a channel is a no-op.
	require.NoError(t, suite.channels.Release(ctx, auction.ID))
	require.NoError(t, suite.channels.Release(ctx, auction.ID))
}
