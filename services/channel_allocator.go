package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/bidhub/auction-backend/models"
	"github.com/bidhub/auction-backend/shared"
	"github.com/sirupsen/logrus"
)

// ChannelAllocator hands out slots from the finite live-broadcast channel
// pool. Allocation is serialized by a single-writer mutex on top of row
// locking, so two concurrent allocations can never receive the same
// channel even across processes.
type ChannelAllocator struct {
	db    *sql.DB
	mutex sync.Mutex
}

func NewChannelAllocator(db *sql.DB) *ChannelAllocator {
	return &ChannelAllocator{db: db}
}

const channelColumns = `
	id, stream_url, stream_key, watch_url, is_allocated, is_available,
	broadcast_id, stream_id`

func scanChannel(row interface{ Scan(...interface{}) error }) (*models.LiveChannel, error) {
	var c models.LiveChannel
	err := row.Scan(
		&c.ID, &c.StreamURL, &c.StreamKey, &c.WatchURL,
		&c.IsAllocated, &c.IsAvailable, &c.BroadcastID, &c.StreamID,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Allocate binds a free channel to the auction. Fails with
// NO_CHANNEL_AVAILABLE, leaving all state untouched, when the pool is
// exhausted.
func (a *ChannelAllocator) Allocate(ctx context.Context, auctionID int64) (*models.LiveChannel, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin allocate transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+channelColumns+` FROM live_channels
		WHERE is_available = TRUE AND is_allocated = FALSE
		ORDER BY id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`)

	channel, err := scanChannel(row)
	if err == sql.ErrNoRows {
		return nil, shared.NewServiceError(shared.ErrorCategoryResource, shared.CodeNoChannelAvailable,
			"no live channel available in the pool",
			"channel-allocator", "Allocate", true, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select free channel: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE live_channels SET is_allocated = TRUE WHERE id = $1`, channel.ID); err != nil {
		return nil, fmt.Errorf("failed to mark channel %d allocated: %w", channel.ID, err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE auctions SET channel_id = $1, updated_at = NOW() WHERE id = $2`,
		channel.ID, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to bind channel %d to auction %d: %w", channel.ID, auctionID, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return nil, shared.NewServiceError(shared.ErrorCategoryResource, shared.CodeNotFound,
			fmt.Sprintf("auction %d not found", auctionID),
			"channel-allocator", "Allocate", false, nil)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit channel allocation: %w", err)
	}

	channel.IsAllocated = true
	logrus.WithFields(logrus.Fields{
		"channel_id": channel.ID,
		"auction_id": auctionID,
	}).Info("Live channel allocated")
	return channel, nil
}

// Release returns the auction's channel to the pool, clearing provider
// identifiers. Calling it for an auction without a channel is a no-op.
func (a *ChannelAllocator) Release(ctx context.Context, auctionID int64) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin release transaction: %w", err)
	}
	defer tx.Rollback()

	var channelID sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT channel_id FROM auctions WHERE id = $1 FOR UPDATE`, auctionID,
	).Scan(&channelID)
	if err == sql.ErrNoRows {
		return shared.NewServiceError(shared.ErrorCategoryResource, shared.CodeNotFound,
			fmt.Sprintf("auction %d not found", auctionID),
			"channel-allocator", "Release", false, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to load auction %d channel ref: %w", auctionID, err)
	}

	if !channelID.Valid {
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE auctions SET channel_id = NULL, updated_at = NOW() WHERE id = $1`, auctionID); err != nil {
		return fmt.Errorf("failed to clear channel ref on auction %d: %w", auctionID, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE live_channels
		SET is_allocated = FALSE, broadcast_id = '', stream_id = '',
		    watch_url = '', stream_url = '', stream_key = ''
		WHERE id = $1`, channelID.Int64); err != nil {
		return fmt.Errorf("failed to reset channel %d: %w", channelID.Int64, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit channel release: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"channel_id": channelID.Int64,
		"auction_id": auctionID,
	}).Info("Live channel released")
	return nil
}

// SaveBinding persists the provider identifiers handed back by a
// successful broadcast create.
func (a *ChannelAllocator) SaveBinding(ctx context.Context, channelID int64, binding *BroadcastBinding) error {
	result, err := a.db.ExecContext(ctx, `
		UPDATE live_channels
		SET broadcast_id = $1, stream_id = $2, stream_url = $3, stream_key = $4, watch_url = $5
		WHERE id = $6`,
		binding.BroadcastID, binding.StreamID, binding.IngestURL, binding.StreamKey,
		binding.WatchURL, channelID)
	if err != nil {
		return fmt.Errorf("failed to save broadcast binding on channel %d: %w", channelID, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return shared.NewServiceError(shared.ErrorCategoryResource, shared.CodeNotFound,
			fmt.Sprintf("channel %d not found", channelID),
			"channel-allocator", "SaveBinding", false, nil)
	}
	return nil
}

// ChannelForAuction loads the channel currently bound to the auction.
func (a *ChannelAllocator) ChannelForAuction(ctx context.Context, auctionID int64) (*models.LiveChannel, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT `+channelColumns+` FROM live_channels
		WHERE id = (SELECT channel_id FROM auctions WHERE id = $1)`, auctionID)

	channel, err := scanChannel(row)
	if err == sql.ErrNoRows {
		return nil, shared.NewServiceError(shared.ErrorCategoryResource, shared.CodeNotFound,
			fmt.Sprintf("auction %d has no live channel", auctionID),
			"channel-allocator", "ChannelForAuction", false, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load channel for auction %d: %w", auctionID, err)
	}
	return channel, nil
}
