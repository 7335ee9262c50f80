package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ChannelAuditJob periodically repairs the channel pool. A channel marked
// allocated that no auction references any more (crash between release
// steps, manual surgery) is returned to the pool so it cannot leak forever.
type ChannelAuditJob struct {
	db       *sql.DB
	interval time.Duration
	quit     chan struct{}
	done     chan struct{}
}

func NewChannelAuditJob(db *sql.DB, interval time.Duration) *ChannelAuditJob {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &ChannelAuditJob{
		db:       db,
		interval: interval,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the audit loop in its own goroutine.
func (j *ChannelAuditJob) Start() {
	go j.loop()
	logrus.WithFields(logrus.Fields{
		"component": "ChannelAuditJob",
		"interval":  j.interval,
	}).Info("Channel audit job started")
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (j *ChannelAuditJob) Stop() {
	close(j.quit)
	<-j.done
}

func (j *ChannelAuditJob) loop() {
	defer close(j.done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := j.RunOnce(context.Background()); err != nil {
				logrus.WithField("component", "ChannelAuditJob").
					WithError(err).Error("Channel audit pass failed")
			}
		case <-j.quit:
			return
		}
	}
}

// RunOnce executes a single audit pass: release allocated channels with no
// referencing auction, and report channels referenced by more than one
// auction.
func (j *ChannelAuditJob) RunOnce(ctx context.Context) error {
	result, err := j.db.ExecContext(ctx, `
		UPDATE live_channels
		SET is_allocated = FALSE, broadcast_id = '', stream_id = '',
		    watch_url = '', stream_url = '', stream_key = ''
		WHERE is_allocated = TRUE
		  AND NOT EXISTS (SELECT 1 FROM auctions WHERE auctions.channel_id = live_channels.id)`)
	if err != nil {
		return fmt.Errorf("failed to release orphaned channels: %w", err)
	}
	if released, _ := result.RowsAffected(); released > 0 {
		logrus.WithFields(logrus.Fields{
			"component": "ChannelAuditJob",
			"released":  released,
		}).Warn("Released orphaned live channels")
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT channel_id, COUNT(*) FROM auctions
		WHERE channel_id IS NOT NULL
		GROUP BY channel_id
		HAVING COUNT(*) > 1`)
	if err != nil {
		return fmt.Errorf("failed to check channel references: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var channelID, refs int64
		if err := rows.Scan(&channelID, &refs); err != nil {
			return fmt.Errorf("failed to scan channel reference row: %w", err)
		}
		logrus.WithFields(logrus.Fields{
			"component":  "ChannelAuditJob",
			"channel_id": channelID,
			"references": refs,
		}).Error("Channel referenced by multiple auctions")
	}
	return rows.Err()
}
