package realtime

import (
	"sync"

	"github.com/bidhub/auction-backend/models"
	"github.com/sirupsen/logrus"
)

// Hub fans auction snapshots out to per-auction subscribers. Delivery is
// best effort: a subscriber whose buffer is full misses the message rather
// than blocking the publisher.
type Hub struct {
	mutex  sync.RWMutex
	topics map[int64]map[chan *models.AuctionDetailSnapshot]struct{}
}

const subscriberBuffer = 8

func NewHub() *Hub {
	return &Hub{
		topics: make(map[int64]map[chan *models.AuctionDetailSnapshot]struct{}),
	}
}

// Subscribe registers interest in one auction. The returned channel
// receives snapshots until Unsubscribe.
func (h *Hub) Subscribe(auctionID int64) chan *models.AuctionDetailSnapshot {
	ch := make(chan *models.AuctionDetailSnapshot, subscriberBuffer)

	h.mutex.Lock()
	defer h.mutex.Unlock()

	subs, ok := h.topics[auctionID]
	if !ok {
		subs = make(map[chan *models.AuctionDetailSnapshot]struct{})
		h.topics[auctionID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the channel from the auction's topic and closes it.
func (h *Hub) Unsubscribe(auctionID int64, ch chan *models.AuctionDetailSnapshot) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	subs, ok := h.topics[auctionID]
	if !ok {
		return
	}
	if _, member := subs[ch]; !member {
		return
	}
	delete(subs, ch)
	if len(subs) == 0 {
		delete(h.topics, auctionID)
	}
	close(ch)
}

// PublishSnapshot delivers the snapshot to every subscriber of its auction.
func (h *Hub) PublishSnapshot(snapshot *models.AuctionDetailSnapshot) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	subs, ok := h.topics[snapshot.AuctionID]
	if !ok {
		return
	}

	for ch := range subs {
		select {
		case ch <- snapshot:
		default:
			logrus.WithFields(logrus.Fields{
				"component":  "RealtimeHub",
				"auction_id": snapshot.AuctionID,
			}).Warn("Dropping snapshot for slow subscriber")
		}
	}
}

// SubscriberCount reports the current subscriber total for an auction.
func (h *Hub) SubscriberCount(auctionID int64) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.topics[auctionID])
}
