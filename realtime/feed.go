package realtime

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// FeedServer serves the websocket feed of auction snapshots. It runs on its
// own listener next to the REST server; clients open
// GET /ws/auction/{id} and receive one JSON snapshot per settlement.
type FeedServer struct {
	hub      *Hub
	upgrader websocket.Upgrader
	server   *http.Server
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

func NewFeedServer(addr string, hub *Hub) *FeedServer {
	f := &FeedServer{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/auction/", f.handleFeed)
	f.server = &http.Server{Addr: addr, Handler: mux}
	return f
}

// ListenAndServe blocks serving the feed until Shutdown.
func (f *FeedServer) ListenAndServe() error {
	logrus.WithFields(logrus.Fields{
		"component": "FeedServer",
		"addr":      f.server.Addr,
	}).Info("Realtime feed listening")

	err := f.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains active ones.
func (f *FeedServer) Shutdown(ctx context.Context) error {
	return f.server.Shutdown(ctx)
}

func (f *FeedServer) handleFeed(w http.ResponseWriter, r *http.Request) {
	idPart := strings.TrimPrefix(r.URL.Path, "/ws/auction/")
	auctionID, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		http.Error(w, "invalid auction id", http.StatusBadRequest)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithField("component", "FeedServer").
			WithError(err).Warn("Websocket upgrade failed")
		return
	}

	sub := f.hub.Subscribe(auctionID)
	logger := logrus.WithFields(logrus.Fields{
		"component":  "FeedServer",
		"auction_id": auctionID,
		"remote":     conn.RemoteAddr().String(),
	})
	logger.Info("Feed subscriber connected")

	// Reader goroutine: its only job is to notice the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		f.hub.Unsubscribe(auctionID, sub)
		conn.Close()
		logger.Info("Feed subscriber disconnected")
	}()

	for {
		select {
		case snapshot, ok := <-sub:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snapshot); err != nil {
				logger.WithError(err).Warn("Failed to write snapshot to subscriber")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
