package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/bidhub/auction-backend/shared"
	"github.com/sirupsen/logrus"
)

// BroadcastBinding carries everything a channel needs to go on air after a
// successful remote create: the provider identifiers plus the ingest and
// viewer endpoints.
type BroadcastBinding struct {
	BroadcastID string `json:"broadcast_id"`
	StreamID    string `json:"stream_id"`
	IngestURL   string `json:"ingest_url"`
	StreamKey   string `json:"stream_key"`
	WatchURL    string `json:"watch_url"`
}

// BroadcastDriver drives the remote broadcast lifecycle:
// UNPROVISIONED -> SCHEDULED (create) -> LIVE (start) -> COMPLETE (end) ->
// UNPROVISIONED (delete). One implementation per streaming provider.
type BroadcastDriver interface {
	CreateBroadcast(ctx context.Context, title, description string, scheduledStart time.Time) (*BroadcastBinding, error)
	StartBroadcast(ctx context.Context, broadcastID string) error
	EndBroadcast(ctx context.Context, broadcastID, streamID string) error
	DeleteBroadcast(ctx context.Context, broadcastID, streamID string) error
}

// YouTubeService implements BroadcastDriver against the YouTube Live API.
// Every call is a blocking network round trip authenticated with a bearer
// token from the TokenSource and paced by the shared rate limiter.
type YouTubeService struct {
	baseURL string
	tokens  TokenSource
	client  *http.Client
	limiter *shared.HTTPRequestRateLimiter
	metrics *shared.OperationMetrics
}

func NewYouTubeService(baseURL string, tokens TokenSource, client *http.Client, limiter *shared.HTTPRequestRateLimiter) *YouTubeService {
	if client == nil {
		client = shared.NewHTTPClientFactory(30 * time.Second).CreateOptimizedHTTPClient(0)
	}
	if limiter == nil {
		limiter = shared.NewHTTPRequestRateLimiter(time.Second)
	}
	return &YouTubeService{
		baseURL: baseURL,
		tokens:  tokens,
		client:  client,
		limiter: limiter,
		metrics: shared.NewOperationMetrics("youtube-service"),
	}
}

// Metrics exposes the driver's operation counters.
func (s *YouTubeService) Metrics() *shared.OperationMetrics {
	return s.metrics
}

// CreateBroadcast performs create-broadcast, create-stream and
// bind-stream-to-broadcast as one logical operation. A failure after the
// remote objects exist is fatal to the call; the orphaned identifiers are
// logged at error level for manual cleanup, there is no compensation.
func (s *YouTubeService) CreateBroadcast(ctx context.Context, title, description string, scheduledStart time.Time) (*BroadcastBinding, error) {
	broadcastPayload := map[string]interface{}{
		"snippet": map[string]interface{}{
			"title":              title,
			"description":        description,
			"scheduledStartTime": scheduledStart.UTC().Format(time.RFC3339),
		},
		"status": map[string]interface{}{
			"privacyStatus": "public",
		},
		"contentDetails": map[string]interface{}{
			"monitorStream": map[string]interface{}{"enableMonitorStream": false},
		},
	}

	var broadcast struct {
		ID string `json:"id"`
	}
	err := s.call(ctx, "CreateBroadcast", http.MethodPost,
		s.baseURL+"/liveBroadcasts?part=snippet,status,contentDetails",
		broadcastPayload, &broadcast)
	if err != nil {
		return nil, err
	}

	streamPayload := map[string]interface{}{
		"snippet": map[string]interface{}{
			"title": title + " stream",
		},
		"cdn": map[string]interface{}{
			"format":        "1080p",
			"resolution":    "1080p",
			"frameRate":     "30fps",
			"ingestionType": "rtmp",
		},
	}

	var stream struct {
		ID  string `json:"id"`
		CDN struct {
			IngestionInfo struct {
				IngestionAddress string `json:"ingestionAddress"`
				StreamName       string `json:"streamName"`
			} `json:"ingestionInfo"`
		} `json:"cdn"`
	}
	err = s.call(ctx, "CreateStream", http.MethodPost,
		s.baseURL+"/liveStreams?part=snippet,cdn", streamPayload, &stream)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component":    "YouTubeService",
			"broadcast_id": broadcast.ID,
		}).Error("Stream creation failed after broadcast create; orphaned broadcast needs manual cleanup")
		return nil, err
	}

	bindURL := fmt.Sprintf("%s/liveBroadcasts/bind?id=%s&part=id,snippet&streamId=%s",
		s.baseURL, url.QueryEscape(broadcast.ID), url.QueryEscape(stream.ID))
	if err := s.call(ctx, "BindStream", http.MethodPost, bindURL, nil, nil); err != nil {
		logrus.WithFields(logrus.Fields{
			"component":    "YouTubeService",
			"broadcast_id": broadcast.ID,
			"stream_id":    stream.ID,
		}).Error("Bind failed after broadcast and stream create; orphaned remote objects need manual cleanup")
		return nil, err
	}

	return &BroadcastBinding{
		BroadcastID: broadcast.ID,
		StreamID:    stream.ID,
		IngestURL:   stream.CDN.IngestionInfo.IngestionAddress,
		StreamKey:   stream.CDN.IngestionInfo.StreamName,
		WatchURL:    "https://www.youtube.com/watch?v=" + broadcast.ID,
	}, nil
}

// StartBroadcast transitions the remote broadcast to LIVE.
func (s *YouTubeService) StartBroadcast(ctx context.Context, broadcastID string) error {
	return s.transition(ctx, "StartBroadcast", broadcastID, "live")
}

// EndBroadcast transitions the broadcast to COMPLETE, deletes it, then
// deletes the stream when one is bound. Every step is attempted; failures
// are logged and the last one is returned so the caller can decide whether
// remote debris blocks it (for channel release it does not).
func (s *YouTubeService) EndBroadcast(ctx context.Context, broadcastID, streamID string) error {
	var lastErr error

	if err := s.transition(ctx, "CompleteBroadcast", broadcastID, "complete"); err != nil {
		logrus.WithFields(logrus.Fields{
			"component":    "YouTubeService",
			"broadcast_id": broadcastID,
		}).WithError(err).Error("Failed to transition broadcast to complete")
		lastErr = err
	}

	if err := s.DeleteBroadcast(ctx, broadcastID, streamID); err != nil {
		lastErr = err
	}

	return lastErr
}

// DeleteBroadcast removes the remote broadcast and, when present, its
// stream.
func (s *YouTubeService) DeleteBroadcast(ctx context.Context, broadcastID, streamID string) error {
	var lastErr error

	deleteURL := s.baseURL + "/liveBroadcasts?id=" + url.QueryEscape(broadcastID)
	if err := s.call(ctx, "DeleteBroadcast", http.MethodDelete, deleteURL, nil, nil); err != nil {
		logrus.WithFields(logrus.Fields{
			"component":    "YouTubeService",
			"broadcast_id": broadcastID,
		}).WithError(err).Error("Failed to delete broadcast")
		lastErr = err
	}

	if streamID != "" {
		streamURL := s.baseURL + "/liveStreams?id=" + url.QueryEscape(streamID)
		if err := s.call(ctx, "DeleteStream", http.MethodDelete, streamURL, nil, nil); err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "YouTubeService",
				"stream_id": streamID,
			}).WithError(err).Error("Failed to delete stream")
			lastErr = err
		}
	}

	return lastErr
}

func (s *YouTubeService) transition(ctx context.Context, operation, broadcastID, status string) error {
	transitionURL := fmt.Sprintf("%s/liveBroadcasts/transition?part=status&id=%s&broadcastStatus=%s",
		s.baseURL, url.QueryEscape(broadcastID), status)
	return s.call(ctx, operation, http.MethodPost, transitionURL, nil, nil)
}

// call performs one authenticated JSON round trip to the provider.
func (s *YouTubeService) call(ctx context.Context, operation, method, callURL string, payload, out interface{}) error {
	start := time.Now()
	err := s.doCall(ctx, method, callURL, payload, out)
	s.metrics.Record(operation, time.Since(start), err)
	if err != nil {
		return shared.WrapError(err, shared.ErrorCategoryProvider, shared.CodeRemoteProviderFailure,
			"youtube-service", operation, true)
	}
	return nil
}

func (s *YouTubeService) doCall(ctx context.Context, method, callURL string, payload, out interface{}) error {
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}

	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, callURL, body)
	if err != nil {
		return fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	s.limiter.EnforceRateLimit()

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned HTTP %d for %s %s", resp.StatusCode, method, callURL)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to decode provider response: %w", err)
		}
	}
	return nil
}
