package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bidhub/auction-backend/shared"
	"github.com/sirupsen/logrus"
)

// TokenSource yields a bearer credential for streaming-provider calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenProvider caches a short-lived OAuth access token obtained through
// the refresh-token grant. The cached token is reused until fewer than
// refreshWindow of validity remain, then refreshed proactively so provider
// calls never carry an expired credential.
type TokenProvider struct {
	clientID      string
	clientSecret  string
	refreshToken  string
	tokenURL      string
	refreshWindow time.Duration
	client        *http.Client

	mutex       sync.Mutex
	accessToken string
	expiry      time.Time
}

// NewTokenProvider creates a token provider against the given OAuth token
// endpoint.
func NewTokenProvider(clientID, clientSecret, refreshToken, tokenURL string, refreshWindow time.Duration, client *http.Client) *TokenProvider {
	if refreshWindow <= 0 {
		refreshWindow = 60 * time.Second
	}
	if client == nil {
		client = shared.NewHTTPClientFactory(30 * time.Second).CreateOptimizedHTTPClient(0)
	}
	return &TokenProvider{
		clientID:      clientID,
		clientSecret:  clientSecret,
		refreshToken:  refreshToken,
		tokenURL:      tokenURL,
		refreshWindow: refreshWindow,
		client:        client,
	}
}

// AccessToken returns the cached token while it remains valid for at least
// the refresh window, otherwise refreshes it. Refreshes are single-flight:
// concurrent callers wait for one network round trip.
func (p *TokenProvider) AccessToken(ctx context.Context) (string, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.accessToken != "" && time.Now().Before(p.expiry.Add(-p.refreshWindow)) {
		return p.accessToken, nil
	}

	form := url.Values{
		"client_id":     {p.clientID},
		"client_secret": {p.clientSecret},
		"refresh_token": {p.refreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", shared.WrapError(err, shared.ErrorCategoryProvider, shared.CodeRemoteProviderFailure,
			"token-provider", "AccessToken", true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", shared.NewServiceError(shared.ErrorCategoryProvider, shared.CodeRemoteProviderFailure,
			fmt.Sprintf("token endpoint returned HTTP %d", resp.StatusCode),
			"token-provider", "AccessToken", true, nil)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", shared.NewServiceError(shared.ErrorCategoryProvider, shared.CodeRemoteProviderFailure,
			"token endpoint returned empty access token",
			"token-provider", "AccessToken", true, nil)
	}

	p.accessToken = payload.AccessToken
	p.expiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)

	logrus.WithFields(logrus.Fields{
		"component":  "TokenProvider",
		"expires_in": payload.ExpiresIn,
	}).Debug("Refreshed provider access token")

	return p.accessToken, nil
}
