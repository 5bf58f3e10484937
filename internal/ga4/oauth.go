package ga4

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/j-veylop/ga4-dashboard-tui/internal/logger"
	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

const (
	// Google OAuth token endpoint
	googleOAuthURL = "https://oauth2.googleapis.com/token"

	// tokenExpiryBuffer refreshes tokens this long before they expire.
	tokenExpiryBuffer = 5 * time.Minute
)

// TokenResponse represents the OAuth token response from Google.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	TokenType    string `json:"token_type"`
	IDToken      string `json:"id_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
}

// CachedToken represents a cached access token with expiration.
type CachedToken struct {
	ExpiresAt   time.Time
	AccessToken string
}

// IsValid checks if the cached token is still usable at now.
func (t *CachedToken) IsValid(now time.Time) bool {
	if t == nil || t.AccessToken == "" {
		return false
	}
	return now.Add(tokenExpiryBuffer).Before(t.ExpiresAt)
}

// RefreshAccessToken exchanges a refresh token for a new access token.
// A 400 or 401 from the token endpoint means the grant is unusable and is
// reported as an AuthError; anything else is transient.
func RefreshAccessToken(ctx context.Context, client *http.Client, tokenURL string, creds Credentials) (*TokenResponse, error) {
	if creds.RefreshToken == "" {
		return nil, &models.AuthError{Message: "refresh token is empty"}
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if tokenURL == "" {
		tokenURL = googleOAuthURL
	}

	data := url.Values{}
	data.Set("client_id", creds.ClientID)
	data.Set("client_secret", creds.ClientSecret)
	data.Set("refresh_token", creds.RefreshToken)
	data.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &models.TransientError{Err: fmt.Errorf("token request failed: %w", err)}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read token response: %w", err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		return nil, &models.AuthError{StatusCode: resp.StatusCode, Message: "token refresh rejected: " + string(body)}
	default:
		return nil, &models.TransientError{StatusCode: resp.StatusCode, Err: fmt.Errorf("token refresh failed: %s", string(body))}
	}

	var tokenResp TokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, &models.AuthError{StatusCode: resp.StatusCode, Message: "unparsable token response"}
	}
	if tokenResp.AccessToken == "" {
		return nil, &models.AuthError{StatusCode: resp.StatusCode, Message: "token response without access token"}
	}

	return &tokenResp, nil
}

// TokenSource hands out access tokens, refreshing them shortly before expiry.
type TokenSource struct {
	creds      CredentialsProvider
	httpClient *http.Client
	now        func() time.Time
	cached     *CachedToken
	tokenURL   string
	mu         sync.Mutex
}

// NewTokenSource creates a token source over creds.
func NewTokenSource(creds CredentialsProvider, httpClient *http.Client) *TokenSource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenSource{
		creds:      creds,
		httpClient: httpClient,
		tokenURL:   googleOAuthURL,
		now:        time.Now,
	}
}

// Token returns a valid access token.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached.IsValid(s.now()) {
		return s.cached.AccessToken, nil
	}

	creds, err := s.creds.Credentials()
	if err != nil {
		return "", &models.AuthError{Message: err.Error()}
	}

	resp, err := RefreshAccessToken(ctx, s.httpClient, s.tokenURL, creds)
	if err != nil {
		return "", err
	}

	expiresIn := time.Duration(resp.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}
	s.cached = &CachedToken{
		AccessToken: resp.AccessToken,
		ExpiresAt:   s.now().Add(expiresIn),
	}
	logger.Debug("refreshed access token", "expires_in", expiresIn)
	return s.cached.AccessToken, nil
}

// Invalidate drops the cached token so the next call refreshes.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
}
