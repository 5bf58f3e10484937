package ga4

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/j-veylop/ga4-dashboard-tui/internal/models"
)

var testCreds = Credentials{ClientID: "cid", ClientSecret: "csec", RefreshToken: "valid"}

func TestRefreshAccessToken(t *testing.T) {
	tests := []struct {
		name      string
		creds     Credentials
		transport http.RoundTripper
		wantErr   bool
		wantAuth  bool
	}{
		{
			name:  "Success",
			creds: testCreds,
			transport: &MockRoundTripper{
				RoundTripFunc: func(req *http.Request) (*http.Response, error) {
					body, _ := json.Marshal(TokenResponse{AccessToken: "new", ExpiresIn: 3600})
					return &http.Response{StatusCode: 200, Body: io.NopCloser(bytes.NewReader(body))}, nil
				},
			},
		},
		{
			name:     "EmptyToken",
			creds:    Credentials{ClientID: "cid"},
			wantErr:  true,
			wantAuth: true,
		},
		{
			name:  "HTTPError",
			creds: testCreds,
			transport: &MockRoundTripper{
				RoundTripFunc: func(req *http.Request) (*http.Response, error) {
					return nil, errors.New("net error")
				},
			},
			wantErr: true,
		},
		{
			name:  "RevokedGrant",
			creds: testCreds,
			transport: &MockRoundTripper{
				RoundTripFunc: func(req *http.Request) (*http.Response, error) {
					return &http.Response{StatusCode: 400, Body: io.NopCloser(strings.NewReader(`{"error":"invalid_grant"}`))}, nil
				},
			},
			wantErr:  true,
			wantAuth: true,
		},
		{
			name:  "JSONError",
			creds: testCreds,
			transport: &MockRoundTripper{
				RoundTripFunc: func(req *http.Request) (*http.Response, error) {
					return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader("invalid json"))}, nil
				},
			},
			wantErr:  true,
			wantAuth: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &http.Client{Transport: tt.transport}
			if tt.transport == nil {
				client = nil
			}
			_, err := RefreshAccessToken(context.Background(), client, "", tt.creds)
			if (err != nil) != tt.wantErr {
				t.Errorf("RefreshAccessToken() error = %v, wantErr %v", err, tt.wantErr)
			}
			var authErr *models.AuthError
			if got := errors.As(err, &authErr); got != tt.wantAuth {
				t.Errorf("RefreshAccessToken() auth error = %v, want %v (%v)", got, tt.wantAuth, err)
			}
		})
	}
}

func TestCachedToken_IsValid(t *testing.T) {
	now := time.Now()

	var nilToken *CachedToken
	if nilToken.IsValid(now) {
		t.Error("nil token should be invalid")
	}
	if (&CachedToken{AccessToken: "a", ExpiresAt: now.Add(4 * time.Minute)}).IsValid(now) {
		t.Error("token inside the expiry buffer should be invalid")
	}
	if !(&CachedToken{AccessToken: "a", ExpiresAt: now.Add(time.Hour)}).IsValid(now) {
		t.Error("token with an hour left should be valid")
	}
}

func TestTokenSource_CachesUntilNearExpiry(t *testing.T) {
	var exchanges atomic.Int32
	hc := &http.Client{Transport: &MockRoundTripper{
		RoundTripFunc: func(req *http.Request) (*http.Response, error) {
			if req.URL.String() != googleOAuthURL {
				return nil, errors.New("unexpected request")
			}
			n := exchanges.Add(1)
			body, _ := json.Marshal(TokenResponse{AccessToken: "token-" + string(rune('0'+n)), ExpiresIn: 3600})
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(body))}, nil
		},
	}}

	ts := NewTokenSource(StaticCredentials(testCreds), hc)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ts.now = func() time.Time { return now }

	tok, err := ts.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "token-1", tok)

	tok, err = ts.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "token-1", tok)
	require.Equal(t, int32(1), exchanges.Load())

	now = now.Add(56 * time.Minute)
	tok, err = ts.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "token-2", tok)

	ts.Invalidate()
	tok, err = ts.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "token-3", tok)
}

func TestTokenSource_MissingCredentials(t *testing.T) {
	ts := NewTokenSource(StaticCredentials{ClientID: "cid"}, nil)
	_, err := ts.Token(context.Background())

	var authErr *models.AuthError
	require.True(t, errors.As(err, &authErr))
}

func writeCreds(t *testing.T, path string, c Credentials) {
	t.Helper()
	data, err := json.Marshal(c)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestFileCredentials_LoadAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	writeCreds(t, path, testCreds)

	changed := make(chan struct{}, 4)
	fc, err := NewFileCredentials(path, func() { changed <- struct{}{} })
	require.NoError(t, err)
	defer fc.Close()

	got, err := fc.Credentials()
	require.NoError(t, err)
	require.Equal(t, "valid", got.RefreshToken)

	updated := testCreds
	updated.RefreshToken = "rotated"
	writeCreds(t, path, updated)

	select {
	case <-changed:
	case <-time.After(3 * time.Second):
		t.Fatal("credentials change not observed")
	}
	got, err = fc.Credentials()
	require.NoError(t, err)
	require.Equal(t, "rotated", got.RefreshToken)
}

func TestFileCredentials_Invalid(t *testing.T) {
	dir := t.TempDir()

	_, err := NewFileCredentials(filepath.Join(dir, "missing.json"), nil)
	require.Error(t, err)

	path := filepath.Join(dir, "partial.json")
	writeCreds(t, path, Credentials{ClientID: "cid"})
	_, err = NewFileCredentials(path, nil)
	require.ErrorContains(t, err, "client_secret")
}

func TestFileCredentials_BrokenRewriteKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	writeCreds(t, path, testCreds)

	fc, err := NewFileCredentials(path, nil)
	require.NoError(t, err)
	defer fc.Close()

	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o600))
	fc.handleFileChange()

	got, err := fc.Credentials()
	require.NoError(t, err)
	require.Equal(t, "valid", got.RefreshToken)
}
