package ledgerapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practiceledger-recon/internal/config"
)

func tokenTestConfig(tokenURL string) *config.LedgerConfig {
	return &config.LedgerConfig{
		TokenURL:     tokenURL,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		Timeout:      5 * time.Second,
	}
}

func TestTokenProvider_ClientCredentialsGrant(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "client-secret", r.PostForm.Get("client_secret"))
		assert.Empty(t, r.PostForm.Get("refresh_token"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok-1","expires_in":1800}`)
	}))
	defer server.Close()

	provider := NewTokenProvider(tokenTestConfig(server.URL))

	token, err := provider.Token(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, 1, requests)
}

func TestTokenProvider_CachesUntilExpiryMargin(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":1800}`, requests)
	}))
	defer server.Close()

	base := time.Date(2026, 3, 5, 9, 0, 0, 0, time.UTC)
	now := base
	provider := NewTokenProvider(tokenTestConfig(server.URL))
	provider.now = func() time.Time { return now }

	first, err := provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", first)

	// Well inside the token's lifetime: the cache answers.
	now = base.Add(10 * time.Minute)
	cached, err := provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", cached)
	assert.Equal(t, 1, requests)

	// Inside the expiry margin of the 30 minute lifetime: refreshed.
	now = base.Add(29 * time.Minute)
	refreshed, err := provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", refreshed)
	assert.Equal(t, 2, requests)
}

func TestTokenProvider_RefreshTokenGrantRotates(t *testing.T) {
	var seenRefreshTokens []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		seenRefreshTokens = append(seenRefreshTokens, r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","refresh_token":"rt-%d","expires_in":1800}`,
			len(seenRefreshTokens), len(seenRefreshTokens)+1)
	}))
	defer server.Close()

	cfg := tokenTestConfig(server.URL)
	cfg.RefreshToken = "rt-1"
	provider := NewTokenProvider(cfg)

	_, err := provider.Token(context.Background())
	require.NoError(t, err)

	provider.Invalidate()

	_, err = provider.Token(context.Background())
	require.NoError(t, err)

	// The second refresh must use the rotated credential, not the configured one.
	assert.Equal(t, []string{"rt-1", "rt-2"}, seenRefreshTokens)
}

func TestTokenProvider_Invalidate(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"tok","expires_in":1800}`)
	}))
	defer server.Close()

	provider := NewTokenProvider(tokenTestConfig(server.URL))

	_, err := provider.Token(context.Background())
	require.NoError(t, err)
	_, err = provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, requests)

	provider.Invalidate()

	_, err = provider.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, requests)
}

func TestTokenProvider_RejectionIsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"refresh token expired"}`)
	}))
	defer server.Close()

	provider := NewTokenProvider(tokenTestConfig(server.URL))

	_, err := provider.Token(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusBadRequest, authErr.StatusCode)
	assert.Contains(t, authErr.Message, "invalid_grant")
	assert.Contains(t, authErr.Message, "refresh token expired")
}

func TestTokenProvider_EmptyAccessTokenIsAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"expires_in":1800}`)
	}))
	defer server.Close()

	provider := NewTokenProvider(tokenTestConfig(server.URL))

	_, err := provider.Token(context.Background())

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Message, "no access token")
}
