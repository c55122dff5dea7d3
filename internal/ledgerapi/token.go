package ledgerapi

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

	"github.com/practiceledger-recon/internal/config"
)

// tokenExpiryMargin is how close to expiry a cached token may get before it
// is replaced. Wide enough to cover clock skew plus the longest batch call.
const tokenExpiryMargin = 2 * time.Minute

// Token is an opaque bearer credential with its expiry instant.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// TokenProvider owns the process-wide token cache. Token returns the cached
// credential while it is comfortably inside its lifetime and refreshes it
// synchronously otherwise. The refresh path is guarded by a mutex so
// concurrent invocations serialise on one refresh instead of stampeding the
// token endpoint.
type TokenProvider struct {
	mu           sync.Mutex
	httpClient   *http.Client
	tokenURL     string
	clientID     string
	clientSecret string
	refreshToken string
	current      Token
	now          func() time.Time
}

// NewTokenProvider creates a token provider from the ledger configuration.
// When a refresh token is configured the refresh-token grant is used and the
// rotated refresh token is kept; otherwise the client-credentials grant.
func NewTokenProvider(cfg *config.LedgerConfig) *TokenProvider {
	return &TokenProvider{
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		refreshToken: cfg.RefreshToken,
		now:          time.Now,
	}
}

// Token returns a valid bearer token, refreshing the cache when it is within
// the expiry margin.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current.AccessToken != "" && p.now().Add(tokenExpiryMargin).Before(p.current.ExpiresAt) {
		return p.current.AccessToken, nil
	}

	if err := p.refreshLocked(ctx); err != nil {
		return "", err
	}
	return p.current.AccessToken, nil
}

// Invalidate drops the cached token so the next Token call refreshes. Called
// by the client after the remote API rejects a request with 401 despite an
// apparently live token.
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = Token{}
}

func (p *TokenProvider) refreshLocked(ctx context.Context) error {
	form := url.Values{}
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	if p.refreshToken != "" {
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", p.refreshToken)
	} else {
		form.Set("grant_type", "client_credentials")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return &AuthError{Message: fmt.Sprintf("token request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var errResp struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		message := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			message = errResp.Error
			if errResp.Description != "" {
				message += ": " + errResp.Description
			}
		}
		return &AuthError{StatusCode: resp.StatusCode, Message: message}
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return &AuthError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to decode token response: %v", err)}
	}
	if tokenResp.AccessToken == "" {
		return &AuthError{StatusCode: resp.StatusCode, Message: "token response contained no access token"}
	}

	p.current = Token{
		AccessToken: tokenResp.AccessToken,
		ExpiresAt:   p.now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
	}
	if tokenResp.RefreshToken != "" {
		// The remote identity provider rotates refresh tokens on use.
		p.refreshToken = tokenResp.RefreshToken
	}
	return nil
}
