package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"swingdesk/watchlist"
)

// Credentials holds the market data provider's API application credentials.
type Credentials struct {
	APIKey      string
	APISecret   string
	RedirectURI string
}

// TokenData stores the current access token. Provider tokens are issued per
// authorization and expire at 03:30 IST the next day; there is no refresh
// grant, only re-authorization.
type TokenData struct {
	AccessToken string
	ExpiresAt   time.Time
}

// AuthClient exchanges authorization codes for access tokens.
type AuthClient struct {
	credentials Credentials
	tokenData   TokenData
	client      *resty.Client
	mu          sync.RWMutex
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// NewAuthClient creates a new AuthClient.
func NewAuthClient(baseURL string, creds Credentials) *AuthClient {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)

	return &AuthClient{
		credentials: creds,
		client:      client,
	}
}

// AuthorizeURL returns the URL the operator opens to grant access.
func (ac *AuthClient) AuthorizeURL() string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", ac.credentials.APIKey)
	q.Set("redirect_uri", ac.credentials.RedirectURI)
	return ac.client.BaseURL + "/login/authorization/dialog?" + q.Encode()
}

// ExchangeCode trades an authorization code for an access token.
func (ac *AuthClient) ExchangeCode(ctx context.Context, code string) error {
	resp, err := ac.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"code":          code,
			"client_id":     ac.credentials.APIKey,
			"client_secret": ac.credentials.APISecret,
			"redirect_uri":  ac.credentials.RedirectURI,
			"grant_type":    "authorization_code",
		}).
		Post("/login/authorization/token")
	if err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("token exchange error %d: %s", resp.StatusCode(), resp.String())
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body(), &tr); err != nil {
		return fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("token exchange returned empty token")
	}

	ac.SetToken(tr.AccessToken, nextTokenExpiry(time.Now()))
	return nil
}

// SetToken installs a token directly (from the persistence store).
func (ac *AuthClient) SetToken(token string, expiresAt time.Time) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.tokenData = TokenData{AccessToken: token, ExpiresAt: expiresAt}
}

// GetAccessToken returns the current access token ("" when unauthenticated).
func (ac *AuthClient) GetAccessToken() string {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.tokenData.AccessToken
}

// GetExpiryTime returns the token expiry.
func (ac *AuthClient) GetExpiryTime() time.Time {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.tokenData.ExpiresAt
}

// IsTokenValid reports whether a non-expired token is installed.
func (ac *AuthClient) IsTokenValid() bool {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.tokenData.AccessToken != "" && time.Now().Before(ac.tokenData.ExpiresAt)
}

// nextTokenExpiry is 03:30 IST on the day after issuance (or later today
// when issued before 03:30).
func nextTokenExpiry(issued time.Time) time.Time {
	loc := watchlist.Location()
	lt := issued.In(loc)
	expiry := time.Date(lt.Year(), lt.Month(), lt.Day(), 3, 30, 0, 0, loc)
	if !expiry.After(lt) {
		expiry = expiry.AddDate(0, 0, 1)
	}
	return expiry
}
