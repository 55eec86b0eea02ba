package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrAuthorizationRequired signals that no usable token exists and the
// operator must complete the authorization flow.
var ErrAuthorizationRequired = errors.New("market data authorization required")

// TokenStore persists the access token across restarts.
type TokenStore interface {
	// LoadToken returns the stored token, or ("", zero, nil) when absent.
	LoadToken() (token string, expiresAt time.Time, err error)
	SaveToken(token string, expiresAt time.Time) error
}

// AuthManager handles the market data token lifecycle: loading the persisted
// token at startup, completing the authorization callback, and warning before
// the daily expiry.
type AuthManager struct {
	client *AuthClient
	store  TokenStore
}

// NewAuthManager creates a new AuthManager instance.
func NewAuthManager(client *AuthClient, store TokenStore) *AuthManager {
	return &AuthManager{client: client, store: store}
}

// EnsureAuthenticated loads the persisted token. Provider tokens cannot be
// refreshed programmatically, so an expired or missing token returns
// ErrAuthorizationRequired with the authorize URL logged for the operator.
func (am *AuthManager) EnsureAuthenticated() error {
	fmt.Println("🔐 Authenticating to market data provider...")

	token, expiresAt, err := am.store.LoadToken()
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}
	if token != "" {
		am.client.SetToken(token, expiresAt)
		if am.client.IsTokenValid() {
			fmt.Println("✅ Using persisted token")
			fmt.Printf("⏰ Token expires at: %s\n", expiresAt.Format("2006-01-02 15:04:05"))
			return nil
		}
		fmt.Println("⚠️  Persisted token expired")
	}

	log.Printf("🔑 Authorization needed, open: %s", am.client.AuthorizeURL())
	return ErrAuthorizationRequired
}

// HandleCallback completes the authorization flow with the code delivered to
// the redirect URI, then persists the new token.
func (am *AuthManager) HandleCallback(ctx context.Context, code string) error {
	if err := am.client.ExchangeCode(ctx, code); err != nil {
		return err
	}
	if err := am.store.SaveToken(am.client.GetAccessToken(), am.client.GetExpiryTime()); err != nil {
		log.Printf("⚠️  Failed to persist token: %v", err)
	} else {
		log.Println("💾 Token persisted")
	}
	fmt.Println("✅ Authorization successful!")
	return nil
}

// RunTokenMonitor starts a background loop that warns as the daily expiry
// approaches and invokes onExpired once the token lapses.
func (am *AuthManager) RunTokenMonitor(ctx context.Context, onExpired func()) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	log.Println("🔄 Token expiry monitoring started")

	notified := false
	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 Token monitoring stopped")
			return
		case <-ticker.C:
			if am.client.GetAccessToken() == "" {
				continue
			}
			timeUntilExpiry := time.Until(am.client.GetExpiryTime())

			switch {
			case timeUntilExpiry <= 0:
				if !notified {
					log.Printf("❌ Token expired, re-authorization needed: %s", am.client.AuthorizeURL())
					notified = true
					if onExpired != nil {
						onExpired()
					}
				}
			case timeUntilExpiry <= 30*time.Minute:
				log.Printf("⚠️  Token expires in %v, prepare to re-authorize", timeUntilExpiry.Round(time.Minute))
			default:
				notified = false
				log.Printf("🔐 Token valid, expires in %v", timeUntilExpiry.Round(time.Minute))
			}
		}
	}
}

// GetClient returns the underlying AuthClient.
func (am *AuthManager) GetClient() *AuthClient {
	return am.client
}
