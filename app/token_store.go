package app

import (
	"fmt"
	"time"

	"swingdesk/database"
)

const tokenProvider = "upstox"

// dbTokenStore persists the market data provider token in the access_tokens
// table so a restart inside the trading day does not force re-authorization.
type dbTokenStore struct {
	repo *database.WatchlistRepository
}

func newDBTokenStore(repo *database.WatchlistRepository) *dbTokenStore {
	return &dbTokenStore{repo: repo}
}

func (s *dbTokenStore) LoadToken() (string, time.Time, error) {
	tok, err := s.repo.GetAccessToken(tokenProvider)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("load access token: %w", err)
	}
	if tok == nil {
		return "", time.Time{}, nil
	}
	return tok.Token, tok.ExpiresAt, nil
}

func (s *dbTokenStore) SaveToken(token string, expiresAt time.Time) error {
	return s.repo.SaveAccessToken(&database.AccessToken{
		Provider:  tokenProvider,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
