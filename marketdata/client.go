// Package marketdata talks to the NSE market data provider: historical and
// intraday candles over REST, live ticks over WebSocket.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"

	"swingdesk/levels"
	"swingdesk/simulation"
	"swingdesk/tracking"
	"swingdesk/watchlist"
)

// TokenSource supplies the current provider access token.
type TokenSource interface {
	GetAccessToken() string
}

// Client is the REST client for candles and quotes.
type Client struct {
	client *resty.Client
	tokens TokenSource
}

// NewClient creates a new market data client.
func NewClient(baseURL string, tokens TokenSource) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)

	return &Client{client: client, tokens: tokens}
}

// Candle is one OHLCV bar from the provider.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// candleResponse is the provider's wire format: candles arrive as
// positional arrays [timestamp, open, high, low, close, volume, oi].
type candleResponse struct {
	Status string `json:"status"`
	Data   struct {
		Candles [][]json.RawMessage `json:"candles"`
	} `json:"data"`
}

func (c *Client) authed(ctx context.Context) *resty.Request {
	return c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetAuthToken(c.tokens.GetAccessToken())
}

// GetDailyCandles fetches daily bars for an instrument, oldest first.
func (c *Client) GetDailyCandles(ctx context.Context, instrumentKey string, from, to time.Time) ([]Candle, error) {
	path := fmt.Sprintf("/historical-candle/%s/day/%s/%s",
		instrumentKey, to.Format("2006-01-02"), from.Format("2006-01-02"))
	return c.fetchCandles(ctx, path)
}

// GetIntradayCandles fetches today's 1-minute bars, oldest first.
func (c *Client) GetIntradayCandles(ctx context.Context, instrumentKey string) ([]Candle, error) {
	path := fmt.Sprintf("/historical-candle/intraday/%s/1minute", instrumentKey)
	return c.fetchCandles(ctx, path)
}

func (c *Client) fetchCandles(ctx context.Context, path string) ([]Candle, error) {
	resp, err := c.authed(ctx).Get(path)
	if err != nil {
		return nil, fmt.Errorf("fetch candles: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("candle API error %d: %s", resp.StatusCode(), resp.String())
	}

	var cr candleResponse
	if err := json.Unmarshal(resp.Body(), &cr); err != nil {
		return nil, fmt.Errorf("failed to parse candle response: %w", err)
	}

	candles := make([]Candle, 0, len(cr.Data.Candles))
	for _, raw := range cr.Data.Candles {
		candle, err := parseCandle(raw)
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}

	// The provider returns newest first.
	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })
	return candles, nil
}

func parseCandle(raw []json.RawMessage) (Candle, error) {
	var candle Candle
	if len(raw) < 6 {
		return candle, fmt.Errorf("malformed candle row: %d fields", len(raw))
	}

	var ts string
	if err := json.Unmarshal(raw[0], &ts); err != nil {
		return candle, fmt.Errorf("malformed candle timestamp: %w", err)
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return candle, fmt.Errorf("malformed candle timestamp %q: %w", ts, err)
	}
	candle.Timestamp = t

	fields := []*float64{&candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume}
	for i, dst := range fields {
		if err := json.Unmarshal(raw[i+1], dst); err != nil {
			return candle, fmt.Errorf("malformed candle field %d: %w", i+1, err)
		}
	}
	return candle, nil
}

// Quote is a last-traded-price snapshot.
type Quote struct {
	InstrumentKey string
	LastPrice     float64
	At            time.Time
}

type ltpResponse struct {
	Status string `json:"status"`
	Data   map[string]struct {
		LastPrice float64 `json:"last_price"`
	} `json:"data"`
}

// GetQuote fetches the last traded price for an instrument.
func (c *Client) GetQuote(ctx context.Context, instrumentKey string) (Quote, error) {
	resp, err := c.authed(ctx).
		SetQueryParam("instrument_key", instrumentKey).
		Get("/market-quote/ltp")
	if err != nil {
		return Quote{}, fmt.Errorf("fetch quote: %w", err)
	}
	if resp.StatusCode() != 200 {
		return Quote{}, fmt.Errorf("quote API error %d: %s", resp.StatusCode(), resp.String())
	}

	var lr ltpResponse
	if err := json.Unmarshal(resp.Body(), &lr); err != nil {
		return Quote{}, fmt.Errorf("failed to parse quote response: %w", err)
	}
	for _, q := range lr.Data {
		return Quote{InstrumentKey: instrumentKey, LastPrice: q.LastPrice, At: time.Now()}, nil
	}
	return Quote{}, fmt.Errorf("quote response empty for %s", instrumentKey)
}

// FindLevelCrossTime scans today's minute bars for the first one whose range
// reached the level in the given direction. Implements the reconciler's
// crossing-time lookup.
func (c *Client) FindLevelCrossTime(instrumentKey string, level float64, dir levels.Direction, onOrBefore time.Time) (*simulation.LevelCross, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	candles, err := c.GetIntradayCandles(ctx, instrumentKey)
	if err != nil {
		return nil, err
	}

	for _, candle := range candles {
		if candle.Timestamp.After(onOrBefore) {
			break
		}
		crossed := candle.High >= level
		if dir == levels.Short {
			crossed = candle.Low <= level
		}
		if crossed {
			return &simulation.LevelCross{Time: candle.Timestamp, Price: level}, nil
		}
	}
	return nil, nil
}

// DailySnapshotFrom converts a provider candle into a snapshot skeleton for
// its trading day. Indicator fields are filled by the tracker.
func DailySnapshotFrom(candle Candle) tracking.DailySnapshot {
	return tracking.DailySnapshot{
		Date:   candle.Timestamp.In(watchlist.Location()).Format(tracking.DateLayout),
		Open:   candle.Open,
		High:   candle.High,
		Low:    candle.Low,
		Close:  candle.Close,
		Volume: candle.Volume,
	}
}
