package marketdata

import (
	"context"
	"fmt"
	"log"
	"time"
)

// FeedManager handles feed connection lifecycle, health monitoring, and
// reconnection.
type FeedManager struct {
	feed        *Feed
	tokens      TokenSource
	wsURL       string
	instruments []string
	lastMsgTime time.Time
	onTick      func(Tick)
}

// NewFeedManager creates a new FeedManager. onTick is invoked for every
// received tick.
func NewFeedManager(wsURL string, tokens TokenSource, onTick func(Tick)) *FeedManager {
	return &FeedManager{
		wsURL:       wsURL,
		tokens:      tokens,
		lastMsgTime: time.Now(),
		onTick:      onTick,
	}
}

// Connect establishes the feed connection and subscribes.
func (fm *FeedManager) Connect(instrumentKeys []string) error {
	fmt.Println("🔌 Connecting to market data feed...")
	fm.feed = NewFeed(fm.wsURL, fm.tokens.GetAccessToken())

	if err := fm.feed.Connect(); err != nil {
		return fmt.Errorf("market data feed connection failed: %w", err)
	}
	fmt.Println("✅ Market data feed connected!")

	fm.instruments = instrumentKeys
	return fm.feed.Subscribe(instrumentKeys)
}

// Resubscribe updates the instrument set on a live connection. Used when the
// watchlist changes mid-week.
func (fm *FeedManager) Resubscribe(instrumentKeys []string) error {
	fm.instruments = instrumentKeys
	if fm.feed == nil {
		return nil
	}
	return fm.feed.Subscribe(instrumentKeys)
}

// Run reads ticks until the context ends, reconnecting on read errors.
func (fm *FeedManager) Run(ctx context.Context) {
	log.Println("📶 Market data feed loop started")

	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 Market data feed loop stopped")
			_ = fm.Close()
			return
		default:
		}

		if fm.feed == nil {
			if err := fm.Reconnect(); err != nil {
				log.Printf("❌ Feed reconnection failed: %v", err)
				sleepCtx(ctx, 10*time.Second)
				continue
			}
		}

		ticks, err := fm.feed.ReadTicks()
		if err != nil {
			log.Printf("⚠️ Feed read error: %v, reconnecting...", err)
			_ = fm.feed.Close()
			fm.feed = nil
			sleepCtx(ctx, 5*time.Second)
			continue
		}

		fm.lastMsgTime = time.Now()
		for _, tick := range ticks {
			fm.onTick(tick)
		}
	}
}

// Reconnect re-establishes the connection with the current token and
// resubscribes to the last instrument set.
func (fm *FeedManager) Reconnect() error {
	if fm.feed != nil {
		_ = fm.feed.Close()
	}

	fm.feed = NewFeed(fm.wsURL, fm.tokens.GetAccessToken())
	if err := fm.feed.Connect(); err != nil {
		fm.feed = nil
		return fmt.Errorf("feed connection failed: %w", err)
	}
	if err := fm.feed.Subscribe(fm.instruments); err != nil {
		return err
	}

	log.Println("✅ Feed reconnection successful")
	return nil
}

// RunHealthMonitor restarts the connection if the feed goes quiet during
// market hours.
func (fm *FeedManager) RunHealthMonitor(ctx context.Context) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	log.Println("💓 Feed health monitoring started")

	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 Feed health monitoring stopped")
			return
		case <-ticker.C:
			timeSinceLastMessage := time.Since(fm.lastMsgTime)

			if timeSinceLastMessage > 5*time.Minute {
				log.Printf("⚠️ No feed message for %v, reconnecting...", timeSinceLastMessage.Round(time.Second))
				if err := fm.Reconnect(); err != nil {
					log.Printf("❌ Feed reconnection failed: %v", err)
				} else {
					fm.lastMsgTime = time.Now()
				}
			} else {
				log.Printf("💓 Feed healthy, last message %v ago", timeSinceLastMessage.Round(time.Second))
			}
		}
	}
}

// Close closes the feed connection.
func (fm *FeedManager) Close() error {
	if fm.feed != nil {
		return fm.feed.Close()
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
