// Package app wires the services together and runs the background jobs:
// end-of-day tracking, live reconciliation, and week rollover.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"swingdesk/api"
	"swingdesk/auth"
	"swingdesk/broker"
	"swingdesk/cache"
	"swingdesk/config"
	"swingdesk/database"
	"swingdesk/marketdata"
	"swingdesk/notifications"
	"swingdesk/realtime"
)

// App represents the main application
type App struct {
	config      *config.Config
	authManager *auth.AuthManager
	db          *database.Database
	statsDB     *database.DB
	redis       *cache.RedisClient
	repo        *database.WatchlistRepository
	stats       *database.StatsRepository
	prices      *cache.PriceCache
	mdClient    *marketdata.Client
	feed        *marketdata.FeedManager
	webhooks    *notifications.WebhookManager
	sse         *realtime.Broker
	paper       *broker.PaperBroker

	eodTracker *EODTracker
	live       *LiveReconciler
	rollover   *RolloverJob
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	return &App{config: cfg}
}

// Start starts the application
func (a *App) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Database Connections
	fmt.Println("🗄️  Connecting to database...")
	db, err := database.Connect(
		a.config.DatabaseHost,
		a.config.DatabasePort,
		a.config.DatabaseName,
		a.config.DatabaseUser,
		a.config.DatabasePassword,
	)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db

	statsDB, err := database.NewConnection(database.Config{
		Host:     a.config.DatabaseHost,
		Port:     a.config.DatabasePort,
		User:     a.config.DatabaseUser,
		Password: a.config.DatabasePassword,
		DBName:   a.config.DatabaseName,
	})
	if err != nil {
		return fmt.Errorf("stats database connection failed: %w", err)
	}
	a.statsDB = statsDB

	a.repo = database.NewWatchlistRepository(a.db)
	if err := a.repo.InitSchema(); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}
	a.stats = database.NewStatsRepository(a.statsDB)

	// 2. Redis Connection
	fmt.Println("🧠 Connecting to Redis...")
	redisClient := cache.NewRedisClient(
		a.config.RedisHost,
		a.config.RedisPort,
		a.config.RedisPassword,
	)
	if redisClient == nil {
		fmt.Println("⚠️  Redis connection failed. Caching disabled.")
	} else {
		a.redis = redisClient
		a.prices = cache.NewPriceCache(redisClient)
	}

	// 3. Event fan-out
	a.webhooks = notifications.NewWebhookManager(a.repo, a.redis)
	a.sse = realtime.NewBroker()
	go a.sse.Run()

	// 4. Market data authentication
	authClient := auth.NewAuthClient(a.config.MarketData.BaseURL, auth.Credentials{
		APIKey:      a.config.MarketData.APIKey,
		APISecret:   a.config.MarketData.APISecret,
		RedirectURI: a.config.MarketData.RedirectURI,
	})
	a.authManager = auth.NewAuthManager(authClient, newDBTokenStore(a.repo))

	authorized := true
	if err := a.authManager.EnsureAuthenticated(); err != nil {
		if !errors.Is(err, auth.ErrAuthorizationRequired) {
			return fmt.Errorf("authentication failed: %w", err)
		}
		// The API keeps serving persisted state; market data resumes after
		// the operator completes the OAuth redirect.
		authorized = false
		log.Println("⏳ Waiting for authorization via /auth/callback; live data paused")
	}

	a.mdClient = marketdata.NewClient(a.config.MarketData.BaseURL, authClient)
	a.paper = broker.NewPaperBroker(a.config.Broker, a.config.Trading.CapitalPerTrade)
	if a.paper != nil {
		log.Println("💼 Paper broker mirroring ENABLED")
	}

	// 5. Background jobs
	a.eodTracker = NewEODTracker(a.repo, a.mdClient, a.webhooks, a.sse, a.prices, a.config.Trading)
	go a.eodTracker.Start()

	a.live = NewLiveReconciler(a.repo, a.mdClient, a.prices, a.webhooks, a.sse, a.paper, a.config.Trading,
		time.Duration(a.config.MarketData.PollInterval)*time.Second)

	a.rollover = NewRolloverJob(a.repo, a.prices, a.sse, a.paper, a.config.Trading)
	go a.rollover.Start()

	// 6. API Server
	screener := NewScreener(a.mdClient, a.config.Trading)
	apiServer := api.NewServer(a.repo, a.stats, a.webhooks, a.sse, a.prices)
	apiServer.SetScreener(screener, a.config.Trading.MaxWatchlistSize)
	apiServer.SetAuthManager(a.authManager)
	apiPort, err := strconv.Atoi(a.config.ServerPort)
	if err != nil {
		return fmt.Errorf("invalid server port: %w", err)
	}
	go func() {
		if err := apiServer.Start(apiPort); err != nil {
			log.Printf("⚠️  API Server failed: %v", err)
		}
	}()

	var wg sync.WaitGroup

	// 7. Token expiry monitoring. Daily tokens lapse at 03:30 IST; the feed
	// is torn down until the operator re-authorizes.
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.authManager.RunTokenMonitor(ctx, func() {
			log.Println("🔑 Access token lapsed; closing live feed until re-authorization")
			a.closeFeed()
		})
	}()

	// 8. Live feed
	if authorized {
		a.startFeed(ctx, &wg)
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.waitForAuthorization(ctx, &wg)
		}()
	}

	err = a.gracefulShutdown(cancel)
	wg.Wait()
	return err
}

// startFeed connects the websocket feed for the active watchlist and starts
// its read and health loops.
func (a *App) startFeed(ctx context.Context, wg *sync.WaitGroup) {
	feed := marketdata.NewFeedManager(a.config.MarketData.WSURL, a.authManager.GetClient(), a.live.OnTick)
	keys := a.live.InstrumentKeys()
	if err := feed.Connect(keys); err != nil {
		log.Printf("⚠️  Live feed connect failed: %v", err)
	} else {
		log.Printf("📡 Live feed connected for %d instruments", len(keys))
	}
	a.feed = feed

	wg.Add(2)
	go func() {
		defer wg.Done()
		feed.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		feed.RunHealthMonitor(ctx)
	}()
}

// waitForAuthorization polls until the OAuth callback lands, then brings the
// feed up.
func (a *App) waitForAuthorization(ctx context.Context, wg *sync.WaitGroup) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.authManager.GetClient().IsTokenValid() {
				log.Println("🔐 Authorization received; starting live feed")
				a.startFeed(ctx, wg)
				return
			}
		}
	}
}

func (a *App) closeFeed() {
	if a.feed != nil {
		if err := a.feed.Close(); err != nil {
			log.Printf("Error closing live feed: %v", err)
		}
	}
}

// gracefulShutdown handles graceful shutdown with timeout
func (a *App) gracefulShutdown(cancel context.CancelFunc) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	<-interrupt
	fmt.Println("\n🛑 Shutdown signal received, initiating graceful shutdown...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	shutdownComplete := make(chan struct{})
	go func() {
		if a.eodTracker != nil {
			fmt.Println("📊 Stopping end-of-day tracker...")
			a.eodTracker.Stop()
		}
		if a.rollover != nil {
			fmt.Println("🔄 Stopping rollover job...")
			a.rollover.Stop()
		}

		fmt.Println("📡 Closing live feed...")
		a.closeFeed()

		if a.db != nil {
			if err := a.db.Close(); err != nil {
				log.Printf("Error closing database: %v", err)
			} else {
				fmt.Println("✅ Database connection closed")
			}
		}
		if a.statsDB != nil {
			if err := a.statsDB.Close(); err != nil {
				log.Printf("Error closing stats database: %v", err)
			}
		}
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				log.Printf("Error closing redis: %v", err)
			} else {
				fmt.Println("✅ Redis connection closed")
			}
		}

		close(shutdownComplete)
	}()

	select {
	case <-shutdownComplete:
		fmt.Println("✅ Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		fmt.Println("⚠️  Shutdown timeout exceeded, forcing exit")
		return fmt.Errorf("shutdown timeout")
	}
}
