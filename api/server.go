// Package api exposes the watchlist, simulation, and analytics surface over
// HTTP, plus the SSE event stream.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"swingdesk/auth"
	"swingdesk/cache"
	"swingdesk/database"
	"swingdesk/levels"
	"swingdesk/notifications"
	"swingdesk/realtime"
	"swingdesk/watchlist"
)

// StockScreener turns a candidate symbol into a watchlist entry. A nil entry
// with a non-empty reason means the candidate was structurally rejected.
type StockScreener interface {
	Screen(ctx context.Context, symbol, instrumentKey, name string, arch levels.Archetype, dir levels.Direction) (*watchlist.StockEntry, string, error)
}

// Server handles HTTP API requests
type Server struct {
	repo        *database.WatchlistRepository
	stats       *database.StatsRepository
	webhookMq   *notifications.WebhookManager
	broker      *realtime.Broker
	prices      *cache.PriceCache
	screener    StockScreener
	authManager *auth.AuthManager
	maxStocks   int
}

// NewServer creates a new API server instance
func NewServer(repo *database.WatchlistRepository, stats *database.StatsRepository, webhookMq *notifications.WebhookManager, broker *realtime.Broker, prices *cache.PriceCache) *Server {
	return &Server{
		repo:      repo,
		stats:     stats,
		webhookMq: webhookMq,
		broker:    broker,
		prices:    prices,
	}
}

// SetScreener injects the screening service and the watchlist size cap.
func (s *Server) SetScreener(screener StockScreener, maxStocks int) {
	s.screener = screener
	s.maxStocks = maxStocks
}

// SetAuthManager injects the token manager backing the OAuth callback route.
func (s *Server) SetAuthManager(am *auth.AuthManager) {
	s.authManager = am
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()

	// Register routes
	mux.Handle("GET /api/events", s.broker) // SSE Endpoint

	// Watchlist Routes
	mux.HandleFunc("GET /api/watchlist/active", s.handleGetActiveWatchlist)
	mux.HandleFunc("GET /api/watchlist/history", s.handleGetWatchlistHistory)
	mux.HandleFunc("GET /api/watchlist/{week}", s.handleGetWatchlistByWeek)
	mux.HandleFunc("POST /api/watchlist/stocks", s.handleAddStock)
	mux.HandleFunc("GET /api/stocks/{symbol}/snapshots", s.handleGetStockSnapshots)
	mux.HandleFunc("GET /api/stocks/{symbol}/simulation", s.handleGetStockSimulation)
	mux.HandleFunc("GET /api/prices", s.handleGetLivePrices)

	// Performance Analytics Routes
	mux.HandleFunc("GET /api/performance/weekly", s.handleGetWeeklyPerformance)
	mux.HandleFunc("GET /api/performance/archetypes", s.handleGetArchetypePerformance)
	mux.HandleFunc("GET /api/performance/statuses", s.handleGetStatusDistribution)
	mux.HandleFunc("GET /api/performance/top", s.handleGetTopPerformers)

	// Webhook Management Routes
	mux.HandleFunc("GET /api/config/webhooks", s.handleGetWebhooks)
	mux.HandleFunc("POST /api/config/webhooks", s.handleCreateWebhook)
	mux.HandleFunc("PUT /api/config/webhooks/{id}", s.handleUpdateWebhook)
	mux.HandleFunc("DELETE /api/config/webhooks/{id}", s.handleDeleteWebhook)

	// Provider OAuth callback
	mux.HandleFunc("GET /auth/callback", s.handleAuthCallback)

	mux.HandleFunc("GET /health", s.handleHealth)

	// Serve Static Files (Public UI)
	fs := http.FileServer(http.Dir("./public"))
	mux.Handle("GET /", fs)

	// Add middleware
	handler := s.corsMiddleware(s.loggingMiddleware(mux))

	serverAddr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Printf("🚀 API Server starting on %s", serverAddr)
	return http.ListenAndServe(serverAddr, handler)
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}
