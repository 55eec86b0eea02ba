package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"swingdesk/database"
	"swingdesk/levels"
	"swingdesk/tracking"
	"swingdesk/watchlist"
)

func (s *Server) handleGetActiveWatchlist(w http.ResponseWriter, r *http.Request) {
	if s.prices != nil {
		if cached, ok := s.prices.GetActiveWatchlist(r.Context()); ok {
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	active, err := s.repo.GetActive()
	if err != nil {
		if database.IsNotFound(err) {
			respondWithError(w, http.StatusNotFound, "no active watchlist", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to load watchlist", err)
		return
	}

	if s.prices != nil {
		_ = s.prices.SetActiveWatchlist(r.Context(), active)
	}
	respondJSON(w, http.StatusOK, active)
}

func (s *Server) handleGetWatchlistHistory(w http.ResponseWriter, r *http.Request) {
	maxLimit := 52
	limit := getIntParam(r, "limit", 12, nil, &maxLimit)

	lists, err := s.repo.History(limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load history", err)
		return
	}
	respondJSON(w, http.StatusOK, lists)
}

func (s *Server) handleGetWatchlistByWeek(w http.ResponseWriter, r *http.Request) {
	weekStr := r.PathValue("week")
	weekStart, err := time.ParseInLocation(tracking.DateLayout, weekStr, watchlist.Location())
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "week must be a Monday date (YYYY-MM-DD)", nil)
		return
	}

	list, err := s.repo.GetByWeek(weekStart)
	if err != nil {
		if database.IsNotFound(err) {
			respondWithError(w, http.StatusNotFound, "no watchlist for week "+weekStr, nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to load watchlist", err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// addStockRequest is the screen-in payload. Archetype and direction carry the
// caller's trade thesis; technicals are fetched server-side.
type addStockRequest struct {
	Symbol        string `json:"symbol"`
	InstrumentKey string `json:"instrument_key"`
	Name          string `json:"name"`
	Archetype     string `json:"archetype"`
	Direction     string `json:"direction"`
}

func (s *Server) handleAddStock(w http.ResponseWriter, r *http.Request) {
	if s.screener == nil {
		respondWithError(w, http.StatusServiceUnavailable, "screening unavailable", nil)
		return
	}

	var req addStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Symbol == "" || req.InstrumentKey == "" {
		respondWithError(w, http.StatusBadRequest, "symbol and instrument_key are required", nil)
		return
	}

	arch := levels.Archetype(strings.ToLower(req.Archetype))
	dir := levels.Direction(strings.ToUpper(req.Direction))
	if dir == "" {
		dir = levels.Long
	}

	active, err := s.repo.GetActive()
	if err != nil {
		if database.IsNotFound(err) {
			respondWithError(w, http.StatusConflict, "no active watchlist to add to", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to load watchlist", err)
		return
	}

	symbol := strings.ToUpper(req.Symbol)
	if s.maxStocks > 0 && len(active.Stocks) >= s.maxStocks && active.FindStock(symbol) == nil {
		respondWithError(w, http.StatusConflict,
			fmt.Sprintf("watchlist is full (%d stocks)", s.maxStocks), nil)
		return
	}

	entry, reason, err := s.screener.Screen(r.Context(), symbol, req.InstrumentKey, req.Name, arch, dir)
	if err != nil {
		respondWithError(w, http.StatusBadGateway, "screening failed", err)
		return
	}
	if entry == nil {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"symbol": symbol,
			"result": "rejected",
			"reason": reason,
		})
		return
	}

	if err := active.AddStock(*entry); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := s.repo.Save(active); err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to save watchlist", err)
		return
	}
	if s.prices != nil {
		s.prices.InvalidateActiveWatchlist(r.Context())
	}

	respondJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleGetStockSnapshots(w http.ResponseWriter, r *http.Request) {
	stock, ok := s.findActiveStock(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, stock.Snapshots)
}

func (s *Server) handleGetStockSimulation(w http.ResponseWriter, r *http.Request) {
	stock, ok := s.findActiveStock(w, r)
	if !ok {
		return
	}
	if stock.Simulation == nil {
		respondWithError(w, http.StatusNotFound, "no simulation for "+stock.Symbol, nil)
		return
	}
	respondJSON(w, http.StatusOK, stock.Simulation)
}

func (s *Server) handleGetLivePrices(w http.ResponseWriter, r *http.Request) {
	if s.prices == nil {
		respondWithError(w, http.StatusServiceUnavailable, "price cache unavailable", nil)
		return
	}

	active, err := s.repo.GetActive()
	if err != nil {
		if database.IsNotFound(err) {
			respondJSON(w, http.StatusOK, map[string]interface{}{})
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to load watchlist", err)
		return
	}

	keys := make([]string, 0, len(active.Stocks))
	for i := range active.Stocks {
		keys = append(keys, active.Stocks[i].InstrumentKey)
	}
	prices, err := s.prices.GetLivePrices(r.Context(), keys)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to read prices", err)
		return
	}
	respondJSON(w, http.StatusOK, prices)
}

// findActiveStock resolves the {symbol} path parameter against the active
// watchlist, writing the error response itself when not found.
func (s *Server) findActiveStock(w http.ResponseWriter, r *http.Request) (*watchlist.StockEntry, bool) {
	symbol := strings.ToUpper(r.PathValue("symbol"))

	active, err := s.repo.GetActive()
	if err != nil {
		if database.IsNotFound(err) {
			respondWithError(w, http.StatusNotFound, "no active watchlist", nil)
			return nil, false
		}
		respondWithError(w, http.StatusInternalServerError, "failed to load watchlist", err)
		return nil, false
	}

	stock := active.FindStock(symbol)
	if stock == nil {
		respondWithError(w, http.StatusNotFound, symbol+" is not on the active watchlist", nil)
		return nil, false
	}
	return stock, true
}
