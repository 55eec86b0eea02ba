package api

import (
	"net/http"
	"time"

	"swingdesk/watchlist"
)

func (s *Server) handleGetWeeklyPerformance(w http.ResponseWriter, r *http.Request) {
	maxLimit := 104
	limit := getIntParam(r, "limit", 12, nil, &maxLimit)

	rows, err := s.stats.GetWeeklyPerformance(limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load weekly performance", err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGetArchetypePerformance(w http.ResponseWriter, r *http.Request) {
	sinceWeek := r.URL.Query().Get("since") // week key, empty means all history

	rows, err := s.stats.GetArchetypePerformance(sinceWeek)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load archetype performance", err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGetStatusDistribution(w http.ResponseWriter, r *http.Request) {
	maxWeeks := 104
	weeks := getIntParam(r, "weeks", 12, nil, &maxWeeks)
	since := time.Now().In(watchlist.Location()).AddDate(0, 0, -7*weeks)

	rows, err := s.stats.GetStatusDistribution(since)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load status distribution", err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGetTopPerformers(w http.ResponseWriter, r *http.Request) {
	maxLimit := 50
	limit := getIntParam(r, "limit", 10, nil, &maxLimit)
	if r.URL.Query().Get("order") == "worst" {
		limit = -limit
	}

	rows, err := s.stats.GetTopPerformers(limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load top performers", err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}
