package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"swingdesk/database"
)

// handleHealth returns the health status of the API
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Configuration Handlers (Webhooks Only)

func (s *Server) handleGetWebhooks(w http.ResponseWriter, r *http.Request) {
	webhooks, err := s.repo.GetWebhooks()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load webhooks", err)
		return
	}
	respondJSON(w, http.StatusOK, webhooks)
}

func (s *Server) handleCreateWebhook(w http.ResponseWriter, r *http.Request) {
	var webhook database.WebhookSubscription
	if err := json.NewDecoder(r.Body).Decode(&webhook); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if webhook.URL == "" {
		respondWithError(w, http.StatusBadRequest, "url is required", nil)
		return
	}

	// Reset ID to let DB assign it
	webhook.ID = 0

	if err := s.repo.SaveWebhook(&webhook); err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to save webhook", err)
		return
	}

	// Refresh webhook manager cache
	if s.webhookMq != nil {
		s.webhookMq.RefreshCache()
	}

	respondJSON(w, http.StatusCreated, webhook)
}

func (s *Server) handleUpdateWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", nil)
		return
	}

	var webhook database.WebhookSubscription
	if err := json.NewDecoder(r.Body).Decode(&webhook); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	webhook.ID = id // Ensure ID matches path
	if err := s.repo.SaveWebhook(&webhook); err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to save webhook", err)
		return
	}

	if s.webhookMq != nil {
		s.webhookMq.RefreshCache()
	}

	respondJSON(w, http.StatusOK, webhook)
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid ID", nil)
		return
	}

	if err := s.repo.DeleteWebhook(id); err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to delete webhook", err)
		return
	}

	if s.webhookMq != nil {
		s.webhookMq.RefreshCache()
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleAuthCallback completes the provider's OAuth redirect: exchanges the
// code, persists the token, and reports the new expiry.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.authManager == nil {
		respondWithError(w, http.StatusServiceUnavailable, "authentication not configured", nil)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		respondWithError(w, http.StatusBadRequest, "missing authorization code", nil)
		return
	}

	if err := s.authManager.HandleCallback(r.Context(), code); err != nil {
		respondWithError(w, http.StatusBadGateway, "token exchange failed", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "authorized",
		"expires_at": s.authManager.GetClient().GetExpiryTime(),
	})
}
