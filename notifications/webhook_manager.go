// Package notifications delivers simulation events to subscribed webhook
// endpoints with HMAC-signed payloads.
package notifications

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"swingdesk/cache"
	"swingdesk/database"
	"swingdesk/helpers"
	"swingdesk/simulation"
)

const webhookCacheKey = "active_webhooks"

// WebhookManager fans simulation events out to registered endpoints.
type WebhookManager struct {
	repo   *database.WatchlistRepository
	redis  *cache.RedisClient
	client *http.Client
}

// WebhookPayload is the JSON body posted to each subscriber.
type WebhookPayload struct {
	EventType  string     `json:"event_type"`
	Symbol     string     `json:"symbol"`
	WeekKey    string     `json:"week_key"`
	Price      float64    `json:"price"`
	Quantity   int64      `json:"quantity"`
	PnL        float64    `json:"pnl"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
	Status     string     `json:"status"`
	Message    string     `json:"message"`
}

// NewWebhookManager creates a webhook manager. The redis client may be nil,
// in which case subscriptions are loaded from the database on every event.
func NewWebhookManager(repo *database.WatchlistRepository, redis *cache.RedisClient) *WebhookManager {
	return &WebhookManager{
		repo:  repo,
		redis: redis,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NotifyEvent processes one simulation event and posts it to matching webhooks.
func (wm *WebhookManager) NotifyEvent(symbol, weekKey string, ev simulation.Event, status simulation.SimStatus) {
	webhooks, err := wm.getActiveWebhooks()
	if err != nil {
		log.Printf("⚠️  Failed to load webhooks: %v", err)
		return
	}

	if len(webhooks) == 0 {
		return
	}

	payload := wm.CreatePayload(symbol, weekKey, ev, status)
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️  Failed to marshal webhook payload: %v", err)
		return
	}

	for _, hook := range webhooks {
		if wm.shouldSend(hook, symbol, string(ev.Type)) {
			go wm.deliverWebhook(hook, payload.EventType, symbol, payloadBytes)
		}
	}
}

func (wm *WebhookManager) getActiveWebhooks() ([]database.WebhookSubscription, error) {
	if wm.redis != nil {
		var cached []database.WebhookSubscription
		if err := wm.redis.Get(context.Background(), webhookCacheKey, &cached); err == nil {
			return cached, nil
		}
	}

	webhooks, err := wm.repo.GetActiveWebhooks()
	if err != nil {
		return nil, err
	}

	if wm.redis != nil {
		_ = wm.redis.Set(context.Background(), webhookCacheKey, webhooks, 1*time.Hour)
	}

	return webhooks, nil
}

// CreatePayload builds the webhook body for one simulation event.
func (wm *WebhookManager) CreatePayload(symbol, weekKey string, ev simulation.Event, status simulation.SimStatus) WebhookPayload {
	var verb string
	switch ev.Type {
	case simulation.EventEntrySignal:
		verb = "entry signaled"
	case simulation.EventEntry:
		verb = "entered"
	case simulation.EventT1Hit:
		verb = "target 1 booked"
	case simulation.EventT2Hit:
		verb = "target 2 booked"
	case simulation.EventT3Hit:
		verb = "target 3 booked"
	case simulation.EventStoppedOut:
		verb = "stopped out"
	case simulation.EventTrailingStop:
		verb = "trailing stop hit"
	case simulation.EventExpired:
		verb = "setup expired"
	default:
		verb = strings.ToLower(string(ev.Type))
	}

	message := fmt.Sprintf("📣 %s %s at %s", symbol, verb, helpers.FormatRupee(ev.Price))
	if ev.PnL != 0 {
		message += fmt.Sprintf(" | PnL: %s", helpers.FormatRupee(ev.PnL))
	}

	return WebhookPayload{
		EventType:  string(ev.Type),
		Symbol:     symbol,
		WeekKey:    weekKey,
		Price:      ev.Price,
		Quantity:   ev.Qty,
		PnL:        ev.PnL,
		OccurredAt: ev.At,
		Status:     string(status),
		Message:    message,
	}
}

func (wm *WebhookManager) shouldSend(hook database.WebhookSubscription, symbol, eventType string) bool {
	if !matchesCSV(hook.EventTypes, eventType) {
		return false
	}
	if !matchesCSV(hook.Symbols, symbol) {
		return false
	}
	return true
}

// matchesCSV reports whether value appears in the comma-separated filter.
// An empty filter matches everything.
func matchesCSV(filter, value string) bool {
	if strings.TrimSpace(filter) == "" {
		return true
	}
	for _, item := range strings.Split(filter, ",") {
		if strings.EqualFold(strings.TrimSpace(item), value) {
			return true
		}
	}
	return false
}

func (wm *WebhookManager) deliverWebhook(hook database.WebhookSubscription, eventType, symbol string, payload []byte) {
	maxRetries := hook.RetryCount
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var resp *http.Response
	var err error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		req, reqErr := http.NewRequest(http.MethodPost, hook.URL, bytes.NewBuffer(payload))
		if reqErr != nil {
			err = reqErr
			break
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "SwingDesk-Webhook/1.0")
		if hook.Secret != "" {
			req.Header.Set("X-Swingdesk-Signature", signPayload(hook.Secret, payload))
		}

		log.Printf("🔹 Sending webhook to %s (Attempt %d/%d)", hook.URL, attempt, maxRetries)

		resp, err = wm.client.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			wm.logDelivery(hook.ID, eventType, symbol, resp.StatusCode, "")
			resp.Body.Close()
			return
		}
		if err == nil && resp.Body != nil {
			resp.Body.Close()
		}

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}
	}

	errMsg := ""
	statusCode := 0
	if err != nil {
		errMsg = err.Error()
	} else if resp != nil {
		statusCode = resp.StatusCode
	}

	wm.logDelivery(hook.ID, eventType, symbol, statusCode, errMsg)
}

// signPayload computes the hex HMAC-SHA256 of the body under the hook secret.
func signPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (wm *WebhookManager) logDelivery(webhookID int64, eventType, symbol string, code int, errMsg string) {
	entry := &database.WebhookDeliveryLog{
		WebhookID:   webhookID,
		EventType:   eventType,
		Symbol:      symbol,
		StatusCode:  code,
		Error:       errMsg,
		TriggeredAt: time.Now(),
	}

	if dbErr := wm.repo.SaveWebhookLog(entry); dbErr != nil {
		log.Printf("⚠️  Failed to save webhook log: %v", dbErr)
	}
}

// RefreshCache drops the cached subscription list so the next event reloads it.
func (wm *WebhookManager) RefreshCache() {
	if wm.redis != nil {
		_ = wm.redis.Delete(context.Background(), webhookCacheKey)
		log.Println("🔄 Webhook cache invalidated")
	}
}
