package marketdata

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Tick is one live price update from the feed.
type Tick struct {
	InstrumentKey string    `json:"instrument_key"`
	LastPrice     float64   `json:"ltp"`
	At            time.Time `json:"at"`
}

// feedRequest is the subscription frame sent after connecting.
type feedRequest struct {
	GUID   string      `json:"guid"`
	Method string      `json:"method"`
	Data   feedReqData `json:"data"`
}

type feedReqData struct {
	Mode           string   `json:"mode"`
	InstrumentKeys []string `json:"instrumentKeys"`
}

// feedMessage is the provider's tick frame.
type feedMessage struct {
	Type  string `json:"type"`
	Feeds map[string]struct {
		LTPC struct {
			LTP float64 `json:"ltp"`
			LTT int64   `json:"ltt"` // last trade time, epoch millis
		} `json:"ltpc"`
	} `json:"feeds"`
}

// Feed is the WebSocket client for live ticks.
type Feed struct {
	url        string
	conn       *websocket.Conn
	header     http.Header
	writeMu    sync.Mutex
	subscribed []string
}

// NewFeed creates a new feed client.
func NewFeed(url string, authToken string) *Feed {
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+authToken)

	return &Feed{
		url:    url,
		header: header,
	}
}

// Connect establishes the WebSocket connection.
func (f *Feed) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.url, f.header)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", f.url, err)
	}

	f.conn = conn
	log.Printf("✅ Connected to %s", f.url)
	return nil
}

// Subscribe requests LTP updates for the given instruments.
func (f *Feed) Subscribe(instrumentKeys []string) error {
	if len(instrumentKeys) == 0 {
		return nil
	}

	req := feedRequest{
		GUID:   fmt.Sprintf("sub-%d", time.Now().UnixNano()),
		Method: "sub",
		Data: feedReqData{
			Mode:           "ltpc",
			InstrumentKeys: instrumentKeys,
		},
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal subscription: %w", err)
	}
	if err := f.writeMessage(data); err != nil {
		return fmt.Errorf("failed to send subscription: %w", err)
	}

	f.subscribed = instrumentKeys
	log.Printf("📡 Subscribed to %d instruments", len(instrumentKeys))
	return nil
}

// writeMessage sends a text frame thread-safely.
func (f *Feed) writeMessage(data []byte) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("connection is nil")
	}
	return f.conn.WriteMessage(websocket.TextMessage, data)
}

// ReadTicks reads one frame and returns its ticks. Non-tick frames
// (acknowledgements, market status) return an empty slice.
func (f *Feed) ReadTicks() ([]Tick, error) {
	if f.conn == nil {
		return nil, fmt.Errorf("connection is nil")
	}
	_, data, err := f.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var msg feedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feed frame: %w", err)
	}
	if msg.Type != "live_feed" || len(msg.Feeds) == 0 {
		return nil, nil
	}

	ticks := make([]Tick, 0, len(msg.Feeds))
	for key, feed := range msg.Feeds {
		if feed.LTPC.LTP <= 0 {
			continue
		}
		at := time.Now()
		if feed.LTPC.LTT > 0 {
			at = time.UnixMilli(feed.LTPC.LTT)
		}
		ticks = append(ticks, Tick{InstrumentKey: key, LastPrice: feed.LTPC.LTP, At: at})
	}
	return ticks, nil
}

// Close closes the WebSocket connection.
func (f *Feed) Close() error {
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}
