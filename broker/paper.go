// Package broker mirrors validated setups into paper-trading bracket orders.
// It is an optional add-on; when disabled the rest of the system runs purely
// on simulation.
package broker

import (
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"swingdesk/config"
	"swingdesk/levels"
)

// PaperBroker places bracket orders on a paper-trading account for setups
// that enter during live tracking. One bracket per symbol: stop at the setup
// stop, take-profit at target 2.
type PaperBroker struct {
	client  *alpaca.Client
	capital float64

	mu     sync.Mutex
	orders map[string]string // symbol -> open order ID
}

// NewPaperBroker builds a broker from config. Returns nil when disabled so
// callers can gate on a nil check.
func NewPaperBroker(cfg config.BrokerConfig, capitalPerTrade float64) *PaperBroker {
	if !cfg.Enabled {
		return nil
	}
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		BaseURL:   cfg.BaseURL,
	})
	return &PaperBroker{
		client:  client,
		capital: capitalPerTrade,
		orders:  make(map[string]string),
	}
}

// Account returns current paper account equity and buying power.
func (b *PaperBroker) Account() (equity, buyingPower decimal.Decimal, err error) {
	acct, err := b.client.GetAccount()
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("fetch account: %w", err)
	}
	return acct.Equity, acct.BuyingPower, nil
}

// MirrorEntry places a bracket order matching the setup's planned entry. The
// stop leg anchors to the setup stop and the take-profit leg to target 2, so
// the paper position roughly follows the simulated staged exit.
func (b *PaperBroker) MirrorEntry(symbol string, lv levels.Levels) error {
	// Entries arrive from the live reconciler while CloseAll runs from the
	// rollover job; the windows overlap at the Friday close.
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, open := b.orders[symbol]; open {
		return nil
	}

	qty := int64(math.Floor(b.capital / lv.Trigger()))
	if qty < 1 {
		return fmt.Errorf("capital %.0f too small for %s at %.2f", b.capital, symbol, lv.Trigger())
	}

	side := alpaca.Buy
	if lv.Direction == levels.Short {
		side = alpaca.Sell
	}

	qtyDec := decimal.NewFromInt(qty)
	stopPrice := decimal.NewFromFloat(lv.Stop)
	takeProfit := decimal.NewFromFloat(lv.Target2)

	req := alpaca.PlaceOrderRequest{
		Symbol:      symbol,
		Qty:         &qtyDec,
		Side:        side,
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
		OrderClass:  alpaca.Bracket,
		TakeProfit:  &alpaca.TakeProfit{LimitPrice: &takeProfit},
		StopLoss:    &alpaca.StopLoss{StopPrice: &stopPrice},
	}

	order, err := b.client.PlaceOrder(req)
	if err != nil {
		return fmt.Errorf("place bracket order for %s: %w", symbol, err)
	}

	b.orders[symbol] = order.ID
	log.Printf("💼 Paper bracket placed: %s %s x%d stop=%.2f tp=%.2f (order %s)",
		symbol, side, qty, lv.Stop, lv.Target2, order.ID)
	return nil
}

// CloseAll cancels tracked orders and liquidates matching positions. Called
// at week rollover so paper positions never outlive their setup.
func (b *PaperBroker) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for symbol, orderID := range b.orders {
		if err := b.client.CancelOrder(orderID); err != nil {
			log.Printf("⚠️  Cancel order %s for %s: %v", orderID, symbol, err)
		}
		if _, err := b.client.ClosePosition(symbol, alpaca.ClosePositionRequest{}); err != nil {
			log.Printf("⚠️  Close position %s: %v", symbol, err)
		}
		delete(b.orders, symbol)
	}
}

// OpenPositions lists paper positions for the status endpoint.
func (b *PaperBroker) OpenPositions() ([]alpaca.Position, error) {
	positions, err := b.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return positions, nil
}
