package kraken

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/gorilla/websocket"

	"CryptoPull/internal/domain/models"
	"CryptoPull/internal/stream"
	applogger "CryptoPull/pkg/logger"
)

// DefaultWebsocketURL is Kraken's public websocket endpoint.
const DefaultWebsocketURL = "wss://ws.kraken.com"

// Dialer opens Kraken websocket subscriptions for the trade channel. It
// implements stream.Dialer.
type Dialer struct {
	url string
	log *applogger.Logger
}

// NewDialer creates a Dialer against the given websocket URL.
func NewDialer(url string, log *applogger.Logger) *Dialer {
	if url == "" {
		url = DefaultWebsocketURL
	}
	return &Dialer{url: url, log: log}
}

// Venue names the venue for logs, metrics and alerts.
func (d *Dialer) Venue() string { return "kraken" }

// Dial connects and sends the trade subscription for every requested market.
// The subscription ack arrives later as an event frame; Receive skips it.
func (d *Dialer) Dial(symbols []models.Symbol) (stream.Conn, error) {
	pairs := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		cfg, err := ConfigFor(sym)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, cfg.SubscriptionPair)
	}

	ws, _, err := websocket.DefaultDialer.Dial(d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("kraken connect: %w", err)
	}

	sub := map[string]interface{}{
		"event":        "subscribe",
		"pair":         pairs,
		"subscription": map[string]string{"name": "trade"},
	}
	if err := ws.WriteJSON(sub); err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("kraken subscribe: %w", err)
	}
	d.log.Info("subscribed to kraken trade channel", applogger.Any("pairs", pairs))

	return &conn{ws: ws}, nil
}

type conn struct {
	ws *websocket.Conn
}

// Receive blocks for the next frame. Event frames (heartbeats, system status,
// subscription acks) are JSON objects and yield (nil, nil); trade frames are
// JSON arrays and collapse into a single trade.
func (c *conn) Receive() (*models.Trade, error) {
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("kraken read: %w", err)
	}
	if len(raw) == 0 || raw[0] != '[' {
		return nil, nil
	}
	t, err := decodeTradeFrame(raw)
	if err != nil {
		return nil, fmt.Errorf("kraken frame %q: %w", raw, err)
	}
	return t, nil
}

func (c *conn) Close() error { return c.ws.Close() }

// decodeTradeFrame parses a channel frame:
//
//	[channelID, [[price, volume, time, side, orderType, misc], ...], "trade", "XBT/USD"]
//
// A frame can batch several executions; they collapse into one trade carrying
// the last execution's price and timestamp and the summed volume, which is how
// downstream aggregation expects venue batches to arrive.
func decodeTradeFrame(raw []byte) (*models.Trade, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, err
	}
	if len(parts) != 4 {
		return nil, fmt.Errorf("expected 4 elements, got %d", len(parts))
	}

	var channel string
	if err := json.Unmarshal(parts[2], &channel); err != nil {
		return nil, err
	}
	if channel != "trade" {
		return nil, nil
	}

	var pair string
	if err := json.Unmarshal(parts[3], &pair); err != nil {
		return nil, err
	}
	symbol, ok := symbolBySubscriptionPair[pair]
	if !ok {
		return nil, fmt.Errorf("unknown pair %q", pair)
	}

	var executions [][]string
	if err := json.Unmarshal(parts[1], &executions); err != nil {
		return nil, err
	}
	if len(executions) == 0 {
		return nil, nil
	}

	var volume float64
	for _, e := range executions {
		if len(e) < 4 {
			return nil, fmt.Errorf("short execution tuple %v", e)
		}
		v, err := strconv.ParseFloat(e[1], 64)
		if err != nil {
			return nil, fmt.Errorf("volume %q: %w", e[1], err)
		}
		volume += v
	}

	last := executions[len(executions)-1]
	price, err := strconv.ParseFloat(last[0], 64)
	if err != nil {
		return nil, fmt.Errorf("price %q: %w", last[0], err)
	}
	ts, err := strconv.ParseFloat(last[2], 64)
	if err != nil {
		return nil, fmt.Errorf("time %q: %w", last[2], err)
	}
	side := models.SideBuy
	if last[3] == "s" {
		side = models.SideSell
	}

	return &models.Trade{
		Symbol:    symbol,
		Timestamp: int64(ts),
		Price:     price,
		Amount:    volume,
		Side:      side,
	}, nil
}
