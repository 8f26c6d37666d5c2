// Package stream keeps a mark-price websocket feed running against
// Binance USDT-M futures so the execution core sees prices without
// polling the REST ticker.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

// PriceHandler receives every mark-price update.
type PriceHandler func(symbol string, price float64)

// Feed is a self-reconnecting combined mark-price subscription.
type Feed struct {
	url     string
	onPrice PriceHandler
	dialer  *websocket.Dialer
}

// NewFeed subscribes to 1s mark-price updates for symbols. testnet
// toggles the host.
func NewFeed(testnet bool, symbols []string, onPrice PriceHandler) *Feed {
	host := "fstream.binance.com"
	if testnet {
		host = "stream.binancefuture.com"
	}
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s) + "@markPrice@1s"
	}
	u := url.URL{
		Scheme:   "wss",
		Host:     host,
		Path:     "/stream",
		RawQuery: "streams=" + strings.Join(streams, "/"),
	}
	return &Feed{
		url:     u.String(),
		onPrice: onPrice,
		dialer:  websocket.DefaultDialer,
	}
}

// Run blocks, reconnecting with backoff until ctx is canceled.
func (f *Feed) Run(ctx context.Context) {
	b := &backoff.Backoff{
		Min:    time.Second,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}
	for {
		if ctx.Err() != nil {
			return
		}
		if err := f.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := b.Duration()
			log.Printf("stream: feed dropped, reconnecting in %s: %v", delay.Round(time.Millisecond), err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		b.Reset()
	}
}

// consume reads one connection until it fails or ctx ends.
func (f *Feed) consume(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}
	defer conn.Close()
	log.Printf("stream: connected to %s", f.url)

	// Unblock ReadMessage when the context ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		symbol, price, err := parseMarkPrice(msg)
		if err != nil {
			log.Printf("stream: parse error: %v", err)
			continue
		}
		f.onPrice(symbol, price)
	}
}

// parseMarkPrice decodes a combined-stream markPriceUpdate payload.
func parseMarkPrice(msg []byte) (string, float64, error) {
	var raw struct {
		Data struct {
			Event  string `json:"e"`
			Symbol string `json:"s"`
			Price  string `json:"p"`
		} `json:"data"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return "", 0, err
	}
	if raw.Data.Event != "markPriceUpdate" {
		return "", 0, fmt.Errorf("unexpected event %q", raw.Data.Event)
	}
	price, err := strconv.ParseFloat(raw.Data.Price, 64)
	if err != nil {
		return "", 0, fmt.Errorf("mark price %q: %w", raw.Data.Price, err)
	}
	return raw.Data.Symbol, price, nil
}
