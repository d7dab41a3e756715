package market

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// A streamed price older than this is considered stale and callers
	// fall back to the REST ticker.
	priceFreshness = 15 * time.Second

	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
)

// PriceStream maintains a live mark-price cache from the Binance futures
// websocket. It reconnects with exponential backoff and re-subscribes after
// every reconnect.
type PriceStream struct {
	wsURL   string
	symbols []string

	mu     sync.RWMutex
	prices map[string]streamPrice
}

type streamPrice struct {
	value float64
	at    time.Time
}

// NewPriceStream creates a stream for the given symbols. Run must be called
// to start it.
func NewPriceStream(wsURL string, symbols []string) *PriceStream {
	return &PriceStream{
		wsURL:   wsURL,
		symbols: symbols,
		prices:  make(map[string]streamPrice, len(symbols)),
	}
}

// Price returns the cached price for symbol and whether it is fresh enough
// to use.
func (ps *PriceStream) Price(symbol string) (float64, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	p, ok := ps.prices[symbol]
	if !ok || time.Since(p.at) > priceFreshness {
		return 0, false
	}
	return p.value, true
}

// Run connects and consumes price updates until ctx is cancelled.
// Blocks; run in a goroutine.
func (ps *PriceStream) Run(ctx context.Context) {
	backoff := reconnectBase
	for {
		if ctx.Err() != nil {
			return
		}

		if err := ps.consume(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[market] price stream disconnected: %v (retrying in %v)", err, backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

// consume dials, subscribes, and reads updates until the connection drops.
func (ps *PriceStream) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, ps.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Close the connection when ctx is cancelled to unblock ReadMessage.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if err := ps.subscribe(conn); err != nil {
		return err
	}
	log.Printf("[market] price stream subscribed to %d symbols", len(ps.symbols))

	for {
		conn.SetReadDeadline(time.Now().Add(priceFreshness * 4))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ps.handle(msg)
	}
}

func (ps *PriceStream) subscribe(conn *websocket.Conn) error {
	streams := make([]string, 0, len(ps.symbols))
	for _, sym := range ps.symbols {
		streams = append(streams, strings.ToLower(sym)+"@markPrice@1s")
	}
	return conn.WriteJSON(map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": streams,
		"id":     1,
	})
}

// handle parses a markPriceUpdate event and refreshes the cache. Non-price
// frames (subscribe acks, heartbeats) are ignored.
func (ps *PriceStream) handle(msg []byte) {
	var ev struct {
		Event  string `json:"e"`
		Symbol string `json:"s"`
		Price  string `json:"p"`
	}
	if err := json.Unmarshal(msg, &ev); err != nil || ev.Event != "markPriceUpdate" {
		return
	}

	price, err := strconv.ParseFloat(ev.Price, 64)
	if err != nil {
		return
	}

	ps.mu.Lock()
	ps.prices[ev.Symbol] = streamPrice{value: price, at: time.Now()}
	ps.mu.Unlock()
}
