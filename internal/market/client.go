// Package market provides the Binance USD-M futures market-data client:
// candle history and live prices. Read-only — the service never places
// orders. Live prices come from the websocket mark-price stream when fresh,
// falling back to the REST ticker.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"signal-servicev1/internal/model"
)

// ClientConfig configures the REST client.
type ClientConfig struct {
	BaseURL string // e.g. "https://fapi.binance.com"
	APIKey  string // read-only key; public market endpoints work without it
}

// Client talks to the Binance futures REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	stream *PriceStream // optional live price cache
}

// NewClient creates a Client and verifies connectivity with a ping.
func NewClient(cfg ClientConfig) (*Client, error) {
	c := &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		return nil, fmt.Errorf("market: connectivity check: %w", err)
	}

	log.Printf("[market] connected to %s", cfg.BaseURL)
	return c, nil
}

// UseStream attaches a live price stream consulted before the REST ticker.
func (c *Client) UseStream(s *PriceStream) { c.stream = s }

// Ping verifies REST connectivity.
func (c *Client) Ping(ctx context.Context) error {
	var out struct{}
	return c.get(ctx, "/fapi/v1/ping", nil, &out)
}

// Candles returns up to limit candles for symbol at the given interval,
// ordered by open time ascending.
func (c *Client) Candles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	// Klines come back as arrays of mixed types:
	// [openTime, open, high, low, close, volume, closeTime, ...]
	var raw [][]json.RawMessage
	if err := c.get(ctx, "/fapi/v1/klines", params, &raw); err != nil {
		return nil, fmt.Errorf("market: klines %s: %w", symbol, err)
	}

	candles := make([]model.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 6 {
			return nil, fmt.Errorf("market: klines %s: short row (%d fields)", symbol, len(k))
		}
		var openTimeMs int64
		if err := json.Unmarshal(k[0], &openTimeMs); err != nil {
			return nil, fmt.Errorf("market: klines %s: open time: %w", symbol, err)
		}

		fields := make([]float64, 5) // open, high, low, close, volume
		for i := 0; i < 5; i++ {
			var s string
			if err := json.Unmarshal(k[i+1], &s); err != nil {
				return nil, fmt.Errorf("market: klines %s: field %d: %w", symbol, i+1, err)
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("market: klines %s: field %d: %w", symbol, i+1, err)
			}
			fields[i] = v
		}

		candles = append(candles, model.Candle{
			Symbol:   symbol,
			OpenTime: time.UnixMilli(openTimeMs).UTC(),
			Open:     fields[0],
			High:     fields[1],
			Low:      fields[2],
			Close:    fields[3],
			Volume:   fields[4],
		})
	}
	return candles, nil
}

// CurrentPrice returns the latest price for symbol: the streamed mark price
// when fresh, otherwise the REST ticker.
func (c *Client) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	if c.stream != nil {
		if price, ok := c.stream.Price(symbol); ok {
			return price, nil
		}
	}

	params := url.Values{}
	params.Set("symbol", symbol)

	var out struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := c.get(ctx, "/fapi/v1/ticker/price", params, &out); err != nil {
		return 0, fmt.Errorf("market: ticker %s: %w", symbol, err)
	}

	price, err := strconv.ParseFloat(out.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("market: ticker %s: parse price %q: %w", symbol, out.Price, err)
	}
	return price, nil
}

// Ticker24h holds 24-hour rolling statistics for a symbol.
type Ticker24h struct {
	Symbol             string  `json:"symbol"`
	PriceChange        float64 `json:"price_change"`
	PriceChangePercent float64 `json:"price_change_percent"`
	LastPrice          float64 `json:"last_price"`
	HighPrice          float64 `json:"high_price"`
	LowPrice           float64 `json:"low_price"`
	Volume             float64 `json:"volume"`
}

// Stats24h returns 24-hour statistics for symbol.
func (c *Client) Stats24h(ctx context.Context, symbol string) (*Ticker24h, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var out struct {
		Symbol             string `json:"symbol"`
		PriceChange        string `json:"priceChange"`
		PriceChangePercent string `json:"priceChangePercent"`
		LastPrice          string `json:"lastPrice"`
		HighPrice          string `json:"highPrice"`
		LowPrice           string `json:"lowPrice"`
		Volume             string `json:"volume"`
	}
	if err := c.get(ctx, "/fapi/v1/ticker/24hr", params, &out); err != nil {
		return nil, fmt.Errorf("market: 24h ticker %s: %w", symbol, err)
	}

	t := &Ticker24h{Symbol: out.Symbol}
	for _, f := range []struct {
		dst *float64
		src string
	}{
		{&t.PriceChange, out.PriceChange},
		{&t.PriceChangePercent, out.PriceChangePercent},
		{&t.LastPrice, out.LastPrice},
		{&t.HighPrice, out.HighPrice},
		{&t.LowPrice, out.LowPrice},
		{&t.Volume, out.Volume},
	} {
		v, err := strconv.ParseFloat(f.src, 64)
		if err != nil {
			return nil, fmt.Errorf("market: 24h ticker %s: %w", symbol, err)
		}
		*f.dst = v
	}
	return t, nil
}

// get performs a GET request and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

var _ model.MarketData = (*Client)(nil)
