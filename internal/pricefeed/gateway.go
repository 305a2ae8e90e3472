// Package pricefeed fetches current market prices for a batch of symbols
// from the crypto price provider, rotating API keys when the provider
// rejects one and caching each batch for a short TTL.
//
// Provider contract:
//
//	GET {base}/prices?symbols=BTCUSDT,ETHUSDT
//	X-API-Key: <key>
//	200 [{"symbol":"BTCUSDT","price":"65000.12"}, ...]
//
// 403 and 429 mean the key is rejected or throttled; it is removed from
// rotation and the same batch is retried with the next key.
package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/signal-monitor/internal/instrument"
	"github.com/atmx/signal-monitor/internal/metrics"
)

var (
	// ErrNoAPIKeys is returned when every configured key has been excluded.
	ErrNoAPIKeys = errors.New("pricefeed: no API keys left in rotation")
)

// ProviderError is a non-rotating failure from the provider (5xx, bad
// payload, unexpected status). The current tick should be skipped.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("pricefeed: provider returned %d: %s", e.StatusCode, e.Body)
}

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Recorder receives every freshly fetched batch (not cache hits).
type Recorder interface {
	Record(ctx context.Context, prices map[string]decimal.Decimal, at time.Time) error
}

// Config tunes a Gateway.
type Config struct {
	BaseURL        string
	CacheTTL       time.Duration
	RequestTimeout time.Duration
}

// Gateway is the price acquisition gateway.
type Gateway struct {
	cfg      Config
	pool     *KeyPool
	cache    Cache
	client   HTTPClient
	recorder Recorder
}

// NewGateway creates a gateway. cache may be nil to disable caching.
func NewGateway(cfg Config, pool *KeyPool, cache Cache, client HTTPClient) *Gateway {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if client == nil {
		client = &http.Client{}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Gateway{
		cfg:    cfg,
		pool:   pool,
		cache:  cache,
		client: client,
	}
}

// WithRecorder attaches a price recorder.
func (g *Gateway) WithRecorder(r Recorder) *Gateway {
	g.recorder = r
	return g
}

// GetPrices returns the current price for each symbol the provider knows.
// Symbols are canonicalized first, so "BTC/USDT" and "btcusdt" share a
// price. Missing symbols are simply absent from the result.
func (g *Gateway) GetPrices(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	canon := instrument.Dedupe(symbols)
	if len(canon) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	key := CacheKey(canon)
	if g.cache != nil {
		if prices, ok := g.cache.Get(ctx, key); ok {
			metrics.PriceCache.WithLabelValues("hit").Inc()
			return prices, nil
		}
		metrics.PriceCache.WithLabelValues("miss").Inc()
	}

	for {
		apiKey, err := g.pool.Current()
		if err != nil {
			metrics.PriceRequests.WithLabelValues("no_keys").Inc()
			return nil, err
		}

		prices, err := g.fetch(ctx, apiKey, canon)
		var perr *ProviderError
		if errors.As(err, &perr) && rotates(perr.StatusCode) {
			metrics.PriceRequests.WithLabelValues("rejected").Inc()
			g.pool.Exclude(apiKey)
			slog.Warn("price provider rejected API key, rotating",
				"status", perr.StatusCode,
				"key", maskKey(apiKey),
				"keys_left", g.pool.Len(),
			)
			continue
		}
		if err != nil {
			metrics.PriceRequests.WithLabelValues("error").Inc()
			return nil, err
		}

		metrics.PriceRequests.WithLabelValues("ok").Inc()
		if g.cache != nil {
			g.cache.Set(ctx, key, prices, g.cfg.CacheTTL)
		}
		if g.recorder != nil {
			if err := g.recorder.Record(ctx, prices, time.Now().UTC()); err != nil {
				slog.Warn("price recorder failed", "err", err)
			}
		}
		return prices, nil
	}
}

type providerQuote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

func (g *Gateway) fetch(ctx context.Context, apiKey string, symbols []string) (map[string]decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	u := g.cfg.BaseURL + "/prices?symbols=" + url.QueryEscape(strings.Join(symbols, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build price request: %w", err)
	}
	req.Header.Set("X-API-Key", apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var quotes []providerQuote
	if err := json.NewDecoder(resp.Body).Decode(&quotes); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(quotes))
	for _, q := range quotes {
		if q.Symbol == "" || !q.Price.IsPositive() {
			continue
		}
		prices[instrument.Symbol(q.Symbol)] = q.Price
	}
	return prices, nil
}

func rotates(status int) bool {
	return status == http.StatusForbidden || status == http.StatusTooManyRequests
}

func maskKey(k string) string {
	if len(k) <= 4 {
		return "****"
	}
	return "****" + k[len(k)-4:]
}
