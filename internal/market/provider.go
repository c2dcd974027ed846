package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/buger/jsonparser"
	"go.uber.org/zap"

	"prop-challenge-go/internal/config"
)

const chartPath = "/v8/finance/chart/{symbol}"

var errEmptySeries = errors.New("chart close series is empty")

// ProviderQuote is the latest price reported by the market-data provider.
// Fallback is set when the price came from the close series rather than the live quote field.
type ProviderQuote struct {
	Price    float64
	Fallback bool
}

// ProviderFetcher fetches the latest intraday price of a symbol.
type ProviderFetcher interface {
	LatestPrice(ctx context.Context, symbol string) (ProviderQuote, error)
}

// ProviderClient reads the chart endpoint of a Yahoo-compatible market-data API.
type ProviderClient struct {
	http *httpClient
}

// ensure ProviderClient implements the interface
var _ ProviderFetcher = (*ProviderClient)(nil)

// NewProviderClient creates a client for the primary market-data provider.
func NewProviderClient(cfg *config.Market, logger *zap.Logger) *ProviderClient {
	return &ProviderClient{http: newHTTPClient(cfg.ProviderURL, cfg, logger.Named("provider"))}
}

// LatestPrice requests a short intraday window and returns the freshest price in it.
func (c *ProviderClient) LatestPrice(ctx context.Context, symbol string) (ProviderQuote, error) {
	req := c.http.client.R().
		SetPathParam("symbol", symbol).
		SetQueryParams(map[string]string{"range": "1d", "interval": "1m"}).
		SetHeader("Accept", "application/json")

	resp, err := c.http.doRequest(ctx, http.MethodGet, chartPath, req)
	if err != nil {
		return ProviderQuote{}, fmt.Errorf("failed to get chart for %s: %w", symbol, err)
	}

	quote, err := parseChart(resp.Body())
	if err != nil {
		return ProviderQuote{}, fmt.Errorf("failed to parse chart for %s: %w", symbol, err)
	}
	return quote, nil
}

// parseChart prefers meta.regularMarketPrice and otherwise takes the last non-null close.
func parseChart(body []byte) (ProviderQuote, error) {
	if price, err := jsonparser.GetFloat(body, "chart", "result", "[0]", "meta", "regularMarketPrice"); err == nil && price > 0 {
		return ProviderQuote{Price: price}, nil
	}

	last := 0.0
	_, err := jsonparser.ArrayEach(body, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if dataType != jsonparser.Number {
			return
		}
		if f, perr := jsonparser.ParseFloat(value); perr == nil && f > 0 {
			last = f
		}
	}, "chart", "result", "[0]", "indicators", "quote", "[0]", "close")
	if err != nil {
		return ProviderQuote{}, fmt.Errorf("no close series: %w", err)
	}
	if last <= 0 {
		return ProviderQuote{}, errEmptySeries
	}
	return ProviderQuote{Price: last, Fallback: true}, nil
}

type providerTier struct {
	client ProviderFetcher
}

// NewProviderTier wraps the primary provider as a resolver tier.
func NewProviderTier(client ProviderFetcher) Tier {
	return &providerTier{client: client}
}

func (t *providerTier) Name() string { return "provider" }

func (t *providerTier) Fetch(ctx context.Context, symbol string) TierResult {
	pq, err := t.client.LatestPrice(ctx, symbol)
	if err != nil {
		return failed(err)
	}
	if pq.Price <= 0 {
		return failed(fmt.Errorf("provider returned non-positive price %v", pq.Price))
	}
	if pq.Fallback {
		return degraded(Quote{Price: pq.Price, Source: SourceProviderFallback})
	}
	return ok(Quote{Price: pq.Price, Source: SourceProvider})
}
