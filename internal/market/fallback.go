package market

import (
	"context"
	"time"
)

// fallbackPrices is the static last-resort price table.
var fallbackPrices = map[string]float64{
	"BTC-USD": 95050.0,
	"ETH-USD": 2650.0,
	"IAM":     102.50,
	"ATW":     485.0,
	"AAPL":    185.0,
	"TSLA":    175.0,
	"GOOGL":   150.0,
	"MSFT":    415.0,
	"META":    485.0,
	"NVDA":    950.0,
	"AMZN":    178.0,
}

// FallbackPrice returns the static price of a symbol and whether it is known.
func FallbackPrice(symbol string) (float64, bool) {
	p, found := fallbackPrices[NormalizeSymbol(symbol)]
	return p, found
}

type fallbackTier struct {
	market RegionalMarket
	jitter *Jitter
	now    func() time.Time
}

// NewFallbackTier returns the tier that always answers, from the static table
// or DefaultPrice. Regional symbols are tagged simulated, everything else mock.
func NewFallbackTier(market RegionalMarket, jitter *Jitter) Tier {
	return &fallbackTier{market: market, jitter: jitter, now: time.Now}
}

func (t *fallbackTier) Name() string { return "fallback" }

func (t *fallbackTier) Fetch(_ context.Context, symbol string) TierResult {
	key, regional := t.market.Key(symbol)
	source := SourceMock
	if regional {
		source = SourceSimulated
	}

	price, known := fallbackPrices[key]
	if !known {
		price = DefaultPrice
	}

	return degraded(Quote{
		Symbol:    key,
		Price:     t.jitter.Apply(price),
		Source:    source,
		FetchedAt: t.now().UTC(),
	})
}
