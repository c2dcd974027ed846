package market

import (
	"context"
	"expvar"
	"fmt"
	"time"

	"go.uber.org/zap"

	"prop-challenge-go/internal/config"
)

// DefaultCacheTTL applies when no cache TTL is configured.
const DefaultCacheTTL = 60 * time.Second

var (
	quotesBySource   = expvar.NewMap("market_quotes_by_source")
	tierFailuresByID = expvar.NewMap("market_tier_failures")
)

// PriceResolver returns a usable price for any symbol.
type PriceResolver interface {
	Resolve(ctx context.Context, symbol string) Quote
}

// Attempt records what one tier did during a resolution.
type Attempt struct {
	Tier    string
	Outcome TierOutcome
	Err     error
}

// Resolution is a quote together with the tiers tried to obtain it.
type Resolution struct {
	Quote    Quote
	Attempts []Attempt
}

// Resolver walks an ordered list of tiers and returns the first usable quote.
type Resolver struct {
	tiers   []Tier
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// ensure Resolver implements the interface
var _ PriceResolver = (*Resolver)(nil)

// NewResolver creates a resolver over tiers. Each tier gets at most timeout to answer.
func NewResolver(logger *zap.Logger, timeout time.Duration, tiers ...Tier) *Resolver {
	return &Resolver{
		tiers:   tiers,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// NewDefaultResolver wires the regional scraper, the primary provider and the
// static table in that order. Offline mode keeps only the static table.
func NewDefaultResolver(cfg *config.Market, logger *zap.Logger) *Resolver {
	logger = logger.Named("market")
	regional := NewRegionalMarket(cfg.RegionalSymbols)
	jitter := NewJitter(cfg.JitterPct, 0)

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	var tiers []Tier
	if cfg.Offline {
		logger.Warn("Market data offline, quoting from the static table only")
	} else {
		tiers = append(tiers,
			NewRegionalTier(NewRegionalClient(cfg, logger), NewQuoteCache(ttl), regional, jitter),
			NewProviderTier(NewProviderClient(cfg, logger)),
		)
	}
	tiers = append(tiers, NewFallbackTier(regional, jitter))

	return NewResolver(logger, cfg.Timeout, tiers...)
}

// Resolve returns a positive price for symbol. It never fails.
func (r *Resolver) Resolve(ctx context.Context, symbol string) Quote {
	return r.ResolveDetailed(ctx, symbol).Quote
}

// ResolveDetailed is Resolve plus the per-tier attempt log.
func (r *Resolver) ResolveDetailed(ctx context.Context, symbol string) Resolution {
	symbol = NormalizeSymbol(symbol)
	l := r.logger.With(zap.String("symbol", symbol))

	var res Resolution
	for _, tier := range r.tiers {
		result := r.attempt(ctx, tier, symbol)
		if result.Outcome.Usable() && result.Quote.Price <= 0 {
			result = failed(fmt.Errorf("tier returned non-positive price %v", result.Quote.Price))
		}
		res.Attempts = append(res.Attempts, Attempt{Tier: tier.Name(), Outcome: result.Outcome, Err: result.Err})

		if result.Outcome == TierFailed {
			tierFailuresByID.Add(tier.Name(), 1)
			l.Warn("Price tier failed, falling through", zap.String("tier", tier.Name()), zap.Error(result.Err))
			continue
		}
		if !result.Outcome.Usable() {
			continue
		}

		q := result.Quote
		q.Symbol = symbol
		if q.FetchedAt.IsZero() {
			q.FetchedAt = r.now().UTC()
		}
		res.Quote = q
		quotesBySource.Add(string(q.Source), 1)
		l.Debug("Resolved price",
			zap.String("tier", tier.Name()),
			zap.String("source", string(q.Source)),
			zap.Float64("price", q.Price))
		return res
	}

	l.Warn("No price tier answered, using default price", zap.Float64("price", DefaultPrice))
	res.Quote = Quote{Symbol: symbol, Price: DefaultPrice, Source: SourceMock, FetchedAt: r.now().UTC()}
	quotesBySource.Add(string(SourceMock), 1)
	return res
}

// attempt runs one tier under the per-tier timeout. A panicking tier counts as failed.
func (r *Resolver) attempt(ctx context.Context, tier Tier, symbol string) (result TierResult) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			result = failed(fmt.Errorf("tier %s panicked: %v", tier.Name(), rec))
		}
	}()
	return tier.Fetch(ctx, symbol)
}
