package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"prop-challenge-go/internal/config"
)

// MockProviderFetcher is a mock implementation of the ProviderFetcher interface.
type MockProviderFetcher struct {
	mock.Mock
}

func (m *MockProviderFetcher) LatestPrice(ctx context.Context, symbol string) (ProviderQuote, error) {
	args := m.Called(symbol)
	return args.Get(0).(ProviderQuote), args.Error(1)
}

type funcTier struct {
	name string
	fn   func(ctx context.Context, symbol string) TierResult
}

func (t funcTier) Name() string { return t.name }

func (t funcTier) Fetch(ctx context.Context, symbol string) TierResult { return t.fn(ctx, symbol) }

func newTestResolver(regional RegionalFetcher, provider ProviderFetcher) *Resolver {
	market := NewRegionalMarket([]string{"IAM", "ATW"})
	return NewResolver(zap.NewNop(), time.Second,
		NewRegionalTier(regional, NewQuoteCache(time.Minute), market, nil),
		NewProviderTier(provider),
		NewFallbackTier(market, nil),
	)
}

func TestResolver_TierOrder(t *testing.T) {
	t.Run("Regional symbol from the scraper", func(t *testing.T) {
		regional := new(MockRegionalFetcher)
		regional.On("FetchPrice", "IAM").Return(102.35, nil).Once()
		provider := new(MockProviderFetcher)

		res := newTestResolver(regional, provider).ResolveDetailed(context.Background(), "iam")

		assert.Equal(t, SourceLive, res.Quote.Source)
		assert.Equal(t, "IAM", res.Quote.Symbol)
		assert.Equal(t, 102.35, res.Quote.Price)
		require.Len(t, res.Attempts, 1)
		provider.AssertNotCalled(t, "LatestPrice", mock.Anything)
	})

	t.Run("Scraper down uses provider", func(t *testing.T) {
		regional := new(MockRegionalFetcher)
		regional.On("FetchPrice", "ATW").Return(0.0, errors.New("timeout"))
		provider := new(MockProviderFetcher)
		provider.On("LatestPrice", "ATW").Return(ProviderQuote{Price: 480}, nil)

		res := newTestResolver(regional, provider).ResolveDetailed(context.Background(), "ATW")

		assert.Equal(t, SourceProvider, res.Quote.Source)
		assert.Equal(t, 480.0, res.Quote.Price)
		require.Len(t, res.Attempts, 2)
		assert.Equal(t, TierFailed, res.Attempts[0].Outcome)
	})

	t.Run("Non regional symbol skips the scraper", func(t *testing.T) {
		regional := new(MockRegionalFetcher)
		provider := new(MockProviderFetcher)
		provider.On("LatestPrice", "AAPL").Return(ProviderQuote{Price: 187.1, Fallback: true}, nil)

		res := newTestResolver(regional, provider).ResolveDetailed(context.Background(), "AAPL")

		assert.Equal(t, SourceProviderFallback, res.Quote.Source)
		assert.Equal(t, TierSkipped, res.Attempts[0].Outcome)
		regional.AssertNotCalled(t, "FetchPrice", mock.Anything)
	})

	t.Run("Everything down on a regional symbol is simulated", func(t *testing.T) {
		regional := new(MockRegionalFetcher)
		regional.On("FetchPrice", "IAM").Return(0.0, errors.New("down"))
		provider := new(MockProviderFetcher)
		provider.On("LatestPrice", "IAM").Return(ProviderQuote{}, errors.New("down"))

		q := newTestResolver(regional, provider).Resolve(context.Background(), "IAM")

		assert.Equal(t, SourceSimulated, q.Source)
		assert.Equal(t, 102.5, q.Price)
	})

	t.Run("Unknown symbol with everything down is mock at default price", func(t *testing.T) {
		regional := new(MockRegionalFetcher)
		provider := new(MockProviderFetcher)
		provider.On("LatestPrice", "ZZZZ").Return(ProviderQuote{}, errors.New("not found"))

		q := newTestResolver(regional, provider).Resolve(context.Background(), "ZZZZ")

		assert.Equal(t, SourceMock, q.Source)
		assert.Equal(t, DefaultPrice, q.Price)
		assert.False(t, q.FetchedAt.IsZero())
	})
}

func TestResolver_CacheAvoidsSecondScrape(t *testing.T) {
	regional := new(MockRegionalFetcher)
	regional.On("FetchPrice", "IAM").Return(102.35, nil).Once()
	r := newTestResolver(regional, new(MockProviderFetcher))

	first := r.Resolve(context.Background(), "IAM")
	second := r.Resolve(context.Background(), "MA_IAM")

	assert.Equal(t, first.Price, second.Price)
	assert.Equal(t, SourceLive, second.Source)
	regional.AssertExpectations(t)
}

func TestResolver_PanickingTierFallsThrough(t *testing.T) {
	boom := funcTier{name: "boom", fn: func(context.Context, string) TierResult { panic("selector exploded") }}
	r := NewResolver(zap.NewNop(), time.Second, boom, NewFallbackTier(NewRegionalMarket(nil), nil))

	res := r.ResolveDetailed(context.Background(), "TSLA")

	assert.Equal(t, SourceMock, res.Quote.Source)
	assert.Equal(t, 175.0, res.Quote.Price)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, TierFailed, res.Attempts[0].Outcome)
	assert.ErrorContains(t, res.Attempts[0].Err, "panicked")
}

func TestResolver_SlowTierTimesOut(t *testing.T) {
	slow := funcTier{name: "slow", fn: func(ctx context.Context, _ string) TierResult {
		select {
		case <-ctx.Done():
			return failed(ctx.Err())
		case <-time.After(5 * time.Second):
			return ok(Quote{Price: 1, Source: SourceProvider})
		}
	}}
	r := NewResolver(zap.NewNop(), 20*time.Millisecond, slow, NewFallbackTier(NewRegionalMarket(nil), nil))

	start := time.Now()
	res := r.ResolveDetailed(context.Background(), "NVDA")

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, SourceMock, res.Quote.Source)
	assert.ErrorIs(t, res.Attempts[0].Err, context.DeadlineExceeded)
}

func TestResolver_NonPositivePriceIsRejected(t *testing.T) {
	zero := funcTier{name: "zero", fn: func(context.Context, string) TierResult {
		return ok(Quote{Price: 0, Source: SourceProvider})
	}}
	r := NewResolver(zap.NewNop(), time.Second, zero)

	res := r.ResolveDetailed(context.Background(), "AAPL")

	assert.Equal(t, TierFailed, res.Attempts[0].Outcome)
	assert.Equal(t, DefaultPrice, res.Quote.Price)
	assert.Equal(t, SourceMock, res.Quote.Source)
}

func TestNewDefaultResolver_Offline(t *testing.T) {
	cfg := &config.Market{Offline: true, RegionalSymbols: []string{"IAM"}, JitterPct: 0.1, Timeout: time.Second}
	r := NewDefaultResolver(cfg, zap.NewNop())

	require.Len(t, r.tiers, 1)
	q := r.Resolve(context.Background(), "IAM")
	assert.Equal(t, SourceSimulated, q.Source)
	assert.InDelta(t, 102.5, q.Price, 102.5*0.001+1e-9)
}

func TestFallbackPrice(t *testing.T) {
	p, known := FallbackPrice(" btc-usd ")
	assert.True(t, known)
	assert.Equal(t, 95050.0, p)

	_, known = FallbackPrice("ZZZZ")
	assert.False(t, known)
}
