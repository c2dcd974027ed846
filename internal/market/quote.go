// Package market resolves tradable prices from an ordered chain of sources.
package market

import (
	"context"
	"strings"
	"time"
)

// Source tags which tier produced a price.
type Source string

const (
	SourceLive             Source = "live"
	SourceSimulated        Source = "simulated"
	SourceProvider         Source = "provider"
	SourceProviderFallback Source = "provider_fallback"
	SourceMock             Source = "mock"
)

// DefaultPrice is quoted for symbols no tier knows about.
const DefaultPrice = 100.0

// Quote is a resolved price together with its provenance.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Source    Source    `json:"source"`
	FetchedAt time.Time `json:"timestamp"`
}

// TierOutcome classifies a single tier attempt.
type TierOutcome int

const (
	// TierSkipped means the tier does not apply to the symbol.
	TierSkipped TierOutcome = iota
	// TierFailed means the tier applied but produced no usable price.
	TierFailed
	// TierDegraded is a usable price of reduced quality.
	TierDegraded
	// TierOK is a usable price of full quality.
	TierOK
)

func (o TierOutcome) String() string {
	switch o {
	case TierSkipped:
		return "skipped"
	case TierFailed:
		return "failed"
	case TierDegraded:
		return "degraded"
	case TierOK:
		return "ok"
	}
	return "unknown"
}

// Usable reports whether the attempt yielded a price.
func (o TierOutcome) Usable() bool {
	return o == TierOK || o == TierDegraded
}

// TierResult is what one tier returns for one symbol.
type TierResult struct {
	Outcome TierOutcome
	Quote   Quote
	Err     error
}

// Tier is one step of the price fallback chain.
type Tier interface {
	Name() string
	Fetch(ctx context.Context, symbol string) TierResult
}

// NormalizeSymbol upper-cases and trims a user supplied symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func ok(q Quote) TierResult       { return TierResult{Outcome: TierOK, Quote: q} }
func degraded(q Quote) TierResult { return TierResult{Outcome: TierDegraded, Quote: q} }
func failed(err error) TierResult { return TierResult{Outcome: TierFailed, Err: err} }
func skipped() TierResult         { return TierResult{Outcome: TierSkipped} }
