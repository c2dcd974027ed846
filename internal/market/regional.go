package market

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"prop-challenge-go/internal/config"
)

const (
	regionalPrefix    = "MA_"
	regionalQuotePath = "/market/maroc/titres/{symbol}"
)

var errNoPriceElement = errors.New("no price element in page")

// RegionalMarket knows which symbols trade on the Casablanca exchange.
type RegionalMarket struct {
	symbols map[string]struct{}
}

// NewRegionalMarket builds the allow-list of regional symbols.
func NewRegionalMarket(symbols []string) RegionalMarket {
	m := RegionalMarket{symbols: make(map[string]struct{}, len(symbols))}
	for _, s := range symbols {
		m.symbols[NormalizeSymbol(s)] = struct{}{}
	}
	return m
}

// Key returns the bare regional ticker for symbol and whether symbol is regional.
// A symbol is regional when it carries the MA_ prefix or is on the allow-list.
func (m RegionalMarket) Key(symbol string) (string, bool) {
	s := NormalizeSymbol(symbol)
	if strings.HasPrefix(s, regionalPrefix) {
		return strings.TrimPrefix(s, regionalPrefix), true
	}
	_, found := m.symbols[s]
	return s, found
}

// RegionalFetcher fetches the last traded price of a regional symbol.
type RegionalFetcher interface {
	FetchPrice(ctx context.Context, symbol string) (float64, error)
}

// RegionalClient scrapes quote pages of a regional market news site.
type RegionalClient struct {
	http *httpClient
}

// ensure RegionalClient implements the interface
var _ RegionalFetcher = (*RegionalClient)(nil)

// NewRegionalClient creates a scraper for the regional quote site.
func NewRegionalClient(cfg *config.Market, logger *zap.Logger) *RegionalClient {
	return &RegionalClient{http: newHTTPClient(cfg.RegionalURL, cfg, logger.Named("regional"))}
}

// FetchPrice downloads the quote page of symbol and parses its closing price.
func (c *RegionalClient) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	req := c.http.client.R().
		SetPathParam("symbol", strings.ToLower(symbol)).
		SetHeader("Accept", "text/html")

	resp, err := c.http.doRequest(ctx, http.MethodGet, regionalQuotePath, req)
	if err != nil {
		return 0, fmt.Errorf("failed to get quote page for %s: %w", symbol, err)
	}

	raw, err := extractPrice(resp.Body())
	if err != nil {
		return 0, fmt.Errorf("failed to scrape %s: %w", symbol, err)
	}
	return ParseLocalizedPrice(raw)
}

// extractPrice looks for span.valeur_cloture first and the og:price:amount meta tag second.
func extractPrice(body []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	var closing, meta string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Span:
				if closing == "" && hasClass(n, "valeur_cloture") {
					closing = strings.TrimSpace(textContent(n))
				}
			case atom.Meta:
				if meta == "" && attr(n, "property") == "og:price:amount" {
					meta = strings.TrimSpace(attr(n, "content"))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	switch {
	case closing != "":
		return closing, nil
	case meta != "":
		return meta, nil
	}
	return "", errNoPriceElement
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// ParseLocalizedPrice parses prices such as "125,50 MAD", "1 234,50" or "1,234.50".
// The right-most separator is the decimal mark; a lone comma is a decimal comma.
func ParseLocalizedPrice(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimRightFunc(s, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsSpace(r) })
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0 && lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case lastComma >= 0 && lastDot >= 0:
		s = strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		s = strings.ReplaceAll(s, ",", ".")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable price %q: %w", raw, err)
	}
	if v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, fmt.Errorf("invalid price %q", raw)
	}
	return v, nil
}

type regionalTier struct {
	client RegionalFetcher
	cache  *QuoteCache
	market RegionalMarket
	jitter *Jitter
	now    func() time.Time
}

// NewRegionalTier wraps the regional scraper and its cache as a resolver tier.
// Non-regional symbols are skipped.
func NewRegionalTier(client RegionalFetcher, cache *QuoteCache, market RegionalMarket, jitter *Jitter) Tier {
	return &regionalTier{client: client, cache: cache, market: market, jitter: jitter, now: time.Now}
}

func (t *regionalTier) Name() string { return "regional" }

func (t *regionalTier) Fetch(ctx context.Context, symbol string) TierResult {
	key, regional := t.market.Key(symbol)
	if !regional {
		return skipped()
	}

	if q, hit := t.cache.Get(key); hit {
		q.Price = t.jitter.Apply(q.Price)
		return ok(q)
	}

	price, err := t.client.FetchPrice(ctx, key)
	if err != nil {
		return failed(err)
	}

	q := Quote{Symbol: key, Price: price, Source: SourceLive, FetchedAt: t.now().UTC()}
	t.cache.Set(key, q)

	q.Price = t.jitter.Apply(q.Price)
	return ok(q)
}
