package marketdata

import (
	"context"
	"time"

	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// YahooSource fetches quotes from Yahoo Finance.
type YahooSource struct{}

// NewYahooSource creates a Yahoo Finance quote source.
func NewYahooSource() *YahooSource {
	return &YahooSource{}
}

// Quotes fetches current quotes for the given symbols. Symbols that fail
// to resolve are skipped, not fatal.
func (s *YahooSource) Quotes(ctx context.Context, symbols []string) (map[string]Quote, error) {
	quotes := make(map[string]Quote, len(symbols))

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return quotes, err
		}

		q, err := quote.Get(symbol)
		if err != nil || q == nil {
			log.WithFields(log.Fields{"component": "marketdata", "symbol": symbol}).
				WithError(err).Debug("quote fetch failed, skipping symbol")
			continue
		}

		quotes[symbol] = Quote{
			Symbol:        symbol,
			LastPrice:     decimal.NewFromFloat(q.RegularMarketPrice),
			ChangePercent: q.RegularMarketChangePercent,
			Volume:        int64(q.RegularMarketVolume),
			Timestamp:     time.Unix(int64(q.RegularMarketTime), 0),
		}
	}

	return quotes, nil
}
