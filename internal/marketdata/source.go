package marketdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MaxQuoteAge is the staleness window beyond which a quote is treated
// as absent.
const MaxQuoteAge = 5 * time.Minute

// Quote is one market data point for a symbol.
type Quote struct {
	Symbol        string          `json:"symbol"`
	LastPrice     decimal.Decimal `json:"last_price"`
	ChangePercent float64         `json:"change_percent"`
	Volume        int64           `json:"volume"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Source fetches quotes for a set of symbols. Implementations may return
// partial results; a missing symbol is not an error.
type Source interface {
	Quotes(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// FilterStale drops quotes older than MaxQuoteAge so downstream consumers
// only ever see usable data.
func FilterStale(quotes map[string]Quote, now time.Time) map[string]Quote {
	fresh := make(map[string]Quote, len(quotes))
	for symbol, q := range quotes {
		if now.Sub(q.Timestamp) > MaxQuoteAge {
			continue
		}
		fresh[symbol] = q
	}
	return fresh
}
