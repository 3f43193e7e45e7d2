// Package static serves fixed quotes from config, for offline runs and demos.
package static

import (
	"context"
	"fmt"
	"time"

	"portfolioops/internal/application/port"
	"portfolioops/internal/domain/model"
	"portfolioops/internal/infrastructure/pricefeed"
)

const Name = "static"

func init() {
	pricefeed.Register(Name, func(opts pricefeed.Options) (port.PriceSource, error) {
		return New(opts.Static), nil
	})
}

type Source struct {
	quotes map[string]model.Quote
	now    func() time.Time
}

func New(quotes map[string]model.Quote) *Source {
	cp := make(map[string]model.Quote, len(quotes))
	for k, v := range quotes {
		cp[k] = v
	}
	return &Source{quotes: cp, now: time.Now}
}

func (s *Source) Name() string { return Name }

// Fetch stamps the quote with the current time when no market time was configured.
func (s *Source) Fetch(ctx context.Context, ticker string) (model.Quote, error) {
	if err := ctx.Err(); err != nil {
		return model.Quote{}, fmt.Errorf("%w: %v", port.ErrSourceUnavailable, err)
	}
	q, ok := s.quotes[ticker]
	if !ok {
		return model.Quote{}, fmt.Errorf("%w: %s", port.ErrTickerNotFound, ticker)
	}
	if q.MarketTime == nil {
		now := s.now().UTC()
		q.MarketTime = &now
	}
	return q, nil
}

var _ port.PriceSource = (*Source)(nil)
