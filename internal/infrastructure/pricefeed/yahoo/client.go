// Package yahoo fetches quotes from the Yahoo Finance chart endpoint.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"portfolioops/internal/application/port"
	"portfolioops/internal/domain/model"
	"portfolioops/internal/infrastructure/pricefeed"
)

const Name = "yahoo"

func init() {
	pricefeed.Register(Name, func(opts pricefeed.Options) (port.PriceSource, error) {
		return New(opts), nil
	})
}

type Client struct {
	http      *http.Client
	baseURL   string
	userAgent string
	limiter   *rate.Limiter
}

func New(opts pricefeed.Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		limiter:   rate.NewLimiter(limit, burst),
	}
}

func (c *Client) Name() string { return Name }

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice   *float64 `json:"regularMarketPrice"`
				ChartPreviousClose   *float64 `json:"chartPreviousClose"`
				PreviousClose        *float64 `json:"previousClose"`
				RegularMarketVolume  *float64 `json:"regularMarketVolume"`
				RegularMarketDayHigh *float64 `json:"regularMarketDayHigh"`
				RegularMarketDayLow  *float64 `json:"regularMarketDayLow"`
				RegularMarketTime    *int64   `json:"regularMarketTime"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Open []*float64 `json:"open"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (c *Client) Fetch(ctx context.Context, ticker string) (model.Quote, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return model.Quote{}, fmt.Errorf("%w: rate limiter: %v", port.ErrSourceUnavailable, err)
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?range=1d&interval=1m", c.baseURL, url.PathEscape(ticker))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.Quote{}, fmt.Errorf("build request %s: %w", ticker, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return model.Quote{}, fmt.Errorf("%w: %v", port.ErrSourceUnavailable, ctx.Err())
		}
		return model.Quote{}, fmt.Errorf("fetch %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return model.Quote{}, fmt.Errorf("%w: %s", port.ErrTickerNotFound, ticker)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return model.Quote{}, fmt.Errorf("%w: http %d", port.ErrSourceUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.Quote{}, fmt.Errorf("fetch %s: http %d: %s", ticker, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var cr chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return model.Quote{}, fmt.Errorf("decode %s: %w", ticker, err)
	}
	return parseChart(ticker, cr)
}

func parseChart(ticker string, cr chartResponse) (model.Quote, error) {
	if cr.Chart.Error != nil {
		if strings.EqualFold(cr.Chart.Error.Code, "Not Found") {
			return model.Quote{}, fmt.Errorf("%w: %s", port.ErrTickerNotFound, ticker)
		}
		return model.Quote{}, fmt.Errorf("chart %s: %s: %s", ticker, cr.Chart.Error.Code, cr.Chart.Error.Description)
	}
	if len(cr.Chart.Result) == 0 {
		return model.Quote{}, fmt.Errorf("%w: %s (empty result)", port.ErrTickerNotFound, ticker)
	}

	r := cr.Chart.Result[0]
	price := sanitize(r.Meta.RegularMarketPrice)
	if price == nil {
		return model.Quote{}, errors.New("missing price for " + ticker)
	}

	q := model.Quote{
		Price:     *price,
		PrevClose: sanitize(r.Meta.ChartPreviousClose),
		Volume:    sanitize(r.Meta.RegularMarketVolume),
		DayHigh:   sanitize(r.Meta.RegularMarketDayHigh),
		DayLow:    sanitize(r.Meta.RegularMarketDayLow),
	}
	if q.PrevClose == nil {
		q.PrevClose = sanitize(r.Meta.PreviousClose)
	}
	if len(r.Indicators.Quote) > 0 {
		for _, o := range r.Indicators.Quote[0].Open {
			if v := sanitize(o); v != nil {
				q.DayOpen = v
				break
			}
		}
	}
	if r.Meta.RegularMarketTime != nil && *r.Meta.RegularMarketTime > 0 {
		mt := time.Unix(*r.Meta.RegularMarketTime, 0).UTC()
		q.MarketTime = &mt
	}
	return q, nil
}

// sanitize drops null and non-finite values.
func sanitize(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	out := *v
	return &out
}

var _ port.PriceSource = (*Client)(nil)
