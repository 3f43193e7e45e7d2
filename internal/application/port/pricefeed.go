package port

import (
	"context"

	"portfolioops/internal/domain/model"
)

// PriceSource 按 ticker 拉取行情。
// A failure for one ticker returns an error for that ticker only. ErrSourceUnavailable
// means the source itself cannot serve and the batch should stop.
type PriceSource interface {
	Name() string
	Fetch(ctx context.Context, ticker string) (model.Quote, error)
}
