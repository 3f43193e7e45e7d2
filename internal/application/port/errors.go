package port

import "errors"

var (
	ErrNoData            = errors.New("no data")
	ErrSourceUnavailable = errors.New("price source unavailable")
	ErrTickerNotFound    = errors.New("ticker not found")
	ErrNoPrices          = errors.New("no prices fetched")
	ErrCycleInProgress   = errors.New("refresh cycle already in progress")
)
