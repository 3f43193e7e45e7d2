package static

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"portfolioops/internal/application/port"
	"portfolioops/internal/domain/model"
	"portfolioops/internal/infrastructure/pricefeed"
)

func TestFetchKnownTicker(t *testing.T) {
	s := New(map[string]model.Quote{"AAPL": {Price: 110}})

	q, err := s.Fetch(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Equal(t, 110.0, q.Price)
	require.NotNil(t, q.MarketTime)
}

func TestFetchUnknownTicker(t *testing.T) {
	s := New(nil)
	_, err := s.Fetch(context.Background(), "MSFT")
	require.ErrorIs(t, err, port.ErrTickerNotFound)
}

func TestFetchCancelled(t *testing.T) {
	s := New(map[string]model.Quote{"AAPL": {Price: 110}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Fetch(ctx, "AAPL")
	require.ErrorIs(t, err, port.ErrSourceUnavailable)
}

func TestRegistered(t *testing.T) {
	src, err := pricefeed.New(Name, pricefeed.Options{Static: map[string]model.Quote{"GLD": {Price: 220}}})
	require.NoError(t, err)
	q, err := src.Fetch(context.Background(), "GLD")
	require.NoError(t, err)
	require.Equal(t, 220.0, q.Price)
}
