package container_test

import (
	"context"
	"path/filepath"
	"testing"

	"portfolioops/internal/domain/model"
	"portfolioops/internal/infrastructure/config"
	infracontainer "portfolioops/internal/infrastructure/container"
)

func staticConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "test_container.db")
	cfg.HTTP.Enabled = false
	cfg.Portfolio.Positions = []config.Position{
		{Ticker: "AAPL", Shares: 10, CostBasis: 100, AssetClass: "equity"},
		{Ticker: "AGG", Shares: 20, CostBasis: 50, AssetClass: "fixed_income"},
		{Ticker: "GLD", Shares: 5, CostBasis: 200, AssetClass: "commodity"},
	}
	cfg.PriceFeed.Provider = "static"
	cfg.PriceFeed.Static = []config.StaticQuote{
		{Ticker: "AAPL", Price: 110, PrevClose: 109},
		{Ticker: "AGG", Price: 55, PrevClose: 54.5},
		{Ticker: "GLD", Price: 220, PrevClose: 218},
	}
	return cfg
}

func TestContainerWithSQLite(t *testing.T) {
	c, err := infracontainer.New(staticConfig(t))
	if err != nil {
		t.Fatalf("failed to create container: %v", err)
	}
	defer c.Close()

	if c.Store() == nil {
		t.Errorf("expected store, got nil")
	}
	if c.Source().Name() != "static" {
		t.Errorf("expected static source, got %s", c.Source().Name())
	}
	if c.Router() != nil {
		t.Errorf("http disabled, expected no router")
	}
}

func TestContainerServiceWorkflow(t *testing.T) {
	c, err := infracontainer.New(staticConfig(t))
	if err != nil {
		t.Fatalf("failed to create container: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	report, err := c.Refresh().RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if report.Metrics.Status != model.CycleSuccess {
		t.Fatalf("expected SUCCESS, got %s", report.Metrics.Status)
	}

	nav, err := c.Store().LatestNAV(ctx)
	if err != nil {
		t.Fatalf("LatestNAV failed: %v", err)
	}
	if nav.TotalNAV != 3300 {
		t.Errorf("expected NAV 3300, got %v", nav.TotalNAV)
	}

	positions, err := c.Store().PositionsFor(ctx, nav.ID)
	if err != nil {
		t.Fatalf("PositionsFor failed: %v", err)
	}
	if len(positions) != 3 {
		t.Errorf("expected 3 positions, got %d", len(positions))
	}
}

func TestContainerCloseIsIdempotent(t *testing.T) {
	c, err := infracontainer.New(staticConfig(t))
	if err != nil {
		t.Fatalf("failed to create container: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
