package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	repo, err := New(filepath.Join(t.TempDir(), "test_portfolio.db"))
	if err != nil {
		t.Fatalf("failed to create repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func names(t *testing.T, repo *Repo, kind string) map[string]bool {
	t.Helper()
	rows, err := repo.GetDB().Query(`SELECT name FROM sqlite_master WHERE type = ? AND name NOT LIKE 'sqlite_%'`, kind)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out[n] = true
	}
	return out
}

func TestSQLiteRepoCreatesAllTables(t *testing.T) {
	repo := newTestRepo(t)

	tables := names(t, repo, "table")
	for _, want := range []string{"price_snapshots", "nav_snapshots", "position_snapshots", "recon_log", "anomaly_log", "system_metrics"} {
		if !tables[want] {
			t.Errorf("missing table %s", want)
		}
	}
}

func TestSQLiteRepoCreatesIndexes(t *testing.T) {
	repo := newTestRepo(t)

	idx := names(t, repo, "index")
	for _, want := range []string{"idx_price_ticker_time", "idx_position_nav", "idx_recon_type_time", "idx_anomaly_time"} {
		if !idx[want] {
			t.Errorf("missing index %s", want)
		}
	}
}

func TestSQLiteRepoMigrateIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)

	if err := repo.migrate(context.Background()); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

func TestSQLiteRepoReopenExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	first, err := New(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	_ = first.Close()

	second, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = second.Close()
}

func TestSQLiteRepoForeignKeysEnabled(t *testing.T) {
	repo := newTestRepo(t)

	var on int
	if err := repo.GetDB().QueryRow(`PRAGMA foreign_keys`).Scan(&on); err != nil {
		t.Fatalf("pragma foreign_keys: %v", err)
	}
	if on != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", on)
	}

	_, err := repo.GetDB().Exec(`INSERT INTO position_snapshots
		(nav_snapshot_id, ticker, asset_class, shares, price, cost_basis, market_value, unrealized_pnl, pnl_pct, weight)
		VALUES (999, 'AAPL', 'equity', 1, 1, 1, 1, 0, 0, 1)`)
	if err == nil {
		t.Fatal("expected foreign key violation for orphan position")
	}
}

func TestSQLiteRepoWALMode(t *testing.T) {
	repo := newTestRepo(t)

	var mode string
	if err := repo.GetDB().QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("pragma journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Fatalf("expected wal journal mode, got %q", mode)
	}
}
