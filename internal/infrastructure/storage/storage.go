package storage

import (
	"fmt"
	"strings"

	"portfolioops/internal/application/port"
	"portfolioops/internal/infrastructure/storage/postgres"
	"portfolioops/internal/infrastructure/storage/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and configures the SQL backend.
type Options struct {
	Driver       string
	SQLitePath   string
	PostgresDSN  string
	MaxOpenConns int
}

// Open returns a migrated store for the configured driver.
func Open(opts Options) (port.Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverSQLite:
		repo, err := sqlite.New(opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case DriverPostgres:
		if strings.TrimSpace(opts.PostgresDSN) == "" {
			return nil, fmt.Errorf("storage: postgres dsn is empty")
		}
		repo, err := postgres.New(opts.PostgresDSN, opts.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", opts.Driver)
	}
}
