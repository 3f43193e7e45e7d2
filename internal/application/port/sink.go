package port

import (
	"context"
	"time"

	"portfolioops/internal/domain/model"
)

// Sink receives one human-readable line per finished cycle.
type Sink interface {
	WriteSnapshot(ts time.Time, line string) error
}

// Publisher receives every finished cycle after its health row is written.
type Publisher interface {
	PublishCycle(ctx context.Context, r model.CycleReport) error
}
