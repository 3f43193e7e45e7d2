package composite

import (
	"context"

	"portfolioops/internal/application/port"
	"portfolioops/internal/domain/model"
)

// Publisher fans one cycle report out to every target. All targets run; the first error wins.
type Publisher struct {
	targets []port.Publisher
}

func New(targets ...port.Publisher) *Publisher {
	// nil targets are allowed; filter in constructor for safety
	out := make([]port.Publisher, 0, len(targets))
	for _, t := range targets {
		if t != nil {
			out = append(out, t)
		}
	}
	return &Publisher{targets: out}
}

func (p *Publisher) Len() int { return len(p.targets) }

func (p *Publisher) PublishCycle(ctx context.Context, r model.CycleReport) error {
	var firstErr error
	for _, t := range p.targets {
		if err := t.PublishCycle(ctx, r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.Publisher = (*Publisher)(nil)
