package refresh

import (
	"context"
	"fmt"
	"strings"

	"portfolioops/internal/application/port"
	"portfolioops/internal/domain/model"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiDim    = "\033[2m"
)

func colorize(s, c string) string { return c + s + ansiReset }

// signColor: green above +threshold, red below -threshold, else yellow
func signColor(v, threshold float64) string {
	if v >= threshold {
		return ansiGreen
	}
	if v <= -threshold {
		return ansiRed
	}
	return ansiYellow
}

type Formatter struct {
	// P&L percent treated as flat, default 0.001
	FlatThreshold float64
	NoColor       bool
}

func NewFormatter(flat float64) *Formatter {
	if flat <= 0 {
		flat = 0.001
	}
	return &Formatter{FlatThreshold: flat}
}

func (f *Formatter) color(s, c string) string {
	if f.NoColor {
		return s
	}
	return colorize(s, c)
}

// Render produces a one-line cycle summary.
func (f *Formatter) Render(r model.CycleReport) string {
	m := r.Metrics
	var sb strings.Builder
	sb.WriteString(f.color("[PORTFOLIO] ", ansiDim))

	stCol := ansiGreen
	switch m.Status {
	case model.CyclePartial:
		stCol = ansiYellow
	case model.CycleFailed:
		stCol = ansiRed
	}
	sb.WriteString(f.color(string(m.Status), stCol))

	if r.NAV != nil && m.Status != model.CycleFailed {
		sb.WriteString(fmt.Sprintf(" NAV=%.2f", r.NAV.TotalNAV))
		sb.WriteString(" ")
		sb.WriteString(f.color(fmt.Sprintf("PnL=%+.2f (%+.2f%%)", r.NAV.TotalPnL, r.NAV.TotalPnLPct*100),
			signColor(r.NAV.TotalPnLPct, f.FlatThreshold)))
	}
	sb.WriteString(fmt.Sprintf(" tickers=%d/%d", m.TickersSucceeded, m.TickersSucceeded+m.TickersFailed))
	if len(r.FailedTickers) > 0 {
		sb.WriteString(f.color(" missing="+strings.Join(r.FailedTickers, ","), ansiYellow))
	}

	var breaks []string
	for _, e := range r.Recon {
		if e.Status == model.ReconBreak {
			breaks = append(breaks, string(e.CheckType))
		}
	}
	if len(r.Recon) > 0 {
		if len(breaks) == 0 {
			sb.WriteString(f.color(" recon=PASS", ansiGreen))
		} else {
			sb.WriteString(f.color(" recon=BREAK("+strings.Join(breaks, ",")+")", ansiRed))
		}
	}

	for _, a := range r.Anomalies {
		col := ansiYellow
		if a.Severity == model.SeverityCritical {
			col = ansiRed
		}
		sb.WriteString(" ")
		sb.WriteString(f.color(fmt.Sprintf("%s z=%+.2f", a.Ticker, a.ZScore), col))
	}

	sb.WriteString(f.color(fmt.Sprintf("  ingest=%.0fms write=%.0fms", m.IngestionLatencyMs, m.DBWriteLatencyMs), ansiDim))
	if m.ErrorDetail != nil {
		sb.WriteString(" ")
		sb.WriteString(f.color(*m.ErrorDetail, ansiRed))
	}
	return sb.String()
}

// SinkPublisher writes each cycle summary to a line sink.
type SinkPublisher struct {
	sink port.Sink
	fmt  *Formatter
}

func NewSinkPublisher(sink port.Sink, f *Formatter) *SinkPublisher {
	return &SinkPublisher{sink: sink, fmt: f}
}

func (p *SinkPublisher) PublishCycle(ctx context.Context, r model.CycleReport) error {
	return p.sink.WriteSnapshot(r.Metrics.CycleAt, p.fmt.Render(r))
}

var _ port.Publisher = (*SinkPublisher)(nil)
