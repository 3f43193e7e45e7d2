package refresh

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"portfolioops/internal/application/port"
	appsvc "portfolioops/internal/application/service"
	"portfolioops/internal/domain/model"
	domain "portfolioops/internal/domain/service"
)

// NAVFunc computes NAV from fetched quotes. Overridable in tests.
type NAVFunc func(prices map[string]model.Quote, positions []model.Position) (model.NAVResult, error)

type ServiceDeps struct {
	Source    port.PriceSource
	Portfolio model.Portfolio
	Writer    port.CycleWriter
	Metrics   port.MetricsRecorder
	Recon     *appsvc.ReconciliationService
	Anomaly   *appsvc.AnomalyService
	// optional, runs after the health row is written
	Publisher port.Publisher

	Workers      int           // concurrent fetches, default 4
	CycleTimeout time.Duration // 0 = no deadline

	Clock      func() time.Time
	ComputeNAV NAVFunc
	NewCycleID func() string
}

// Service runs refresh cycles: FETCHING → COMPUTING → WRITING → RECONCILING → DETECTING,
// then RECORD_HEALTH on every path.
type Service struct {
	deps ServiceDeps
	mu   sync.Mutex
}

func NewService(deps ServiceDeps) *Service {
	if deps.Workers <= 0 {
		deps.Workers = 4
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.ComputeNAV == nil {
		deps.ComputeNAV = domain.ComputeNAV
	}
	if deps.NewCycleID == nil {
		deps.NewCycleID = uuid.NewString
	}
	return &Service{deps: deps}
}

// cycle carries per-attempt state between stages.
type cycle struct {
	report  model.CycleReport
	prices  map[string]model.Quote
	fetched time.Time
	stage   string
}

// RunCycle executes one cycle. The returned error is the cause of a FAILED status (or a
// health-row write failure); PARTIAL and SUCCESS cycles return nil. Overlapping calls get
// ErrCycleInProgress and record nothing.
func (s *Service) RunCycle(ctx context.Context) (model.CycleReport, error) {
	if !s.mu.TryLock() {
		return model.CycleReport{}, port.ErrCycleInProgress
	}
	defer s.mu.Unlock()

	if s.deps.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.CycleTimeout)
		defer cancel()
	}

	c := &cycle{}
	c.report.Metrics = model.SystemMetrics{
		CycleID: s.deps.NewCycleID(),
		CycleAt: s.deps.Clock(),
	}
	lg := log.With().Str("cycle_id", c.report.Metrics.CycleID).Logger()

	cause := s.runStages(ctx, c)

	m := &c.report.Metrics
	switch {
	case cause != nil:
		m.Status = model.CycleFailed
		detail := fmt.Sprintf("%s: %v", c.stage, cause)
		m.ErrorDetail = &detail
	case m.TickersFailed > 0:
		m.Status = model.CyclePartial
	default:
		m.Status = model.CycleSuccess
	}

	// RECORD_HEALTH
	herr := s.recordHealth(ctx, *m)
	if herr != nil {
		lg.Error().Err(herr).Msg("record system metrics failed")
	}

	ev := lg.Info()
	if m.Status == model.CycleFailed {
		ev = lg.Error().Str("error", *m.ErrorDetail)
	}
	ev.Str("status", string(m.Status)).
		Int("succeeded", m.TickersSucceeded).
		Int("failed", m.TickersFailed).
		Int("rows", m.TotalRowsProcessed).
		Float64("ingestion_ms", m.IngestionLatencyMs).
		Float64("db_write_ms", m.DBWriteLatencyMs).
		Msg("refresh cycle finished")

	if s.deps.Publisher != nil {
		if err := s.publish(ctx, c.report); err != nil {
			lg.Warn().Err(err).Msg("publish cycle failed")
		}
	}

	if cause != nil {
		return c.report, errors.Join(cause, herr)
	}
	return c.report, herr
}

func (s *Service) recordHealth(ctx context.Context, m model.SystemMetrics) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.deps.Metrics.RecordMetrics(ctx, m)
}

// publish runs after the health row is committed; a panicking target is reported as an error.
func (s *Service) publish(ctx context.Context, r model.CycleReport) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return s.deps.Publisher.PublishCycle(pctx, r)
}

// runStages returns the error that fails the cycle. A panic becomes that error.
func (s *Service) runStages(ctx context.Context, c *cycle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	m := &c.report.Metrics
	lg := log.With().Str("cycle_id", m.CycleID).Logger()

	// FETCHING
	c.stage = "fetch"
	start := time.Now()
	prices, failed, ferr := s.fetch(ctx)
	m.IngestionLatencyMs = millis(time.Since(start))
	m.TickersSucceeded = len(prices)
	m.TickersFailed = len(failed)
	c.report.FailedTickers = failed
	c.prices = prices
	c.fetched = s.deps.Clock()
	if ferr != nil {
		return ferr
	}
	if len(prices) == 0 {
		return port.ErrNoPrices
	}

	// COMPUTING
	c.stage = "compute"
	nav, err := s.deps.ComputeNAV(prices, s.deps.Portfolio.Positions())
	if err != nil {
		return err
	}
	if nav.Degenerate {
		lg.Warn().Msg("total NAV is zero, weights set to 0")
	}
	c.report.NAV = &nav

	// WRITING
	c.stage = "write"
	start = time.Now()
	navID, err := s.deps.Writer.WriteCycle(ctx, port.CycleWrite{
		FetchedAt: c.fetched,
		Prices:    prices,
		Tickers:   s.deps.Portfolio.Tickers(),
		NAV:       nav,
	})
	m.DBWriteLatencyMs = millis(time.Since(start))
	if err != nil {
		return err
	}
	m.TotalRowsProcessed = len(prices)
	c.report.NAVSnapshotID = navID

	s.observe(ctx, c, nav, navID)
	return nil
}

// observe runs RECONCILING and DETECTING against committed state. Nothing here can
// change the cycle status.
func (s *Service) observe(ctx context.Context, c *cycle, nav model.NAVResult, navID int64) {
	lg := log.With().Str("cycle_id", c.report.Metrics.CycleID).Logger()
	defer func() {
		if r := recover(); r != nil {
			lg.Error().Interface("panic", r).Msg("reconcile/detect panicked")
		}
	}()

	now := s.deps.Clock()
	if s.deps.Recon != nil {
		entries, err := s.deps.Recon.Run(ctx, nav, navID, now)
		if err != nil {
			lg.Error().Err(err).Msg("reconciliation failed")
		}
		for _, e := range entries {
			if e.Status == model.ReconBreak {
				lg.Warn().Str("check_type", string(e.CheckType)).Str("detail", e.Detail).Msg("reconciliation break")
			}
		}
		c.report.Recon = entries
	}

	if s.deps.Anomaly != nil {
		found, err := s.deps.Anomaly.Detect(ctx, c.prices, c.report.Metrics.CycleAt, now)
		if err != nil {
			lg.Error().Err(err).Msg("anomaly detection failed")
		}
		for _, t := range s.deps.Portfolio.Tickers() {
			a, ok := found[t]
			if !ok {
				continue
			}
			ev := lg.Warn()
			if a.Severity == model.SeverityCritical {
				ev = lg.Error()
			}
			ev.Str("ticker", a.Ticker).Float64("zscore", a.ZScore).Float64("move_pct", a.MovePct).
				Str("severity", string(a.Severity)).Msg("price anomaly")
			c.report.Anomalies = append(c.report.Anomalies, a)
		}
	}
}

type fetchResult struct {
	quote model.Quote
	ok    bool
}

// fetch queries every held ticker with bounded concurrency. Per-ticker failures are
// absorbed; ErrSourceUnavailable stops the batch.
func (s *Service) fetch(ctx context.Context) (map[string]model.Quote, []string, error) {
	tickers := s.deps.Portfolio.Tickers()
	results := make([]fetchResult, len(tickers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.deps.Workers)
	for i, t := range tickers {
		g.Go(func() error {
			q, err := s.deps.Source.Fetch(gctx, t)
			if err == nil && !validQuote(q) {
				err = fmt.Errorf("%w: %s price=%v", domain.ErrInvalidPrice, t, q.Price)
			}
			if err != nil {
				if errors.Is(err, port.ErrSourceUnavailable) {
					return fmt.Errorf("source %s: %w", s.deps.Source.Name(), err)
				}
				log.Warn().Err(err).Str("ticker", t).Msg("fetch ticker failed")
				return nil
			}
			results[i] = fetchResult{quote: q, ok: true}
			return nil
		})
	}
	err := g.Wait()

	prices := make(map[string]model.Quote, len(tickers))
	var failed []string
	for i, t := range tickers {
		if results[i].ok {
			prices[t] = results[i].quote
		} else {
			failed = append(failed, t)
		}
	}
	return prices, failed, err
}

func validQuote(q model.Quote) bool {
	return !math.IsNaN(q.Price) && !math.IsInf(q.Price, 0) && q.Price > 0
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
