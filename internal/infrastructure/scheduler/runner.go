package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Runner wraps robfig/cron. Jobs run with baseCtx, are recovered on panic and skipped
// while the previous run of the same job is still going.
type Runner struct {
	cron    *cron.Cron
	baseCtx context.Context
}

func New(baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	l := cronLogger{zl: log.Logger}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(l),
			// Recover inside Skip, or a panic never hands back the run token
			cron.WithChain(cron.SkipIfStillRunning(l), cron.Recover(l)),
		),
		baseCtx: baseCtx,
	}
}

// Every converts an interval into an "@every" spec.
func Every(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}
	return fmt.Sprintf("@every %s", d.Truncate(time.Second))
}

func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		job(r.baseCtx)
	})
}

func (r *Runner) Start() {
	log.Info().Int("jobs", len(r.cron.Entries())).Msg("cron started")
	r.cron.Start()
}

// Stop blocks until running jobs finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("cron stopped")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	zl zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	// cron logs every schedule/wake at Info; keep it at debug
	l.zl.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.zl.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
