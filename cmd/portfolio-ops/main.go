package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"portfolioops/internal/application/port"
	"portfolioops/internal/domain/model"
	"portfolioops/internal/infrastructure/config"
	"portfolioops/internal/infrastructure/container"
	"portfolioops/internal/infrastructure/logger"
	"portfolioops/internal/infrastructure/scheduler"
	"portfolioops/internal/interfaces/httpapi"
)

func main() {
	logger.Setup("info", false)

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	once := flag.Bool("once", false, "run a single refresh cycle and exit (non-zero on FAILED)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.Log.Level, cfg.Log.JSON)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init failed")
	}

	if *once {
		report, err := c.Refresh().RunCycle(ctx)
		_ = c.Close()
		if err != nil || report.Metrics.Status == model.CycleFailed {
			os.Exit(1)
		}
		return
	}

	os.Exit(run(ctx, c))
}

// loadConfig falls back to built-in defaults when the default path is absent.
func loadConfig(path string) (*config.Config, error) {
	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})
	if _, err := os.Stat(path); err != nil && !explicit && errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("config", path).Msg("config file not found, using defaults")
		return config.Default(), nil
	}
	return config.Load(path)
}

func run(ctx context.Context, c *container.Container) int {
	defer c.Close()
	cfg := c.Config()
	svc := c.Refresh()

	cycle := func(ctx context.Context) {
		if _, err := svc.RunCycle(ctx); errors.Is(err, port.ErrCycleInProgress) {
			log.Warn().Msg("previous cycle still running, skipped")
		}
	}

	var srv *httpapi.Server
	if r := c.Router(); r != nil {
		srv = httpapi.NewServer(cfg.HTTP.Addr, r)
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Str("addr", cfg.HTTP.Addr).Msg("http listen failed")
			return 1
		}
	}

	sched := scheduler.New(ctx)
	if _, err := sched.Add(scheduler.Every(cfg.RefreshInterval()), cycle); err != nil {
		log.Error().Err(err).Msg("schedule refresh failed")
		return 1
	}

	var wg sync.WaitGroup
	if cfg.App.RunOnStart {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cycle(ctx)
		}()
	}
	sched.Start()

	log.Info().
		Int("positions", len(cfg.Portfolio.Positions)).
		Int("refresh_interval_sec", cfg.App.RefreshIntervalSec).
		Str("provider", cfg.PriceFeed.Provider).
		Str("storage", cfg.Storage.Driver).
		Bool("http", srv != nil).
		Bool("redis", cfg.Redis.Enabled).
		Msg("portfolio-ops started")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	// waits for a running cycle to record its health row
	sched.Stop()
	wg.Wait()

	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}
	return 0
}
