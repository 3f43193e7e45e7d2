package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	appcontainer "portfolioops/internal/application/container"
	"portfolioops/internal/application/port"
	"portfolioops/internal/application/usecase/refresh"
	"portfolioops/internal/infrastructure/config"
	"portfolioops/internal/infrastructure/metrics"
	"portfolioops/internal/infrastructure/pricefeed"
	_ "portfolioops/internal/infrastructure/pricefeed/static"
	_ "portfolioops/internal/infrastructure/pricefeed/yahoo"
	"portfolioops/internal/infrastructure/storage"
	"portfolioops/internal/infrastructure/storage/composite"
	redisrepo "portfolioops/internal/infrastructure/storage/redis"
	"portfolioops/internal/interfaces/console"
	"portfolioops/internal/interfaces/httpapi"
)

// Container 包含所有应用依赖
type Container struct {
	cfg         *config.Config
	app         *appcontainer.Container
	store       port.Store
	redisClient *redis.Client
	redisPub    *redisrepo.Publisher
	source      port.PriceSource
	publisher   *composite.Publisher
	refresh     *refresh.Service
	router      *gin.Engine
	closeOnce   sync.Once
	closerChain []func() error
}

// New 创建新的容器实例
func New(cfg *config.Config) (*Container, error) {
	c := &Container{
		cfg:         cfg,
		closerChain: make([]func() error, 0),
	}

	steps := []struct {
		name string
		fn   func() error
	}{
		{"storage", c.initStorage},
		{"redis", c.initRedis},
		{"pricefeed", c.initSource},
		{"http", c.initHTTP},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			// 清理已初始化的资源
			_ = c.Close()
			return nil, fmt.Errorf("%s init failed: %w", s.name, err)
		}
	}

	c.initPublishers()
	c.refresh = c.app.RefreshService(c.source, c.publisher, cfg.PriceFeed.Workers, cfg.CycleTimeout())
	return c, nil
}

// initStorage 初始化 SQL 存储（SQLite 或 Postgres）
func (c *Container) initStorage() error {
	st, err := storage.Open(storage.Options{
		Driver:       c.cfg.Storage.Driver,
		SQLitePath:   c.cfg.Storage.SQLite.Path,
		PostgresDSN:  c.cfg.Storage.Postgres.DSN,
		MaxOpenConns: c.cfg.Storage.Postgres.MaxOpenConns,
	})
	if err != nil {
		return err
	}
	c.store = st
	c.app = appcontainer.New(st, c.cfg.Holdings(), c.cfg.ReconConfig(), c.cfg.AnomalyConfig())

	// 注册关闭回调
	c.closerChain = append(c.closerChain, func() error {
		log.Info().Str("driver", c.cfg.Storage.Driver).Msg("closing store")
		return st.Close()
	})

	ev := log.Info().Str("driver", c.cfg.Storage.Driver)
	if c.cfg.Storage.Driver == storage.DriverSQLite {
		ev = ev.Str("path", c.cfg.Storage.SQLite.Path)
	}
	ev.Msg("store initialized")
	return nil
}

// initRedis 初始化 Redis 连接
func (c *Container) initRedis() error {
	if !c.cfg.Redis.Enabled {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.cfg.Redis.Addr,
		Password: c.cfg.Redis.Password,
		DB:       c.cfg.Redis.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	c.redisClient = rdb
	ttl := time.Duration(c.cfg.Redis.TTLSeconds) * time.Second
	c.redisPub = redisrepo.New(rdb, c.cfg.Redis.Prefix, ttl, c.cfg.Redis.AnomalyStream, c.cfg.Redis.CycleChannel)

	c.closerChain = append(c.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return rdb.Close()
	})

	log.Info().
		Str("addr", c.cfg.Redis.Addr).
		Int("db", c.cfg.Redis.DB).
		Msg("redis initialized")
	return nil
}

func (c *Container) initSource() error {
	src, err := pricefeed.New(c.cfg.PriceFeed.Provider, pricefeed.Options{
		BaseURL:    c.cfg.PriceFeed.BaseURL,
		Timeout:    time.Duration(c.cfg.PriceFeed.TimeoutSec) * time.Second,
		RatePerSec: c.cfg.PriceFeed.RatePerSec,
		Burst:      c.cfg.PriceFeed.Burst,
		UserAgent:  c.cfg.PriceFeed.UserAgent,
		Static:     c.cfg.StaticQuotes(),
	})
	if err != nil {
		return err
	}
	c.source = src
	log.Info().Str("provider", src.Name()).Int("tickers", c.app.Portfolio().Len()).Msg("price source initialized")
	return nil
}

func (c *Container) initHTTP() error {
	if !c.cfg.HTTP.Enabled {
		return nil
	}
	router, err := httpapi.NewRouter(c.store, httpapi.Options{
		CORSOrigins: c.cfg.HTTP.CORSOrigins,
		CacheSize:   c.cfg.HTTP.CacheSize,
		Metrics:     true,
	})
	if err != nil {
		return err
	}
	c.router = router
	return nil
}

func (c *Container) initPublishers() {
	targets := []port.Publisher{metrics.NewRecorder()}
	// console summary would interleave with JSON log lines
	if !c.cfg.Log.JSON {
		targets = append(targets, refresh.NewSinkPublisher(console.NewSink(), refresh.NewFormatter(0)))
	}
	if c.redisPub != nil {
		targets = append(targets, c.redisPub)
	}
	c.publisher = composite.New(targets...)
}

// Config 获取配置
func (c *Container) Config() *config.Config {
	return c.cfg
}

func (c *Container) Store() port.Store {
	return c.store
}

func (c *Container) Source() port.PriceSource {
	return c.source
}

// RedisClient 获取 Redis 客户端，未启用时为 nil
func (c *Container) RedisClient() *redis.Client {
	return c.redisClient
}

func (c *Container) Refresh() *refresh.Service {
	return c.refresh
}

// Router is nil when [http] is disabled.
func (c *Container) Router() *gin.Engine {
	return c.router
}

// Close 关闭所有资源（按后进先出顺序）
func (c *Container) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for i := len(c.closerChain) - 1; i >= 0; i-- {
			if e := c.closerChain[i](); e != nil {
				log.Error().Err(e).Msg("error closing resource")
				if err == nil {
					err = e
				}
			}
		}
		log.Info().Msg("container closed")
	})
	return err
}
