package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"portfolioops/internal/application/port"
	"portfolioops/internal/domain/model"
)

type Options struct {
	CORSOrigins []string
	// positions cached per NAV snapshot id
	CacheSize int
	// mount promhttp at /metrics
	Metrics bool
}

// NewRouter builds the read-only API over the store.
func NewRouter(store port.QueryStore, opts Options) (*gin.Engine, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 64
	}
	cache, err := lru.New[int64, []model.PositionSnapshot](opts.CacheSize)
	if err != nil {
		return nil, err
	}
	h := &Handler{store: store, positions: cache}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	config := cors.DefaultConfig()
	if len(opts.CORSOrigins) == 0 || contains(opts.CORSOrigins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = opts.CORSOrigins
	}
	config.AllowMethods = []string{"GET", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(config))

	api := router.Group("/api")
	{
		api.GET("/health", h.Health)

		nav := api.Group("/nav")
		{
			nav.GET("/current", h.CurrentNAV)
			nav.GET("/history", h.NAVHistory)
		}

		api.GET("/attribution", h.Attribution)
		api.GET("/positions", h.Positions)
		api.GET("/reconciliation", h.Reconciliation)
		api.GET("/anomalies", h.Anomalies)
		api.GET("/system/metrics", h.SystemMetrics)
	}

	if opts.Metrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	return router, nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}

func contains(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
