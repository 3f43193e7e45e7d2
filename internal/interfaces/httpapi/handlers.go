package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"

	"portfolioops/internal/application/port"
	"portfolioops/internal/domain/model"
	"portfolioops/internal/domain/service"
)

const (
	defaultHistoryN = 100
	maxHistoryN     = 10000
	defaultListN    = 50
	maxListN        = 1000
)

type Handler struct {
	store port.QueryStore
	// committed position rows never change, so the NAV id is a safe key
	positions *lru.Cache[int64, []model.PositionSnapshot]
}

type healthResponse struct {
	Status    string               `json:"status"`
	LastCycle *model.SystemMetrics `json:"last_cycle"`
}

type navResponse struct {
	model.NAVSnapshot
	Positions []model.PositionSnapshot `json:"positions"`
}

// Health is the liveness check and always answers 200.
func (h *Handler) Health(c *gin.Context) {
	resp := healthResponse{Status: "ok"}
	m, err := h.store.LatestMetrics(c.Request.Context())
	switch {
	case err == nil:
		resp.LastCycle = &m
	case errors.Is(err, port.ErrNoData):
	default:
		log.Warn().Err(err).Msg("health: read last cycle failed")
		resp.Status = "degraded"
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) CurrentNAV(c *gin.Context) {
	nav, positions, ok := h.latest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, navResponse{NAVSnapshot: nav, Positions: positions})
}

func (h *Handler) NAVHistory(c *gin.Context) {
	n, ok := limitParam(c, defaultHistoryN, maxHistoryN)
	if !ok {
		return
	}
	rows, err := h.store.NAVHistory(c.Request.Context(), n)
	if err != nil {
		internalError(c, err)
		return
	}
	if len(rows) == 0 {
		noData(c)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handler) Attribution(c *gin.Context) {
	_, positions, ok := h.latest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, service.Attribution(positions))
}

func (h *Handler) Positions(c *gin.Context) {
	_, positions, ok := h.latest(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, service.SortByMarketValue(positions))
}

func (h *Handler) Reconciliation(c *gin.Context) {
	if !h.hasSnapshot(c) {
		return
	}
	rows, err := h.store.LatestRecon(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	if rows == nil {
		rows = []model.ReconEntry{}
	}
	c.JSON(http.StatusOK, rows)
}

// Anomalies is 503 until the first snapshot exists; after that an empty log is [].
func (h *Handler) Anomalies(c *gin.Context) {
	n, ok := limitParam(c, defaultListN, maxListN)
	if !ok || !h.hasSnapshot(c) {
		return
	}
	rows, err := h.store.RecentAnomalies(c.Request.Context(), n)
	if err != nil {
		internalError(c, err)
		return
	}
	if rows == nil {
		rows = []model.Anomaly{}
	}
	c.JSON(http.StatusOK, rows)
}

// SystemMetrics returns [] rather than 503 when no cycle has run.
func (h *Handler) SystemMetrics(c *gin.Context) {
	n, ok := limitParam(c, defaultListN, maxListN)
	if !ok {
		return
	}
	rows, err := h.store.RecentMetrics(c.Request.Context(), n)
	if err != nil {
		internalError(c, err)
		return
	}
	if rows == nil {
		rows = []model.SystemMetrics{}
	}
	c.JSON(http.StatusOK, rows)
}

// hasSnapshot answers 503 when no NAV snapshot has been committed yet.
func (h *Handler) hasSnapshot(c *gin.Context) bool {
	_, err := h.store.LatestNAV(c.Request.Context())
	switch {
	case err == nil:
		return true
	case errors.Is(err, port.ErrNoData):
		noData(c)
	default:
		internalError(c, err)
	}
	return false
}

// latest writes the error response itself when ok is false.
func (h *Handler) latest(c *gin.Context) (model.NAVSnapshot, []model.PositionSnapshot, bool) {
	ctx := c.Request.Context()
	nav, err := h.store.LatestNAV(ctx)
	if err != nil {
		if errors.Is(err, port.ErrNoData) {
			noData(c)
		} else {
			internalError(c, err)
		}
		return model.NAVSnapshot{}, nil, false
	}

	if positions, ok := h.positions.Get(nav.ID); ok {
		return nav, positions, true
	}
	positions, err := h.store.PositionsFor(ctx, nav.ID)
	if err != nil {
		internalError(c, err)
		return model.NAVSnapshot{}, nil, false
	}
	h.positions.Add(nav.ID, positions)
	return nav, positions, true
}

func limitParam(c *gin.Context, def, limit int) (int, bool) {
	raw := c.Query("n")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a positive integer"})
		return 0, false
	}
	if n > limit {
		n = limit
	}
	return n, true
}

func noData(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no data yet: first refresh cycle has not completed"})
}

func internalError(c *gin.Context, err error) {
	log.Error().Err(err).Str("path", c.FullPath()).Msg("api query failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
