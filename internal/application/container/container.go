package container

import (
	"time"

	"portfolioops/internal/application/port"
	"portfolioops/internal/application/service"
	"portfolioops/internal/application/usecase/refresh"
	"portfolioops/internal/domain/model"
	domain "portfolioops/internal/domain/service"
)

// Container wires application services over one store. Services are built lazily.
type Container struct {
	store      port.Store
	portfolio  model.Portfolio
	reconCfg   domain.ReconConfig
	anomalyCfg domain.AnomalyConfig

	reconService   *service.ReconciliationService
	anomalyService *service.AnomalyService
}

func New(store port.Store, portfolio model.Portfolio, reconCfg domain.ReconConfig, anomalyCfg domain.AnomalyConfig) *Container {
	return &Container{
		store:      store,
		portfolio:  portfolio,
		reconCfg:   reconCfg,
		anomalyCfg: anomalyCfg,
	}
}

func (c *Container) Store() port.Store {
	return c.store
}

func (c *Container) Portfolio() model.Portfolio {
	return c.portfolio
}

func (c *Container) ReconciliationService() *service.ReconciliationService {
	if c.reconService == nil {
		c.reconService = service.NewReconciliationService(c.store, c.store, c.reconCfg)
	}
	return c.reconService
}

func (c *Container) AnomalyService() *service.AnomalyService {
	if c.anomalyService == nil {
		c.anomalyService = service.NewAnomalyService(c.store, c.store, c.portfolio, c.anomalyCfg)
	}
	return c.anomalyService
}

// RefreshService builds the cycle orchestrator. pub may be nil.
func (c *Container) RefreshService(source port.PriceSource, pub port.Publisher, workers int, timeout time.Duration) *refresh.Service {
	return refresh.NewService(refresh.ServiceDeps{
		Source:       source,
		Portfolio:    c.portfolio,
		Writer:       c.store,
		Metrics:      c.store,
		Recon:        c.ReconciliationService(),
		Anomaly:      c.AnomalyService(),
		Publisher:    pub,
		Workers:      workers,
		CycleTimeout: timeout,
	})
}

func (c *Container) Close() error {
	return c.store.Close()
}
