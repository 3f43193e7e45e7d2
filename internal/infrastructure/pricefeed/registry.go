package pricefeed

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"portfolioops/internal/application/port"
	"portfolioops/internal/domain/model"
)

// Options is the provider-neutral construction input.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	RatePerSec float64
	Burst      int
	UserAgent  string
	// Static quotes for the offline provider
	Static map[string]model.Quote
}

// factory函数类型
type Factory func(opts Options) (port.PriceSource, error)

var (
	mu sync.RWMutex
	// registry maps provider names to their factories
	registry = make(map[string]Factory)
)

// Register 注册一个 price source factory，由各 provider 包的 init() 调用
func Register(name string, factory Factory) {
	if factory == nil {
		log.Warn().Str("provider", name).Msg("invalid price source factory")
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[name]; exists {
		log.Warn().Str("provider", name).Msg("price source factory already registered, overwriting")
	}
	registry[name] = factory
}

// Get 获取已注册的 factory
func Get(name string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	factory, ok := registry[name]
	return factory, ok
}

// New builds the named provider.
func New(name string, opts Options) (port.PriceSource, error) {
	factory, ok := Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown price provider %q (registered: %v)", name, Names())
	}
	return factory(opts)
}

func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
