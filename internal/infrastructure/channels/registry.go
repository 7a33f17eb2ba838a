package channels

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/shopflow/backend/internal/domain/channel"
	"github.com/shopflow/backend/internal/infrastructure/config"
)

// Registry holds the enabled channel adapters
type Registry struct {
	adapters map[channel.Code]channel.Adapter
	order    []channel.Code
}

var _ channel.Registry = (*Registry)(nil)

// NewRegistry builds adapters for every channel enabled in the configuration
func NewRegistry(cfg config.ChannelsConfig, pageSize int, logger *zap.Logger) *Registry {
	r := &Registry{adapters: make(map[channel.Code]channel.Adapter)}
	if cfg.Naver.Enabled {
		r.register(NewNaverAdapter(cfg.Naver, pageSize, logger))
	}
	if cfg.Coupang.Enabled {
		r.register(NewCoupangAdapter(cfg.Coupang, pageSize, logger))
	}
	return r
}

// NewRegistryWith builds a registry from explicit adapters, for tests
// and custom wiring
func NewRegistryWith(adapters ...channel.Adapter) *Registry {
	r := &Registry{adapters: make(map[channel.Code]channel.Adapter)}
	for _, a := range adapters {
		r.register(a)
	}
	return r
}

func (r *Registry) register(a channel.Adapter) {
	code := a.Code()
	if _, exists := r.adapters[code]; exists {
		return
	}
	r.adapters[code] = a
	r.order = append(r.order, code)
}

// Get implements channel.Registry
func (r *Registry) Get(code channel.Code) (channel.Adapter, error) {
	a, ok := r.adapters[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", channel.ErrNotRegistered, code)
	}
	return a, nil
}

// All implements channel.Registry, in registration order
func (r *Registry) All() []channel.Adapter {
	out := make([]channel.Adapter, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.adapters[code])
	}
	return out
}
