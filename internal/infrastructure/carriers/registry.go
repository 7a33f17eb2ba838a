package carriers

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/shopflow/backend/internal/domain/carrier"
	"github.com/shopflow/backend/internal/infrastructure/config"
)

// Registry holds the enabled carrier adapters and the batch default
type Registry struct {
	adapters    map[carrier.Code]carrier.Adapter
	order       []carrier.Code
	defaultCode carrier.Code
}

var _ carrier.Registry = (*Registry)(nil)

// NewRegistry builds adapters for every carrier enabled in the
// configuration. The default carrier is always constructed so the
// invoice batch has somewhere to send requests even on a bare config;
// a default with no credentials falls back to test mode.
func NewRegistry(cfg config.CarriersConfig, defaultCarrier string, logger *zap.Logger) (*Registry, error) {
	defaultCode := carrier.Code(defaultCarrier)
	if !defaultCode.IsValid() {
		return nil, fmt.Errorf("carriers: unknown default carrier %q", defaultCarrier)
	}

	r := &Registry{adapters: make(map[carrier.Code]carrier.Adapter), defaultCode: defaultCode}
	if cfg.CJ.Enabled || defaultCode == carrier.CodeCJ {
		cjCfg := cfg.CJ
		if !cjCfg.Enabled {
			cjCfg.TestMode = true
		}
		r.register(NewCJAdapter(cjCfg, logger))
	}
	if cfg.Hanjin.Enabled || defaultCode == carrier.CodeHanjin {
		hjCfg := cfg.Hanjin
		if !hjCfg.Enabled {
			hjCfg.TestMode = true
		}
		r.register(NewHanjinAdapter(hjCfg, logger))
	}

	if _, ok := r.adapters[defaultCode]; !ok {
		return nil, fmt.Errorf("carriers: default carrier %q has no adapter", defaultCarrier)
	}
	return r, nil
}

// NewRegistryWith builds a registry from explicit adapters, for tests
// and custom wiring. The first adapter becomes the default.
func NewRegistryWith(adapters ...carrier.Adapter) *Registry {
	r := &Registry{adapters: make(map[carrier.Code]carrier.Adapter)}
	for _, a := range adapters {
		r.register(a)
	}
	if len(r.order) > 0 {
		r.defaultCode = r.order[0]
	}
	return r
}

func (r *Registry) register(a carrier.Adapter) {
	code := a.Code()
	if _, exists := r.adapters[code]; exists {
		return
	}
	r.adapters[code] = a
	r.order = append(r.order, code)
}

// Get implements carrier.Registry
func (r *Registry) Get(code carrier.Code) (carrier.Adapter, error) {
	a, ok := r.adapters[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", carrier.ErrNotRegistered, code)
	}
	return a, nil
}

// Default implements carrier.Registry
func (r *Registry) Default() carrier.Adapter {
	return r.adapters[r.defaultCode]
}

// All implements carrier.Registry, in registration order
func (r *Registry) All() []carrier.Adapter {
	out := make([]carrier.Adapter, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.adapters[code])
	}
	return out
}
