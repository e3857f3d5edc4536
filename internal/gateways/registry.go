package gateways

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/angelmondragon/storefront-payments/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-payments/pkg/errors"
	"github.com/angelmondragon/storefront-payments/pkg/metrics"
)

// Registry is the read-only lookup table of configured adapters.
type Registry struct {
	adapters       map[string]Adapter
	defaultGateway string
}

// NewRegistry registers the adapters under their lower-cased names.
func NewRegistry(defaultGateway string, adapters ...Adapter) (*Registry, error) {
	if len(adapters) == 0 {
		return nil, errors.New("gateways: at least one adapter is required")
	}
	table := make(map[string]Adapter, len(adapters))
	for _, adapter := range adapters {
		if adapter == nil {
			return nil, errors.New("gateways: nil adapter")
		}
		key := normalizeName(adapter.Name())
		if key == "" {
			return nil, errors.New("gateways: adapter name is required")
		}
		if _, exists := table[key]; exists {
			return nil, fmt.Errorf("gateways: duplicate adapter %q", key)
		}
		table[key] = adapter
	}
	def := normalizeName(defaultGateway)
	if _, ok := table[def]; !ok {
		return nil, fmt.Errorf("gateways: default gateway %q is not registered", defaultGateway)
	}
	return &Registry{adapters: table, defaultGateway: def}, nil
}

// NewRegistryFromConfig keeps the enabled candidates and decorates each with
// the configured timeout and gateway metrics.
func NewRegistryFromConfig(cfg config.GatewaysConfig, gm *metrics.GatewayMetrics, candidates ...Adapter) (*Registry, error) {
	enabled := make([]Adapter, 0, len(candidates))
	for _, adapter := range candidates {
		if adapter == nil || !cfg.IsEnabled(adapter.Name()) {
			continue
		}
		enabled = append(enabled, WithMetrics(WithTimeout(adapter, cfg.Timeout), gm))
	}
	return NewRegistry(cfg.Default, enabled...)
}

// Resolve returns the named adapter, or the default for an empty name.
func (r *Registry) Resolve(name string) (Adapter, error) {
	if r == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, errors.New("gateways: registry is nil"), "payment gateways not configured")
	}
	key := normalizeName(name)
	if key == "" {
		key = r.defaultGateway
	}
	adapter, ok := r.adapters[key]
	if !ok {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnsupportedGateway, ErrUnsupportedGateway, fmt.Sprintf("unsupported payment gateway %q", strings.TrimSpace(name))).
			WithDetails(map[string]any{"payment_gateway": strings.TrimSpace(name), "supported": r.Names()})
	}
	return adapter, nil
}

// Default returns the name of the default gateway.
func (r *Registry) Default() string {
	if r == nil {
		return ""
	}
	return r.defaultGateway
}

// Names lists the registered gateways in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
