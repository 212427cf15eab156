package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Config holds configuration for metrics collection.
type Config struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// Registry is the Prometheus registry to use. If nil, DefaultRegistry is used.
	Registry prometheus.Registerer
}

// DefaultConfig returns a default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Registry: prometheus.DefaultRegisterer,
	}
}

// Instrumentable is an interface for components that can be instrumented with metrics.
type Instrumentable interface {
	// EnableMetrics enables metrics collection for this component.
	EnableMetrics(config Config) error

	// DisableMetrics disables metrics collection for this component.
	DisableMetrics()

	// MetricsEnabled returns true if metrics are currently enabled.
	MetricsEnabled() bool
}

var (
	registriesMu sync.Mutex
	registries   = map[prometheus.Registerer]*Registry{}
)

// ForConfig returns the Registry for config.Registry, creating it on first use.
// Components sharing one Prometheus registerer share one Registry, so the
// collectors are registered exactly once. Registries are cached for the life
// of the process: every registerer passed here stays reachable, so build a
// bounded number of them (one per process, or one per test).
func ForConfig(config Config) *Registry {
	if config.Registry == nil || config.Registry == prometheus.DefaultRegisterer {
		return DefaultRegistry
	}

	registriesMu.Lock()
	defer registriesMu.Unlock()

	if r, ok := registries[config.Registry]; ok {
		return r
	}
	r := NewRegistry(config.Registry)
	registries[config.Registry] = r
	return r
}
