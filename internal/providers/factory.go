// Package providers builds the LLM providers used for narrative summaries and chains
// them in fallback order.
package providers

import (
	"fmt"
	"sort"

	"medagent/config"
	"medagent/internal/core"
	"medagent/internal/llmclient"
)

// ProviderOptions carries settings shared by every provider the factory builds.
type ProviderOptions struct {
	Hooks llmclient.Hooks
}

// Registration lets a provider package describe how it is constructed.
type Registration struct {
	Type string
	New  func(cfg config.ProviderConfig, opts ProviderOptions) core.Provider
}

// ProviderFactory creates providers from configuration.
type ProviderFactory struct {
	registrations map[string]Registration
	opts          ProviderOptions
}

// NewProviderFactory creates an empty factory.
func NewProviderFactory() *ProviderFactory {
	return &ProviderFactory{registrations: make(map[string]Registration)}
}

// Add registers a provider type. A later registration of the same type replaces the earlier one.
func (f *ProviderFactory) Add(reg Registration) {
	f.registrations[reg.Type] = reg
}

// SetHooks sets the observability hooks passed to every provider created afterwards.
func (f *ProviderFactory) SetHooks(hooks llmclient.Hooks) {
	f.opts.Hooks = hooks
}

// Create instantiates the provider registered for providerType.
func (f *ProviderFactory) Create(providerType string, cfg config.ProviderConfig) (core.Provider, error) {
	reg, ok := f.registrations[providerType]
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", providerType)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api key is required", providerType)
	}
	return reg.New(cfg, f.opts), nil
}

// ListRegistered returns the registered provider types, sorted.
func (f *ProviderFactory) ListRegistered() []string {
	types := make([]string, 0, len(f.registrations))
	for t := range f.registrations {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
