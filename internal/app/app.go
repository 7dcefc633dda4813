// Package app wires the tool server's components together and manages their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"medagent/config"
	"medagent/internal/analysis"
	"medagent/internal/billing"
	"medagent/internal/cache"
	"medagent/internal/core"
	"medagent/internal/extract"
	"medagent/internal/guardrails"
	"medagent/internal/httpclient"
	"medagent/internal/observability"
	"medagent/internal/patients"
	"medagent/internal/payments"
	"medagent/internal/providers"
	"medagent/internal/providers/anthropic"
	"medagent/internal/providers/openai"
	"medagent/internal/server"
	"medagent/internal/tools"
)

// App represents the main application with all its dependencies.
type App struct {
	config    *config.Config
	cache     cache.Cache
	metrics   *observability.Metrics
	providers *providers.Chain
	payments  payments.Client
	tools     *tools.Registry
	server    *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// Config holds the configuration options for creating an App.
type Config struct {
	AppConfig *config.Config
	// Registerer receives the Prometheus collectors. Nil means prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

// New creates and initializes a new App. Components initialized before a failure are
// closed before returning.
func New(cfg Config) (*App, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("app config is required")
	}
	appCfg := cfg.AppConfig
	app := &App{config: appCfg}

	calc, err := billing.NewCalculator(appCfg.Billing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize billing: %w", err)
	}
	extractor := extract.New(appCfg.Extraction)

	app.cache, err = cache.New(appCfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	if appCfg.Metrics.Enabled {
		reg := cfg.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		app.metrics = observability.NewMetrics(reg)
	}

	factory := providers.NewProviderFactory()
	factory.Add(anthropic.Registration)
	factory.Add(openai.Registration)
	factory.SetHooks(app.metrics.Hooks())

	app.providers, err = providers.Build(appCfg.Providers, factory)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize providers: %w", err), app.closeCache())
	}

	if appCfg.Stripe.APIKey != "" {
		stripeClient, err := payments.NewStripeClient(appCfg.Stripe, httpclient.NewDefault())
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to initialize payments: %w", err), app.closeCache())
		}
		app.payments = stripeClient
	}

	var narrator core.Provider
	if app.providers.Len() > 0 {
		narrator = app.providers
		if anon := appCfg.Guardrails.Anonymization; anon.Enabled {
			narrator = guardrails.NewGuardedProvider(narrator, guardrails.NewAnonymizer(anon), anon.RestoreResponses)
		}
	}
	svc := analysis.NewService(calc, extractor, analysis.Options{
		Cache:    app.cache,
		Provider: narrator,
		Payments: app.payments,
		Metrics:  app.metrics,
	})

	app.tools, err = tools.New(tools.Deps{
		Calculator: calc,
		Extractor:  extractor,
		Analysis:   svc,
		Patients:   patients.Sample(),
		Payments:   app.payments,
		Metrics:    app.metrics,
		Integrations: tools.Integrations{
			Stripe:    app.payments != nil,
			Anthropic: appCfg.Providers.Anthropic.APIKey != "",
			OpenAI:    appCfg.Providers.OpenAI.APIKey != "",
		},
		CacheBackend:       appCfg.Cache.Type,
		NarrativeProviders: app.providers.Names(),
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to register tools: %w", err), app.closeCache())
	}

	app.server = server.New(app.tools, &server.Config{
		MetricsEnabled:  appCfg.Metrics.Enabled,
		MetricsEndpoint: appCfg.Metrics.Endpoint,
		BodySizeLimit:   appCfg.Server.BodySizeLimit,
	})

	return app, nil
}

// Router returns the HTTP handler for the application.
func (a *App) Router() http.Handler {
	return a.server
}

// Tools returns the tool registry.
func (a *App) Tools() *tools.Registry {
	return a.tools
}

// Start starts the HTTP server on the given address. It blocks until the server is
// stopped; a graceful shutdown returns nil.
func (a *App) Start(addr string) error {
	a.logStartupInfo()

	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server, then releases the cache. It is safe to call more
// than once.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if err := a.closeCache(); err != nil {
		slog.Error("cache close error", "error", err)
		errs = append(errs, fmt.Errorf("cache close: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application shutdown complete")
	return nil
}

func (a *App) closeCache() error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Close()
}

func (a *App) logStartupInfo() {
	cfg := a.config

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	slog.Info("analysis cache", "backend", cfg.Cache.Type, "ttl", cfg.Cache.TTL)

	if anon := cfg.Guardrails.Anonymization; anon.Enabled {
		slog.Info("prompt anonymization enabled", "strategy", anon.Strategy, "restore_responses", anon.RestoreResponses)
	} else {
		slog.Warn("prompt anonymization disabled - document text is sent to LLM providers as is")
	}

	if names := a.providers.Names(); len(names) > 0 {
		slog.Info("narrative providers configured", "providers", names)
	} else {
		slog.Info("no LLM providers configured - comprehensive analyses have no narrative")
	}

	if a.payments != nil {
		slog.Info("stripe payments enabled")
	} else {
		slog.Info("STRIPE_SECRET_KEY not set - payment tools disabled")
	}

	slog.Info("tools registered", "count", len(a.tools.Names()), "tools", a.tools.Names())
}
