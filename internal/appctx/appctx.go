// Package appctx threads the kernel's long-lived components explicitly
// through the program instead of reaching for package-level globals
// (spec.md §9 Design Notes) — one struct built once in main and passed
// down to the bus listener, HTTP router, and background tasks.
package appctx

import (
	"log/slog"

	"github.com/owulveryck/symbion-kernel/internal/agentregistry"
	"github.com/owulveryck/symbion-kernel/internal/bridge"
	"github.com/owulveryck/symbion-kernel/internal/bus"
	"github.com/owulveryck/symbion-kernel/internal/config"
	"github.com/owulveryck/symbion-kernel/internal/contracts"
	"github.com/owulveryck/symbion-kernel/internal/health"
	"github.com/owulveryck/symbion-kernel/internal/observability"
	"github.com/owulveryck/symbion-kernel/internal/supervisor"
)

// Context bundles every component a request handler or background task
// might need. Construct exactly one per process in cmd/kernel/main.go.
type Context struct {
	Config     *config.Config
	Logger     *slog.Logger
	Obs        *observability.Observability
	Bus        bus.Client
	Catalog    *contracts.Catalog
	Registry   *agentregistry.Registry
	Dispatcher *agentregistry.Dispatcher
	Supervisor *supervisor.Manager
	Bridge     *bridge.Bridge
	Health     *health.Tracker
}
