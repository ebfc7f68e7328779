// Command kernel is the symbion control plane: one process that tracks
// remote agents over a pub/sub bus, supervises local plugin child
// processes, bridges synchronous plugin commands, and exposes both over
// an operator HTTP surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/owulveryck/symbion-kernel/internal/agentregistry"
	"github.com/owulveryck/symbion-kernel/internal/appctx"
	"github.com/owulveryck/symbion-kernel/internal/bridge"
	"github.com/owulveryck/symbion-kernel/internal/bus"
	"github.com/owulveryck/symbion-kernel/internal/config"
	"github.com/owulveryck/symbion-kernel/internal/contracts"
	"github.com/owulveryck/symbion-kernel/internal/health"
	"github.com/owulveryck/symbion-kernel/internal/httpapi"
	"github.com/owulveryck/symbion-kernel/internal/observability"
	"github.com/owulveryck/symbion-kernel/internal/supervisor"
)

const (
	registrationTopic = "agents/registration@v1"
	heartbeatTopic    = "agents/heartbeat@v1"
	agentResponseTopic = "agents/response@v1"
)

func main() {
	cfg := config.Load()

	obsCfg := observability.DefaultConfig("symbion-kernel")
	obs, err := observability.NewObservability(obsCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building observability stack: %v\n", err)
		os.Exit(1)
	}
	logger := obs.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	busClient, err := bus.NewMQTTClient(ctx, cfg.BusBroker, cfg.BusClientID, logger, obs.Metrics)
	if err != nil {
		logger.Error("connecting to bus", "error", err)
		os.Exit(1)
	}

	catalog, err := contracts.LoadFromDir(cfg.ContractsDir, logger)
	if err != nil {
		logger.Error("loading contract catalog", "error", err)
		os.Exit(1)
	}

	registry := agentregistry.New(cfg.DataDir+"/agents.json", logger, obs.Metrics)
	if err := registry.Load(); err != nil {
		logger.Error("loading agent snapshot", "error", err)
		os.Exit(1)
	}
	dispatcher := agentregistry.NewDispatcher(busClient, registry, cfg.BusTopicPrefix, logger, obs.Metrics)
	sweeper := agentregistry.NewSweeper(registry, cfg.SweepInterval, cfg.StaleThreshold, cfg.EvictionThreshold, logger)

	brokerHost, brokerPort := splitBrokerHostPort(cfg.BusBroker)
	sup := supervisor.NewManager(cfg.PluginsDir, brokerHost, brokerPort, logger, obs.Metrics)
	if _, err := sup.Discover(); err != nil {
		logger.Error("discovering plugin manifests", "error", err)
		os.Exit(1)
	}
	if started, err := sup.AutoStart(); err != nil {
		logger.Error("auto-starting plugins", "error", err)
	} else {
		logger.Info("auto-started plugins", "count", len(started))
	}

	br := bridge.New(busClient, cfg.BridgeTimeout, cfg.BridgeMaxPending, logger, obs.Metrics)
	tracker := health.NewTracker(busClient, catalog, registry, sup, br, logger)

	app := &appctx.Context{
		Config:     cfg,
		Logger:     logger,
		Obs:        obs,
		Bus:        busClient,
		Catalog:    catalog,
		Registry:   registry,
		Dispatcher: dispatcher,
		Supervisor: sup,
		Bridge:     br,
		Health:     tracker,
	}

	prefix := cfg.BusTopicPrefix
	for _, filter := range []string{
		prefix + "/" + registrationTopic,
		prefix + "/" + heartbeatTopic,
		prefix + "/" + agentResponseTopic,
		prefix + "/+/response@v1",
	} {
		if err := busClient.Subscribe(filter); err != nil {
			logger.Error("subscribing to bus topic", "topic", filter, "error", err)
			os.Exit(1)
		}
	}

	go runBusListener(ctx, app, prefix)
	go sweeper.Run(ctx)
	go sup.RunHealthMonitor(ctx, cfg.LivenessProbeInterval)
	go tracker.Run(ctx, prefix, cfg.HealthInterval)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.NewRouter(app),
	}
	go func() {
		logger.Info("operator http surface listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped unexpectedly", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
	sup.Shutdown(shutdownCtx)
	if err := busClient.Close(shutdownCtx); err != nil {
		logger.Error("bus client shutdown", "error", err)
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		logger.Error("observability shutdown", "error", err)
	}
}

// runBusListener is the single task that applies every inbound message in
// broker-delivery order (spec.md §5's ordering guarantee), routing by
// topic suffix to the registry, or to the bridge for plugin responses.
func runBusListener(ctx context.Context, app *appctx.Context, prefix string) {
	registration := prefix + "/" + registrationTopic
	heartbeat := prefix + "/" + heartbeatTopic
	agentResponse := prefix + "/" + agentResponseTopic

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-app.Bus.Incoming():
			if !ok {
				return
			}
			app.Health.RecordMessage()

			switch {
			case msg.Topic == registration:
				handleRegistration(app, msg.Payload)
			case msg.Topic == heartbeat:
				handleHeartbeat(app, msg.Payload)
			case msg.Topic == agentResponse:
				// Agent command responses are not correlated to a
				// synchronous waiter (only plugin responses go to the
				// bridge); they are logged for operators instead.
				app.Logger.Debug("agent command response", "payload", string(msg.Payload))
			case strings.HasSuffix(msg.Topic, "/response@v1"):
				handlePluginResponse(app, msg.Payload)
			default:
				app.Logger.Debug("unhandled bus message", "topic", msg.Topic)
			}
		}
	}
}

func handleRegistration(app *appctx.Context, payload []byte) {
	var msg agentregistry.RegistrationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		app.Logger.Warn("discarding malformed registration message", "error", err)
		return
	}
	if err := app.Registry.HandleRegistration(msg); err != nil {
		app.Logger.Error("handling agent registration", "agent_id", msg.AgentID, "error", err)
	}
}

func handleHeartbeat(app *appctx.Context, payload []byte) {
	var msg agentregistry.HeartbeatMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		app.Logger.Warn("discarding malformed heartbeat message", "error", err)
		return
	}
	app.Registry.HandleHeartbeat(msg)
}

func handlePluginResponse(app *appctx.Context, payload []byte) {
	var resp bridge.Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		app.Logger.Warn("discarding malformed plugin response", "error", err)
		return
	}
	app.Bridge.DeliverResponse(resp)
}

// splitBrokerHostPort pulls host and port out of a broker URL
// (e.g. "tcp://localhost:1883") for the supervisor's plugin environment
// overlay, which expects them as separate SYMBION_MQTT_HOST/PORT values.
func splitBrokerHostPort(broker string) (host, port string) {
	addr := broker
	if i := strings.Index(addr, "://"); i >= 0 {
		addr = addr[i+3:]
	}
	h, p, err := splitHostPort(addr)
	if err != nil {
		return addr, "1883"
	}
	return h, p
}

func splitHostPort(addr string) (string, string, error) {
	idx := strings.LastIndex(addr, ":")
	if idx < 0 {
		return addr, "1883", nil
	}
	host := addr[:idx]
	port := addr[idx+1:]
	if _, err := strconv.Atoi(port); err != nil {
		return addr, "1883", err
	}
	return host, port, nil
}
