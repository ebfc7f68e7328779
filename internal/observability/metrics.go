package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsManager holds the counters and gauges the kernel updates from its
// bus client, supervisor, registry, and bridge. All metrics register against
// prometheus.DefaultRegisterer so a single promhttp.Handler() on the
// operator HTTP surface exposes them.
type MetricsManager struct {
	BusReconnectsTotal    prometheus.Counter
	BusMessagesTotal      prometheus.CounterVec
	PluginRestartsTotal   prometheus.CounterVec
	PluginCircuitOpenTotal prometheus.CounterVec
	AgentsTrackedGauge    prometheus.Gauge
	PendingRequestsGauge  prometheus.Gauge
	CommandsDispatchedTotal prometheus.CounterVec
}

// NewMetricsManager constructs and registers every metric. A collector that
// is already registered (e.g. during tests that build the kernel twice in
// one process) is skipped; any other registration failure is returned,
// matching the teacher's pattern of returning errors from metric
// construction.
func NewMetricsManager() (*MetricsManager, error) {
	mm := &MetricsManager{
		BusReconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "symbion_kernel_bus_reconnects_total",
			Help: "Total number of successful bus client reconnects.",
		}),
		BusMessagesTotal: *prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "symbion_kernel_bus_messages_total",
			Help: "Total number of bus messages seen, by topic and direction.",
		}, []string{"topic", "direction"}),
		PluginRestartsTotal: *prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "symbion_kernel_plugin_restarts_total",
			Help: "Total number of plugin restart attempts, by plugin name.",
		}, []string{"plugin"}),
		PluginCircuitOpenTotal: *prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "symbion_kernel_plugin_circuit_open_total",
			Help: "Total number of times a plugin's circuit breaker opened.",
		}, []string{"plugin"}),
		AgentsTrackedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "symbion_kernel_agents_tracked",
			Help: "Current number of agents tracked in the registry.",
		}),
		PendingRequestsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "symbion_kernel_bridge_pending_requests",
			Help: "Current number of outstanding bridge requests awaiting a reply.",
		}),
		CommandsDispatchedTotal: *prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "symbion_kernel_commands_dispatched_total",
			Help: "Total number of agent commands dispatched, by command type.",
		}, []string{"command_type"}),
	}

	collectors := []prometheus.Collector{
		mm.BusReconnectsTotal,
		&mm.BusMessagesTotal,
		&mm.PluginRestartsTotal,
		&mm.PluginCircuitOpenTotal,
		mm.AgentsTrackedGauge,
		mm.PendingRequestsGauge,
		&mm.CommandsDispatchedTotal,
	}
	for _, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return nil, err
		}
	}

	return mm, nil
}
