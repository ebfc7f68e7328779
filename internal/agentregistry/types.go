// Package agentregistry holds the authoritative in-memory view of every
// remote agent and drives outbound commands to them — spec.md §4.3. It is
// the exclusive owner of the Agent map; every other component only reads
// through Registry's exported methods.
package agentregistry

import (
	"encoding/json"
	"time"
)

// Agent is one remote process supervised over the bus, keyed by its
// hardware-derived agent id.
type Agent struct {
	AgentID          string       `json:"agent_id"`
	Hostname         string       `json:"hostname"`
	OS               string       `json:"os"`
	Architecture     string       `json:"architecture"`
	Capabilities     []string     `json:"capabilities"`
	Network          AgentNetwork `json:"network"`
	Version          *string      `json:"version,omitempty"`
	Status           AgentStatus  `json:"status"`
	LastSeen         time.Time    `json:"last_seen"`
	RegistrationTime time.Time    `json:"registration_time"`
}

type AgentNetwork struct {
	PrimaryMAC string            `json:"primary_mac"`
	Interfaces []AgentInterface  `json:"interfaces"`
}

type AgentInterface struct {
	Name          string `json:"name"`
	MAC           string `json:"mac"`
	IP            string `json:"ip"`
	InterfaceType string `json:"type"`
}

type AgentStatus struct {
	Status        string               `json:"status"`
	LastHeartbeat *time.Time           `json:"last_heartbeat,omitempty"`
	System        *AgentSystemMetrics  `json:"system,omitempty"`
	Processes     *AgentProcesses      `json:"processes,omitempty"`
	Services      []AgentService       `json:"services,omitempty"`
}

type AgentSystemMetrics struct {
	UptimeSeconds uint64                      `json:"uptime_seconds"`
	CPU           AgentCPUMetrics             `json:"cpu"`
	Memory        AgentMemoryMetrics          `json:"memory"`
	Disk          []AgentDiskMetrics          `json:"disk,omitempty"`
	Network       *AgentNetworkMetrics        `json:"network,omitempty"`
	Temperature   *AgentTemperatureMetrics    `json:"temperature,omitempty"`
}

type AgentCPUMetrics struct {
	Percent   float32    `json:"percent"`
	LoadAvg   *[3]float32 `json:"load_avg,omitempty"`
	CoreCount *uint32    `json:"core_count,omitempty"`
}

type AgentMemoryMetrics struct {
	TotalMB     uint64  `json:"total_mb"`
	UsedMB      uint64  `json:"used_mb"`
	AvailableMB *uint64 `json:"available_mb,omitempty"`
	PercentUsed float32 `json:"percent_used"`
}

type AgentDiskMetrics struct {
	Path        string   `json:"path"`
	TotalGB     float64  `json:"total_gb"`
	UsedGB      float64  `json:"used_gb"`
	FreeGB      *float64 `json:"free_gb,omitempty"`
	PercentUsed float32  `json:"percent_used"`
}

type AgentNetworkMetrics struct {
	Interfaces []AgentNetworkInterface `json:"interfaces"`
}

type AgentNetworkInterface struct {
	Name         string  `json:"name"`
	BytesSent    *uint64 `json:"bytes_sent,omitempty"`
	BytesRecv    *uint64 `json:"bytes_recv,omitempty"`
	PacketsSent  *uint64 `json:"packets_sent,omitempty"`
	PacketsRecv  *uint64 `json:"packets_recv,omitempty"`
	IsUp         bool    `json:"is_up"`
}

type AgentTemperatureMetrics struct {
	CPUCelsius *float32                   `json:"cpu_celsius,omitempty"`
	Sensors    []AgentTemperatureSensor   `json:"sensors,omitempty"`
}

type AgentTemperatureSensor struct {
	Name     string   `json:"name"`
	Value    float32  `json:"value"`
	Unit     string   `json:"unit"`
	Critical *float32 `json:"critical,omitempty"`
}

type AgentProcesses struct {
	TotalCount   uint32          `json:"total_count"`
	RunningCount uint32          `json:"running_count"`
	TopCPU       []AgentProcess  `json:"top_cpu,omitempty"`
	TopMemory    []AgentProcess  `json:"top_memory,omitempty"`
}

type AgentProcess struct {
	PID         uint32  `json:"pid"`
	Name        string  `json:"name"`
	CPUPercent  float32 `json:"cpu_percent"`
	MemoryMB    float32 `json:"memory_mb"`
	User        *string `json:"user,omitempty"`
}

type AgentService struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// AgentCommand is published to the command topic, one per dispatch.
type AgentCommand struct {
	CommandID      string          `json:"command_id"`
	AgentID        string          `json:"agent_id"`
	CommandType    string          `json:"command_type"`
	Parameters     json.RawMessage `json:"parameters,omitempty"`
	TimeoutSeconds *uint32         `json:"timeout_seconds,omitempty"`
	Timestamp      string          `json:"timestamp"`
}

// AgentCommandResponse is the agent's reply shape. The registry does not
// handle it, and the bus listener does not pass it to the bridge either:
// agent responses are logged and not correlated to the dispatched command.
type AgentCommandResponse struct {
	CommandID    string          `json:"command_id"`
	AgentID      string          `json:"agent_id"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	Timestamp    string          `json:"timestamp"`
}

// RegistrationMessage is the inbound payload on the registration topic.
type RegistrationMessage struct {
	AgentID      string       `json:"agent_id"`
	Hostname     string       `json:"hostname"`
	OS           string       `json:"os"`
	Architecture string       `json:"architecture"`
	Capabilities []string     `json:"capabilities"`
	Network      AgentNetwork `json:"network"`
	Version      *string      `json:"version,omitempty"`
	Timestamp    string       `json:"timestamp"`
}

// HeartbeatMessage is the inbound payload on the heartbeat topic.
type HeartbeatMessage struct {
	AgentID     string          `json:"agent_id"`
	Status      string          `json:"status"`
	System      AgentSystemMetrics `json:"system"`
	Processes   *AgentProcesses `json:"processes,omitempty"`
	Services    []AgentService  `json:"services,omitempty"`
	LastCommand *LastCommand    `json:"last_command,omitempty"`
	Timestamp   string          `json:"timestamp"`
}

type LastCommand struct {
	CommandID   string `json:"command_id"`
	CommandType string `json:"command_type"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
}
