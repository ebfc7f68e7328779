// Package config provides centralized configuration management for the
// symbion kernel through environment variables, with an optional YAML
// overlay for the structured parts (plugin search paths, known hosts for
// Wake-on-LAN) that do not belong in the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is a process-wide, immutable-after-load snapshot of the kernel's
// operational defaults and bus endpoint coordinates.
type Config struct {
	// Bus Configuration
	BusBroker     string // e.g. "tcp://localhost:1883"
	BusClientID   string
	BusTopicPrefix string // default "symbion"

	// Persistence
	DataDir      string // holds agents.json
	PluginsDir   string // manifests + binaries
	ContractsDir string // contract descriptors

	// Agent registry defaults
	StaleThreshold    time.Duration
	SweepInterval     time.Duration
	EvictionThreshold time.Duration

	// Plugin supervisor defaults
	LivenessProbeInterval time.Duration

	// Bridge defaults
	BridgeTimeout    time.Duration
	BridgeMaxPending int // 0 = unbounded

	// Health snapshot
	HealthInterval time.Duration

	// Operator HTTP surface
	HTTPAddr string
	APIKey   string

	// Service metadata
	ServiceName    string
	ServiceVersion string
	Environment    string
	LogLevel       string

	// Hosts known for Wake-on-LAN, keyed by agent id or hostname.
	Hosts map[string]HostConf
}

// HostConf describes a Wake-on-LAN target, mirroring the original kernel's
// hosts.yaml entries.
type HostConf struct {
	MAC  string `yaml:"mac"`
	Hint string `yaml:"hint,omitempty"` // broadcast address override
}

// fileOverlay is the shape of the optional YAML configuration file; only
// the fields that are naturally structured live here, everything else is
// environment-only.
type fileOverlay struct {
	PluginsDir   string              `yaml:"plugins_dir"`
	ContractsDir string              `yaml:"contracts_dir"`
	Hosts        map[string]HostConf `yaml:"hosts"`
}

// Load reads configuration from environment variables (with sensible
// defaults) and, if present, overlays the YAML file named by
// SYMBION_KERNEL_CONFIG (default "kernel.yaml"). Env vars always win for
// the fields they cover; the YAML file only contributes the fields it
// defines.
func Load() *Config {
	cfg := &Config{
		BusBroker:      getEnv("SYMBION_BUS_BROKER", "tcp://localhost:1883"),
		BusClientID:    getEnv("SYMBION_BUS_CLIENT_ID", "symbion-kernel"),
		BusTopicPrefix: getEnv("SYMBION_BUS_PREFIX", "symbion"),

		DataDir:      getEnv("SYMBION_DATA_DIR", "./data"),
		PluginsDir:   getEnv("SYMBION_PLUGINS_DIR", "./plugins"),
		ContractsDir: getEnv("SYMBION_CONTRACTS_DIR", "./contracts"),

		StaleThreshold:    getEnvAsDuration("SYMBION_STALE_THRESHOLD", 2*time.Minute),
		SweepInterval:     getEnvAsDuration("SYMBION_SWEEP_INTERVAL", 60*time.Second),
		EvictionThreshold: getEnvAsDuration("SYMBION_EVICTION_THRESHOLD", 72*time.Hour),

		LivenessProbeInterval: getEnvAsDuration("SYMBION_LIVENESS_INTERVAL", 30*time.Second),

		BridgeTimeout:    getEnvAsDuration("SYMBION_BRIDGE_TIMEOUT", 5*time.Second),
		BridgeMaxPending: getEnvAsInt("SYMBION_BRIDGE_MAX_PENDING", 0),

		HealthInterval: getEnvAsDuration("SYMBION_HEALTH_INTERVAL", 30*time.Second),

		HTTPAddr: getEnv("SYMBION_HTTP_ADDR", ":8090"),
		APIKey:   getEnv("SYMBION_API_KEY", ""),

		ServiceName:    getEnv("SERVICE_NAME", "symbion-kernel"),
		ServiceVersion: getEnv("SERVICE_VERSION", "0.1.0"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),

		Hosts: map[string]HostConf{},
	}

	applyFileOverlay(cfg)
	return cfg
}

func applyFileOverlay(cfg *Config) {
	path := getEnv("SYMBION_KERNEL_CONFIG", "kernel.yaml")
	content, err := os.ReadFile(path)
	if err != nil {
		// No file is a normal, fully-supported configuration: defaults apply.
		return
	}
	var overlay fileOverlay
	if err := yaml.Unmarshal(content, &overlay); err != nil {
		// Invalid YAML falls back to defaults rather than aborting startup;
		// the caller's logger reports this once the logger is constructed.
		return
	}
	if overlay.PluginsDir != "" && os.Getenv("SYMBION_PLUGINS_DIR") == "" {
		cfg.PluginsDir = overlay.PluginsDir
	}
	if overlay.ContractsDir != "" && os.Getenv("SYMBION_CONTRACTS_DIR") == "" {
		cfg.ContractsDir = overlay.ContractsDir
	}
	if len(overlay.Hosts) > 0 {
		cfg.Hosts = overlay.Hosts
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// MarshalOverlay is used by tests to round-trip a file overlay without
// touching the filesystem loader.
func MarshalOverlay(hosts map[string]HostConf) ([]byte, error) {
	return yaml.Marshal(fileOverlay{Hosts: hosts})
}
