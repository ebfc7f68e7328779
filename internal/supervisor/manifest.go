package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Manifest describes one plugin binary and how the supervisor should run
// it: identity, declared contracts, lifecycle flags, timeouts, and its
// place in the dependency graph (spec.md §3 "Plugin instance").
type Manifest struct {
	Name                  string            `json:"name"`
	Version               string            `json:"version"`
	Binary                string            `json:"binary"`
	Description           string            `json:"description,omitempty"`
	Contracts             []string          `json:"contracts"`
	AutoStart             bool              `json:"auto_start"`
	RestartOnFailure      bool              `json:"restart_on_failure"`
	StartupTimeoutSeconds uint64            `json:"startup_timeout_seconds"`
	ShutdownTimeoutSeconds uint64           `json:"shutdown_timeout_seconds"`
	Env                   map[string]string `json:"env,omitempty"`
	DependsOn             []string          `json:"depends_on"`
	StartPriority         int32             `json:"start_priority"`
}

func defaultManifest() Manifest {
	return Manifest{
		Name:                   "unknown",
		Version:                "0.1.0",
		Binary:                 "./plugin",
		RestartOnFailure:       true,
		StartupTimeoutSeconds:  30,
		ShutdownTimeoutSeconds: 10,
		StartPriority:          100,
	}
}

// loadManifest parses one manifest file and validates the fields the
// supervisor cannot operate without: a name and a binary that exists on
// disk (spec.md §4.4 discovery).
func loadManifest(path string) (Manifest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	manifest := defaultManifest()
	if err := json.Unmarshal(content, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	if manifest.Name == "" {
		return Manifest{}, fmt.Errorf("manifest %s: name cannot be empty", path)
	}

	binary := manifest.Binary
	if !filepath.IsAbs(binary) {
		binary = filepath.Join(filepath.Dir(path), binary)
	}
	if _, err := os.Stat(binary); err != nil {
		return Manifest{}, fmt.Errorf("manifest %s: binary not found: %s", path, manifest.Binary)
	}
	manifest.Binary = binary

	return manifest, nil
}

// discoverManifests scans dir for *.json manifest files. A single bad
// manifest is logged and skipped, not fatal to the whole scan (mirrors
// the teacher's per-item tolerance in contract loading).
func discoverManifests(dir string) (map[string]Manifest, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading plugins dir %s: %w", dir, err)
	}

	manifests := make(map[string]Manifest)
	var skipped []string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		manifest, err := loadManifest(path)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("%s: %v", entry.Name(), err))
			continue
		}
		manifests[manifest.Name] = manifest
	}

	return manifests, skipped, nil
}
