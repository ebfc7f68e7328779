// Package contracts loads the kernel's contract descriptors — the
// read-only schema registry from spec.md §4.2 — and derives a descriptor
// name from a bus topic.
package contracts

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Contract is one (topic, schema) pair, loaded once at startup and never
// mutated afterward.
type Contract struct {
	Topic  string          `json:"topic"`
	Schema json.RawMessage `json:"schema"`
}

// Catalog is the read-only, in-memory set of contracts loaded from disk.
// It is safe for concurrent reads from every holder; nothing mutates it
// after LoadFromDir returns.
type Catalog struct {
	mu        sync.RWMutex
	contracts map[string]Contract
}

// LoadFromDir loads every *.json file under dir as a Contract. A file that
// fails to parse is logged and skipped rather than aborting the whole
// load, matching the original registry's per-file error handling.
func LoadFromDir(dir string, logger *slog.Logger) (*Catalog, error) {
	cat := &Catalog{contracts: make(map[string]Contract)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading contracts dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("failed to read contract file", "path", path, "error", err)
			continue
		}
		var c Contract
		if err := json.Unmarshal(content, &c); err != nil {
			logger.Warn("invalid contract JSON", "path", path, "error", err)
			continue
		}
		name := DescriptorName(c.Topic)
		cat.contracts[name] = c
		logger.Info("loaded contract", "contract", name, "topic", c.Topic)
	}

	return cat, nil
}

// DescriptorName derives a contract's name from its topic by dropping the
// fixed top-level prefix and joining the remaining two segments with a
// dot: "PREFIX/ns/event@v1" becomes "ns.event@v1". Topics shorter than
// three segments fall back to the topic itself.
func DescriptorName(topic string) string {
	segments := strings.Split(topic, "/")
	if len(segments) < 3 {
		return topic
	}
	tail := segments[len(segments)-2:]
	return strings.Join(tail, ".")
}

// List returns every known descriptor name.
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.contracts))
	for name := range c.contracts {
		names = append(names, name)
	}
	return names
}

// Get returns the contract for name, if known.
func (c *Catalog) Get(name string) (Contract, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	contract, ok := c.contracts[name]
	return contract, ok
}

// ValidateMessage performs the deliberately narrow structural check spec.md
// §4.2 calls for: the descriptor must be known and the payload must parse
// as JSON. Schema enforcement beyond that is an explicit non-goal.
func (c *Catalog) ValidateMessage(topic string, payload []byte) error {
	name := DescriptorName(topic)
	if _, ok := c.Get(name); !ok {
		return fmt.Errorf("contract %q not found", name)
	}
	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
