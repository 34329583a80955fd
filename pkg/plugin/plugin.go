// Copyright 2025 Certen Protocol
//
// Plugin Registry
// Name-to-plugin map for location-proof verification. Plugins expose
// verify(stamp) and evaluate(stamp, claim); the registry only resolves
// names to implementations.

package plugin

import (
	"fmt"
	"sync"

	"github.com/certen/astral-location-services/pkg/types"
)

// Metadata describes a plugin for the plugin-list endpoint.
type Metadata struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Environments []string `json:"environments"`
	Description  string   `json:"description"`
}

// VerifyResult is a stamp's internal-validity check outcome.
type VerifyResult struct {
	SignaturesValid   bool
	StructureValid    bool
	SignalsConsistent bool
	Valid             bool
	Details           map[string]interface{}
}

// EvaluateResult is a stamp's raw measurement against a claim.
type EvaluateResult struct {
	DistanceMeters  float64
	TemporalOverlap float64
	WithinRadius    bool
	Details         map[string]interface{}
}

// Plugin verifies and evaluates location stamps for one evidence source.
type Plugin interface {
	Metadata() Metadata
	Verify(stamp types.LocationStamp) (VerifyResult, error)
	Evaluate(stamp types.LocationStamp, claim types.LocationClaim) (EvaluateResult, error)
}

// Registry is a name -> plugin map, mutex-guarded for concurrent lookups.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register adds a plugin under its metadata name.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return fmt.Errorf("plugin cannot be nil")
	}
	name := p.Metadata().Name
	if name == "" {
		return fmt.Errorf("plugin metadata name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin already registered: %s", name)
	}
	r.plugins[name] = p
	return nil
}

// Get resolves a plugin by name.
func (r *Registry) Get(name string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	if !ok {
		return nil, fmt.Errorf("invalid input: unsupported plugin: %s", name)
	}
	return p, nil
}

// List returns the metadata of every registered plugin.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Metadata, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p.Metadata())
	}
	return out
}

var (
	global     *Registry
	globalOnce sync.Once
)

// Global returns the process-wide plugin registry singleton, populated
// with the built-in plugins on first use.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
		global.Register(NewDevicePlugin())
		global.Register(NewNetworkPlugin())
		global.Register(NewMockPlugin())
	})
	return global
}
