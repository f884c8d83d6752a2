package bundler

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

const (
	// VirtualPrefix marks module ids served from memory.
	VirtualPrefix = "virtual:"

	// SourceSuffix on an import requests the original module, bypassing
	// every transform.
	SourceSuffix = "?source"
)

// LoadFunc produces the content of a virtual module on demand.
type LoadFunc func(ctx context.Context) (string, error)

// VirtualModules is a registry of in-memory modules. Content may be replaced
// at any time; the next load observes the new content.
type VirtualModules struct {
	mu      sync.RWMutex
	modules map[string]LoadFunc
}

// NewVirtualModules returns an empty registry.
func NewVirtualModules() *VirtualModules {
	return &VirtualModules{modules: make(map[string]LoadFunc)}
}

// IsVirtual reports whether id names a virtual module.
func IsVirtual(id string) bool {
	return strings.HasPrefix(id, VirtualPrefix)
}

// Write sets static content for id.
func (v *VirtualModules) Write(id, content string) {
	v.Register(id, func(context.Context) (string, error) { return content, nil })
}

// Register sets a loader for id, replacing any previous one.
func (v *VirtualModules) Register(id string, load LoadFunc) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.modules[id] = load
}

// Has reports whether id is registered.
func (v *VirtualModules) Has(id string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.modules[id]
	return ok
}

// IDs returns the registered ids, sorted.
func (v *VirtualModules) IDs() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ids := make([]string, 0, len(v.modules))
	for id := range v.modules {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Load returns the current content of id.
func (v *VirtualModules) Load(ctx context.Context, id string) (string, error) {
	v.mu.RLock()
	load, ok := v.modules[id]
	v.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("virtual module %q is not registered", id)
	}
	return load(ctx)
}
