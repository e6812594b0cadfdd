package store

import (
	"context"
	"sort"
	"sync"
)

// AdapterInfo describes a registered store adapter.
type AdapterInfo struct {
	Type        string `json:"type"`         // "sqlite", "postgres", "sqlserver"
	DisplayName string `json:"display_name"` // "SQLite", "PostgreSQL"
	Description string `json:"description"`
}

// AdapterRegistration pairs adapter info with the factory that opens it.
type AdapterRegistration struct {
	Info    AdapterInfo
	Factory func(ctx context.Context, cfg Config) (Store, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter's init() function.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetFactory returns the factory for a store type, or nil if the type is
// not registered.
func GetFactory(storeType string) func(ctx context.Context, cfg Config) (Store, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[storeType]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(storeType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[storeType]
	return ok
}
