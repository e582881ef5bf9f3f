package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// SyncAdapterRegistry keeps provider-keyed ERP adapters. Registration is
// rejected for duplicate providers so wiring mistakes surface at startup.
type SyncAdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]SyncAdapter
}

func NewSyncAdapterRegistry() *SyncAdapterRegistry {
	return &SyncAdapterRegistry{adapters: make(map[string]SyncAdapter)}
}

func (r *SyncAdapterRegistry) Register(adapter SyncAdapter) error {
	if adapter == nil {
		return fmt.Errorf("core: adapter is nil")
	}
	provider := strings.TrimSpace(adapter.Provider())
	if provider == "" {
		return fmt.Errorf("core: adapter provider is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[provider]; exists {
		return fmt.Errorf("core: adapter already registered: %s", provider)
	}
	r.adapters[provider] = adapter
	return nil
}

func (r *SyncAdapterRegistry) Get(provider string) (SyncAdapter, bool) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return nil, false
	}
	r.mu.RLock()
	adapter, ok := r.adapters[provider]
	r.mu.RUnlock()
	return adapter, ok
}

func (r *SyncAdapterRegistry) List() []SyncAdapter {
	r.mu.RLock()
	keys := make([]string, 0, len(r.adapters))
	for provider := range r.adapters {
		keys = append(keys, provider)
	}
	adapters := make([]SyncAdapter, 0, len(keys))
	sort.Strings(keys)
	for _, provider := range keys {
		adapters = append(adapters, r.adapters[provider])
	}
	r.mu.RUnlock()
	return adapters
}

var _ AdapterRegistry = (*SyncAdapterRegistry)(nil)
