package integrations

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/garagereg/go-integrations/core"
)

// AdapterPack is a named set of ERP sync adapters a downstream module
// contributes to the engine.
type AdapterPack struct {
	Name     string
	Adapters []core.SyncAdapter
}

// EventTypePack declares the event types a provider integration emits, so
// hosts can validate subscribed_events before creating subscriptions.
type EventTypePack struct {
	Name       string
	Provider   string
	EventTypes []string
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

// ExtensionHooks lets downstream modules contribute adapter packs, event
// catalogs, and command/query bundles without importing each other.
type ExtensionHooks struct {
	mu sync.RWMutex

	adapterPacks   map[string]AdapterPack
	eventTypePacks map[string]EventTypePack
	bundles        map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		adapterPacks:   map[string]AdapterPack{},
		eventTypePacks: map[string]EventTypePack{},
		bundles:        map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterAdapterPack(pack AdapterPack) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("integrations: adapter pack name is required")
	}
	if len(pack.Adapters) == 0 {
		return fmt.Errorf("integrations: adapter pack %q has no adapters", name)
	}

	normalized := AdapterPack{
		Name:     name,
		Adapters: append([]core.SyncAdapter(nil), pack.Adapters...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.adapterPacks[name]; exists {
		return fmt.Errorf("integrations: adapter pack %q already registered", name)
	}
	h.adapterPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterEventTypePack(pack EventTypePack) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	provider := strings.TrimSpace(strings.ToLower(pack.Provider))
	if name == "" {
		return fmt.Errorf("integrations: event type pack name is required")
	}
	if provider == "" {
		return fmt.Errorf("integrations: event type pack %q provider is required", name)
	}
	if len(pack.EventTypes) == 0 {
		return fmt.Errorf("integrations: event type pack %q has no event types", name)
	}

	normalized := EventTypePack{
		Name:       name,
		Provider:   provider,
		EventTypes: append([]string(nil), pack.EventTypes...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.eventTypePacks[name]; exists {
		return fmt.Errorf("integrations: event type pack %q already registered", name)
	}
	h.eventTypePacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("integrations: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("integrations: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("integrations: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyAdapterPacks registers every contributed adapter with the engine's
// sync adapter registry. Duplicate providers across packs surface as
// registry errors.
func (h *ExtensionHooks) ApplyAdapterPacks(registry core.AdapterRegistry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("integrations: adapter registry is required")
	}

	packs := h.AdapterPacks()
	for _, pack := range packs {
		for _, adapter := range pack.Adapters {
			if adapter == nil {
				return fmt.Errorf("integrations: adapter pack %q contains nil adapter", pack.Name)
			}
			if err := registry.Register(adapter); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("integrations: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) AdapterPacks() []AdapterPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.adapterPacks))
	for name := range h.adapterPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]AdapterPack, 0, len(names))
	for _, name := range names {
		pack := h.adapterPacks[name]
		out = append(out, AdapterPack{
			Name:     pack.Name,
			Adapters: append([]core.SyncAdapter(nil), pack.Adapters...),
		})
	}
	return out
}

// EventTypes returns the declared event types for a provider, merged
// across packs in deterministic pack-name order.
func (h *ExtensionHooks) EventTypes(provider string) []string {
	if h == nil {
		return nil
	}
	provider = strings.TrimSpace(strings.ToLower(provider))
	h.mu.RLock()
	defer h.mu.RUnlock()

	packNames := make([]string, 0, len(h.eventTypePacks))
	for name, pack := range h.eventTypePacks {
		if pack.Provider == provider {
			packNames = append(packNames, name)
		}
	}
	sort.Strings(packNames)

	out := []string{}
	for _, name := range packNames {
		pack := h.eventTypePacks[name]
		out = append(out, pack.EventTypes...)
	}
	return append([]string(nil), out...)
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
