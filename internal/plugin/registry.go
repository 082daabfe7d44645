package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hyperengineering/syncbridge/internal/event"
)

// registry holds all registered sync plugins.
var (
	registryMu sync.RWMutex
	plugins    = make(map[string]SyncPlugin)
)

// Register adds a plugin to the registry.
// Plugins should be registered early in main().
// Panics if a plugin with the same name is already registered.
func Register(p SyncPlugin) {
	registryMu.Lock()
	defer registryMu.Unlock()

	name := p.Name()
	if _, exists := plugins[name]; exists {
		panic("plugin already registered: " + name)
	}
	plugins[name] = p
}

// Get returns the plugin registered under name.
func Get(name string) (SyncPlugin, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	p, ok := plugins[name]
	return p, ok
}

// MustGet returns the plugin registered under name.
// Panics if no such plugin is registered.
func MustGet(name string) SyncPlugin {
	p, ok := Get(name)
	if !ok {
		panic("no plugin named: " + name)
	}
	return p
}

// RegisteredNames returns all registered plugin names, sorted.
func RegisteredNames() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(plugins))
	for n := range plugins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Attach attaches the named plugins to bus in the given order.
func Attach(bus *event.Bus, host Host, names ...string) error {
	for _, name := range names {
		p, ok := Get(name)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownPlugin, name)
		}
		if err := p.Attach(bus, host); err != nil {
			return fmt.Errorf("attach plugin %s: %w", name, err)
		}
	}
	return nil
}

// Reset clears the registry. Only for testing.
func Reset() {
	registryMu.Lock()
	defer registryMu.Unlock()
	plugins = make(map[string]SyncPlugin)
}
