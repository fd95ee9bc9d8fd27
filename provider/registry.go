package provider

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Factory builds a Client from configuration.
type Factory func(cfg Config) (Client, error)

var factories = struct {
	sync.RWMutex
	byName map[string]Factory
}{byName: make(map[string]Factory)}

// Register makes a provider available to New. Call it from init; a second
// registration under the same name panics.
//
//	func init() {
//		provider.Register("anthropic", func(cfg provider.Config) (provider.Client, error) {
//			return New(cfg)
//		})
//	}
func Register(name string, f Factory) {
	factories.Lock()
	defer factories.Unlock()
	if _, dup := factories.byName[name]; dup {
		panic(fmt.Sprintf("provider %q registered twice", name))
	}
	factories.byName[name] = f
}

// New builds a client with the named provider, or fails with
// ErrUnknownProvider.
func New(name string, cfg Config) (Client, error) {
	factories.RLock()
	f, ok := factories.byName[name]
	factories.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownProvider, name, Available())
	}
	return f(cfg)
}

// Available lists registered providers in name order.
func Available() []string {
	factories.RLock()
	defer factories.RUnlock()
	return slices.Sorted(maps.Keys(factories.byName))
}

// IsRegistered reports whether name can be passed to New.
func IsRegistered(name string) bool {
	factories.RLock()
	defer factories.RUnlock()
	_, ok := factories.byName[name]
	return ok
}

// Unregister drops a provider. Tests use it to clean up.
func Unregister(name string) {
	factories.Lock()
	defer factories.Unlock()
	delete(factories.byName, name)
}
