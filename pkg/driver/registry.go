package driver

import (
	"fmt"
	"sync"
)

// registry tracks drivers registered process-wide by name, so config
// sections can refer to a driver by name ("Drivers register
// with name + default port + protocol string").
var (
	registryMu sync.Mutex
	registry   = make(map[string]Driver)
)

// Register adds d to the process-wide driver registry under d.Name(). It
// is an error to register two drivers under the same name.
func Register(d Driver) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[d.Name()]; exists {
		return fmt.Errorf("driver: %q already registered", d.Name())
	}
	registry[d.Name()] = d
	return nil
}

// Lookup returns the driver registered under name, if any.
func Lookup(name string) (Driver, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	d, ok := registry[name]
	return d, ok
}

// Registered returns the names of every currently registered driver.
func Registered() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// unregisterAll clears the registry; used by tests to avoid cross-test
// leakage of registered driver names.
func unregisterAll() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Driver)
}
