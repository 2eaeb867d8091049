package storage

import (
	"sort"
	"sync"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
	"github.com/ansell/openrdf-sesame-sub028/pkg/logger"
	"github.com/ansell/openrdf-sesame-sub028/pkg/store"
)

// Backend names understood by NewRegistry.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendBolt   = "bolt"
)

// Factory opens a storage backend rooted at dir.
type Factory func(dir string, log logger.Logger) (store.Storage, error)

// Registry maps backend names to factories. Registries are plain values;
// callers construct one and pass it to whatever needs to open storage.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding the built-in backends.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.factories[BackendMemory] = func(string, logger.Logger) (store.Storage, error) {
		return NewMemoryStorage(), nil
	}
	r.factories[BackendBadger] = func(dir string, log logger.Logger) (store.Storage, error) {
		return NewBadgerStorage(dir, log)
	}
	r.factories[BackendBolt] = func(dir string, _ logger.Logger) (store.Storage, error) {
		return NewBoltStorage(dir)
	}
	return r
}

// Register adds a backend. Registering a name twice is an error.
func (r *Registry) Register(name string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return errors.Newf(errors.ErrMalformedInput, "storage backend %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Open builds the named backend.
func (r *Registry) Open(name, dir string, log logger.Logger) (store.Storage, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Newf(errors.ErrMalformedInput, "unknown storage backend %q", name)
	}
	if log == nil {
		log = logger.NopLogger
	}
	return f(dir, log)
}

// Names lists the registered backends in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
