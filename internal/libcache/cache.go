// Package libcache builds UI libraries on first access and keeps them for
// the lifetime of their owner.
//
// Libraries register a factory under a "module.Class" name. Each owner
// (a Puppeteer, a window) holds its own Cache; nothing is shared between
// owners, so two drivers over different sessions never see each other's
// libraries.
package libcache

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/roelfdiedericks/gopuppet/internal/base"
	. "github.com/roelfdiedericks/gopuppet/internal/logging"
	. "github.com/roelfdiedericks/gopuppet/internal/metrics"
)

// Factory constructs a library bound to getter. owner is the object the
// cache belongs to, for libraries that need their parent (a tab bar needs
// its window).
type Factory func(getter base.SessionGetter, owner any) (any, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a library available under name, which must have the form
// "module.Class". Registering a name twice panics.
func Register(name string, f Factory) {
	if _, err := Tag(name); err != nil {
		panic(fmt.Sprintf("libcache: %v", err))
	}
	if f == nil {
		panic("libcache: nil factory for " + name)
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("libcache: duplicate registration of " + name)
	}
	registry[name] = f
}

// Registered lists the registered library names, sorted.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupFactory(name string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// Tag is the storage key of a library: "tabs.TabBar" becomes "_tabs_TabBar".
func Tag(name string) (string, error) {
	module, class, ok := strings.Cut(name, ".")
	if !ok || module == "" || class == "" || strings.Contains(class, ".") {
		return "", fmt.Errorf("%w: library name %q must be \"module.Class\"", base.ErrInvalidArgument, name)
	}
	return "_" + module + "_" + class, nil
}

type entry struct {
	once sync.Once
	lib  any
	err  error
}

// Cache holds the libraries of one owner.
type Cache struct {
	getter base.SessionGetter
	owner  any

	mu      sync.Mutex
	entries map[string]*entry
}

// New returns an empty cache for owner. Libraries are built with getter.
func New(getter base.SessionGetter, owner any) *Cache {
	return &Cache{
		getter:  getter,
		owner:   owner,
		entries: make(map[string]*entry),
	}
}

// Get returns the library registered under name, constructing it on first
// access. A failed construction is remembered and returned again.
func (c *Cache) Get(name string) (any, error) {
	tag, err := Tag(name)
	if err != nil {
		return nil, err
	}
	factory, ok := lookupFactory(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown library %q", base.ErrInvalidArgument, name)
	}

	c.mu.Lock()
	e, hit := c.entries[tag]
	if !hit {
		e = &entry{}
		c.entries[tag] = e
	}
	c.mu.Unlock()

	if hit {
		MetricHit("libcache", name)
	} else {
		MetricMiss("libcache", name)
	}

	e.once.Do(func() {
		L_debug("libcache: constructing library", "name", name, "tag", tag)
		e.lib, e.err = factory(c.getter, c.owner)
		if e.err != nil {
			e.err = fmt.Errorf("failed to construct %s: %w", name, e.err)
		}
	})
	return e.lib, e.err
}

// Cached reports whether name has been constructed in c.
func (c *Cache) Cached(name string) bool {
	tag, err := Tag(name)
	if err != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[tag]
	return ok
}

// Lookup is Get with the library asserted to T.
func Lookup[T any](c *Cache, name string) (T, error) {
	var zero T
	lib, err := c.Get(name)
	if err != nil {
		return zero, err
	}
	typed, ok := lib.(T)
	if !ok {
		return zero, fmt.Errorf("%w: library %s is %T, want %T", base.ErrTypeConstraint, name, lib, zero)
	}
	return typed, nil
}
