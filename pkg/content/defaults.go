package content

import "sync"

// Defaults holds the static content served when both generation and the
// cache fail. Lookups are deterministic: the same key always resolves to the
// same value.
type Defaults[T any] struct {
	mu          sync.RWMutex
	values      map[string]T
	placeholder func(key string) T
}

// NewDefaults creates a registry. placeholder builds the generic value for
// keys with no registered default; it must be deterministic and must not
// fail.
func NewDefaults[T any](placeholder func(key string) T) *Defaults[T] {
	return &Defaults[T]{
		values:      make(map[string]T),
		placeholder: placeholder,
	}
}

// Register sets the default for key.
func (d *Defaults[T]) Register(key string, value T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[key] = value
}

// Lookup returns the registered default for key.
func (d *Defaults[T]) Lookup(key string) (T, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.values[key]
	return v, ok
}

// Resolve returns the registered default for key or the generic placeholder.
func (d *Defaults[T]) Resolve(key string) T {
	if v, ok := d.Lookup(key); ok {
		return v
	}
	if d.placeholder == nil {
		var zero T
		return zero
	}
	return d.placeholder(key)
}
