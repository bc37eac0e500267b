package pipeline

import "sync"

// Namespace is one of the context's named key/value stores. It is not safe
// for concurrent mutation; under a parallel strategy, cross-worker state
// belongs in the Shared accessor instead.
type Namespace struct {
	values map[string]any
}

func newNamespace() *Namespace {
	return &Namespace{values: make(map[string]any)}
}

func (n *Namespace) Set(key string, value any) {
	n.values[key] = value
}

func (n *Namespace) Get(key string) (any, bool) {
	value, ok := n.values[key]

	return value, ok
}

func (n *Namespace) Delete(key string) {
	delete(n.values, key)
}

func (n *Namespace) Len() int {
	return len(n.values)
}

func (n *Namespace) Keys() []string {
	keys := make([]string, 0, len(n.values))
	for key := range n.values {
		keys = append(keys, key)
	}

	return keys
}

// clone makes a shallow copy: keys and value references are copied, the map
// itself is fresh.
func (n *Namespace) clone() *Namespace {
	values := make(map[string]any, len(n.values))
	for key, value := range n.values {
		values[key] = value
	}

	return &Namespace{values: values}
}

// Shared is the synchronized state accessor handed to workers that need
// cross-item coordination under a parallel strategy.
type Shared struct {
	mu     sync.RWMutex
	values map[string]any
}

func newShared() *Shared {
	return &Shared{values: make(map[string]any)}
}

func (s *Shared) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
}

func (s *Shared) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]

	return value, ok
}

func (s *Shared) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
}

// Update applies fn to the current value of key atomically and stores the
// result. The second argument reports whether the key existed.
func (s *Shared) Update(key string, fn func(current any, ok bool) any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.values[key]
	s.values[key] = fn(current, ok)
}
