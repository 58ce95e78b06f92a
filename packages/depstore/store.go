// Package depstore holds response values captured during a run so later
// requests can reuse them, keyed by the producing operation.
package depstore

import (
	"fmt"
	"strings"
	"sync"
)

// Key identifies the operation that produced a value.
type Key struct {
	Method string
	Path   string
}

// NewKey normalizes the method and path so lookups are case-insensitive.
func NewKey(method, path string) Key {
	return Key{
		Method: strings.ToLower(method),
		Path:   strings.ToLower(path),
	}
}

// ParseRef parses a "method:path:field" reference. The path itself may
// contain colons, so the split happens on the first and last separator.
func ParseRef(ref string) (Key, string, error) {
	first := strings.Index(ref, ":")
	last := strings.LastIndex(ref, ":")
	if first == -1 || first == last {
		return Key{}, "", fmt.Errorf("malformed dependency reference %q, want method:path:field", ref)
	}
	return NewKey(ref[:first], ref[first+1:last]), ref[last+1:], nil
}

// MissingDependencyError is returned by Get when the producer has not stored
// the requested field yet.
type MissingDependencyError struct {
	Key   Key
	Field string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("no stored value for %s:%s field %q", e.Key.Method, e.Key.Path, e.Field)
}

// Store is a run-scoped map from producer operations to their last-seen
// response fields. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	values map[Key]map[string]any
}

func New() *Store {
	return &Store{values: make(map[Key]map[string]any)}
}

// Store records a field value, overwriting any previous one.
func (s *Store) Store(key Key, field string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields, ok := s.values[key]
	if !ok {
		fields = make(map[string]any)
		s.values[key] = fields
	}
	fields[field] = value
}

// Get returns the last stored value for a field, or MissingDependencyError.
func (s *Store) Get(key Key, field string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields, ok := s.values[key]
	if !ok {
		return nil, &MissingDependencyError{Key: key, Field: field}
	}
	value, ok := fields[field]
	if !ok {
		return nil, &MissingDependencyError{Key: key, Field: field}
	}
	return value, nil
}

// Len reports how many producer operations have stored at least one field.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
