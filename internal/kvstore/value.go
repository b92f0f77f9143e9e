package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/conorfennell/notedeck/internal/domain"
)

// Value is a JSON-encoded value of type T bound to one key. It keeps an
// in-memory copy that is replaced wholesale when another connection writes
// the key. Malformed stored JSON is replaced by the initial value.
type Value[T any] struct {
	store   *Store
	key     string
	initial T

	mu       sync.RWMutex
	current  T
	onChange []func(T)

	unsubscribe func()
}

// Bind loads key from the store and subscribes to external changes.
// Only storage I/O errors are returned; parse failures fall back to initial.
func Bind[T any](ctx context.Context, s *Store, key string, initial T) (*Value[T], error) {
	v := &Value[T]{store: s, key: key, initial: initial}

	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	v.current = v.decode(raw, ok)
	v.unsubscribe = s.Subscribe(key, v.apply)
	return v, nil
}

// Key returns the bound key.
func (v *Value[T]) Key() string {
	return v.key
}

// Get returns the current in-memory value.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// Set persists val and replaces the in-memory value.
func (v *Value[T]) Set(ctx context.Context, val T) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.write(ctx, val)
}

// Update persists fn(current). fn sees the latest in-memory value.
func (v *Value[T]) Update(ctx context.Context, fn func(prev T) T) (T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	next := fn(v.current)
	if err := v.write(ctx, next); err != nil {
		return v.current, err
	}
	return next, nil
}

// OnChange registers fn to run after an external change replaced the value.
func (v *Value[T]) OnChange(fn func(T)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = append(v.onChange, fn)
}

// Close stops listening for external changes.
func (v *Value[T]) Close() {
	if v.unsubscribe != nil {
		v.unsubscribe()
		v.unsubscribe = nil
	}
}

func (v *Value[T]) write(ctx context.Context, val T) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("failed to encode key %s: %w", v.key, err)
	}
	if err := v.store.Set(ctx, v.key, string(data)); err != nil {
		return err
	}
	v.current = val
	return nil
}

func (v *Value[T]) apply(c Change) {
	next := v.decode(c.Value, !c.Deleted)

	v.mu.Lock()
	v.current = next
	listeners := slices.Clone(v.onChange)
	v.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
}

func (v *Value[T]) decode(raw string, ok bool) T {
	if !ok {
		return v.initial
	}
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		v.store.log.Warn("Replacing malformed stored value with default",
			"key", v.key,
			"error", fmt.Errorf("%w: %w", domain.ErrStorageParse, err),
		)
		return v.initial
	}
	return out
}
