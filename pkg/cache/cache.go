// Package cache is the authoritative in-memory store of decoded resources.
// It tracks one load state per key and only changes it through atomic
// transitions, so at most one load is ever in flight for a key.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"assetload/pkg/common"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyLoadingOrLoaded is returned by BeginLoad when the key is
	// already Loading or Loaded.
	ErrAlreadyLoadingOrLoaded = errors.New("already loading or loaded")
	// ErrInvalidTransition means a completion was reported for a key that is
	// not Loading. It indicates a bug in the caller.
	ErrInvalidTransition = errors.New("invalid cache transition")
	// ErrNotLoaded is returned by Release for absent and Loading keys.
	ErrNotLoaded = errors.New("not loaded")
)

// State is the load state of a key.
type State int

const (
	Unloaded State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Entry is a snapshot of a cached key. Value is set iff State is Loaded,
// Err is set iff State is Failed.
type Entry struct {
	Key   string
	Kind  common.Kind
	State State
	Value *common.Value
	Err   error
	// Attempt identifies the load that produced this entry.
	Attempt string
	// Attempts counts the loads started for this key since it was last absent.
	Attempts  int
	UpdatedAt time.Time
}

// Mutable
type record struct {
	Entry
	// done is closed when the entry leaves Loading.
	done chan struct{}
}

// Cache maps keys to load state and decoded values. It is safe for
// concurrent use.
// Mutable
type Cache struct {
	mu      sync.Mutex
	entries map[string]*record
	now     func() time.Time
}

func New() *Cache {
	return &Cache{
		entries: make(map[string]*record),
		now:     time.Now,
	}
}

// Get returns a snapshot of the entry for key. Absent keys are Unloaded.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	if !ok {
		return Entry{Key: key, State: Unloaded}, false
	}
	return r.Entry, true
}

// BeginLoad moves key from absent or Failed to Loading and returns the id of
// the new attempt.
func (c *Cache) BeginLoad(key string, kind common.Kind) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.entries[key]
	if ok && (r.State == Loading || r.State == Loaded) {
		return "", ErrAlreadyLoadingOrLoaded
	}
	attempts := 0
	if ok {
		attempts = r.Attempts
	}

	attempt := uuid.NewString()
	c.entries[key] = &record{
		Entry: Entry{
			Key:       key,
			Kind:      kind,
			State:     Loading,
			Attempt:   attempt,
			Attempts:  attempts + 1,
			UpdatedAt: c.now(),
		},
		done: make(chan struct{}),
	}
	return attempt, nil
}

// CompleteLoad moves key from Loading to Loaded and takes ownership of v.
func (c *Cache) CompleteLoad(key string, v common.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.entries[key]
	if !ok || r.State != Loading {
		return fmt.Errorf("complete %q: %w", key, ErrInvalidTransition)
	}
	r.State = Loaded
	r.Value = &v
	r.Err = nil
	r.UpdatedAt = c.now()
	close(r.done)
	return nil
}

// FailLoad moves key from Loading to Failed and records err.
func (c *Cache) FailLoad(key string, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.entries[key]
	if !ok || r.State != Loading {
		return fmt.Errorf("fail %q: %w", key, ErrInvalidTransition)
	}
	if err == nil {
		err = errors.New("unknown failure")
	}
	r.State = Failed
	r.Value = nil
	r.Err = err
	r.UpdatedAt = c.now()
	close(r.done)
	return nil
}

// Release removes a Loaded or Failed entry. A Loaded value is destroyed
// before the entry is removed. The returned snapshot describes the entry as
// it was before removal.
func (c *Cache) Release(key string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.entries[key]
	if !ok || r.State == Loading {
		return Entry{Key: key, State: Unloaded}, ErrNotLoaded
	}
	released := r.Entry
	if r.State == Loaded && r.Value != nil {
		r.Value.Release()
	}
	delete(c.entries, key)
	return released, nil
}

// WithLoaded calls fn with the value held for key if key is Loaded and
// reports whether it did. fn runs under the cache lock, so Release cannot
// destroy the value while fn reads it. fn must not call back into the cache.
func (c *Cache) WithLoaded(key string, fn func(kind common.Kind, v common.Value)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	if !ok || r.State != Loaded || r.Value == nil {
		return false
	}
	fn(r.Kind, *r.Value)
	return true
}

// Wait blocks while key is Loading and returns the entry once it settles.
// It returns immediately for keys that are not Loading.
func (c *Cache) Wait(ctx context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	r, ok := c.entries[key]
	if !ok || r.State != Loading {
		c.mu.Unlock()
		e, ok := c.Get(key)
		return e, ok, nil
	}
	done := r.done
	c.mu.Unlock()

	select {
	case <-done:
		e, ok := c.Get(key)
		return e, ok, nil
	case <-ctx.Done():
		return Entry{}, false, ctx.Err()
	}
}

// Keys returns the cached keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
