// Package catalog holds the immutable key -> resource descriptor mapping
// that drives the loader. Catalogs are built once at startup from JSON or
// Starlark sources and are read-only afterwards.
package catalog

import (
	"errors"
	"fmt"
	"net/url"

	"assetload/pkg/common"
)

// ErrDuplicateKey is matched by a ConfigError raised for a repeated key.
var ErrDuplicateKey = errors.New("duplicate key")

// ConfigError reports an invalid catalog definition.
type ConfigError struct {
	Key    string
	Index  int
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("catalog entry %d (%q): %s: %v", e.Index, e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("catalog entry %d (%q): %s", e.Index, e.Key, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Immutable
type Catalog struct {
	entries []common.Descriptor
	index   map[string]int
}

// New builds a catalog from descriptors, preserving their order.
func New(descs []common.Descriptor) (*Catalog, error) {
	c := &Catalog{
		entries: make([]common.Descriptor, 0, len(descs)),
		index:   make(map[string]int, len(descs)),
	}
	for i, d := range descs {
		if err := validate(i, d); err != nil {
			return nil, err
		}
		if prev, ok := c.index[d.Key]; ok {
			return nil, &ConfigError{
				Key:    d.Key,
				Index:  i,
				Reason: fmt.Sprintf("already defined by entry %d", prev),
				Err:    ErrDuplicateKey,
			}
		}
		c.index[d.Key] = len(c.entries)
		c.entries = append(c.entries, d)
	}
	return c, nil
}

func validate(i int, d common.Descriptor) error {
	if d.Key == "" {
		return &ConfigError{Index: i, Reason: "empty key"}
	}
	if d.Locator == "" {
		return &ConfigError{Key: d.Key, Index: i, Reason: "empty url"}
	}
	if _, err := url.Parse(d.Locator); err != nil {
		return &ConfigError{Key: d.Key, Index: i, Reason: "invalid url", Err: err}
	}
	switch d.Kind {
	case common.KindModel, common.KindImage, common.KindAudio, common.KindText:
	default:
		return &ConfigError{Key: d.Key, Index: i, Reason: "unknown kind " + d.Kind.String()}
	}
	return nil
}

// Lookup returns the descriptor registered under key.
func (c *Catalog) Lookup(key string) (common.Descriptor, bool) {
	i, ok := c.index[key]
	if !ok {
		return common.Descriptor{}, false
	}
	return c.entries[i], true
}

// Entries returns the descriptors in definition order.
func (c *Catalog) Entries() []common.Descriptor {
	return append([]common.Descriptor(nil), c.entries...)
}

// Keys returns the keys in definition order.
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.entries))
	for i, d := range c.entries {
		keys[i] = d.Key
	}
	return keys
}

func (c *Catalog) Len() int { return len(c.entries) }
