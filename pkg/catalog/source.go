package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"assetload/pkg/common"

	"github.com/itchyny/gojq"
)

// rawEntry is the on-disk shape of one catalog entry, before validation.
type rawEntry struct {
	Key  string `json:"key"`
	URL  string `json:"url"`
	Kind string `json:"kind"`
}

// Load reads a catalog file. Files ending in .star are evaluated as Starlark,
// everything else is parsed as JSON. query is only used for JSON catalogs.
func Load(path string, query string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	if strings.HasSuffix(path, ".star") {
		name := strings.TrimSuffix(filepath.Base(path), ".star")
		return ParseStarlark(name, string(data))
	}
	return ParseJSON(data, query)
}

// ParseJSON parses a catalog from JSON. Without a query the document must be
// an array of {"key","url","kind"} objects. With a query, the jq expression
// is run against the document and must yield either that array or the
// entry objects one by one.
func ParseJSON(data []byte, query string) (*Catalog, error) {
	if query == "" {
		var raws []rawEntry
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("failed to unmarshal catalog: %w", err)
		}
		return fromRaw(raws)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}
	selected, err := runQuery(query, doc)
	if err != nil {
		return nil, err
	}
	// Round-trip through JSON so the selection gets the same field handling
	// as a plain catalog file.
	b, err := json.Marshal(selected)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query result: %w", err)
	}
	var raws []rawEntry
	if err := json.Unmarshal(b, &raws); err != nil {
		return nil, fmt.Errorf("query %q did not select catalog entries: %w", query, err)
	}
	return fromRaw(raws)
}

func runQuery(query string, doc any) ([]any, error) {
	q, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog query: %w", err)
	}
	iter := q.Run(doc)
	var results []any
	for {
		res, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := res.(error); ok {
			return nil, fmt.Errorf("catalog query failed: %w", err)
		}
		results = append(results, res)
	}
	if len(results) == 1 {
		if arr, ok := results[0].([]any); ok {
			return arr, nil
		}
	}
	return results, nil
}

func fromRaw(raws []rawEntry) (*Catalog, error) {
	descs := make([]common.Descriptor, 0, len(raws))
	for i, r := range raws {
		kind, err := common.ParseKind(r.Kind)
		if err != nil {
			return nil, &ConfigError{Key: r.Key, Index: i, Reason: "bad kind", Err: err}
		}
		descs = append(descs, common.Descriptor{Key: r.Key, Locator: r.URL, Kind: kind})
	}
	return New(descs)
}
