package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"assetload/pkg/bundle"
	"assetload/pkg/catalog"
	"assetload/pkg/common"
	"assetload/pkg/config"
	"assetload/pkg/loader"

	"github.com/dustin/go-humanize"
)

// RegisterDefaults binds every command in cli.def to its handler.
func RegisterDefaults(e *Engine, m *Managers) {
	h := &DefaultHandlers{Mgr: m}
	e.Register("load", HandlerFunc(h.Load))
	e.Register("session", HandlerFunc(h.Session))
	e.Register("browse", HandlerFunc(h.Browse))
	e.Register("catalog/list", HandlerFunc(h.CatalogList))
	e.Register("catalog/check", HandlerFunc(h.CatalogCheck))
	e.Register("bundle/build", HandlerFunc(h.BundleBuild))
	e.Register("bundle/list", HandlerFunc(h.BundleList))
	e.Register("bundle/extract", HandlerFunc(h.BundleExtract))
	e.Register("config/show", HandlerFunc(h.ConfigShow))
	e.Register("config/set", HandlerFunc(h.ConfigSet))
	e.Register("version", HandlerFunc(h.Version))
}

type DefaultHandlers struct {
	Mgr *Managers
}

func (h *DefaultHandlers) Version(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	return &ExecutionResult{
		ExitCode: 0,
		Output:   &common.Output{Message: config.GetBuildInfo()},
	}, nil
}

func (h *DefaultHandlers) Load(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	params := bindLoad(inv)
	var opts []loader.Option
	if params.Wait {
		opts = append(opts, loader.WithJoinPolicy(loader.JoinWait))
	}
	l, err := h.Mgr.NewLoader(h.Mgr.Disp, opts...)
	if err != nil {
		return nil, err
	}

	loadErr := l.RequestAll(ctx, params.Keys)
	out := &common.Output{Table: statusTable(l.Snapshot(), params.Keys)}

	if params.Release {
		for _, key := range params.Keys {
			if err := l.Release(key); err != nil && !errors.Is(err, loader.ErrNotLoaded) {
				loadErr = errors.Join(loadErr, err)
			}
		}
	}

	if loadErr != nil {
		out.Message = "Some resources failed to load:\n  " + strings.ReplaceAll(loadErr.Error(), "\n", "\n  ")
		return &ExecutionResult{ExitCode: 1, Output: out}, nil
	}
	return &ExecutionResult{ExitCode: 0, Output: out}, nil
}

func (h *DefaultHandlers) CatalogList(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	cat, path, err := h.Mgr.Catalog()
	if err != nil {
		return nil, err
	}
	if inv.Bool("json") {
		data, err := json.MarshalIndent(cat.Entries(), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal catalog: %w", err)
		}
		return &ExecutionResult{ExitCode: 0, Output: &common.Output{Message: string(data)}}, nil
	}

	table := &common.Table{Header: []string{"KEY", "KIND", "URL"}}
	for _, d := range cat.Entries() {
		table.Rows = append(table.Rows, []string{d.Key, d.Kind.String(), d.Locator})
	}
	return &ExecutionResult{
		ExitCode: 0,
		Output: &common.Output{
			Message: fmt.Sprintf("Catalog %s (%d resources)", path, cat.Len()),
			Table:   table,
		},
	}, nil
}

func (h *DefaultHandlers) CatalogCheck(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	settings, err := h.Mgr.Cfg.Settings()
	if err != nil {
		return nil, err
	}
	path := inv.Args["path"]
	cat, err := catalog.Load(path, settings.Query)
	if err != nil {
		return &ExecutionResult{ExitCode: 1, Output: &common.Output{Message: fmt.Sprintf("%s: %v", path, err)}}, nil
	}

	counts := make(map[common.Kind]int)
	for _, d := range cat.Entries() {
		counts[d.Kind]++
	}
	out := &common.Output{Message: fmt.Sprintf("%s: %d resources OK", path, cat.Len())}
	for _, k := range common.Kinds() {
		if counts[k] > 0 {
			out.KV = append(out.KV, common.KV{Key: k.String(), Value: strconv.Itoa(counts[k])})
		}
	}
	if counts[common.KindModel] > 0 {
		out.KV = append(out.KV, common.KV{Key: "note", Value: "model entries can only be delivered as bundles"})
	}
	return &ExecutionResult{ExitCode: 0, Output: out}, nil
}

func (h *DefaultHandlers) BundleBuild(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	dir, dest := inv.Args["dir"], inv.Args["dest"]
	task := h.Mgr.Disp.StartTask("bundle")
	task.SetStage("Build", dest)
	n, err := bundle.Build(dir, dest)
	task.Done()
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dest)
	if err != nil {
		return nil, err
	}
	return &ExecutionResult{
		ExitCode: 0,
		Output: &common.Output{
			Message: fmt.Sprintf("Bundle written to %s", dest),
			KV: []common.KV{
				{Key: "files", Value: strconv.Itoa(n)},
				{Key: "size", Value: humanize.Bytes(uint64(info.Size()))},
			},
		},
	}, nil
}

func (h *DefaultHandlers) BundleList(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	entries, err := bundle.List(inv.Args["path"])
	if err != nil {
		return nil, err
	}
	table := &common.Table{Header: []string{"NAME", "SIZE"}}
	var total int64
	for _, e := range entries {
		table.Rows = append(table.Rows, []string{e.Name, humanize.Bytes(uint64(e.Size))})
		total += e.Size
	}
	return &ExecutionResult{
		ExitCode: 0,
		Output: &common.Output{
			Message: fmt.Sprintf("%d files, %s", len(entries), humanize.Bytes(uint64(total))),
			Table:   table,
		},
	}, nil
}

func (h *DefaultHandlers) BundleExtract(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	path, dest := inv.Args["path"], inv.Args["dest"]
	if err := bundle.Extract(path, dest); err != nil {
		return nil, err
	}
	return &ExecutionResult{ExitCode: 0, Output: &common.Output{Message: "Extracted to " + dest}}, nil
}

func (h *DefaultHandlers) ConfigShow(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	cfg := h.Mgr.Cfg
	s, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	catalogPath, _ := cfg.CatalogPath()
	return &ExecutionResult{
		ExitCode: 0,
		Output: &common.Output{
			KV: []common.KV{
				{Key: "config", Value: cfg.GetConfigDir()},
				{Key: "cache", Value: cfg.GetCacheDir()},
				{Key: "bundles", Value: cfg.GetBundleDir()},
				{Key: "settings", Value: cfg.GetSettingsPath()},
				{Key: "catalog", Value: catalogPath},
				{Key: "query", Value: s.Query},
				{Key: "http_timeout", Value: time.Duration(s.HTTPTimeout).String()},
				{Key: "join_policy", Value: s.JoinPolicy},
				{Key: "retry_policy", Value: s.RetryPolicy},
				{Key: "strip_html", Value: strconv.FormatBool(s.StripHTML)},
			},
		},
	}, nil
}

func (h *DefaultHandlers) ConfigSet(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	name, value := inv.Args["name"], inv.Args["value"]
	store := h.Mgr.Cfg.Store()
	err := store.Modify(func(s *config.Settings) error {
		return applySetting(s, name, value)
	})
	if err != nil {
		return nil, err
	}
	if err := store.Save(); err != nil {
		return nil, err
	}
	return &ExecutionResult{ExitCode: 0, Output: &common.Output{Message: fmt.Sprintf("%s = %s", name, value)}}, nil
}

func applySetting(s *config.Settings, name, value string) error {
	switch name {
	case "catalog":
		s.Catalog = value
	case "query":
		s.Query = value
	case "http_timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		s.HTTPTimeout = config.Duration(d)
	case "join_policy":
		if _, err := loader.ParseJoinPolicy(value); err != nil {
			return err
		}
		s.JoinPolicy = value
	case "retry_policy":
		if _, err := loader.ParseRetryPolicy(value); err != nil {
			return err
		}
		s.RetryPolicy = value
	case "strip_html":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", value)
		}
		s.StripHTML = b
	default:
		return fmt.Errorf("unknown setting %q", name)
	}
	return nil
}

// statusTable renders loader statuses. When keys is non-empty only those
// keys are shown, in catalog order.
func statusTable(snap []loader.Status, keys []string) *common.Table {
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	table := &common.Table{Header: []string{"KEY", "KIND", "STATE", "SIZE", "ERROR"}}
	for _, s := range snap {
		if len(keys) > 0 && !want[s.Key] {
			continue
		}
		size := ""
		if s.Size > 0 {
			size = humanize.Bytes(s.Size)
		}
		errText := ""
		if s.Err != nil {
			errText = s.Err.Error()
		}
		table.Rows = append(table.Rows, []string{s.Key, s.Kind.String(), s.State.String(), size, errText})
	}
	return table
}
