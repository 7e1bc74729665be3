package cli

import (
	"fmt"
	"log/slog"
	"time"

	"assetload/pkg/catalog"
	"assetload/pkg/config"
	"assetload/pkg/decoder"
	"assetload/pkg/display"
	"assetload/pkg/downloader"
	"assetload/pkg/loader"

	"github.com/prometheus/client_golang/prometheus"
)

// Managers carries the long-lived collaborators shared by command handlers.
// Mutable
type Managers struct {
	Cfg      config.ReadOnly
	Disp     display.Display
	Logger   *slog.Logger
	Registry *prometheus.Registry

	// CatalogOverride replaces the catalog path from settings when set.
	CatalogOverride string
	// Fetcher replaces the default scheme-based fetcher when set.
	Fetcher downloader.Fetcher
}

// Catalog loads the configured catalog.
func (m *Managers) Catalog() (*catalog.Catalog, string, error) {
	path := m.CatalogOverride
	if path == "" {
		p, err := m.Cfg.CatalogPath()
		if err != nil {
			return nil, "", fmt.Errorf("error reading settings: %w", err)
		}
		path = p
	}
	if path == "" {
		return nil, "", fmt.Errorf("no catalog configured, use --catalog or 'config set catalog'")
	}
	settings, err := m.Cfg.Settings()
	if err != nil {
		return nil, "", fmt.Errorf("error reading settings: %w", err)
	}
	cat, err := catalog.Load(path, settings.Query)
	if err != nil {
		return nil, path, err
	}
	return cat, path, nil
}

// NewLoader builds a loader over the configured catalog that reports to p.
// Extra options are applied after the ones derived from settings.
func (m *Managers) NewLoader(p display.Presenter, opts ...loader.Option) (*loader.Loader, error) {
	cat, _, err := m.Catalog()
	if err != nil {
		return nil, err
	}
	settings, err := m.Cfg.Settings()
	if err != nil {
		return nil, fmt.Errorf("error reading settings: %w", err)
	}

	join, err := loader.ParseJoinPolicy(settings.JoinPolicy)
	if err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	retry, err := loader.ParseRetryPolicy(settings.RetryPolicy)
	if err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	fetcher := m.Fetcher
	if fetcher == nil {
		fetcher = downloader.NewDefaultFetcher(
			downloader.WithTasks(m.Disp),
			downloader.WithTimeout(time.Duration(settings.HTTPTimeout)),
		)
	}
	dec := decoder.New(decoder.WithStripHTML(settings.StripHTML))

	base := []loader.Option{
		loader.WithJoinPolicy(join),
		loader.WithRetryPolicy(retry),
	}
	if m.Logger != nil {
		base = append(base, loader.WithLogger(m.Logger))
	}
	if m.Registry != nil {
		base = append(base, loader.WithRegisterer(m.Registry))
	}
	return loader.New(cat, fetcher, dec, p, append(base, opts...)...), nil
}
