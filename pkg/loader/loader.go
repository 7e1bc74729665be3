package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"assetload/pkg/cache"
	"assetload/pkg/catalog"
	"assetload/pkg/common"
	"assetload/pkg/decoder"
	"assetload/pkg/display"
	"assetload/pkg/downloader"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// ErrUnsupportedKind is returned for Model keys. Nothing is fetched and the
// cache is left untouched.
var ErrUnsupportedKind = downloader.ErrUnsupportedKind

// Loader orchestrates catalog lookups, fetches, decodes and the cache.
// It is safe for concurrent use; at most one load is in flight per key.
// Mutable
type Loader struct {
	catalog   *catalog.Catalog
	fetcher   downloader.Fetcher
	decoder   decoder.Decoder
	presenter display.Presenter
	cache     *cache.Cache

	join   JoinPolicy
	retry  RetryPolicy
	logger *slog.Logger
	reg    prometheus.Registerer
	m      *metrics
}

func New(cat *catalog.Catalog, f downloader.Fetcher, d decoder.Decoder, p display.Presenter, opts ...Option) *Loader {
	l := &Loader{
		catalog:   cat,
		fetcher:   f,
		decoder:   d,
		presenter: p,
		cache:     cache.New(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.m = newMetrics(l.reg)
	return l
}

// Cache exposes the underlying cache for inspection.
func (l *Loader) Cache() *cache.Cache {
	return l.cache
}

func (l *Loader) Catalog() *catalog.Catalog {
	return l.catalog
}

// Request loads key and displays it. A Loaded key is displayed again
// without fetching.
func (l *Loader) Request(ctx context.Context, key string) error {
	return l.request(ctx, key, false)
}

// Retry is Request for keys in the Failed state under RetryExplicit. For
// other states it behaves exactly like Request.
func (l *Loader) Retry(ctx context.Context, key string) error {
	return l.request(ctx, key, true)
}

func (l *Loader) request(ctx context.Context, key string, force bool) error {
	desc, ok := l.catalog.Lookup(key)
	if !ok {
		l.logger.Error("Resource not found in catalog", "key", key)
		return fmt.Errorf("request %q: %w", key, ErrUnknownKey)
	}
	log := l.logger.With("key", key, "kind", desc.Kind.String())

	if desc.Kind == common.KindModel {
		log.Error("Loading models from a URL is not supported, use a bundle")
		return fmt.Errorf("request %q: %w", key, ErrUnsupportedKind)
	}

	entry, _ := l.cache.Get(key)
	switch entry.State {
	case cache.Loaded:
		if l.show(key) {
			log.Warn("Resource already loaded, showing cached value", "state", entry.State.String())
			l.m.hits.WithLabelValues(desc.Kind.String()).Inc()
			return nil
		}
		log.Debug("Resource released before it could be shown, loading again")
	case cache.Loading:
		return l.joinInFlight(ctx, key, desc.Kind, log)
	case cache.Failed:
		if l.retry == RetryExplicit && !force {
			log.Warn("Resource previously failed, retry required", "state", entry.State.String(), "error", entry.Err)
			return &FailedError{Key: key, Err: entry.Err}
		}
	}

	return l.load(ctx, desc, log)
}

// load runs one fetch and decode for desc. Only the caller that wins
// BeginLoad ever reaches the fetcher.
func (l *Loader) load(ctx context.Context, desc common.Descriptor, log *slog.Logger) error {
	attempt, err := l.cache.BeginLoad(desc.Key, desc.Kind)
	if err != nil {
		if errors.Is(err, cache.ErrAlreadyLoadingOrLoaded) {
			log.Debug("Lost load race", "state", cache.Loading.String())
			if l.join == JoinWait {
				return l.joinInFlight(ctx, desc.Key, desc.Kind, log)
			}
			return nil
		}
		return err
	}
	log = log.With("attempt", attempt)
	log.Info("Loading resource", "url", desc.Locator, "state", cache.Loading.String())

	kind := desc.Kind.String()
	start := time.Now()
	value, stage, err := l.fetchAndDecode(ctx, desc)
	if err != nil {
		return l.fail(desc.Key, stage, err, log)
	}
	l.m.duration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	size := value.Size()
	if err := l.cache.CompleteLoad(desc.Key, value); err != nil {
		panic(err)
	}
	l.m.fetches.WithLabelValues(kind, "loaded").Inc()
	log.Info("Resource loaded", "state", cache.Loaded.String(), "size", size)
	if !l.show(desc.Key) {
		log.Debug("Resource released before it could be shown")
	}
	return nil
}

// fetchAndDecode runs the fetcher and the decoder for desc and names the
// stage that failed. A panic in either stage is returned as an error so the
// key never stays Loading.
func (l *Loader) fetchAndDecode(ctx context.Context, desc common.Descriptor) (v common.Value, stage string, err error) {
	stage = "fetch"
	defer func() {
		if r := recover(); r != nil {
			v = common.Value{}
			err = fmt.Errorf("%s panicked: %v", stage, r)
		}
	}()

	raw, err := l.fetcher.Fetch(ctx, desc.Locator, desc.Kind)
	if err != nil {
		return common.Value{}, stage, err
	}
	stage = "decode"
	v, err = l.decoder.Decode(raw, desc.Kind)
	return v, stage, err
}

// show hands the cached value for key to the presenter while the cache
// holds it, so a concurrent Release cannot destroy it mid-display. It reports
// false if key is no longer Loaded.
func (l *Loader) show(key string) bool {
	return l.cache.WithLoaded(key, l.presenter.OnDisplay)
}

func (l *Loader) fail(key string, stage string, cause error, log *slog.Logger) error {
	entry, _ := l.cache.Get(key)
	if err := l.cache.FailLoad(key, cause); err != nil {
		panic(err)
	}
	l.m.fetches.WithLabelValues(entry.Kind.String(), stage+"_error").Inc()
	log.Error("Error loading resource", "stage", stage, "state", cache.Failed.String(), "error", cause)
	return fmt.Errorf("load %q: %w", key, cause)
}

func (l *Loader) joinInFlight(ctx context.Context, key string, kind common.Kind, log *slog.Logger) error {
	if l.join == JoinDrop {
		log.Info("Resource is already loading, request dropped", "state", cache.Loading.String())
		return nil
	}

	log.Debug("Waiting for in-flight load", "state", cache.Loading.String())
	entry, ok, err := l.cache.Wait(ctx, key)
	if err != nil {
		return fmt.Errorf("wait for %q: %w", key, err)
	}
	switch {
	case !ok:
		log.Debug("Resource released before waiter observed it")
		return nil
	case entry.State == cache.Loaded:
		if !l.show(key) {
			log.Debug("Resource released before waiter observed it")
			return nil
		}
		l.m.hits.WithLabelValues(kind.String()).Inc()
		return nil
	case entry.State == cache.Failed:
		return &FailedError{Key: key, Err: entry.Err}
	}
	return nil
}

// Release destroys the value held for key. Releasing a Loaded key clears the
// display for its kind. Releasing a Failed key only forgets the failure.
// Absent and Loading keys yield ErrNotLoaded.
func (l *Loader) Release(key string) error {
	released, err := l.cache.Release(key)
	if err != nil {
		current, _ := l.cache.Get(key)
		l.logger.Warn("Resource not loaded, nothing to release", "key", key, "state", current.State.String())
		return fmt.Errorf("release %q: %w", key, err)
	}

	log := l.logger.With("key", key, "kind", released.Kind.String())
	if released.State != cache.Loaded {
		log.Info("Cleared failed resource", "state", cache.Unloaded.String())
		return nil
	}
	l.m.releases.WithLabelValues(released.Kind.String()).Inc()
	l.presenter.OnClear(released.Kind)
	log.Info("Resource unloaded", "state", cache.Unloaded.String())
	return nil
}

// RequestAll requests every key concurrently and returns the joined errors
// of the requests that failed.
func (l *Loader) RequestAll(ctx context.Context, keys []string) error {
	errs := make([]error, len(keys))
	var g errgroup.Group
	g.SetLimit(8)
	for i, key := range keys {
		g.Go(func() error {
			errs[i] = l.Request(ctx, key)
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}

// Status reports the state of a catalog key.
func (l *Loader) Status(key string) (Status, error) {
	desc, ok := l.catalog.Lookup(key)
	if !ok {
		return Status{}, fmt.Errorf("status %q: %w", key, ErrUnknownKey)
	}
	return l.status(desc), nil
}

// Snapshot reports every catalog key in catalog order.
func (l *Loader) Snapshot() []Status {
	entries := l.catalog.Entries()
	out := make([]Status, 0, len(entries))
	for _, desc := range entries {
		out = append(out, l.status(desc))
	}
	return out
}

func (l *Loader) status(desc common.Descriptor) Status {
	entry, _ := l.cache.Get(desc.Key)
	s := Status{
		Key:      desc.Key,
		Kind:     desc.Kind,
		Locator:  desc.Locator,
		State:    entry.State,
		Err:      entry.Err,
		Attempts: entry.Attempts,
	}
	if entry.Value != nil {
		s.Size = entry.Value.Size()
	}
	return s
}
