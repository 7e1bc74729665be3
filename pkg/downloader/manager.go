package downloader

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"assetload/pkg/common"
	"assetload/pkg/display"
)

// TaskStarter opens a progress task for a fetch. display.Display satisfies it.
type TaskStarter interface {
	StartTask(name string) display.Task
}

// Mutable during setup, immutable once fetching starts.
type manager struct {
	handlers map[string]SchemeHandler
	tasks    TaskStarter
}

// Option configures the default fetcher.
type Option func(*manager)

// WithTasks reports fetch progress through ts.
func WithTasks(ts TaskStarter) Option {
	return func(m *manager) { m.tasks = ts }
}

// WithHandler registers an additional scheme handler, replacing any
// handler already registered for the same schemes.
func WithHandler(h SchemeHandler) Option {
	return func(m *manager) { m.register(h) }
}

// WithTimeout bounds every HTTP fetch. Zero means no timeout beyond ctx.
func WithTimeout(d time.Duration) Option {
	return func(m *manager) { m.register(NewHTTPHandler(d)) }
}

// NewDefaultFetcher returns a Fetcher handling http, https and file URIs.
func NewDefaultFetcher(opts ...Option) Fetcher {
	m := &manager{
		handlers: make(map[string]SchemeHandler),
	}
	m.register(NewHTTPHandler(0))
	m.register(NewFileHandler())
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *manager) register(h SchemeHandler) {
	for _, scheme := range h.Schemes() {
		m.handlers[scheme] = h
	}
}

func (m *manager) Fetch(ctx context.Context, locator string, kind common.Kind) (*Raw, error) {
	if kind == common.KindModel {
		return nil, ErrUnsupportedKind
	}

	u, err := url.Parse(locator)
	if err != nil {
		return nil, &NetworkError{Locator: locator, Message: "invalid uri", Err: err}
	}

	scheme := strings.ToLower(u.Scheme)
	handler, ok := m.handlers[scheme]
	if !ok {
		return nil, &NetworkError{Locator: locator, Message: "unsupported scheme: " + scheme}
	}

	var task display.Task = display.NopTask{}
	if m.tasks != nil {
		task = m.tasks.StartTask(kind.String())
		defer task.Done()
	}
	task.SetStage("Fetch", locator)

	var buf bytes.Buffer
	contentType, err := handler.Download(ctx, locator, &buf, task)
	if err != nil {
		return nil, &NetworkError{Locator: locator, Message: "download failed", Err: err}
	}
	return &Raw{Locator: locator, Data: buf.Bytes(), ContentType: contentType}, nil
}
