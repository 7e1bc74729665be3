package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"assetload/pkg/common"
	"assetload/pkg/display"
	"assetload/pkg/loader"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
)

const previewHeight = 6

type browseKeys struct {
	Load    key.Binding
	Release key.Binding
	Retry   key.Binding
}

var defaultBrowseKeys = browseKeys{
	Load:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "load")),
	Release: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "release")),
	Retry:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry")),
}

type browseItem struct {
	status loader.Status
}

func (i browseItem) Title() string       { return i.status.Key }
func (i browseItem) FilterValue() string { return i.status.Key }

func (i browseItem) Description() string {
	parts := []string{i.status.Kind.String(), i.status.State.String()}
	if i.status.Size > 0 {
		parts = append(parts, humanize.Bytes(i.status.Size))
	}
	if i.status.Err != nil {
		parts = append(parts, i.status.Err.Error())
	}
	return strings.Join(parts, " · ")
}

// loadedMsg reports the end of a load started from the browser.
type loadedMsg struct {
	key string
	err error
}

// browseModel is the bubbletea model behind 'assetload browse'.
// Mutable
type browseModel struct {
	ctx    context.Context
	loader *loader.Loader
	rec    *display.Recorder
	theme  *Theme
	keys   browseKeys
	list   list.Model
	status string
	width  int
}

func newBrowseModel(ctx context.Context, l *loader.Loader, rec *display.Recorder, theme *Theme) *browseModel {
	m := &browseModel{
		ctx:    ctx,
		loader: l,
		rec:    rec,
		theme:  theme,
		keys:   defaultBrowseKeys,
	}
	m.list = list.New(m.items(), list.NewDefaultDelegate(), 0, 0)
	m.list.Title = fmt.Sprintf("Catalog (%d resources)", l.Catalog().Len())
	m.list.AdditionalShortHelpKeys = func() []key.Binding {
		return []key.Binding{m.keys.Load, m.keys.Release, m.keys.Retry}
	}
	return m
}

func (m *browseModel) items() []list.Item {
	snap := m.loader.Snapshot()
	items := make([]list.Item, len(snap))
	for i, s := range snap {
		items[i] = browseItem{status: s}
	}
	return items
}

func (m *browseModel) refresh() tea.Cmd {
	return m.list.SetItems(m.items())
}

func (m *browseModel) selected() (string, bool) {
	it, ok := m.list.SelectedItem().(browseItem)
	if !ok {
		return "", false
	}
	return it.status.Key, true
}

func (m *browseModel) loadCmd(key string, retry bool) tea.Cmd {
	return func() tea.Msg {
		var err error
		if retry {
			err = m.loader.Retry(m.ctx, key)
		} else {
			err = m.loader.Request(m.ctx, key)
		}
		return loadedMsg{key: key, err: err}
	}
}

func (m *browseModel) Init() tea.Cmd {
	return nil
}

func (m *browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.list.SetSize(msg.Width, max(msg.Height-previewHeight, 1))
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.status = m.theme.Red.Render(fmt.Sprintf("%s: %v", msg.key, msg.err))
		} else {
			m.status = m.theme.Green.Render(msg.key + " loaded")
		}
		return m, m.refresh()

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch {
		case key.Matches(msg, m.keys.Load):
			if k, ok := m.selected(); ok {
				m.status = m.theme.Yellow.Render("loading " + k + "…")
				return m, m.loadCmd(k, false)
			}
			return m, nil
		case key.Matches(msg, m.keys.Retry):
			if k, ok := m.selected(); ok {
				m.status = m.theme.Yellow.Render("retrying " + k + "…")
				return m, m.loadCmd(k, true)
			}
			return m, nil
		case key.Matches(msg, m.keys.Release):
			if k, ok := m.selected(); ok {
				m.release(k)
			}
			return m, m.refresh()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *browseModel) release(k string) {
	err := m.loader.Release(k)
	switch {
	case errors.Is(err, loader.ErrNotLoaded):
		m.status = m.theme.Dim.Render(k + " is not loaded")
	case err != nil:
		m.status = m.theme.Red.Render(fmt.Sprintf("%s: %v", k, err))
	default:
		m.status = m.theme.Green.Render(k + " released")
	}
}

func (m *browseModel) View() string {
	var b strings.Builder
	b.WriteString(m.list.View())
	b.WriteString("\n")
	b.WriteString(m.preview())
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
	}
	return b.String()
}

// preview renders one line per kind currently on display.
func (m *browseModel) preview() string {
	var lines []string
	for _, k := range []common.Kind{common.KindImage, common.KindAudio, common.KindText} {
		v, ok := m.rec.Current(k)
		if !ok {
			lines = append(lines, m.theme.Dim.Render(fmt.Sprintf("%-5s  -", k)))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s  %s", m.theme.Cyan.Render(fmt.Sprintf("%-5s", k)), m.previewValue(v)))
	}
	return strings.Join(lines, "\n")
}

func (m *browseModel) previewValue(v common.Value) string {
	switch {
	case v.Image != nil:
		return fmt.Sprintf("%dx%d %s (%s)", v.Image.Width, v.Image.Height, v.Image.Format, humanize.Bytes(v.Size()))
	case v.Audio != nil:
		return fmt.Sprintf("%d ch @ %d Hz, %s", v.Audio.Channels, v.Audio.SampleRate, v.Audio.Duration().Round(1e6))
	case v.Text != nil:
		line, _, _ := strings.Cut(v.Text.Text, "\n")
		limit := 60
		if m.width > 20 {
			limit = m.width - 10
		}
		if r := []rune(line); len(r) > limit {
			line = string(r[:limit]) + "…"
		}
		return line
	}
	return "(empty)"
}

func (h *DefaultHandlers) Browse(ctx context.Context, inv *Invocation) (*ExecutionResult, error) {
	// The terminal belongs to the browser; progress and logs would garble it.
	mgr := *h.Mgr
	mgr.Disp = nil
	mgr.Logger = slog.New(slog.DiscardHandler)

	rec := display.NewRecorder()
	l, err := mgr.NewLoader(rec)
	if err != nil {
		return nil, err
	}
	m := newBrowseModel(ctx, l, rec, DefaultTheme())
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return &ExecutionResult{ExitCode: 130}, nil
		}
		return nil, fmt.Errorf("browser failed: %w", err)
	}
	return &ExecutionResult{ExitCode: 0}, nil
}
