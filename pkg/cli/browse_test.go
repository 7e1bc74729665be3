package cli

import (
	"context"
	"strings"
	"testing"

	"assetload/pkg/common"
	"assetload/pkg/display"

	tea "github.com/charmbracelet/bubbletea"
)

func newTestBrowser(t *testing.T) *browseModel {
	t.Helper()
	f := newFixture(t)
	rec := display.NewRecorder()
	l, err := f.mgr.NewLoader(rec)
	if err != nil {
		t.Fatalf("NewLoader failed: %v", err)
	}
	m := newBrowseModel(context.Background(), l, rec, DefaultTheme())
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return m
}

// selectKey moves the cursor to key.
func selectKey(t *testing.T, m *browseModel, key string) {
	t.Helper()
	for i, it := range m.list.Items() {
		if it.(browseItem).status.Key == key {
			m.list.Select(i)
			return
		}
	}
	t.Fatalf("%s not in list", key)
}

func TestBrowseLoad(t *testing.T) {
	m := newTestBrowser(t)
	selectKey(t, m, "readme")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter returned no command")
	}
	msg, ok := cmd().(loadedMsg)
	if !ok {
		t.Fatalf("command returned %T", msg)
	}
	if msg.key != "readme" || msg.err != nil {
		t.Fatalf("loadedMsg = %+v", msg)
	}
	m.Update(msg)

	view := m.View()
	if !strings.Contains(view, "Welcome aboard.") {
		t.Errorf("preview missing text:\n%s", view)
	}
	if strings.Contains(view, "Second line.") {
		t.Errorf("preview should only show the first line:\n%s", view)
	}
	it := m.list.SelectedItem().(browseItem)
	if !strings.Contains(it.Description(), "loaded") {
		t.Errorf("description = %q", it.Description())
	}
}

func TestBrowseReleaseAndRetry(t *testing.T) {
	m := newTestBrowser(t)
	selectKey(t, m, "readme")
	m.Update(m.loadCmd("readme", false)())

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	if _, ok := m.rec.Current(common.KindText); ok {
		t.Error("text view was not cleared")
	}
	if !strings.Contains(m.status, "readme released") {
		t.Errorf("status = %q", m.status)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	if !strings.Contains(m.status, "not loaded") {
		t.Errorf("status = %q", m.status)
	}

	selectKey(t, m, "missing")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if cmd == nil {
		t.Fatal("retry returned no command")
	}
	msg := cmd().(loadedMsg)
	if msg.err == nil {
		t.Fatal("expected missing to fail")
	}
	m.Update(msg)
	if !strings.Contains(m.status, "missing") {
		t.Errorf("status = %q", m.status)
	}
	it := m.list.SelectedItem().(browseItem)
	if !strings.Contains(it.Description(), "failed") {
		t.Errorf("description = %q", it.Description())
	}
}
