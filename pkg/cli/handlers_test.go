package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"assetload/pkg/common"
	"assetload/pkg/config"
	"assetload/pkg/display"
	"assetload/pkg/loader"

	"github.com/prometheus/client_golang/prometheus"
)

type fixture struct {
	dir     string
	catalog string
	mgr     *Managers
	cfg     *config.Config
	out     *bytes.Buffer
}

func fileURL(path string) string {
	return "file://" + filepath.ToSlash(path)
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(1, 1, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

// newFixture writes a small catalog of local files and a Managers over it.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	assets := filepath.Join(dir, "assets")
	if err := os.MkdirAll(assets, 0755); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(assets, "logo.png"))
	if err := os.WriteFile(filepath.Join(assets, "readme.txt"), []byte("Welcome aboard.\nSecond line."), 0644); err != nil {
		t.Fatal(err)
	}

	entries := []map[string]string{
		{"key": "logo", "url": fileURL(filepath.Join(assets, "logo.png")), "kind": "image"},
		{"key": "readme", "url": fileURL(filepath.Join(assets, "readme.txt")), "kind": "text"},
		{"key": "missing", "url": fileURL(filepath.Join(assets, "nope.txt")), "kind": "text"},
		{"key": "ship", "url": fileURL(filepath.Join(assets, "ship.fbx")), "kind": "model"},
	}
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatal(err)
	}
	catPath := filepath.Join(dir, "catalog.json")
	if err := os.WriteFile(catPath, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.NewAt(filepath.Join(dir, "cache"), filepath.Join(dir, "config"), filepath.Join(dir, "state"))
	var out bytes.Buffer
	return &fixture{
		dir:     dir,
		catalog: catPath,
		cfg:     cfg,
		out:     &out,
		mgr: &Managers{
			Cfg:             cfg,
			Disp:            display.NewWriterDisplay(&out),
			Logger:          slog.New(slog.DiscardHandler),
			Registry:        prometheus.NewRegistry(),
			CatalogOverride: catPath,
		},
	}
}

func (f *fixture) handlers() *DefaultHandlers {
	return &DefaultHandlers{Mgr: f.mgr}
}

func loadInv(keys ...string) *Invocation {
	return &Invocation{
		Args:  map[string]string{},
		Lists: map[string][]string{"keys": keys},
		Flags: map[string]any{},
	}
}

func argsInv(args map[string]string) *Invocation {
	return &Invocation{Args: args, Lists: map[string][]string{}, Flags: map[string]any{}}
}

func rowsByKey(table *common.Table) map[string][]string {
	rows := make(map[string][]string)
	for _, r := range table.Rows {
		rows[r[0]] = r
	}
	return rows
}

func TestLoadHandler(t *testing.T) {
	f := newFixture(t)
	res, err := f.handlers().Load(context.Background(), loadInv("logo", "readme"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, message %q", res.ExitCode, res.Output.Message)
	}
	rows := rowsByKey(res.Output.Table)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %v", res.Output.Table.Rows)
	}
	for _, key := range []string{"logo", "readme"} {
		if rows[key][2] != "loaded" {
			t.Errorf("%s state = %q, want loaded", key, rows[key][2])
		}
	}
	if !strings.Contains(f.out.String(), "Welcome aboard.") {
		t.Errorf("text was not displayed:\n%s", f.out.String())
	}
}

func TestLoadHandlerFailures(t *testing.T) {
	f := newFixture(t)
	res, err := f.handlers().Load(context.Background(), loadInv("readme", "missing", "ship", "ghost"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.ExitCode != 1 {
		t.Fatalf("ExitCode = %d, want 1", res.ExitCode)
	}
	for _, want := range []string{"missing", "ship", "ghost"} {
		if !strings.Contains(res.Output.Message, want) {
			t.Errorf("message does not mention %q:\n%s", want, res.Output.Message)
		}
	}
	rows := rowsByKey(res.Output.Table)
	if rows["readme"][2] != "loaded" {
		t.Errorf("readme state = %q", rows["readme"][2])
	}
	if rows["missing"][2] != "failed" || rows["missing"][4] == "" {
		t.Errorf("missing row = %v", rows["missing"])
	}
	if rows["ship"][2] != "unloaded" {
		t.Errorf("ship state = %q, want unloaded", rows["ship"][2])
	}
}

func TestLoadHandlerRelease(t *testing.T) {
	f := newFixture(t)
	inv := loadInv("readme", "missing")
	inv.Flags["release"] = true
	res, err := f.handlers().Load(context.Background(), inv)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if res.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1 for the missing key", res.ExitCode)
	}
	if !strings.Contains(f.out.String(), "text view cleared") {
		t.Errorf("expected the text view to be cleared:\n%s", f.out.String())
	}
}

func TestCatalogList(t *testing.T) {
	f := newFixture(t)
	res, err := f.handlers().CatalogList(context.Background(), argsInv(nil))
	if err != nil {
		t.Fatalf("CatalogList failed: %v", err)
	}
	if len(res.Output.Table.Rows) != 4 {
		t.Errorf("rows = %d, want 4", len(res.Output.Table.Rows))
	}
	if res.Output.Table.Rows[0][0] != "logo" || res.Output.Table.Rows[3][1] != "model" {
		t.Errorf("unexpected rows: %v", res.Output.Table.Rows)
	}

	inv := argsInv(nil)
	inv.Flags["json"] = true
	res, err = f.handlers().CatalogList(context.Background(), inv)
	if err != nil {
		t.Fatalf("CatalogList --json failed: %v", err)
	}
	var decoded []common.Descriptor
	if err := json.Unmarshal([]byte(res.Output.Message), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, res.Output.Message)
	}
	if len(decoded) != 4 || decoded[1].Key != "readme" || decoded[1].Kind != common.KindText {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestCatalogListWithoutCatalog(t *testing.T) {
	f := newFixture(t)
	f.mgr.CatalogOverride = ""
	if _, err := f.handlers().CatalogList(context.Background(), argsInv(nil)); err == nil {
		t.Error("expected an error when the configured catalog does not exist")
	}
}

func TestCatalogCheck(t *testing.T) {
	f := newFixture(t)
	res, err := f.handlers().CatalogCheck(context.Background(), argsInv(map[string]string{"path": f.catalog}))
	if err != nil {
		t.Fatalf("CatalogCheck failed: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("ExitCode = %d: %s", res.ExitCode, res.Output.Message)
	}
	kv := make(map[string]string)
	for _, e := range res.Output.KV {
		kv[e.Key] = e.Value
	}
	if kv["text"] != "2" || kv["image"] != "1" || kv["model"] != "1" {
		t.Errorf("counts = %v", kv)
	}
	if kv["note"] == "" {
		t.Error("expected a note about model entries")
	}

	bad := filepath.Join(f.dir, "dup.json")
	dup := `[{"key":"a","url":"http://x/a","kind":"text"},{"key":"a","url":"http://x/b","kind":"text"}]`
	if err := os.WriteFile(bad, []byte(dup), 0644); err != nil {
		t.Fatal(err)
	}
	res, err = f.handlers().CatalogCheck(context.Background(), argsInv(map[string]string{"path": bad}))
	if err != nil {
		t.Fatalf("CatalogCheck failed: %v", err)
	}
	if res.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1 for duplicate keys", res.ExitCode)
	}
}

func TestBundleHandlers(t *testing.T) {
	f := newFixture(t)
	src := filepath.Join(f.dir, "ship")
	if err := os.MkdirAll(filepath.Join(src, "textures"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "ship.obj"), []byte("v 0 0 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "textures", "hull.png"), []byte("not really a png"), 0644); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(f.dir, "out", "ship.tar.zst")
	h := f.handlers()

	res, err := h.BundleBuild(context.Background(), argsInv(map[string]string{"dir": src, "dest": dest}))
	if err != nil {
		t.Fatalf("BundleBuild failed: %v", err)
	}
	if res.Output.KV[0].Value != "2" {
		t.Errorf("files = %s, want 2", res.Output.KV[0].Value)
	}

	res, err = h.BundleList(context.Background(), argsInv(map[string]string{"path": dest}))
	if err != nil {
		t.Fatalf("BundleList failed: %v", err)
	}
	if len(res.Output.Table.Rows) != 2 {
		t.Errorf("rows = %v", res.Output.Table.Rows)
	}

	out := filepath.Join(f.dir, "extracted")
	if _, err := h.BundleExtract(context.Background(), argsInv(map[string]string{"path": dest, "dest": out})); err != nil {
		t.Fatalf("BundleExtract failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(out, "ship.obj"))
	if err != nil || string(data) != "v 0 0 0\n" {
		t.Errorf("extracted ship.obj = %q, %v", data, err)
	}
}

func TestConfigSetAndShow(t *testing.T) {
	f := newFixture(t)
	h := f.handlers()

	if _, err := h.ConfigSet(context.Background(), argsInv(map[string]string{"name": "join_policy", "value": "wait"})); err != nil {
		t.Fatalf("ConfigSet failed: %v", err)
	}
	if _, err := os.Stat(f.cfg.GetSettingsPath()); err != nil {
		t.Fatalf("settings not saved: %v", err)
	}

	// A fresh store must see the saved value.
	fresh := config.NewAt(f.cfg.GetCacheDir(), f.cfg.GetConfigDir(), f.cfg.GetStateDir())
	s, err := fresh.Settings()
	if err != nil {
		t.Fatal(err)
	}
	if s.JoinPolicy != "wait" {
		t.Errorf("JoinPolicy = %q, want wait", s.JoinPolicy)
	}

	res, err := h.ConfigShow(context.Background(), argsInv(nil))
	if err != nil {
		t.Fatalf("ConfigShow failed: %v", err)
	}
	kv := make(map[string]string)
	for _, e := range res.Output.KV {
		kv[e.Key] = e.Value
	}
	if kv["join_policy"] != "wait" || kv["retry_policy"] != "request" || kv["http_timeout"] != "30s" {
		t.Errorf("ConfigShow = %v", kv)
	}

	if _, err := h.ConfigSet(context.Background(), argsInv(map[string]string{"name": "join_policy", "value": "sometimes"})); err == nil {
		t.Error("expected an error for an invalid join policy")
	}
}

func TestApplySetting(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
		check   func(config.Settings) bool
	}{
		{"catalog", "scene.star", false, func(s config.Settings) bool { return s.Catalog == "scene.star" }},
		{"query", ".resources[]", false, func(s config.Settings) bool { return s.Query == ".resources[]" }},
		{"http_timeout", "5s", false, func(s config.Settings) bool { return time.Duration(s.HTTPTimeout) == 5*time.Second }},
		{"http_timeout", "soon", true, nil},
		{"retry_policy", "explicit", false, func(s config.Settings) bool { return s.RetryPolicy == "explicit" }},
		{"retry_policy", "never", true, nil},
		{"strip_html", "true", false, func(s config.Settings) bool { return s.StripHTML }},
		{"strip_html", "maybe", true, nil},
		{"colour", "blue", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name+"="+tt.value, func(t *testing.T) {
			s := *config.DefaultSettings()
			err := applySetting(&s, tt.name, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("applySetting error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil && !tt.check(s) {
				t.Errorf("setting not applied: %+v", s)
			}
		})
	}
}

func TestStatusTableFilter(t *testing.T) {
	snap := []loader.Status{
		{Key: "a", Kind: common.KindText},
		{Key: "b", Kind: common.KindImage, Size: 2048},
		{Key: "c", Kind: common.KindAudio},
	}
	all := statusTable(snap, nil)
	if len(all.Rows) != 3 {
		t.Errorf("rows = %d, want 3", len(all.Rows))
	}
	some := statusTable(snap, []string{"c", "b"})
	if len(some.Rows) != 2 || some.Rows[0][0] != "b" || some.Rows[1][0] != "c" {
		t.Errorf("filtered rows = %v", some.Rows)
	}
	if some.Rows[0][3] != "2.0 kB" {
		t.Errorf("size = %q", some.Rows[0][3])
	}
}

func TestVersion(t *testing.T) {
	res, err := (&DefaultHandlers{}).Version(context.Background(), argsInv(nil))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(res.Output.Message, "assetload ") {
		t.Errorf("version = %q", res.Output.Message)
	}
}
