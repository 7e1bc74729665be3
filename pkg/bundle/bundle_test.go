package bundle

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

var modelFiles = map[string]string{
	"ship.obj":              "o ship\nv 0 0 0\n",
	"textures/hull.png":     "not really a png",
	"textures/deep/rim.png": "rim",
}

func TestBuildListOpen(t *testing.T) {
	for _, ext := range []string{".tar.zst", ".tar.gz", ".tgz", ".tar"} {
		t.Run(ext, func(t *testing.T) {
			tempDir := t.TempDir()
			src := filepath.Join(tempDir, "src")
			writeTree(t, src, modelFiles)

			dest := filepath.Join(tempDir, "out", "ship"+ext)
			n, err := Build(src, dest)
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			if n != len(modelFiles) {
				t.Errorf("expected %d files, got %d", len(modelFiles), n)
			}
			if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
				t.Error("expected temp file to be gone")
			}

			entries, err := List(dest)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			want := []Entry{
				{Name: "ship.obj", Size: int64(len(modelFiles["ship.obj"]))},
				{Name: "textures/deep/rim.png", Size: 3},
				{Name: "textures/hull.png", Size: int64(len(modelFiles["textures/hull.png"]))},
			}
			if diff := cmp.Diff(want, entries); diff != "" {
				t.Errorf("entries mismatch (-want +got):\n%s", diff)
			}

			files, err := Open(dest)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			for name, content := range modelFiles {
				if string(files[name]) != content {
					t.Errorf("%s: want %q, got %q", name, content, files[name])
				}
			}
		})
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "src")
	writeTree(t, src, modelFiles)

	a := filepath.Join(tempDir, "a.tar.zst")
	b := filepath.Join(tempDir, "b.tar.zst")
	if _, err := Build(src, a); err != nil {
		t.Fatal(err)
	}
	if _, err := Build(src, b); err != nil {
		t.Fatal(err)
	}
	da, _ := os.ReadFile(a)
	db, _ := os.ReadFile(b)
	if !bytes.Equal(da, db) {
		t.Error("expected identical bundles for identical inputs")
	}
}

func TestBuildErrors(t *testing.T) {
	tempDir := t.TempDir()
	if _, err := Build(filepath.Join(tempDir, "missing"), filepath.Join(tempDir, "x.tar.zst")); err == nil {
		t.Error("expected an error for a missing source")
	}
	file := filepath.Join(tempDir, "file")
	os.WriteFile(file, []byte("x"), 0644)
	if _, err := Build(file, filepath.Join(tempDir, "x.tar.zst")); err == nil {
		t.Error("expected an error for a non-directory source")
	}
	if _, err := Build(tempDir, filepath.Join(tempDir, "x.rar")); err == nil {
		t.Error("expected an error for an unsupported format")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "x.rar")); !os.IsNotExist(err) {
		t.Error("failed build left a bundle behind")
	}
}

func TestExtract(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "src")
	writeTree(t, src, modelFiles)
	bundlePath := filepath.Join(tempDir, "ship.tar.zst")
	if _, err := Build(src, bundlePath); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(tempDir, "extracted")
	if err := Extract(bundlePath, dest); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	for name, content := range modelFiles {
		checkFile(t, filepath.Join(dest, filepath.FromSlash(name)), content)
	}
}

func TestZipBundle(t *testing.T) {
	tempDir := t.TempDir()
	zipPath := filepath.Join(tempDir, "ship.zip")
	f, err := os.Create(zipPath)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for _, name := range []string{"ship.obj", "textures/hull.png"} {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		io.WriteString(fw, modelFiles[name])
	}
	w.Close()
	f.Close()

	files, err := Open(zipPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if len(files) != 2 || string(files["ship.obj"]) != modelFiles["ship.obj"] {
		t.Errorf("unexpected zip contents: %v", files)
	}

	dest := filepath.Join(tempDir, "out")
	if err := Extract(zipPath, dest); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	checkFile(t, filepath.Join(dest, "textures", "hull.png"), modelFiles["textures/hull.png"])
}

func TestExtractRejectsTraversal(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "evil.tar.zst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw, _ := zstd.NewWriter(f)
	tw := tar.NewWriter(zw)
	content := []byte("gotcha")
	tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: "../escape.txt", Mode: 0600, Size: int64(len(content))})
	tw.Write(content)
	tw.Close()
	zw.Close()
	f.Close()

	if err := Extract(path, filepath.Join(tempDir, "dest")); err == nil {
		t.Fatal("expected path traversal to be rejected")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "escape.txt")); !os.IsNotExist(err) {
		t.Error("traversal entry was written outside dest")
	}
}

func TestIsSupported(t *testing.T) {
	for name, want := range map[string]bool{
		"ship.tar.zst": true,
		"ship.zip":     true,
		"ship.tgz":     true,
		"ship.unity3d": false,
	} {
		if got := IsSupported(name); got != want {
			t.Errorf("IsSupported(%q) = %v, want %v", name, got, want)
		}
	}
}

func checkFile(t *testing.T, path, content string) {
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read extracted file %s: %v", path, err)
	}
	if string(b) != content {
		t.Errorf("File %s content mismatch. Want %q, got %q", path, content, string(b))
	}
}
