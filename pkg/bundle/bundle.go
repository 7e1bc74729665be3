// Package bundle packs and unpacks model bundles. Models are never fetched
// by URL; they travel as tar archives compressed with zstd (or gzip), or as
// zip files.
package bundle

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Entry is one file inside a bundle.
// Immutable
type Entry struct {
	Name string
	Size int64
}

// SupportedExtensions returns the bundle file extensions that can be read.
func SupportedExtensions() []string {
	return []string{".tar.zst", ".tar.gz", ".tgz", ".tar", ".zip"}
}

// IsSupported reports whether filename has a readable bundle extension.
func IsSupported(filename string) bool {
	for _, ext := range SupportedExtensions() {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return false
}

// Build packs every regular file under srcDir into dest and returns the
// number of files written. The compression follows the extension of dest:
// .tar.zst, .tar.gz, .tgz or .tar. Entries are written in lexical order with
// zeroed timestamps so identical inputs produce identical bundles.
func Build(srcDir, dest string) (int, error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return 0, fmt.Errorf("failed to stat source: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("source %s is not a directory", srcDir)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}
	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("failed to create bundle: %w", err)
	}
	defer os.Remove(tmp)

	n, err := writeBundle(f, srcDir, dest)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return 0, fmt.Errorf("failed to finalize bundle: %w", err)
	}
	return n, nil
}

func writeBundle(w io.Writer, srcDir, dest string) (int, error) {
	var cw io.WriteCloser
	switch {
	case strings.HasSuffix(dest, ".tar.zst"):
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return 0, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		cw = zw
	case strings.HasSuffix(dest, ".tar.gz"), strings.HasSuffix(dest, ".tgz"):
		cw = gzip.NewWriter(w)
	case strings.HasSuffix(dest, ".tar"):
		cw = nopWriteCloser{w}
	default:
		return 0, fmt.Errorf("unsupported bundle format: %s", dest)
	}

	tw := tar.NewWriter(cw)
	count := 0
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if err := addFile(tw, path, filepath.ToSlash(rel)); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		cw.Close()
		return 0, err
	}
	if err := tw.Close(); err != nil {
		cw.Close()
		return 0, fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := cw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish compression: %w", err)
	}
	return count, nil
}

func addFile(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     int64(info.Mode().Perm()),
		Size:     info.Size(),
		ModTime:  time.Unix(0, 0),
		Format:   tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write header for %s: %w", name, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
