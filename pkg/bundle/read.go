package bundle

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// maxEntrySize bounds a single file read into memory by Open.
const maxEntrySize = 256 << 20

// visitFunc is called for every regular file in a bundle. open returns a
// reader for the file content; it is only valid during the call.
type visitFunc func(name string, info os.FileInfo, open func() (io.ReadCloser, error)) error

// List returns the files in the bundle at path, in archive order.
func List(path string) ([]Entry, error) {
	var entries []Entry
	err := walk(path, func(name string, info os.FileInfo, _ func() (io.ReadCloser, error)) error {
		if info.IsDir() {
			return nil
		}
		entries = append(entries, Entry{Name: name, Size: info.Size()})
		return nil
	})
	return entries, err
}

// Open reads every file in the bundle into memory, keyed by slash-separated
// name.
func Open(path string) (map[string][]byte, error) {
	files := make(map[string][]byte)
	err := walk(path, func(name string, info os.FileInfo, open func() (io.ReadCloser, error)) error {
		if info.IsDir() {
			return nil
		}
		if info.Size() > maxEntrySize {
			return fmt.Errorf("bundle entry %s is too large (%d bytes)", name, info.Size())
		}
		rc, err := open()
		if err != nil {
			return fmt.Errorf("failed to open bundle entry %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
		if err != nil {
			return fmt.Errorf("failed to read bundle entry %s: %w", name, err)
		}
		files[name] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Extract unpacks the bundle at src into the directory dest.
func Extract(src string, dest string) error {
	return walk(src, func(name string, info os.FileInfo, open func() (io.ReadCloser, error)) error {
		return extractFile(name, info, dest, open)
	})
}

func walk(src string, visit visitFunc) error {
	if strings.HasSuffix(src, ".zip") {
		return walkZip(src, visit)
	}

	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open bundle: %w", err)
	}
	defer f.Close()

	var r io.Reader = f

	if strings.HasSuffix(src, ".tar.gz") || strings.HasSuffix(src, ".tgz") {
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzr.Close()
		r = gzr
	} else if strings.HasSuffix(src, ".tar.zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	} else if strings.HasSuffix(src, ".tar") {
		// Plain tar, reader is file
	} else {
		return fmt.Errorf("unsupported bundle format: %s", src)
	}

	return walkTar(r, visit)
}

func walkZip(src string, visit visitFunc) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return fmt.Errorf("failed to open zip bundle: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		err := visit(f.Name, f.FileInfo(), func() (io.ReadCloser, error) {
			return f.Open()
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func walkTar(r io.Reader, visit visitFunc) error {
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar header: %w", err)
		}
		if header.Typeflag != tar.TypeReg && header.Typeflag != tar.TypeDir {
			continue
		}

		err = visit(header.Name, header.FileInfo(), func() (io.ReadCloser, error) {
			return io.NopCloser(tr), nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// extractFile writes a single file or directory below dest.
func extractFile(name string, info os.FileInfo, dest string, opener func() (io.ReadCloser, error)) error {
	// Zip Slip protection
	target := filepath.Join(dest, name)
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return fmt.Errorf("illegal file path in bundle: %s", name)
	}

	if info.IsDir() {
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", target, err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", target, err)
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", target, err)
	}
	defer f.Close()

	rc, err := opener()
	if err != nil {
		return fmt.Errorf("failed to open bundle entry %s: %w", name, err)
	}
	defer rc.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return fmt.Errorf("failed to write file %s: %w", target, err)
	}
	return nil
}
