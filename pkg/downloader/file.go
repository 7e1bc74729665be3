package downloader

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"assetload/pkg/display"

	"github.com/dustin/go-humanize"
)

// Immutable
type fileHandler struct{}

// NewFileHandler returns a handler for file:// URIs. The content type is
// guessed from the file extension, then from the leading bytes.
func NewFileHandler() SchemeHandler {
	return fileHandler{}
}

func (fileHandler) Schemes() []string {
	return []string{"file"}
}

func (fileHandler) Download(ctx context.Context, uri string, w io.Writer, task display.Task) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	path := u.Path
	if path == "" {
		path = u.Opaque
	}
	if path == "" {
		return "", fmt.Errorf("no path in %s", uri)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(filepath.FromSlash(path))
	if err != nil {
		return "", err
	}
	defer f.Close()

	sn := &sniffer{}
	n, err := io.Copy(io.MultiWriter(w, sn), f)
	if err != nil {
		return "", err
	}
	task.Progress(100, humanize.Bytes(uint64(n)))

	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct, nil
	}
	return http.DetectContentType(sn.head), nil
}

// sniffer keeps the leading bytes needed for content type detection.
type sniffer struct {
	head []byte
}

func (s *sniffer) Write(p []byte) (int, error) {
	if room := 512 - len(s.head); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		s.head = append(s.head, p[:room]...)
	}
	return len(p), nil
}
