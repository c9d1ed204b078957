// Package fetcher acquires input datasets from local paths and HTTP or FTP
// URLs, staging remote sources as local files for parsing.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Fetcher downloads remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL and writes it to the given path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Fetch resolves a source to a local file path. Plain paths are checked
// and returned as-is; http(s) and ftp URLs are downloaded into destDir
// keeping the remote base name, so the file extension survives for format
// dispatch.
func Fetch(ctx context.Context, source, destDir string, timeout time.Duration) (string, error) {
	u, err := url.Parse(source)
	if err != nil || u.Scheme == "" {
		if _, statErr := os.Stat(source); statErr != nil {
			return "", eris.Wrapf(statErr, "fetcher: input %s", source)
		}
		return source, nil
	}

	var f Fetcher
	switch u.Scheme {
	case "http", "https":
		f = NewHTTPFetcher(HTTPOptions{Timeout: timeout})
	case "ftp":
		f = NewFTPFetcher(FTPOptions{Timeout: timeout})
	default:
		return "", eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}

	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "dataset"
	}
	dest := filepath.Join(destDir, name)

	n, err := f.DownloadToFile(ctx, source, dest)
	if err != nil {
		return "", err
	}

	zap.L().Info("dataset downloaded",
		zap.String("source", source),
		zap.String("dest", dest),
		zap.Int64("bytes", n),
	)
	return dest, nil
}
